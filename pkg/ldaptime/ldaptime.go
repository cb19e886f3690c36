package ldaptime

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the LDAP generalized-time layout used for the etlTimestamp and
// etdTimestamp attributes. Values are always UTC with a literal Z suffix.
const Layout = "20060102150405Z"

// Format renders t as generalized time in UTC.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Now returns the current time as generalized time in UTC.
func Now() string {
	return Format(time.Now())
}

// Parse reads a generalized-time value back into a time.Time. Fractional
// seconds, as some servers emit them, are accepted and truncated.
func Parse(s string) (time.Time, error) {
	v := s
	if i := strings.IndexByte(v, '.'); i >= 0 && strings.HasSuffix(v, "Z") {
		v = v[:i] + "Z"
	}

	t, err := time.Parse(Layout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid generalized time %q: %w", s, err)
	}
	return t, nil
}
