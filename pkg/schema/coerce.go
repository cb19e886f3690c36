package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// dateLayout is the wire form of the single date column. The directory
// historically stores gebDatum as a string with a trailing ".0" on the
// seconds; the suffix is mandatory for compatibility with existing entries.
const dateLayout = "2006-01-02 15:04:05"

// Coercion converts one raw database value into directory form. nil input
// always yields the null value.
type Coercion func(raw any) (Value, error)

// text normalizes a raw database string; nil and []byte are accepted
// alongside string.
func text(raw any) (string, bool, error) {
	switch s := raw.(type) {
	case nil:
		return "", false, nil
	case string:
		return s, true, nil
	case []byte:
		return string(s), true, nil
	default:
		return "", false, fmt.Errorf("expected text, got %T", raw)
	}
}

// Number renders numeric id columns as decimal strings without a
// fractional part. The columns are double precision holding whole numbers.
func Number(raw any) (Value, error) {
	switch n := raw.(type) {
	case nil:
		return Value{}, nil
	case float64:
		return NewString(strconv.FormatInt(int64(n), 10)), nil
	case int64:
		return NewString(strconv.FormatInt(n, 10)), nil
	case int:
		return NewString(strconv.Itoa(n)), nil
	case string, []byte:
		s, _, _ := text(raw)
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid numeric value %q: %w", s, err)
		}
		return NewString(strconv.FormatInt(int64(f), 10)), nil
	default:
		return Value{}, fmt.Errorf("expected number, got %T", raw)
	}
}

// Date renders timestamp columns as "YYYY-MM-DD HH:MM:SS.0".
func Date(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Value{}, nil
	case time.Time:
		return NewString(t.Format(dateLayout) + ".0"), nil
	case *time.Time:
		if t == nil {
			return Value{}, nil
		}
		return NewString(t.Format(dateLayout) + ".0"), nil
	case string, []byte:
		s, _, _ := text(raw)
		parsed, err := time.Parse(dateLayout, strings.TrimSuffix(strings.TrimSpace(s), ".0"))
		if err != nil {
			return Value{}, fmt.Errorf("invalid date value %q: %w", s, err)
		}
		return NewString(parsed.Format(dateLayout) + ".0"), nil
	default:
		return Value{}, fmt.Errorf("expected timestamp, got %T", raw)
	}
}

// Multi splits semicolon-delimited columns into a list. Empty or
// whitespace-only input is null; the parts themselves stay verbatim.
func Multi(raw any) (Value, error) {
	s, ok, err := text(raw)
	if err != nil || !ok {
		return Value{}, err
	}
	if strings.TrimSpace(s) == "" {
		return Value{}, nil
	}
	return NewList(strings.Split(s, ";")), nil
}

// Trim fully trims free-text columns; empty after trimming is null.
func Trim(raw any) (Value, error) {
	s, ok, err := text(raw)
	if err != nil || !ok {
		return Value{}, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}, nil
	}
	return NewString(s), nil
}

// RTrim right-trims free-text columns, keeping leading whitespace; empty
// after trimming is null.
func RTrim(raw any) (Value, error) {
	s, ok, err := text(raw)
	if err != nil || !ok {
		return Value{}, err
	}
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	if s == "" {
		return Value{}, nil
	}
	return NewString(s), nil
}
