package directory

import (
	"errors"

	ldap "github.com/go-ldap/ldap/v3"
)

// Scope selects how deep a search descends.
type Scope int

const (
	// ScopeBase reads exactly the entry at the search base.
	ScopeBase Scope = ldap.ScopeBaseObject
	// ScopeSubtree searches the base and everything below it.
	ScopeSubtree Scope = ldap.ScopeWholeSubtree
)

var (
	// ErrNotFound is returned when a search matches no entry.
	ErrNotFound = errors.New("directory: entry not found")

	// ErrAmbiguous is returned when a lookup that must identify a single
	// person matches more than one entry.
	ErrAmbiguous = errors.New("directory: more than one entry matches")
)

// Entry is one search result. Attribute values stay uninterpreted string
// sets; all schema knowledge lives with the callers.
type Entry struct {
	DN    string
	Attrs map[string][]string
}

// Values returns the value set of one attribute, nil when absent.
func (e *Entry) Values(attr string) []string {
	if e == nil {
		return nil
	}
	return e.Attrs[attr]
}

// HasAttr reports whether the entry carries at least one value for attr.
func (e *Entry) HasAttr(attr string) bool {
	return len(e.Values(attr)) > 0
}

// Gateway is the directory access interface the sync runs against. The
// production implementation is Client; tests substitute fakes.
type Gateway interface {
	// Search runs a plain search below base.
	Search(base string, scope Scope, filter string, attrs []string) ([]Entry, error)

	// SearchPaged runs a subtree search with paging, for full-tree scans.
	SearchPaged(base, filter string, attrs []string, pageSize uint32) ([]Entry, error)

	// GetEntry reads exactly one entry by DN. Returns ErrNotFound when the
	// DN does not exist.
	GetEntry(dn string, attrs []string) (*Entry, error)

	// Add creates an entry with the given attribute values.
	Add(dn string, attrs map[string][]string) error

	// Modify applies attribute replacements and removals in one operation.
	Modify(dn string, replace map[string][]string, remove []string) error

	// ModifyDN renames the entry's RDN, removing the old RDN value.
	ModifyDN(dn, newRDN string) error

	// Delete removes the entry.
	Delete(dn string) error

	// ModifyPassword sets the entry's native password via the password
	// modify extended operation.
	ModifyPassword(dn, password string) error

	// Close releases the connection.
	Close() error
}

// PersonDN builds the canonical entry DN for a username below a tenant
// base, escaping the RDN value.
func PersonDN(cn, baseDN string) string {
	return RDN(cn) + "," + baseDN
}

// RDN builds the cn RDN for a username, escaping the value.
func RDN(cn string) string {
	return "cn=" + ldap.EscapeDN(cn)
}

// Filter builds an equality filter for one attribute, escaping the value.
func Filter(attr, value string) string {
	return "(" + attr + "=" + ldap.EscapeFilter(value) + ")"
}

// PresenceFilter builds a filter matching every entry that carries the
// attribute at all.
func PresenceFilter(attr string) string {
	return "(" + attr + "=*)"
}
