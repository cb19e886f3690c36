package schema

import (
	"strings"
)

type valueKind int

const (
	kindNull valueKind = iota
	kindString
	kindList
)

// Value is one attribute value in source or directory form: a scalar
// string, a list of strings, or null. The zero Value is null. Null marks
// both "source column is NULL" and "attribute absent from the entry", which
// the sync treats as the same state.
type Value struct {
	kind   valueKind
	scalar string
	list   []string
}

// NewString creates a scalar value.
func NewString(s string) Value {
	return Value{kind: kindString, scalar: s}
}

// NewList creates a list value. An empty or nil slice is the null value.
func NewList(items []string) Value {
	if len(items) == 0 {
		return Value{}
	}
	return Value{kind: kindList, list: items}
}

// FromAttribute converts a directory attribute value set into a Value. A
// missing attribute (no values) becomes null, a single value a scalar.
func FromAttribute(values []string) Value {
	switch len(values) {
	case 0:
		return Value{}
	case 1:
		return NewString(values[0])
	default:
		return NewList(values)
	}
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool {
	return v.kind == kindNull
}

// Strings returns the value in directory wire form: nil for null, a
// one-element slice for a scalar, the element slice for a list.
func (v Value) Strings() []string {
	switch v.kind {
	case kindString:
		return []string{v.scalar}
	case kindList:
		return v.list
	default:
		return nil
	}
}

// Equal reports whether two values carry the same content. A scalar equals
// a one-element list with the same string, mirroring how the directory
// returns single-valued attributes.
func (v Value) Equal(o Value) bool {
	a, b := v.Strings(), o.Strings()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer for log output.
func (v Value) String() string {
	switch v.kind {
	case kindString:
		return v.scalar
	case kindList:
		return strings.Join(v.list, ";")
	default:
		return "<null>"
	}
}
