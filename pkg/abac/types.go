// Package abac implements attribute-based access control: a first-order
// predicate language over attribute maps plus subject/resource/action
// triples, and the policy store key shape
// (resource-type-or-name, action) it is evaluated against.
package abac

import "fmt"

// ValueKind tags which variant of Value is populated.
type ValueKind int

const (
	KindString ValueKind = iota
	KindInt
	KindBool
)

// Value is a tagged union of string, signed integer, and boolean.
type Value struct {
	Kind ValueKind
	Str  string
	Int  int64
	Bool bool
}

func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func IntValue(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func BoolValue(b bool) Value     { return Value{Kind: KindBool, Bool: b} }

// Equal reports whether two values are equal, comparing within the same
// kind only; values of differing kinds are never equal.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == o.Str
	case KindInt:
		return v.Int == o.Int
	case KindBool:
		return v.Bool == o.Bool
	default:
		return false
	}
}

// Less reports whether v is ordered strictly before o. Only defined for
// integer values; any other kind returns false.
func (v Value) Less(o Value) bool {
	if v.Kind != KindInt || o.Kind != KindInt {
		return false
	}
	return v.Int < o.Int
}

func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	default:
		return "<invalid>"
	}
}

// AttributeValue reads attr by name out of a string-keyed attribute map,
// where the value is stored as opaque bytes (the wire representation
// used by credentials and the attributes repository) and interpreted
// as a string Value. Numeric/boolean attributes are expected to arrive
// pre-decoded by the caller via IntValue/BoolValue where the schema is
// known; string is the default interpretation for raw bytes.
func AttributeValue(attrs map[string][]byte, name string) (Value, bool) {
	raw, ok := attrs[name]
	if !ok {
		return Value{}, false
	}
	return StringValue(string(raw)), true
}
