package probe

import (
	"fmt"
	"strings"
)

// ValueKind tags the variant held by a SampleValue.
type ValueKind uint8

const (
	KindNone ValueKind = iota
	KindString
	KindInt
	KindDouble
	KindBool
	KindList
)

// Value is the tagged union a Target produces for each Sample field and a
// Validator consumes: {None, String, Int, Double, Bool, List<Value>}.
type Value struct {
	Kind ValueKind `cbor:"kind"`
	Str  string    `cbor:"str,omitempty"`
	Int  int64     `cbor:"int,omitempty"`
	Dbl  float64   `cbor:"dbl,omitempty"`
	Bl   bool      `cbor:"bl,omitempty"`
	List []Value   `cbor:"list,omitempty"`
}

func None() Value                { return Value{Kind: KindNone} }
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func IntValue(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func DoubleValue(f float64) Value { return Value{Kind: KindDouble, Dbl: f} }
func BoolValue(b bool) Value     { return Value{Kind: KindBool, Bl: b} }
func ListValue(vs ...Value) Value { return Value{Kind: KindList, List: vs} }

// Sample is the raw multi-field observation a Target produces on one run.
type Sample map[string]Value

// String renders a Value the way a validator's failure message quotes it.
func (v Value) String() string {
	switch v.Kind {
	case KindNone:
		return "<none>"
	case KindString:
		return v.Str
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindDouble:
		return fmt.Sprintf("%g", v.Dbl)
	case KindBool:
		return fmt.Sprintf("%t", v.Bl)
	case KindList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return ""
	}
}

// Equal reports whether two Values hold the same kind and content.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == other.Str
	case KindInt:
		return v.Int == other.Int
	case KindDouble:
		return v.Dbl == other.Dbl
	case KindBool:
		return v.Bl == other.Bl
	case KindList:
		if len(v.List) != len(other.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(other.List[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}
