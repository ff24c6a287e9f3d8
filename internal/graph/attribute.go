package graph

import "fmt"

// AttrType tags the value held by an Attribute.
type AttrType int

// Attribute value types.
const (
	AttrInt AttrType = iota + 1
	AttrFloat
	AttrInts
	AttrFloats
	AttrString
)

// String returns the attribute type name.
func (t AttrType) String() string {
	switch t {
	case AttrInt:
		return "int"
	case AttrFloat:
		return "float"
	case AttrInts:
		return "ints"
	case AttrFloats:
		return "floats"
	case AttrString:
		return "string"
	default:
		return "unknown"
	}
}

// Attribute is a typed node attribute value. Only the field matching Type is set.
type Attribute struct {
	Type   AttrType
	I      int64     // INT value
	F      float32   // FLOAT value
	Ints   []int64   // INTS array
	Floats []float32 // FLOATS array
	S      string    // STRING value
}

// Int creates an int attribute.
func Int(v int64) Attribute { return Attribute{Type: AttrInt, I: v} }

// Float creates a float attribute.
func Float(v float32) Attribute { return Attribute{Type: AttrFloat, F: v} }

// Ints creates an int list attribute.
func Ints(v ...int64) Attribute { return Attribute{Type: AttrInts, Ints: v} }

// Floats creates a float list attribute.
func Floats(v ...float32) Attribute { return Attribute{Type: AttrFloats, Floats: v} }

// String creates a string attribute.
func String(v string) Attribute { return Attribute{Type: AttrString, S: v} }

// Format renders the attribute value for diagnostics.
func (a Attribute) Format() string {
	switch a.Type {
	case AttrInt:
		return fmt.Sprint(a.I)
	case AttrFloat:
		return fmt.Sprint(a.F)
	case AttrInts:
		return fmt.Sprint(a.Ints)
	case AttrFloats:
		return fmt.Sprint(a.Floats)
	case AttrString:
		return fmt.Sprintf("%q", a.S)
	default:
		return "<unset>"
	}
}
