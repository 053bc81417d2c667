package ir

import "fmt"

// Type is implemented by every IR type. Value types are plain comparable
// values, so two of them are equal exactly when == holds.
type Type interface {
	String() string
}

// IntType is a signless integer of a fixed bit width.
type IntType struct {
	Width int
}

func (t IntType) String() string { return fmt.Sprintf("i%d", t.Width) }

// FloatType is an IEEE float of 16, 32 or 64 bits.
type FloatType struct {
	Width int
}

func (t FloatType) String() string { return fmt.Sprintf("f%d", t.Width) }

// NoneType is the unit type.
type NoneType struct{}

func (NoneType) String() string { return "none" }

var (
	I1  Type = IntType{Width: 1}
	I32 Type = IntType{Width: 32}
	I64 Type = IntType{Width: 64}
	F32 Type = FloatType{Width: 32}
	F64 Type = FloatType{Width: 64}
)

// FunctionType describes a func.func signature. It only appears inside a
// TypeAttr and is not comparable.
type FunctionType struct {
	Inputs  []Type
	Results []Type
}

func (t FunctionType) String() string {
	return fmt.Sprintf("(%s) -> %s", typeList(t.Inputs), resultList(t.Results))
}

func typeList(types []Type) string {
	s := ""
	for i, t := range types {
		if i > 0 {
			s += ", "
		}
		s += t.String()
	}
	return s
}

func resultList(types []Type) string {
	if len(types) == 1 {
		return types[0].String()
	}
	return "(" + typeList(types) + ")"
}

// FormatTypes renders a parenthesised type list.
func FormatTypes(types []Type) string {
	return "(" + typeList(types) + ")"
}

// FormatResultTypes renders result types the way MLIR prints a function
// type's results: bare when there is exactly one.
func FormatResultTypes(types []Type) string {
	return resultList(types)
}
