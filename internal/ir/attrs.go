package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Attribute is a compile-time constant attached to an operation.
type Attribute interface {
	String() string
}

// NamedAttr pairs an attribute with its name.
type NamedAttr struct {
	Name  string
	Value Attribute
}

// IntAttr is a typed integer constant.
type IntAttr struct {
	Value int64
	Type  Type
}

func (a IntAttr) String() string { return fmt.Sprintf("%d : %s", a.Value, a.Type) }

// FloatAttr is a typed floating point constant.
type FloatAttr struct {
	Value float64
	Type  Type
}

func (a FloatAttr) String() string {
	return fmt.Sprintf("%s : %s", strconv.FormatFloat(a.Value, 'e', -1, 64), a.Type)
}

// BoolAttr is a boolean flag.
type BoolAttr bool

func (a BoolAttr) String() string { return strconv.FormatBool(bool(a)) }

// StringAttr is a quoted string.
type StringAttr string

func (a StringAttr) String() string { return strconv.Quote(string(a)) }

// SymbolRefAttr names a symbol such as a function.
type SymbolRefAttr string

func (a SymbolRefAttr) String() string { return "@" + string(a) }

// TypeAttr wraps a type.
type TypeAttr struct {
	Type Type
}

func (a TypeAttr) String() string { return a.Type.String() }

// DenseI32ArrayAttr is a list of i32 values, used for operand segments.
type DenseI32ArrayAttr []int32

func (a DenseI32ArrayAttr) String() string {
	parts := make([]string, len(a))
	for i, v := range a {
		parts[i] = strconv.Itoa(int(v))
	}
	return "array<i32: " + strings.Join(parts, ", ") + ">"
}
