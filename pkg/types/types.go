// Package types describes the scalar kinds of the C subset and the RV32
// mnemonics used to move values of each kind between registers and memory.
package types

import (
	"errors"
	"fmt"
)

// Kind is a scalar type tag.
type Kind int

const (
	Int Kind = iota
	Float
	Double
	Char
	Unsigned
	String
	Void
)

// WordSize is the RV32 machine word in bytes.
const WordSize = 4

var ErrInvalidKind = errors.New("invalid type for operation")

var kindNames = [...]string{
	Int:      "int",
	Float:    "float",
	Double:   "double",
	Char:     "char",
	Unsigned: "unsigned",
	String:   "char*",
	Void:     "void",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// IsFloat reports whether values of k live in floating-point registers.
func (k Kind) IsFloat() bool { return k == Float || k == Double }

// Size is the number of bytes a value of k occupies in data memory.
func (k Kind) Size() int {
	switch k {
	case Char: return 1
	case Int, Unsigned, Float, String: return 4
	case Double: return 8
	default: return 0
	}
}

// StackSize is the number of bytes a scalar variable of k reserves in a frame.
func (k Kind) StackSize() int {
	switch k {
	case Char, Int, Unsigned, Float, String: return 4
	case Double: return 8
	default: return 0
	}
}

func LoadOp(k Kind) (string, error) {
	switch k {
	case Int, Unsigned, String: return "lw", nil
	case Char: return "lbu", nil
	case Float: return "flw", nil
	case Double: return "fld", nil
	}
	return "", fmt.Errorf("load of %s: %w", k, ErrInvalidKind)
}

func StoreOp(k Kind) (string, error) {
	switch k {
	case Int, Unsigned, String: return "sw", nil
	case Char: return "sb", nil
	case Float: return "fsw", nil
	case Double: return "fsd", nil
	}
	return "", fmt.Errorf("store of %s: %w", k, ErrInvalidKind)
}

func MoveOp(k Kind) (string, error) {
	switch k {
	case Int, Unsigned, String, Char: return "mv", nil
	case Float: return "fmv.s", nil
	case Double: return "fmv.d", nil
	}
	return "", fmt.Errorf("move of %s: %w", k, ErrInvalidKind)
}

// ArithOp maps a base integer mnemonic (add, sub, mul, div, rem, and, or,
// xor, sll, sra, neg) to the form used for kind k. Bitwise operations and
// remainders have no floating-point form.
func ArithOp(k Kind, base string) (string, error) {
	switch k {
	case Int, Char, String:
		return base, nil
	case Unsigned:
		switch base {
		case "div": return "divu", nil
		case "rem": return "remu", nil
		case "sra": return "srl", nil
		}
		return base, nil
	case Float, Double:
		suffix := ".s"
		if k == Double {
			suffix = ".d"
		}
		switch base {
		case "add", "sub", "mul", "div", "neg":
			return "f" + base + suffix, nil
		}
		return "", fmt.Errorf("%s on %s: %w", base, k, ErrInvalidKind)
	}
	return "", fmt.Errorf("%s on %s: %w", base, k, ErrInvalidKind)
}

// Type is a scalar kind seen through Ptr levels of indirection.
type Type struct {
	Kind Kind
	Ptr  int
}

var (
	IntType    = Type{Kind: Int}
	VoidType   = Type{Kind: Void}
	DoubleType = Type{Kind: Double}
	FloatType  = Type{Kind: Float}
)

func Scalar(k Kind) Type { return Type{Kind: k} }

func (t Type) IsPointer() bool { return t.Ptr > 0 || t.Kind == String }

// Value returns the kind that decides register class and memory width of a
// value of t: pointers behave as unsigned words.
func (t Type) Value() Kind {
	if t.Ptr > 0 {
		return String
	}
	return t.Kind
}

func (t Type) IsFloat() bool { return t.Ptr == 0 && t.Kind.IsFloat() }

// Elem is the type obtained by dereferencing t once.
func (t Type) Elem() Type {
	if t.Ptr > 0 {
		return Type{Kind: t.Kind, Ptr: t.Ptr - 1}
	}
	if t.Kind == String {
		return Type{Kind: Char}
	}
	return t
}

// ElemSize is the scaling factor for pointer arithmetic on t.
func (t Type) ElemSize() int {
	if t.Ptr > 1 {
		return WordSize
	}
	return t.Elem().Kind.Size()
}

func (t Type) Size() int {
	if t.Ptr > 0 {
		return WordSize
	}
	return t.Kind.Size()
}

func (t Type) StackSize() int {
	if t.Ptr > 0 {
		return WordSize
	}
	return t.Kind.StackSize()
}

func (t Type) String() string {
	s := t.Kind.String()
	for i := 0; i < t.Ptr; i++ {
		s += "*"
	}
	return s
}
