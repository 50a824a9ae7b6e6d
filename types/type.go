package types

import "strings"

// Type is a scalar kind or a C-contiguous array of a scalar kind.
// The zero Type is Void: no value.
type Type struct {
	Kind Kind
	Rank int
}

// Void is the result type of kernels that return nothing.
var Void = Type{}

// Scalar returns the scalar type of kind k.
func Scalar(k Kind) Type {
	return Type{Kind: k}
}

// ArrayOf returns the array type with element kind k and the given rank.
func ArrayOf(k Kind, rank int) Type {
	return Type{Kind: k, Rank: rank}
}

// IsVoid reports whether t carries no value.
func (t Type) IsVoid() bool {
	return t.Kind == Invalid && t.Rank == 0
}

// IsArray reports whether t is an array type.
func (t Type) IsArray() bool {
	return t.Rank > 0
}

// Elem returns the element type of an array, or t itself for scalars.
func (t Type) Elem() Type {
	return Type{Kind: t.Kind}
}

// Default materializes untyped scalar kinds.
func (t Type) Default() Type {
	if t.Rank > 0 {
		return t
	}
	return Type{Kind: t.Kind.Default()}
}

func (t Type) String() string {
	if t.IsVoid() {
		return "void"
	}
	if t.Rank == 0 {
		return t.Kind.String()
	}
	var b strings.Builder
	b.WriteString(t.Kind.String())
	b.WriteByte('[')
	for i := 0; i < t.Rank; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte(':')
	}
	b.WriteByte(']')
	return b.String()
}

// Key renders t for use in cache keys. Arrays carry their layout so a future
// strided layout cannot collide with the contiguous one.
func (t Type) Key() string {
	if t.Rank > 0 {
		return t.String() + ":C"
	}
	return t.String()
}

// Typed is implemented by runtime values that know their kernel type,
// such as *array.Array.
type Typed interface {
	KernelType() Type
}
