package types

// Kind is a scalar value kind. Array types use Kind for their element.
type Kind uint8

const (
	Invalid Kind = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64

	// Literal constants stay untyped until an operand or a declaration fixes them.
	UntypedInt
	UntypedFloat
)

var kindNames = [...]string{
	Invalid:      "invalid",
	Bool:         "bool",
	Int8:         "int8",
	Int16:        "int16",
	Int32:        "int32",
	Int64:        "int64",
	Uint8:        "uint8",
	Uint16:       "uint16",
	Uint32:       "uint32",
	Uint64:       "uint64",
	Float32:      "float32",
	Float64:      "float64",
	UntypedInt:   "untyped int",
	UntypedFloat: "untyped float",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// IsInteger reports whether k is a typed or untyped integer kind.
func (k Kind) IsInteger() bool {
	switch k {
	case Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64, UntypedInt:
		return true
	}
	return false
}

// IsSigned reports whether k is a signed integer kind.
func (k Kind) IsSigned() bool {
	switch k {
	case Int8, Int16, Int32, Int64, UntypedInt:
		return true
	}
	return false
}

// IsFloat reports whether k is a floating point kind.
func (k Kind) IsFloat() bool {
	return k == Float32 || k == Float64 || k == UntypedFloat
}

// IsNumeric reports whether arithmetic is defined on k.
func (k Kind) IsNumeric() bool {
	return k.IsInteger() || k.IsFloat()
}

// IsUntyped reports whether k is a literal constant kind.
func (k Kind) IsUntyped() bool {
	return k == UntypedInt || k == UntypedFloat
}

// Size returns the storage width in bytes. Untyped kinds report their default.
func (k Kind) Size() int {
	switch k {
	case Bool, Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64, UntypedInt, UntypedFloat:
		return 8
	}
	return 0
}

// Bits returns the storage width in bits.
func (k Kind) Bits() uint {
	return uint(k.Size()) * 8
}

// Default materializes an untyped kind.
func (k Kind) Default() Kind {
	switch k {
	case UntypedInt:
		return Int64
	case UntypedFloat:
		return Float64
	}
	return k
}

// KindFromName resolves Go type names and the numba-style aliases used in
// textual signatures.
func KindFromName(name string) (Kind, bool) {
	switch name {
	case "bool", "boolean", "b1":
		return Bool, true
	case "int8", "i1":
		return Int8, true
	case "int16", "i2":
		return Int16, true
	case "int32", "intc", "i4", "rune":
		return Int32, true
	case "int64", "int", "i8", "intp":
		return Int64, true
	case "uint8", "byte", "u1":
		return Uint8, true
	case "uint16", "u2":
		return Uint16, true
	case "uint32", "u4":
		return Uint32, true
	case "uint64", "uint", "u8":
		return Uint64, true
	case "float32", "f4":
		return Float32, true
	case "float64", "f8", "float", "double":
		return Float64, true
	}
	return Invalid, false
}
