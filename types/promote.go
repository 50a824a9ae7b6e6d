package types

// Promote returns the operation kind for a binary arithmetic or comparison
// between a and b. The second result is false when no promotion exists, e.g.
// bool mixed with a number.
func Promote(a, b Kind) (Kind, bool) {
	if a == b {
		return a, a != Invalid
	}
	if a == Bool || b == Bool || a == Invalid || b == Invalid {
		return Invalid, false
	}

	if a.IsUntyped() && b.IsUntyped() {
		return UntypedFloat, true
	}
	if a.IsUntyped() {
		return adopt(a, b), true
	}
	if b.IsUntyped() {
		return adopt(b, a), true
	}

	switch {
	case a.IsFloat() || b.IsFloat():
		return Float64, true
	case a.IsSigned() == b.IsSigned():
		if a.Size() >= b.Size() {
			return a, true
		}
		return b, true
	}

	signed, unsigned := a, b
	if !signed.IsSigned() {
		signed, unsigned = b, a
	}
	if signed.Size() > unsigned.Size() {
		return signed, true
	}
	return Int64, true
}

// adopt resolves an untyped constant against a typed operand.
func adopt(untyped, typed Kind) Kind {
	if untyped == UntypedFloat && typed.IsInteger() {
		return Float64
	}
	return typed
}

// CanCast reports whether a value of kind from converts to kind to.
// Numbers convert freely; bool converts only to bool.
func CanCast(from, to Kind) bool {
	if from == Bool || to == Bool {
		return from == to
	}
	return from.IsNumeric() && to.IsNumeric()
}

// IsSafeCast reports whether every value of from is representable in to,
// as used when matching declared ufunc signatures.
func IsSafeCast(from, to Kind) bool {
	if from == to {
		return true
	}
	if !CanCast(from, to) {
		return false
	}
	switch {
	case to.IsFloat():
		if from.IsFloat() {
			return to.Size() >= from.Size()
		}
		// float64 holds integers up to 32 bits exactly, float32 up to 16.
		return from.Size() < to.Size()
	case from.IsFloat():
		return false
	case from.IsSigned() == to.IsSigned():
		return to.Size() >= from.Size()
	case !from.IsSigned() && to.IsSigned():
		return to.Size() > from.Size()
	}
	return false
}
