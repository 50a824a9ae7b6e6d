package types

import "math"

// Integer values of every kind travel as int64 bits: signed kinds sign-extended,
// unsigned kinds zero-extended (uint64 reinterpreted).

// WrapInt truncates v to the width of integer kind k.
func WrapInt(v int64, k Kind) int64 {
	switch k {
	case Int8:
		return int64(int8(v))
	case Int16:
		return int64(int16(v))
	case Int32:
		return int64(int32(v))
	case Uint8:
		return int64(uint8(v))
	case Uint16:
		return int64(uint16(v))
	case Uint32:
		return int64(uint32(v))
	case Bool:
		if v != 0 {
			return 1
		}
		return 0
	}
	return v
}

// FloatToInt converts f to integer kind k, truncating toward zero and
// saturating at the bounds of k. NaN converts to 0.
func FloatToInt(f float64, k Kind) int64 {
	if math.IsNaN(f) {
		return 0
	}
	switch k {
	case Uint64:
		if f <= 0 {
			return 0
		}
		if f >= 1<<64 {
			u := uint64(math.MaxUint64)
			return int64(u)
		}
		return int64(uint64(f))
	case Int64:
		if f >= 1<<63 {
			return math.MaxInt64
		}
		if f <= -(1 << 63) {
			return math.MinInt64
		}
		return int64(f)
	}
	lo, hi := intRange(k)
	f = math.Trunc(f)
	if f < lo {
		f = lo
	}
	if f > hi {
		f = hi
	}
	return int64(f)
}

func intRange(k Kind) (lo, hi float64) {
	switch k {
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Uint8:
		return 0, math.MaxUint8
	case Uint16:
		return 0, math.MaxUint16
	case Uint32:
		return 0, math.MaxUint32
	case Bool:
		return 0, 1
	}
	return math.MinInt64, math.MaxInt64
}

// IntToFloat converts integer bits of kind from to float kind to.
// The result for Float32 is exactly representable as float32.
func IntToFloat(v int64, from, to Kind) float64 {
	unsigned := from == Uint64
	if to == Float32 {
		if unsigned {
			return float64(float32(uint64(v)))
		}
		return float64(float32(v))
	}
	if unsigned {
		return float64(uint64(v))
	}
	return float64(v)
}

// RoundFloat rounds f to the precision of float kind k.
func RoundFloat(f float64, k Kind) float64 {
	if k == Float32 {
		return float64(float32(f))
	}
	return f
}

// MinInt returns the most negative value of signed kind k.
func MinInt(k Kind) int64 {
	switch k {
	case Int8:
		return math.MinInt8
	case Int16:
		return math.MinInt16
	case Int32:
		return math.MinInt32
	}
	return math.MinInt64
}

// Unpack splits a Go scalar into integer bits or a float and its kind.
func Unpack(v any) (i int64, f float64, k Kind, ok bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return 1, 0, Bool, true
		}
		return 0, 0, Bool, true
	case int:
		return int64(x), 0, Int64, true
	case int8:
		return int64(x), 0, Int8, true
	case int16:
		return int64(x), 0, Int16, true
	case int32:
		return int64(x), 0, Int32, true
	case int64:
		return x, 0, Int64, true
	case uint:
		return int64(x), 0, Uint64, true
	case uint8:
		return int64(x), 0, Uint8, true
	case uint16:
		return int64(x), 0, Uint16, true
	case uint32:
		return int64(x), 0, Uint32, true
	case uint64:
		return int64(x), 0, Uint64, true
	case float32:
		return 0, float64(x), Float32, true
	case float64:
		return 0, x, Float64, true
	}
	return 0, 0, Invalid, false
}

// Convert converts a scalar held as integer bits or a float from kind from
// to kind to. Bool converts only to bool.
func Convert(i int64, f float64, from, to Kind) (int64, float64) {
	from, to = from.Default(), to.Default()
	switch {
	case from == to:
		return i, f
	case to == Bool:
		return WrapInt(i, Bool), 0
	case from.IsFloat() && to.IsFloat():
		return 0, RoundFloat(f, to)
	case from.IsFloat():
		return FloatToInt(f, to), 0
	case to.IsFloat():
		return 0, IntToFloat(i, from, to)
	}
	return WrapInt(i, to), 0
}

// Pack builds the Go value of kind k from integer bits or a float.
func Pack(i int64, f float64, k Kind) any {
	switch k.Default() {
	case Bool:
		return i != 0
	case Int8:
		return int8(i)
	case Int16:
		return int16(i)
	case Int32:
		return int32(i)
	case Uint8:
		return uint8(i)
	case Uint16:
		return uint16(i)
	case Uint32:
		return uint32(i)
	case Uint64:
		return uint64(i)
	case Float32:
		return float32(f)
	case Float64:
		return f
	}
	return i
}
