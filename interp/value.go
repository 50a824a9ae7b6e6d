package interp

import (
	"fmt"

	"github.com/wippyai/wasm-kernels/array"
	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/types"
)

// value is a kernel value. The static type recorded by typing tells which
// field is live: i for bool and integer kinds (see types.WrapInt), f for
// float kinds, arr for arrays.
type value struct {
	arr *array.Array
	f   float64
	i   int64
}

func boolValue(b bool) value {
	if b {
		return value{i: 1}
	}
	return value{}
}

// convert converts v from kind from to kind to.
func convert(v value, from, to types.Kind) value {
	if v.arr != nil {
		return v
	}
	i, f := types.Convert(v.i, v.f, from, to)
	return value{i: i, f: f}
}

func load(a *array.Array, i int) value {
	switch s := a.Data().(type) {
	case []float64:
		return value{f: s[i]}
	case []float32:
		return value{f: float64(s[i])}
	case []int64:
		return value{i: s[i]}
	case []int32:
		return value{i: int64(s[i])}
	case []int16:
		return value{i: int64(s[i])}
	case []int8:
		return value{i: int64(s[i])}
	case []uint64:
		return value{i: int64(s[i])}
	case []uint32:
		return value{i: int64(s[i])}
	case []uint16:
		return value{i: int64(s[i])}
	case []uint8:
		return value{i: int64(s[i])}
	case []bool:
		return boolValue(s[i])
	}
	return value{}
}

// store writes v, already of the element kind, at flat offset i.
func store(a *array.Array, i int, v value) {
	switch s := a.Data().(type) {
	case []float64:
		s[i] = v.f
	case []float32:
		s[i] = float32(v.f)
	case []int64:
		s[i] = v.i
	case []int32:
		s[i] = int32(v.i)
	case []int16:
		s[i] = int16(v.i)
	case []int8:
		s[i] = int8(v.i)
	case []uint64:
		s[i] = uint64(v.i)
	case []uint32:
		s[i] = uint32(v.i)
	case []uint16:
		s[i] = uint16(v.i)
	case []uint8:
		s[i] = uint8(v.i)
	case []bool:
		s[i] = v.i != 0
	}
}

// fromGo converts a call argument to a value of type t.
func fromGo(arg any, t types.Type) (value, error) {
	if t.IsArray() {
		a, ok := arg.(*array.Array)
		if !ok || a.KernelType() != t {
			return value{}, kerrors.InvalidInput(kerrors.PhaseInterp, fmt.Sprintf("argument %T is not %s", arg, t))
		}
		return value{arr: a}, nil
	}
	i, fv, from, ok := types.Unpack(arg)
	if !ok {
		return value{}, kerrors.InvalidInput(kerrors.PhaseInterp, fmt.Sprintf("argument %T is not %s", arg, t))
	}
	if !types.CanCast(from, t.Kind) {
		return value{}, kerrors.InvalidInput(kerrors.PhaseInterp, fmt.Sprintf("cannot convert %s to %s", from, t))
	}
	i, fv = types.Convert(i, fv, from, t.Kind)
	return value{i: i, f: fv}, nil
}

// toGo converts a value of type t to the Go value returned to callers.
func toGo(v value, t types.Type) any {
	if t.IsVoid() {
		return nil
	}
	if t.IsArray() {
		return v.arr
	}
	return types.Pack(v.i, v.f, t.Kind)
}

// format renders v for print and dynamic panic messages.
func format(v value, t types.Type) string {
	if t.IsArray() {
		return fmt.Sprint(v.arr.Data())
	}
	if t.Kind.IsFloat() {
		return fmt.Sprint(v.f)
	}
	return fmt.Sprint(toGo(v, t))
}
