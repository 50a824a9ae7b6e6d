package main

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/wippyai/wasm-kernels/array"
	"github.com/wippyai/wasm-kernels/types"
)

// parseValue parses a command line argument. Scalars are bool, int64 or
// float64 literals; arrays are JSON lists, nested for more dimensions. A
// "kind:" prefix such as "float32:[1, 2]" or "int32:7" fixes the kind.
func parseValue(s string) (any, error) {
	return parseArg(s, types.Invalid)
}

// parseArg parses an argument for a parameter declared with kind want, or
// types.Invalid for an untyped parameter. Unprefixed literals take the
// declared kind as Go untyped constants do: integers must be exact, floats
// may round.
func parseArg(s string, want types.Kind) (any, error) {
	kind, exact := want, true
	if prefix, rest, ok := strings.Cut(s, ":"); ok {
		k, known := types.KindFromName(prefix)
		if !known {
			return nil, fmt.Errorf("unknown kind %q in %q", prefix, s)
		}
		kind, s, exact = k, rest, false
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		return parseArray(s, kind, exact)
	}

	i, f, k, err := parseScalar(s)
	if err != nil {
		return nil, err
	}
	if kind == types.Invalid {
		return types.Pack(i, f, k), nil
	}
	return convertLiteral(s, i, f, k, kind, exact)
}

// convertLiteral converts a parsed literal to kind to. With exact set an
// integer result must convert back to the same value.
func convertLiteral(lit string, i int64, f float64, from, to types.Kind, exact bool) (any, error) {
	if from == to {
		return types.Pack(i, f, to), nil
	}
	if (from == types.Bool) != (to == types.Bool) || !types.CanCast(from, to) {
		return nil, fmt.Errorf("cannot use %s as %s value", lit, to)
	}
	ci, cf := types.Convert(i, f, from, to)
	if exact && to.IsInteger() {
		if bi, bf := types.Convert(ci, cf, to, from); bi != i || bf != f {
			return nil, fmt.Errorf("cannot use %s as %s value (truncated)", lit, to)
		}
	}
	return types.Pack(ci, cf, to), nil
}

func parseScalar(s string) (int64, float64, types.Kind, error) {
	switch s {
	case "true":
		return 1, 0, types.Bool, nil
	case "false":
		return 0, 0, types.Bool, nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, 0, types.Int64, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, 0, types.Invalid, fmt.Errorf("invalid value %q", s)
	}
	return 0, f, types.Float64, nil
}

func parseArray(s string, kind types.Kind, exact bool) (*array.Array, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid array %q: %w", s, err)
	}

	var (
		shape []int
		flat  []any
	)
	if err := flatten(v, 0, &shape, &flat); err != nil {
		return nil, fmt.Errorf("invalid array %q: %w", s, err)
	}

	ints := make([]int64, len(flat))
	floats := make([]float64, len(flat))
	kinds := make([]types.Kind, len(flat))
	elem := types.Invalid
	for j, x := range flat {
		var err error
		switch x := x.(type) {
		case bool:
			ints[j], kinds[j] = 0, types.Bool
			if x {
				ints[j] = 1
			}
		case json.Number:
			ints[j], floats[j], kinds[j], err = parseScalar(x.String())
		default:
			err = fmt.Errorf("unsupported element %v", x)
		}
		if err != nil {
			return nil, err
		}
		switch {
		case elem == types.Invalid:
			elem = kinds[j]
		case elem == types.Bool || kinds[j] == types.Bool:
			if elem != kinds[j] {
				return nil, fmt.Errorf("array %q mixes bool and numbers", s)
			}
		case kinds[j] == types.Float64:
			elem = types.Float64
		}
	}
	if kind == types.Invalid {
		kind = elem
	}
	if kind == types.Invalid {
		kind = types.Float64
	}

	a, err := array.New(kind, shape...)
	if err != nil {
		return nil, err
	}
	data := reflect.ValueOf(a.Data())
	for j := range flat {
		v, err := convertLiteral(fmt.Sprint(flat[j]), ints[j], floats[j], kinds[j], kind, exact)
		if err != nil {
			return nil, err
		}
		data.Index(j).Set(reflect.ValueOf(v))
	}
	return a, nil
}

// flatten walks nested lists depth first. Every list at one depth must have
// the same length.
func flatten(v any, depth int, shape *[]int, flat *[]any) error {
	list, ok := v.([]any)
	if !ok {
		if depth != len(*shape) {
			return fmt.Errorf("ragged nesting")
		}
		*flat = append(*flat, v)
		return nil
	}
	switch {
	case depth == len(*shape):
		if len(*flat) > 0 {
			return fmt.Errorf("ragged nesting")
		}
		*shape = append(*shape, len(list))
	case (*shape)[depth] != len(list):
		return fmt.Errorf("ragged nesting")
	}
	for _, x := range list {
		if err := flatten(x, depth+1, shape, flat); err != nil {
			return err
		}
	}
	return nil
}

// plain converts arrays in v to nested slices for printing.
func plain(v any) any {
	a, ok := v.(*array.Array)
	if !ok {
		return v
	}
	data := reflect.ValueOf(a.Data())
	var nest func(off int, shape []int) any
	nest = func(off int, shape []int) any {
		if len(shape) == 0 {
			return data.Index(off).Interface()
		}
		stride := 1
		for _, d := range shape[1:] {
			stride *= d
		}
		out := make([]any, shape[0])
		for i := range out {
			out[i] = nest(off+i*stride, shape[1:])
		}
		return out
	}
	return nest(0, a.Shape())
}
