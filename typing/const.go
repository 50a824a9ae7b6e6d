package typing

import (
	"go/ast"
	"go/token"
	"strconv"

	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/types"
)

// Constant returns the value of a literal or math constant converted to kind
// k: integer bits for integer and bool kinds, a float64 for float kinds.
func Constant(e ast.Expr, k types.Kind) (bits int64, f float64, ok bool) {
	var (
		iv      int64
		fv      float64
		isFloat bool
		from    = types.Int64
	)
	switch x := e.(type) {
	case *ast.BasicLit:
		switch x.Kind {
		case token.INT:
			v, err := strconv.ParseInt(x.Value, 0, 64)
			if err != nil {
				u, uerr := strconv.ParseUint(x.Value, 0, 64)
				if uerr != nil {
					fv, isFloat = parseFloat(x.Value), true
					break
				}
				v, from = int64(u), types.Uint64
			}
			iv = v
		case token.CHAR:
			s, err := strconv.Unquote(x.Value)
			if err != nil || s == "" {
				return 0, 0, false
			}
			iv = int64([]rune(s)[0])
		case token.FLOAT:
			fv, isFloat = parseFloat(x.Value), true
		default:
			return 0, 0, false
		}
	case *ast.SelectorExpr:
		v, found := kernel.LookupMathConst(x.Sel.Name)
		if !found {
			return 0, 0, false
		}
		fv, isFloat = v, true
	default:
		return 0, 0, false
	}

	switch {
	case k.IsFloat() && isFloat:
		return 0, types.RoundFloat(fv, k), true
	case k.IsFloat():
		return 0, types.IntToFloat(iv, from, k), true
	case isFloat:
		return types.FloatToInt(fv, k), 0, true
	}
	return types.WrapInt(iv, k), 0, true
}

func parseFloat(s string) float64 {
	// Out of range literals parse to ±Inf with an error.
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
