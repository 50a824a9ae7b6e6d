package interp

import (
	"go/ast"
	"go/token"
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/wasm-kernels/array"
	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/types"
	"github.com/wippyai/wasm-kernels/typing"
)

// eval evaluates e at its recorded type.
func (f *frame) eval(e ast.Expr) (value, error) {
	switch x := e.(type) {
	case *ast.BasicLit, *ast.SelectorExpr:
		bits, fv, ok := typing.Constant(e, f.typeOf(e).Kind.Default())
		if !ok {
			return value{}, f.internal(e, "not a constant")
		}
		return value{i: bits, f: fv}, nil
	case *ast.Ident:
		if slot, ok := f.slots[x.Name]; ok {
			return f.vars[slot], nil
		}
		return boolValue(x.Name == "true"), nil
	case *ast.ParenExpr:
		return f.eval(x.X)
	case *ast.UnaryExpr:
		return f.unary(x)
	case *ast.BinaryExpr:
		return f.binary(x)
	case *ast.IndexExpr:
		a, off, depth, err := f.locate(x)
		if err != nil {
			return value{}, err
		}
		if depth == a.Rank() {
			return load(a, off), nil
		}
		return value{arr: view(a, off, depth)}, nil
	case *ast.CallExpr:
		return f.call(x)
	}
	return value{}, f.internal(e, "unsupported expression")
}

// evalAs evaluates e and converts the result to kind k.
func (f *frame) evalAs(e ast.Expr, k types.Kind) (value, error) {
	v, err := f.eval(e)
	if err != nil {
		return value{}, err
	}
	return convert(v, f.typeOf(e).Kind, k), nil
}

func (f *frame) typeOf(e ast.Expr) types.Type {
	return f.info.Types[e]
}

func (f *frame) unary(x *ast.UnaryExpr) (value, error) {
	k := f.typeOf(x).Kind.Default()
	v, err := f.evalAs(x.X, k)
	if err != nil {
		return value{}, err
	}
	switch x.Op {
	case token.SUB:
		if k.IsFloat() {
			return value{f: -v.f}, nil
		}
		return value{i: types.WrapInt(-v.i, k)}, nil
	case token.NOT:
		return boolValue(v.i == 0), nil
	case token.XOR:
		return value{i: types.WrapInt(^v.i, k)}, nil
	}
	return v, nil
}

func (f *frame) binary(x *ast.BinaryExpr) (value, error) {
	switch x.Op {
	case token.LAND, token.LOR:
		l, err := f.eval(x.X)
		if err != nil {
			return value{}, err
		}
		if (l.i != 0) == (x.Op == token.LOR) {
			return l, nil
		}
		return f.eval(x.Y)
	}

	k := f.info.Ops[x].Default()
	l, err := f.evalAs(x.X, k)
	if err != nil {
		return value{}, err
	}
	r, err := f.evalAs(x.Y, k)
	if err != nil {
		return value{}, err
	}
	switch x.Op {
	case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ:
		return boolValue(compare(x.Op, k, l, r)), nil
	}
	return f.arith(x.Op, k, l, r)
}

func compare(op token.Token, k types.Kind, l, r value) bool {
	var c int
	switch {
	case k.IsFloat():
		switch op {
		case token.EQL:
			return l.f == r.f
		case token.NEQ:
			return l.f != r.f
		case token.LSS:
			return l.f < r.f
		case token.LEQ:
			return l.f <= r.f
		case token.GTR:
			return l.f > r.f
		case token.GEQ:
			return l.f >= r.f
		}
	case k.IsSigned() || k == types.Bool:
		c = cmpInt(l.i, r.i)
	default:
		c = cmpInt(uint64(l.i), uint64(r.i))
	}
	switch op {
	case token.EQL:
		return c == 0
	case token.NEQ:
		return c != 0
	case token.LSS:
		return c < 0
	case token.LEQ:
		return c <= 0
	case token.GTR:
		return c > 0
	}
	return c >= 0
}

func cmpInt[T int64 | uint64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// arith applies a numeric operator at kind k with the wrapping, division and
// rounding rules shared with compiled code.
func (f *frame) arith(op token.Token, k types.Kind, l, r value) (value, error) {
	if k.IsFloat() {
		var v float64
		switch op {
		case token.ADD:
			v = l.f + r.f
		case token.SUB:
			v = l.f - r.f
		case token.MUL:
			v = l.f * r.f
		case token.QUO:
			v = l.f / r.f
		case token.REM:
			v = math.Mod(l.f, r.f)
		}
		return value{f: types.RoundFloat(v, k)}, nil
	}

	a, b := l.i, r.i
	var v int64
	switch op {
	case token.ADD:
		v = a + b
	case token.SUB:
		v = a - b
	case token.MUL:
		v = a * b
	case token.AND:
		v = a & b
	case token.OR:
		v = a | b
	case token.XOR:
		v = a ^ b
	case token.AND_NOT:
		v = a &^ b
	case token.QUO, token.REM:
		if b == 0 {
			return value{}, f.raise(kerrors.MsgDivideByZero)
		}
		switch {
		case !k.IsSigned():
			if op == token.QUO {
				v = int64(uint64(a) / uint64(b))
			} else {
				v = int64(uint64(a) % uint64(b))
			}
		case op == token.REM:
			if b == -1 {
				v = 0
			} else {
				v = a % b
			}
		case b == -1 && a == types.MinInt(k) && k.Size() >= 4:
			return value{}, f.raise(kerrors.MsgIntegerOverflow)
		default:
			v = a / b
		}
	}
	return value{i: types.WrapInt(v, k)}, nil
}

// locate evaluates an index chain. It returns the root array, the flat offset
// of the indexed prefix and the number of indices applied.
func (f *frame) locate(x *ast.IndexExpr) (*array.Array, int, int, error) {
	var idx []ast.Expr
	var root ast.Expr = x
	for {
		ix, ok := root.(*ast.IndexExpr)
		if !ok {
			break
		}
		idx = append(idx, ix.Index)
		root = ix.X
	}
	base, err := f.eval(root)
	if err != nil {
		return nil, 0, 0, err
	}
	a := base.arr
	off := 0
	for m := len(idx) - 1; m >= 0; m-- {
		d := len(idx) - 1 - m
		v, err := f.evalAs(idx[m], types.Int64)
		if err != nil {
			return nil, 0, 0, err
		}
		dim := a.Dim(d)
		if v.i < 0 || v.i >= int64(dim) {
			return nil, 0, 0, f.raise(kerrors.MsgIndexOutOfRange)
		}
		off = off*dim + int(v.i)
	}
	return a, off, len(idx), nil
}

// view returns the sub-array selected by the first depth indices.
func view(a *array.Array, off, depth int) *array.Array {
	shape := a.Shape()[depth:]
	n := 1
	for _, d := range shape {
		n *= d
	}
	v, _ := a.Span(off*n, (off+1)*n).Reshape(shape...)
	return v
}

func (f *frame) call(x *ast.CallExpr) (value, error) {
	c := f.info.Calls[x]
	switch c.Kind {
	case typing.CallConversion:
		return f.evalAs(x.Args[0], c.Conv)
	case typing.CallMath:
		a, err := f.evalAs(x.Args[0], types.Float64)
		if err != nil {
			return value{}, err
		}
		if c.Math.Arity == 1 {
			return value{f: c.Math.F1(a.f)}, nil
		}
		b, err := f.evalAs(x.Args[1], types.Float64)
		if err != nil {
			return value{}, err
		}
		return value{f: c.Math.F2(a.f, b.f)}, nil
	case typing.CallBuiltin:
		return f.builtin(x, c.Builtin)
	case typing.CallKernel:
		args := make([]value, len(x.Args))
		for i, a := range x.Args {
			v, err := f.evalAs(a, c.Callee.Sig[i].Kind)
			if err != nil {
				return value{}, err
			}
			args[i] = v
		}
		return f.in.run(f.ctx, c.Callee, f.root, args, f.depth+1)
	}
	return value{}, f.internal(x, "unresolved call")
}

func (f *frame) builtin(x *ast.CallExpr, b kernel.Builtin) (value, error) {
	switch b {
	case kernel.BuiltinLen:
		if ix, ok := x.Args[0].(*ast.IndexExpr); ok {
			a, _, depth, err := f.locate(ix)
			if err != nil {
				return value{}, err
			}
			return value{i: int64(a.Dim(depth))}, nil
		}
		v, err := f.eval(x.Args[0])
		if err != nil {
			return value{}, err
		}
		return value{i: int64(v.arr.Dim(0))}, nil

	case kernel.BuiltinMin, kernel.BuiltinMax:
		k := f.info.Ops[x]
		acc, err := f.evalAs(x.Args[0], k)
		if err != nil {
			return value{}, err
		}
		for _, a := range x.Args[1:] {
			v, err := f.evalAs(a, k)
			if err != nil {
				return value{}, err
			}
			acc = pick(b == kernel.BuiltinMin, k, acc, v)
		}
		return acc, nil

	case kernel.BuiltinPanic:
		if lit, ok := x.Args[0].(*ast.BasicLit); ok && lit.Kind == token.STRING {
			msg, _ := strconv.Unquote(lit.Value)
			return value{}, f.raise(msg)
		}
		v, err := f.eval(x.Args[0])
		if err != nil {
			return value{}, err
		}
		return value{}, f.raise(format(v, f.typeOf(x.Args[0])))

	case kernel.BuiltinPrint, kernel.BuiltinPrintln:
		parts := make([]string, len(x.Args))
		for i, a := range x.Args {
			if lit, ok := a.(*ast.BasicLit); ok && lit.Kind == token.STRING {
				parts[i], _ = strconv.Unquote(lit.Value)
				continue
			}
			v, err := f.eval(a)
			if err != nil {
				return value{}, err
			}
			parts[i] = format(v, f.typeOf(a))
		}
		f.in.print(b == kernel.BuiltinPrintln, parts)
		return value{}, nil
	}
	return value{}, f.internal(x, "unknown builtin")
}

// pick implements min and max. Floats follow Go's builtins: NaN wins and
// -0 is less than +0.
func pick(isMin bool, k types.Kind, a, b value) value {
	if k.IsFloat() {
		if isMin {
			return value{f: min(a.f, b.f)}
		}
		return value{f: max(a.f, b.f)}
	}
	less := compare(token.LSS, k, b, a)
	if isMin == less {
		return b
	}
	return a
}

func joinPrint(ln bool, parts []string) string {
	if ln {
		return strings.Join(parts, " ") + "\n"
	}
	return strings.Join(parts, "")
}
