package compiler

import (
	"go/ast"
	"go/token"
	"strconv"

	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/types"
	"github.com/wippyai/wasm-kernels/typing"
	"github.com/wippyai/wasm-kernels/wasm"
)

func (f *fn) kindOf(e ast.Expr) types.Kind {
	return f.info.Types[e].Kind.Default()
}

// exprAs pushes e converted to kind k.
func (f *fn) exprAs(e ast.Expr, k types.Kind) error {
	if err := f.expr(e); err != nil {
		return err
	}
	f.convert(f.kindOf(e), k)
	return nil
}

// expr pushes the value of a scalar expression at its recorded type. Void
// calls push nothing.
func (f *fn) expr(e ast.Expr) error {
	switch x := e.(type) {
	case *ast.BasicLit, *ast.SelectorExpr:
		return f.constant(e)
	case *ast.Ident:
		if idx, ok := f.vars[x.Name]; ok {
			f.code.LocalGet(idx)
			return nil
		}
		if _, ok := f.arrays[x.Name]; ok {
			return f.fail(x, "array %s used as a value", x.Name)
		}
		if x.Name == "true" {
			f.code.I32Const(1)
		} else {
			f.code.I32Const(0)
		}
		return nil
	case *ast.ParenExpr:
		return f.expr(x.X)
	case *ast.UnaryExpr:
		return f.unary(x)
	case *ast.BinaryExpr:
		return f.binary(x)
	case *ast.IndexExpr:
		if f.info.Types[x].IsArray() {
			return f.fail(x, "array row used as a value")
		}
		v, err := f.element(x)
		if err != nil {
			return err
		}
		f.load(v.kind)
		return nil
	case *ast.CallExpr:
		return f.call(x)
	}
	return f.fail(e, "unsupported expression")
}

func (f *fn) fail(n ast.Node, format string, args ...any) error {
	return kerrors.New(kerrors.PhaseSpecialize, kerrors.KindUnsupported).
		Kernel(f.info.Kernel.Name()).
		Signature(f.info.Sig.String()).
		Pos(f.info.Kernel.Pos(n.Pos())).
		Detail(format, args...).
		Build()
}

func (f *fn) constant(e ast.Expr) error {
	k := f.kindOf(e)
	bits, fv, ok := typing.Constant(e, k)
	if !ok {
		return f.fail(e, "not a constant")
	}
	switch valType(k) {
	case wasm.ValI64:
		f.code.I64Const(bits)
	case wasm.ValF32:
		f.code.F32Const(float32(fv))
	case wasm.ValF64:
		f.code.F64Const(fv)
	default:
		f.code.I32Const(int32(bits))
	}
	return nil
}

func (f *fn) unary(x *ast.UnaryExpr) error {
	k := f.kindOf(x)
	switch x.Op {
	case token.SUB:
		if k.IsFloat() {
			if err := f.exprAs(x.X, k); err != nil {
				return err
			}
			if k == types.Float32 {
				f.code.Op(wasm.OpF32Neg)
			} else {
				f.code.Op(wasm.OpF64Neg)
			}
			return nil
		}
		f.zero(k)
		if err := f.exprAs(x.X, k); err != nil {
			return err
		}
		f.code.Op(intOp(k, wasm.OpI32Sub, wasm.OpI64Sub))
	case token.NOT:
		if err := f.expr(x.X); err != nil {
			return err
		}
		f.code.Op(wasm.OpI32Eqz)
	case token.XOR:
		if err := f.exprAs(x.X, k); err != nil {
			return err
		}
		f.minusOne(k)
		f.code.Op(intOp(k, wasm.OpI32Xor, wasm.OpI64Xor))
	default:
		return f.exprAs(x.X, k)
	}
	return nil
}

func (f *fn) minusOne(k types.Kind) {
	if valType(k) == wasm.ValI64 {
		f.code.I64Const(-1)
	} else {
		f.code.I32Const(-1)
	}
}

func intOp(k types.Kind, op32, op64 byte) byte {
	if valType(k) == wasm.ValI64 {
		return op64
	}
	return op32
}

func floatOp(k types.Kind, op32, op64 byte) byte {
	if k == types.Float32 {
		return op32
	}
	return op64
}

func (f *fn) binary(x *ast.BinaryExpr) error {
	bt := byte(wasm.ValI32)
	switch x.Op {
	case token.LAND:
		if err := f.expr(x.X); err != nil {
			return err
		}
		f.code.If(bt)
		if err := f.expr(x.Y); err != nil {
			return err
		}
		f.code.Else()
		f.code.I32Const(0)
		f.code.End()
		return nil
	case token.LOR:
		if err := f.expr(x.X); err != nil {
			return err
		}
		f.code.If(bt)
		f.code.I32Const(1)
		f.code.Else()
		if err := f.expr(x.Y); err != nil {
			return err
		}
		f.code.End()
		return nil
	}

	k := f.info.Ops[x].Default()
	if err := f.exprAs(x.X, k); err != nil {
		return err
	}
	if err := f.exprAs(x.Y, k); err != nil {
		return err
	}
	switch x.Op {
	case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ:
		f.code.Op(compareOp(x.Op, k))
		return nil
	}
	return f.arith(x, x.Op, k)
}

func compareOp(op token.Token, k types.Kind) byte {
	var ops [6]byte
	switch valType(k) {
	case wasm.ValI64:
		ops = [6]byte{wasm.OpI64Eq, wasm.OpI64Ne, wasm.OpI64LtS, wasm.OpI64LeS, wasm.OpI64GtS, wasm.OpI64GeS}
	case wasm.ValF32:
		ops = [6]byte{wasm.OpF32Eq, wasm.OpF32Ne, wasm.OpF32Lt, wasm.OpF32Le, wasm.OpF32Gt, wasm.OpF32Ge}
	case wasm.ValF64:
		ops = [6]byte{wasm.OpF64Eq, wasm.OpF64Ne, wasm.OpF64Lt, wasm.OpF64Le, wasm.OpF64Gt, wasm.OpF64Ge}
	default:
		ops = [6]byte{wasm.OpI32Eq, wasm.OpI32Ne, wasm.OpI32LtS, wasm.OpI32LeS, wasm.OpI32GtS, wasm.OpI32GeS}
	}
	switch op {
	case token.EQL:
		return ops[0]
	case token.NEQ:
		return ops[1]
	case token.LSS:
		return ops[2]
	case token.LEQ:
		return ops[3]
	case token.GTR:
		return ops[4]
	}
	return ops[5]
}

// arith applies op at kind k to the two operands on the stack. Integer
// division traps on a zero divisor and on the most negative value divided by
// -1; the engine maps both traps to the interpreter's messages.
func (f *fn) arith(n ast.Node, op token.Token, k types.Kind) error {
	c := f.code
	if k.IsFloat() {
		switch op {
		case token.ADD:
			c.Op(floatOp(k, wasm.OpF32Add, wasm.OpF64Add))
		case token.SUB:
			c.Op(floatOp(k, wasm.OpF32Sub, wasm.OpF64Sub))
		case token.MUL:
			c.Op(floatOp(k, wasm.OpF32Mul, wasm.OpF64Mul))
		case token.QUO:
			c.Op(floatOp(k, wasm.OpF32Div, wasm.OpF64Div))
		case token.REM:
			f.floatRem(k)
		default:
			return f.fail(n, "operator %s not defined on %s", op, k)
		}
		return nil
	}

	switch op {
	case token.ADD:
		c.Op(intOp(k, wasm.OpI32Add, wasm.OpI64Add))
	case token.SUB:
		c.Op(intOp(k, wasm.OpI32Sub, wasm.OpI64Sub))
	case token.MUL:
		c.Op(intOp(k, wasm.OpI32Mul, wasm.OpI64Mul))
	case token.QUO:
		c.Op(intOp(k, wasm.OpI32DivS, wasm.OpI64DivS))
	case token.REM:
		c.Op(intOp(k, wasm.OpI32RemS, wasm.OpI64RemS))
	case token.AND:
		c.Op(intOp(k, wasm.OpI32And, wasm.OpI64And))
	case token.OR:
		c.Op(intOp(k, wasm.OpI32Or, wasm.OpI64Or))
	case token.XOR:
		c.Op(intOp(k, wasm.OpI32Xor, wasm.OpI64Xor))
	case token.AND_NOT:
		f.minusOne(k)
		c.Op(intOp(k, wasm.OpI32Xor, wasm.OpI64Xor))
		c.Op(intOp(k, wasm.OpI32And, wasm.OpI64And))
	default:
		return f.fail(n, "operator %s not supported", op)
	}
	return nil
}

// floatRem computes math.Mod through the host. float32 operands are
// widened and the result rounded back.
func (f *fn) floatRem(k types.Kind) {
	mod := f.b.imports["Mod"]
	if k != types.Float32 {
		f.code.Call(mod)
		return
	}
	t := f.temp(wasm.ValF32)
	f.code.LocalSet(t)
	f.code.Op(wasm.OpF64PromoteF32)
	f.code.LocalGet(t)
	f.code.Op(wasm.OpF64PromoteF32)
	f.code.Call(mod)
	f.code.Op(wasm.OpF32DemoteF64)
	f.release(wasm.ValF32, t)
}

// Arrays

// indexChain splits a[i][j]... into its root and indices, outermost first.
func indexChain(x *ast.IndexExpr) (ast.Expr, []ast.Expr) {
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
	for i, j := 0, len(idx)-1; i < j; i, j = i+1, j-1 {
		idx[i], idx[j] = idx[j], idx[i]
	}
	return root, idx
}

// locate pushes the flat i32 offset of an index chain after checking every
// index against its dimension. It returns the root array and the number of
// indices applied.
func (f *fn) locate(x *ast.IndexExpr) (view, int, error) {
	root, idx := indexChain(x)
	id, ok := root.(*ast.Ident)
	if !ok {
		return view{}, 0, f.fail(x, "indexing a computed array")
	}
	v, ok := f.arrays[id.Name]
	if !ok {
		return view{}, 0, f.fail(x, "%s is not an array parameter", id.Name)
	}

	t := f.temp(wasm.ValI64)
	defer f.release(wasm.ValI64, t)
	for d, ie := range idx {
		if d > 0 {
			f.code.LocalGet(v.dims[d])
			f.code.Op(wasm.OpI32Mul)
		}
		if err := f.exprAs(ie, types.Int64); err != nil {
			return view{}, 0, err
		}
		f.code.LocalTee(t)
		f.code.LocalGet(v.dims[d])
		f.code.Op(wasm.OpI64ExtendI32S)
		f.code.Op(wasm.OpI64LtU)
		f.code.Op(wasm.OpI32Eqz)
		f.code.If(wasm.BlockVoid)
		f.raise(kerrors.MsgIndexOutOfRange)
		f.code.End()
		f.code.LocalGet(t)
		f.code.Op(wasm.OpI32WrapI64)
		if d > 0 {
			f.code.Op(wasm.OpI32Add)
		}
	}
	return v, len(idx), nil
}

// element pushes the address of a fully indexed element.
func (f *fn) element(x *ast.IndexExpr) (view, error) {
	v, n, err := f.locate(x)
	if err != nil {
		return view{}, err
	}
	if n != len(v.dims) {
		return view{}, f.fail(x, "array row used as a value")
	}
	f.scale(v, n)
	return v, nil
}

// scale turns the flat offset of the first depth indices on the stack into
// an address.
func (f *fn) scale(v view, depth int) {
	for _, d := range v.dims[depth:] {
		f.code.LocalGet(d)
		f.code.Op(wasm.OpI32Mul)
	}
	f.code.I32Const(int32(elemSize(v.kind)))
	f.code.Op(wasm.OpI32Mul)
	f.code.LocalGet(v.base)
	f.code.Op(wasm.OpI32Add)
}

func (f *fn) load(k types.Kind) {
	size := elemSize(k)
	f.code.Mem(loadOp(k), alignLog2(size), 0)
}

func (f *fn) store(k types.Kind) {
	size := elemSize(k)
	f.code.Mem(storeOp(k), alignLog2(size), 0)
}

// array resolves an array-valued expression: a parameter or a row of one.
// Rows get their base address in a temp; done releases it.
func (f *fn) array(e ast.Expr) (v view, done func(), err error) {
	switch x := e.(type) {
	case *ast.ParenExpr:
		return f.array(x.X)
	case *ast.Ident:
		if v, ok := f.arrays[x.Name]; ok {
			return v, func() {}, nil
		}
	case *ast.IndexExpr:
		root, n, err := f.locate(x)
		if err != nil {
			return view{}, nil, err
		}
		f.scale(root, n)
		base := f.temp(wasm.ValI32)
		f.code.LocalSet(base)
		row := view{kind: root.kind, base: base, dims: root.dims[n:]}
		return row, func() { f.release(wasm.ValI32, base) }, nil
	}
	return view{}, nil, f.fail(e, "unsupported array expression")
}

// Calls

func (f *fn) call(x *ast.CallExpr) error {
	c := f.info.Calls[x]
	switch c.Kind {
	case typing.CallConversion:
		return f.exprAs(x.Args[0], c.Conv)
	case typing.CallMath:
		return f.mathCall(x, c.Math)
	case typing.CallBuiltin:
		return f.builtin(x, c.Builtin)
	case typing.CallKernel:
		return f.kernelCall(x, c.Callee)
	}
	return f.fail(x, "unresolved call")
}

func (f *fn) mathCall(x *ast.CallExpr, m kernel.MathFunc) error {
	for _, a := range x.Args {
		if err := f.exprAs(a, types.Float64); err != nil {
			return err
		}
	}
	if !m.Native {
		f.code.Call(f.b.imports[m.Name])
		return nil
	}
	switch m.Name {
	case "Sqrt":
		f.code.Op(wasm.OpF64Sqrt)
	case "Abs":
		f.code.Op(wasm.OpF64Abs)
	case "Floor":
		f.code.Op(wasm.OpF64Floor)
	case "Ceil":
		f.code.Op(wasm.OpF64Ceil)
	case "Trunc":
		f.code.Op(wasm.OpF64Trunc)
	case "Min":
		f.code.Op(wasm.OpF64Min)
	case "Max":
		f.code.Op(wasm.OpF64Max)
	case "Copysign":
		f.code.Op(wasm.OpF64Copysign)
	default:
		return f.fail(x, "math.%s has no instruction", m.Name)
	}
	return nil
}

func (f *fn) builtin(x *ast.CallExpr, b kernel.Builtin) error {
	switch b {
	case kernel.BuiltinLen:
		return f.length(x.Args[0])
	case kernel.BuiltinMin, kernel.BuiltinMax:
		k := f.info.Ops[x].Default()
		if err := f.exprAs(x.Args[0], k); err != nil {
			return err
		}
		for _, a := range x.Args[1:] {
			if err := f.exprAs(a, k); err != nil {
				return err
			}
			f.pick(b == kernel.BuiltinMin, k)
		}
		return nil
	case kernel.BuiltinPanic:
		lit, ok := x.Args[0].(*ast.BasicLit)
		if !ok || lit.Kind != token.STRING {
			return f.fail(x, "panic with a non-constant message")
		}
		msg, err := strconv.Unquote(lit.Value)
		if err != nil {
			return f.fail(x, "bad panic message")
		}
		f.raise(msg)
		return nil
	}
	return f.fail(x, "%s is not supported", b)
}

// length pushes the first dimension of an array expression as int64.
func (f *fn) length(e ast.Expr) error {
	if ix, ok := e.(*ast.IndexExpr); ok {
		v, n, err := f.locate(ix)
		if err != nil {
			return err
		}
		f.code.Op(wasm.OpDrop)
		f.code.LocalGet(v.dims[n])
		f.code.Op(wasm.OpI64ExtendI32S)
		return nil
	}
	v, done, err := f.array(e)
	if err != nil {
		return err
	}
	defer done()
	f.code.LocalGet(v.dims[0])
	f.code.Op(wasm.OpI64ExtendI32S)
	return nil
}

// pick reduces the two values on the stack to their minimum or maximum.
// Floats follow the min and max builtins: NaN wins and -0 is less than +0.
func (f *fn) pick(isMin bool, k types.Kind) {
	if k.IsFloat() {
		if isMin {
			f.code.Op(floatOp(k, wasm.OpF32Min, wasm.OpF64Min))
		} else {
			f.code.Op(floatOp(k, wasm.OpF32Max, wasm.OpF64Max))
		}
		return
	}
	vt := valType(k)
	a, b := f.temp(vt), f.temp(vt)
	f.code.LocalSet(b)
	f.code.LocalSet(a)
	f.code.LocalGet(b)
	f.code.LocalGet(a)
	if isMin {
		f.code.LocalGet(b)
		f.code.LocalGet(a)
	} else {
		f.code.LocalGet(a)
		f.code.LocalGet(b)
	}
	f.code.Op(intOp(k, wasm.OpI32LtS, wasm.OpI64LtS))
	f.code.Op(wasm.OpSelect)
	f.release(vt, b)
	f.release(vt, a)
}

func (f *fn) kernelCall(x *ast.CallExpr, callee *typing.Info) error {
	var cleanup []func()
	defer func() {
		for _, done := range cleanup {
			done()
		}
	}()
	for i, a := range x.Args {
		t := callee.Sig[i]
		if !t.IsArray() {
			if err := f.exprAs(a, t.Kind); err != nil {
				return err
			}
			continue
		}
		v, done, err := f.array(a)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, done)
		f.code.LocalGet(v.base)
		for _, d := range v.dims {
			f.code.LocalGet(d)
		}
	}
	f.code.LocalGet(f.depth)
	f.code.I32Const(1)
	f.code.Op(wasm.OpI32Add)
	f.code.Call(f.b.funcs[callee.Key()])
	return nil
}
