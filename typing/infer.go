package typing

import (
	"go/ast"
	"go/token"

	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/types"
)

// maxPasses bounds the fixed-point iteration. Types only widen, so real
// kernels settle in two or three passes.
const maxPasses = 16

type session struct {
	memo   map[string]*Info
	active map[string]bool
}

// Infer derives the types of a kernel's locals, expressions and result for the
// given argument signature. Calls to other kernels of the same library are
// inferred transitively and recorded in Info.Calls.
func Infer(k *kernel.Kernel, sig types.Signature) (*Info, error) {
	s := &session{memo: make(map[string]*Info), active: make(map[string]bool)}
	return s.infer(k, sig)
}

func (s *session) infer(k *kernel.Kernel, sig types.Signature) (*Info, error) {
	key := k.Name() + sig.Key()
	if info, ok := s.memo[key]; ok {
		if s.active[key] && k.ResultInferred() {
			return nil, kerrors.New(kerrors.PhaseTyping, kerrors.KindUnsupported).
				Kernel(k.Name()).
				Signature(sig.String()).
				Detail("recursive call needs a declared result type").
				Build()
		}
		return info, nil
	}

	if len(sig) != k.NumParams() {
		return nil, kerrors.New(kerrors.PhaseTyping, kerrors.KindTypeMismatch).
			Kernel(k.Name()).
			Signature(sig.String()).
			Detail("%d arguments for %d parameters", len(sig), k.NumParams()).
			Build()
	}

	info := &Info{Kernel: k, Sig: sig, Result: k.Result(), key: key}
	s.memo[key] = info
	s.active[key] = true
	defer delete(s.active, key)

	c := &checker{
		s:      s,
		k:      k,
		info:   info,
		locals: make(map[string]types.Type),
		fixed:  make(map[string]bool),
	}
	for i, p := range k.Params() {
		t := sig[i]
		if t.IsVoid() || t.Kind.IsUntyped() {
			return nil, c.fail(k.Decl(), "argument %d has no concrete type", i)
		}
		if !p.Lazy && t != p.Type {
			return nil, c.fail(k.Decl(), "argument %d: have %s, want %s", i, t, p.Type)
		}
		c.locals[p.Name] = t
		c.fixed[p.Name] = true
	}
	if !k.ResultInferred() {
		c.result, c.resultSet = k.Result(), true
	}

	if err := c.run(); err != nil {
		delete(s.memo, key)
		return nil, err
	}
	return info, nil
}

type checker struct {
	s    *session
	k    *kernel.Kernel
	info *Info
	err  error

	locals    map[string]types.Type
	fixed     map[string]bool
	result    types.Type
	resultSet bool

	frozen  bool
	changed bool
}

func (c *checker) run() error {
	body := c.k.Decl().Body
	for pass := 0; ; pass++ {
		if pass == maxPasses {
			return c.fail(body, "type inference did not converge")
		}
		c.reset()
		c.stmts(body.List)
		if c.err != nil {
			return c.err
		}
		if !c.changed {
			break
		}
	}

	for name, t := range c.locals {
		c.locals[name] = t.Default()
	}
	c.result = c.result.Default()
	c.frozen = true
	c.reset()
	c.stmts(body.List)
	if c.err != nil {
		return c.err
	}

	c.info.Locals = c.locals
	c.info.Result = c.result
	names := c.info.LocalNames()
	c.info.Slots = make(map[string]int, len(names))
	for i, n := range names {
		c.info.Slots[n] = i
	}
	return nil
}

func (c *checker) reset() {
	c.changed = false
	c.info.Types = make(map[ast.Expr]types.Type)
	c.info.Ops = make(map[ast.Expr]types.Kind)
	c.info.Calls = make(map[*ast.CallExpr]Call)
	c.info.Written = make(map[string]bool)
	c.info.Prints = false
	c.info.ArrayLocals = false
	c.info.DynamicPanic = false
}

func (c *checker) fail(n ast.Node, format string, args ...any) error {
	return kerrors.New(kerrors.PhaseTyping, kerrors.KindTypeMismatch).
		Kernel(c.k.Name()).
		Signature(c.info.Sig.String()).
		Pos(c.k.Pos(n.Pos())).
		Detail(format, args...).
		Build()
}

func (c *checker) errorf(n ast.Node, format string, args ...any) {
	if c.err == nil {
		c.err = c.fail(n, format, args...)
	}
}

// Statements

func (c *checker) stmts(list []ast.Stmt) {
	for _, s := range list {
		if c.err != nil {
			return
		}
		c.stmt(s)
	}
}

func (c *checker) stmt(s ast.Stmt) {
	switch x := s.(type) {
	case *ast.BlockStmt:
		c.stmts(x.List)
	case *ast.ExprStmt:
		call, ok := x.X.(*ast.CallExpr)
		if !ok {
			c.errorf(x, "%s is not used", kernel.ExprString(x.X))
			return
		}
		c.call(call)
	case *ast.AssignStmt:
		c.assign(x)
	case *ast.IncDecStmt:
		t := c.expr(x.X)
		if t.IsArray() || !t.Kind.IsNumeric() {
			c.errorf(x, "invalid operation: %s%s on %s", kernel.ExprString(x.X), x.Tok, t)
			return
		}
		c.checkTarget(x.X)
		c.info.Ops[x.X] = t.Kind
	case *ast.DeclStmt:
		c.varDecl(x.Decl.(*ast.GenDecl))
	case *ast.IfStmt:
		if x.Init != nil {
			c.stmt(x.Init)
		}
		c.cond(x.Cond)
		c.stmt(x.Body)
		if x.Else != nil {
			c.stmt(x.Else)
		}
	case *ast.ForStmt:
		if x.Init != nil {
			c.stmt(x.Init)
		}
		if x.Cond != nil {
			c.cond(x.Cond)
		}
		if x.Post != nil {
			c.stmt(x.Post)
		}
		c.stmt(x.Body)
	case *ast.RangeStmt:
		c.rangeStmt(x)
	case *ast.ReturnStmt:
		c.returnStmt(x)
	case *ast.BranchStmt, *ast.EmptyStmt:
	default:
		c.errorf(s, "unsupported statement")
	}
}

func (c *checker) assign(x *ast.AssignStmt) {
	if x.Tok == token.DEFINE || x.Tok == token.ASSIGN {
		rts := make([]types.Type, len(x.Rhs))
		for i, r := range x.Rhs {
			rts[i] = c.value(r)
		}
		for i, l := range x.Lhs {
			c.store(l, x.Rhs[i], rts[i])
		}
		return
	}

	op := AssignOp(x.Tok)
	lhs, rhs := x.Lhs[0], x.Rhs[0]
	lt := c.expr(lhs)
	rt := c.value(rhs)
	k, ok := c.arith(x, op, lt, rt)
	if !ok {
		return
	}
	c.checkTarget(lhs)
	if id, isIdent := lhs.(*ast.Ident); isIdent {
		c.assignLocal(id, types.Scalar(k))
		if !c.fixed[id.Name] {
			k = c.locals[id.Name].Kind
		}
	}
	c.info.Ops[lhs] = k
	c.settle(rhs, k)
}

// AssignOp maps an op-assignment token to its binary operator.
func AssignOp(tok token.Token) token.Token {
	switch tok {
	case token.ADD_ASSIGN:
		return token.ADD
	case token.SUB_ASSIGN:
		return token.SUB
	case token.MUL_ASSIGN:
		return token.MUL
	case token.QUO_ASSIGN:
		return token.QUO
	case token.REM_ASSIGN:
		return token.REM
	case token.AND_ASSIGN:
		return token.AND
	case token.OR_ASSIGN:
		return token.OR
	case token.XOR_ASSIGN:
		return token.XOR
	case token.AND_NOT_ASSIGN:
		return token.AND_NOT
	}
	return token.ILLEGAL
}

// store records the assignment of rhs, of type t, to lhs.
func (c *checker) store(lhs, rhs ast.Expr, t types.Type) {
	switch l := lhs.(type) {
	case *ast.Ident:
		if l.Name == "_" {
			c.settle(rhs, t.Kind.Default())
			return
		}
		c.assignLocal(l, t)
		if lt := c.locals[l.Name]; !lt.IsArray() {
			c.settle(rhs, lt.Kind)
		}
	case *ast.IndexExpr:
		et := c.expr(l)
		if et.IsArray() {
			c.errorf(l, "cannot assign to array row %s", kernel.ExprString(l))
			return
		}
		if !assignable(t, et) {
			c.errorf(l, "cannot use %s value as %s", t, et)
			return
		}
		c.checkTarget(l)
		c.settle(rhs, et.Kind)
	default:
		c.errorf(lhs, "cannot assign to %s", kernel.ExprString(lhs))
	}
}

// assignLocal merges t into the type of a variable.
func (c *checker) assignLocal(id *ast.Ident, t types.Type) {
	if t.IsArray() {
		c.info.ArrayLocals = true
	}
	old, ok := c.locals[id.Name]
	if !ok {
		if c.frozen {
			c.errorf(id, "undefined: %s", id.Name)
			return
		}
		c.locals[id.Name] = t
		c.changed = true
		return
	}
	if c.fixed[id.Name] || c.frozen {
		if !assignable(t, old) {
			c.errorf(id, "cannot use %s value as %s in assignment to %s", t, old, id.Name)
		}
		return
	}
	merged, ok := merge(old, t)
	if !ok {
		c.errorf(id, "%s changes type from %s to %s", id.Name, old, t)
		return
	}
	if merged != old {
		c.locals[id.Name] = merged
		c.changed = true
	}
}

// merge unifies the types assigned to one variable.
func merge(old, t types.Type) (types.Type, bool) {
	if old.IsArray() || t.IsArray() || old.Kind == types.Bool || t.Kind == types.Bool {
		return old, old == t
	}
	k, ok := types.Promote(old.Kind, t.Kind)
	return types.Scalar(k), ok
}

func assignable(from, to types.Type) bool {
	if from.IsArray() || to.IsArray() {
		return from == to
	}
	if from.Kind == types.Bool || to.Kind == types.Bool {
		return from.Kind == to.Kind
	}
	return from.Kind.IsNumeric() && to.Kind.IsNumeric()
}

// checkTarget records writes through array parameters.
func (c *checker) checkTarget(e ast.Expr) {
	root := e
	for {
		ix, ok := root.(*ast.IndexExpr)
		if !ok {
			break
		}
		root = ix.X
	}
	if id, ok := root.(*ast.Ident); ok && root != e {
		if _, isParam := c.paramIndex(id.Name); isParam {
			c.info.Written[id.Name] = true
		}
	}
}

func (c *checker) paramIndex(name string) (int, bool) {
	for i := 0; i < c.k.NumParams(); i++ {
		if c.k.Param(i).Name == name {
			return i, true
		}
	}
	return 0, false
}

func (c *checker) varDecl(g *ast.GenDecl) {
	for _, spec := range g.Specs {
		vs := spec.(*ast.ValueSpec)
		if vs.Type == nil {
			if len(vs.Values) != len(vs.Names) {
				c.errorf(vs, "assignment count mismatch")
				return
			}
			for i, name := range vs.Names {
				c.store(name, vs.Values[i], c.value(vs.Values[i]))
			}
			continue
		}

		id, ok := vs.Type.(*ast.Ident)
		var k types.Kind
		if ok {
			k, ok = kernel.ConversionKind(id.Name)
		}
		if !ok {
			c.errorf(vs.Type, "unsupported variable type %s", kernel.ExprString(vs.Type))
			return
		}
		t := types.Scalar(k)
		for i, name := range vs.Names {
			if name.Name == "_" {
				continue
			}
			if old, exists := c.locals[name.Name]; exists && (old != t || !c.fixed[name.Name]) {
				c.errorf(name, "%s redeclared as %s", name.Name, t)
				return
			}
			c.locals[name.Name] = t
			c.fixed[name.Name] = true
			if i < len(vs.Values) {
				vt := c.value(vs.Values[i])
				if !assignable(vt, t) {
					c.errorf(vs.Values[i], "cannot use %s value as %s", vt, t)
					return
				}
				c.settle(vs.Values[i], k)
			}
		}
	}
}

func (c *checker) rangeStmt(x *ast.RangeStmt) {
	xt := c.value(x.X)
	var key, val types.Type
	switch {
	case xt.IsArray():
		key = types.Scalar(types.Int64)
		val = types.ArrayOf(xt.Kind, xt.Rank-1)
	case xt.Kind.IsInteger():
		if x.Value != nil {
			c.errorf(x.Value, "range over integer permits only one iteration variable")
			return
		}
		c.settle(x.X, types.Int64)
		key = types.Scalar(c.info.Types[x.X].Kind)
	default:
		c.errorf(x.X, "cannot range over %s", xt)
		return
	}
	if id, ok := x.Key.(*ast.Ident); ok && id.Name != "_" {
		c.assignLocal(id, key)
	}
	if id, ok := x.Value.(*ast.Ident); ok && id.Name != "_" {
		c.assignLocal(id, val)
	}
	c.stmt(x.Body)
}

func (c *checker) returnStmt(x *ast.ReturnStmt) {
	if len(x.Results) == 0 {
		if c.k.HasResult() {
			c.errorf(x, "missing return value")
		}
		return
	}
	if len(x.Results) > 1 || !c.k.HasResult() {
		c.errorf(x, "too many return values")
		return
	}
	e := x.Results[0]
	t := c.value(e)
	if !c.k.ResultInferred() || c.frozen {
		if !assignable(t, c.result) {
			c.errorf(e, "cannot use %s value as %s in return", t, c.result)
			return
		}
	} else if !c.resultSet {
		c.result, c.resultSet, c.changed = t, true, true
	} else {
		merged, ok := merge(c.result, t)
		if !ok {
			c.errorf(e, "inconsistent return types %s and %s", c.result, t)
			return
		}
		if merged != c.result {
			c.result, c.changed = merged, true
		}
	}
	if !c.result.IsArray() {
		c.settle(e, c.result.Kind)
	}
}

func (c *checker) cond(e ast.Expr) {
	if t := c.value(e); t != types.Scalar(types.Bool) {
		c.errorf(e, "non-boolean condition %s (%s)", kernel.ExprString(e), t)
	}
}

// Expressions

// value checks an expression used for its value.
func (c *checker) value(e ast.Expr) types.Type {
	t := c.expr(e)
	if t.IsVoid() && c.err == nil {
		c.errorf(e, "%s (no value) used as value", kernel.ExprString(e))
	}
	return t
}

func (c *checker) expr(e ast.Expr) types.Type {
	t := c.exprInner(e)
	c.info.Types[e] = t
	return t
}

func (c *checker) exprInner(e ast.Expr) types.Type {
	switch x := e.(type) {
	case *ast.BasicLit:
		switch x.Kind {
		case token.INT, token.CHAR:
			return types.Scalar(types.UntypedInt)
		case token.FLOAT:
			return types.Scalar(types.UntypedFloat)
		}
		c.errorf(x, "string values are only allowed in panic and print")
	case *ast.Ident:
		if t, ok := c.locals[x.Name]; ok {
			return t
		}
		if x.Name == "true" || x.Name == "false" {
			return types.Scalar(types.Bool)
		}
		c.errorf(x, "undefined: %s", x.Name)
	case *ast.ParenExpr:
		return c.expr(x.X)
	case *ast.SelectorExpr:
		if _, ok := kernel.LookupMathConst(x.Sel.Name); ok {
			return types.Scalar(types.UntypedFloat)
		}
		c.errorf(x, "%s is not a constant", kernel.ExprString(x))
	case *ast.UnaryExpr:
		return c.unary(x)
	case *ast.BinaryExpr:
		return c.binary(x)
	case *ast.IndexExpr:
		bt := c.value(x.X)
		if !bt.IsArray() {
			c.errorf(x, "cannot index %s (%s)", kernel.ExprString(x.X), bt)
			return types.Void
		}
		it := c.value(x.Index)
		if it.IsArray() || !it.Kind.IsInteger() {
			c.errorf(x.Index, "invalid index %s (%s)", kernel.ExprString(x.Index), it)
			return types.Void
		}
		c.settle(x.Index, types.Int64)
		return types.ArrayOf(bt.Kind, bt.Rank-1)
	case *ast.CallExpr:
		return c.call(x)
	default:
		c.errorf(e, "unsupported expression")
	}
	return types.Void
}

func (c *checker) unary(x *ast.UnaryExpr) types.Type {
	t := c.value(x.X)
	if t.IsArray() {
		c.errorf(x, "operator %s not defined on arrays", x.Op)
		return types.Void
	}
	switch x.Op {
	case token.SUB, token.ADD:
		if t.Kind.IsNumeric() {
			return t
		}
	case token.NOT:
		if t.Kind == types.Bool {
			return t
		}
	case token.XOR:
		if t.Kind.IsInteger() {
			return t
		}
	}
	if c.err == nil {
		c.errorf(x, "operator %s not defined on %s", x.Op, t)
	}
	return types.Void
}

func (c *checker) binary(x *ast.BinaryExpr) types.Type {
	lt := c.value(x.X)
	rt := c.value(x.Y)
	if c.err != nil {
		return types.Void
	}
	if lt.IsArray() || rt.IsArray() {
		c.errorf(x, "operator %s not defined on arrays", x.Op)
		return types.Void
	}

	switch x.Op {
	case token.LAND, token.LOR:
		if lt.Kind != types.Bool || rt.Kind != types.Bool {
			c.errorf(x, "operator %s not defined on %s, %s", x.Op, lt, rt)
			return types.Void
		}
		return lt
	case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ:
		if lt.Kind == types.Bool && rt.Kind == types.Bool && (x.Op == token.EQL || x.Op == token.NEQ) {
			c.info.Ops[x] = types.Bool
			return lt
		}
		k, ok := c.arith(x, x.Op, lt, rt)
		if !ok {
			return types.Void
		}
		k = k.Default()
		c.info.Ops[x] = k
		c.settle(x.X, k)
		c.settle(x.Y, k)
		return types.Scalar(types.Bool)
	}

	k, ok := c.arith(x, x.Op, lt, rt)
	if !ok {
		return types.Void
	}
	c.info.Ops[x] = k
	if !k.IsUntyped() {
		c.settle(x.X, k)
		c.settle(x.Y, k)
	}
	return types.Scalar(k)
}

// arith returns the operation kind of a numeric binary operation.
func (c *checker) arith(n ast.Node, op token.Token, lt, rt types.Type) (types.Kind, bool) {
	if lt.IsArray() || rt.IsArray() {
		c.errorf(n, "operator %s not defined on arrays", op)
		return types.Invalid, false
	}
	k, ok := types.Promote(lt.Kind, rt.Kind)
	if !ok || !k.IsNumeric() {
		c.errorf(n, "invalid operation: mismatched types %s and %s", lt, rt)
		return types.Invalid, false
	}
	switch op {
	case token.AND, token.OR, token.XOR, token.AND_NOT:
		if !k.IsInteger() {
			c.errorf(n, "operator %s not defined on %s", op, k)
			return types.Invalid, false
		}
	case token.SHL, token.SHR:
		c.errorf(n, "shift operator %s not supported", op)
		return types.Invalid, false
	case token.ILLEGAL:
		c.errorf(n, "unsupported operator")
		return types.Invalid, false
	}
	return k, true
}

// settle fixes the kind of untyped constant expressions consumed as kind k.
// Literals adopt k; untyped compound expressions evaluate at their default
// kind and are converted by the consumer.
func (c *checker) settle(e ast.Expr, k types.Kind) {
	t, ok := c.info.Types[e]
	if !ok || t.IsArray() || !t.Kind.IsUntyped() {
		return
	}
	if !k.IsNumeric() || k.IsUntyped() {
		k = t.Kind.Default()
	}
	switch x := e.(type) {
	case *ast.BasicLit, *ast.SelectorExpr:
		c.info.Types[e] = types.Scalar(k)
	case *ast.ParenExpr:
		c.settle(x.X, k)
		c.info.Types[e] = c.info.Types[x.X]
	case *ast.UnaryExpr:
		if x.Op == token.XOR && !k.IsInteger() {
			k = types.Int64
		}
		c.settle(x.X, k)
		c.info.Types[e] = c.info.Types[x.X]
	case *ast.BinaryExpr:
		d := t.Kind.Default()
		c.settle(x.X, d)
		c.settle(x.Y, d)
		c.info.Ops[x] = d
		c.info.Types[e] = types.Scalar(d)
	default:
		c.info.Types[e] = types.Scalar(t.Kind.Default())
	}
}

// Calls

func (c *checker) call(x *ast.CallExpr) types.Type {
	switch fn := x.Fun.(type) {
	case *ast.Ident:
		if callee, ok := c.k.Library().Lookup(fn.Name); ok {
			return c.kernelCall(x, callee)
		}
		if k, ok := kernel.ConversionKind(fn.Name); ok {
			return c.conversion(x, k)
		}
		if b, ok := kernel.LookupBuiltin(fn.Name); ok {
			return c.builtin(x, b)
		}
		c.errorf(fn, "undefined: %s", fn.Name)
	case *ast.SelectorExpr:
		f, ok := kernel.LookupMath(fn.Sel.Name)
		if !ok {
			c.errorf(fn, "undefined: %s", kernel.ExprString(fn))
			return types.Void
		}
		if len(x.Args) != f.Arity {
			c.errorf(x, "%s takes %d arguments", kernel.ExprString(fn), f.Arity)
			return types.Void
		}
		for _, a := range x.Args {
			if t := c.value(a); t.IsArray() || !t.Kind.IsNumeric() {
				c.errorf(a, "cannot use %s as float64 argument", t)
				return types.Void
			}
			c.settle(a, types.Float64)
		}
		c.info.Calls[x] = Call{Kind: CallMath, Math: f}
		return types.Scalar(types.Float64)
	default:
		c.errorf(x, "cannot call %s", kernel.ExprString(x.Fun))
	}
	return types.Void
}

func (c *checker) conversion(x *ast.CallExpr, k types.Kind) types.Type {
	if len(x.Args) != 1 {
		c.errorf(x, "conversion to %s takes one argument", k)
		return types.Void
	}
	t := c.value(x.Args[0])
	if t.IsArray() || !types.CanCast(t.Kind, k) {
		c.errorf(x, "cannot convert %s to %s", t, k)
		return types.Void
	}
	c.settle(x.Args[0], k)
	c.info.Calls[x] = Call{Kind: CallConversion, Conv: k}
	return types.Scalar(k)
}

func (c *checker) builtin(x *ast.CallExpr, b kernel.Builtin) types.Type {
	c.info.Calls[x] = Call{Kind: CallBuiltin, Builtin: b}
	switch b {
	case kernel.BuiltinLen:
		if len(x.Args) != 1 {
			c.errorf(x, "len takes one argument")
			return types.Void
		}
		if t := c.value(x.Args[0]); !t.IsArray() {
			c.errorf(x, "invalid argument for len: %s", t)
			return types.Void
		}
		return types.Scalar(types.Int64)

	case kernel.BuiltinMin, kernel.BuiltinMax:
		if len(x.Args) == 0 {
			c.errorf(x, "%s needs at least one argument", b)
			return types.Void
		}
		k := types.Invalid
		for i, a := range x.Args {
			t := c.value(a)
			if t.IsArray() || !t.Kind.IsNumeric() {
				c.errorf(a, "invalid argument for %s: %s", b, t)
				return types.Void
			}
			if i == 0 {
				k = t.Kind
				continue
			}
			k, _ = types.Promote(k, t.Kind)
		}
		k = k.Default()
		for _, a := range x.Args {
			c.settle(a, k)
		}
		c.info.Ops[x] = k
		return types.Scalar(k)

	case kernel.BuiltinPanic:
		if len(x.Args) != 1 {
			c.errorf(x, "panic takes one argument")
			return types.Void
		}
		if !isString(x.Args[0]) {
			c.value(x.Args[0])
			c.settle(x.Args[0], types.Invalid)
			c.info.DynamicPanic = true
		}
		return types.Void

	case kernel.BuiltinPrint, kernel.BuiltinPrintln:
		for _, a := range x.Args {
			if isString(a) {
				continue
			}
			c.value(a)
			c.settle(a, types.Invalid)
		}
		c.info.Prints = true
		return types.Void
	}
	return types.Void
}

func isString(e ast.Expr) bool {
	lit, ok := e.(*ast.BasicLit)
	return ok && lit.Kind == token.STRING
}

func (c *checker) kernelCall(x *ast.CallExpr, callee *kernel.Kernel) types.Type {
	if len(x.Args) != callee.NumParams() {
		c.errorf(x, "%s takes %d arguments, have %d", callee.Name(), callee.NumParams(), len(x.Args))
		return types.Void
	}
	sig := make(types.Signature, len(x.Args))
	for i, a := range x.Args {
		at := c.value(a)
		if c.err != nil {
			return types.Void
		}
		p := callee.Param(i)
		if p.Lazy {
			sig[i] = at.Default()
			if !at.IsArray() {
				c.settle(a, sig[i].Kind)
			}
			continue
		}
		if !assignable(at, p.Type) {
			c.errorf(a, "cannot use %s as %s in argument to %s", at, p.Type, callee.Name())
			return types.Void
		}
		sig[i] = p.Type
		if !at.IsArray() {
			c.settle(a, p.Type.Kind)
		}
	}

	info, err := c.s.infer(callee, sig)
	if err != nil {
		if c.err == nil {
			c.err = err
		}
		return types.Void
	}
	c.info.Calls[x] = Call{Kind: CallKernel, Callee: info}

	// Written is complete unless the callee is still being inferred, in which
	// case it is this kernel and the caller marks its own writes.
	for i, a := range x.Args {
		if !info.Written[callee.Param(i).Name] {
			continue
		}
		root := a
		for {
			ix, ok := root.(*ast.IndexExpr)
			if !ok {
				break
			}
			root = ix.X
		}
		if id, ok := root.(*ast.Ident); ok {
			if _, isParam := c.paramIndex(id.Name); isParam {
				c.info.Written[id.Name] = true
			}
		}
	}
	if !callee.HasResult() {
		return types.Void
	}
	return info.Result
}
