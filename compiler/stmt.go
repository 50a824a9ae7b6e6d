package compiler

import (
	"go/ast"
	"go/token"

	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/types"
	"github.com/wippyai/wasm-kernels/typing"
	"github.com/wippyai/wasm-kernels/wasm"
)

func (f *fn) stmts(list []ast.Stmt) error {
	for _, s := range list {
		if err := f.stmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (f *fn) stmt(s ast.Stmt) error {
	switch x := s.(type) {
	case *ast.BlockStmt:
		return f.stmts(x.List)
	case *ast.ExprStmt:
		if err := f.expr(x.X); err != nil {
			return err
		}
		if !f.info.Types[x.X].IsVoid() {
			f.code.Op(wasm.OpDrop)
		}
		return nil
	case *ast.AssignStmt:
		if x.Tok != token.DEFINE && x.Tok != token.ASSIGN {
			return f.update(x.Lhs[0], typing.AssignOp(x.Tok), x.Rhs[0])
		}
		return f.assign(x.Lhs, x.Rhs)
	case *ast.IncDecStmt:
		op := token.ADD
		if x.Tok == token.DEC {
			op = token.SUB
		}
		return f.update(x.X, op, nil)
	case *ast.DeclStmt:
		return f.varDecl(x.Decl.(*ast.GenDecl))
	case *ast.IfStmt:
		return f.ifStmt(x)
	case *ast.ForStmt:
		return f.forStmt(x)
	case *ast.RangeStmt:
		return f.rangeStmt(x)
	case *ast.ReturnStmt:
		if len(x.Results) == 1 {
			if err := f.exprAs(x.Results[0], f.info.Result.Kind); err != nil {
				return err
			}
		}
		f.code.Op(wasm.OpReturn)
		return nil
	case *ast.BranchStmt:
		if len(f.loops) == 0 || x.Label != nil {
			return f.fail(x, "unsupported %s", x.Tok)
		}
		l := f.loops[len(f.loops)-1]
		if x.Tok == token.BREAK {
			f.code.Br(l.brk)
		} else {
			f.code.Br(l.cont)
		}
		return nil
	case *ast.EmptyStmt:
		return nil
	}
	return f.fail(s, "unsupported statement")
}

// dest is an assignment destination: a local, an element address held in a
// temp, or the blank identifier.
type dest struct {
	kind  types.Kind
	local uint32
	addr  uint32
	elem  bool
	blank bool
}

func (f *fn) dest(lhs ast.Expr) (dest, error) {
	switch l := lhs.(type) {
	case *ast.Ident:
		if l.Name == "_" {
			return dest{blank: true}, nil
		}
		idx, ok := f.vars[l.Name]
		if !ok {
			return dest{}, f.fail(l, "cannot assign to %s", l.Name)
		}
		return dest{kind: f.info.Locals[l.Name].Kind, local: idx}, nil
	case *ast.IndexExpr:
		v, err := f.element(l)
		if err != nil {
			return dest{}, err
		}
		addr := f.temp(wasm.ValI32)
		f.code.LocalSet(addr)
		return dest{kind: v.kind, addr: addr, elem: true}, nil
	}
	return dest{}, f.fail(lhs, "cannot assign to %s", kernel.ExprString(lhs))
}

func (f *fn) releaseDest(d dest) {
	if d.elem {
		f.release(wasm.ValI32, d.addr)
	}
}

// set stores the value on the stack, already of the destination's kind.
// Element destinations expect their address below the value.
func (f *fn) set(d dest) {
	switch {
	case d.blank:
		f.code.Op(wasm.OpDrop)
	case d.elem:
		f.store(d.kind)
	default:
		f.code.LocalSet(d.local)
	}
}

// assign lowers plain and defining assignments. Destinations are resolved
// left to right, then every value is computed, then the stores happen.
func (f *fn) assign(lhs, rhs []ast.Expr) error {
	if len(lhs) == 1 {
		return f.assignOne(lhs[0], rhs[0])
	}

	dests := make([]dest, len(lhs))
	defer func() {
		for _, d := range dests {
			f.releaseDest(d)
		}
	}()
	for i, l := range lhs {
		d, err := f.dest(l)
		if err != nil {
			return err
		}
		dests[i] = d
	}

	vals := make([]uint32, len(rhs))
	for i, r := range rhs {
		d := dests[i]
		if d.blank {
			if err := f.discard(r); err != nil {
				return err
			}
			continue
		}
		if err := f.exprAs(r, d.kind); err != nil {
			return err
		}
		vt := valType(d.kind)
		vals[i] = f.temp(vt)
		f.code.LocalSet(vals[i])
		defer f.release(vt, vals[i])
	}
	for i, d := range dests {
		if d.blank {
			continue
		}
		if d.elem {
			f.code.LocalGet(d.addr)
		}
		f.code.LocalGet(vals[i])
		f.set(d)
	}
	return nil
}

func (f *fn) assignOne(lhs, rhs ast.Expr) error {
	switch l := lhs.(type) {
	case *ast.Ident:
		if l.Name == "_" {
			return f.discard(rhs)
		}
		idx, ok := f.vars[l.Name]
		if !ok {
			return f.fail(l, "cannot assign to %s", l.Name)
		}
		if err := f.exprAs(rhs, f.info.Locals[l.Name].Kind); err != nil {
			return err
		}
		f.code.LocalSet(idx)
		return nil
	case *ast.IndexExpr:
		v, err := f.element(l)
		if err != nil {
			return err
		}
		if err := f.exprAs(rhs, v.kind); err != nil {
			return err
		}
		f.store(v.kind)
		return nil
	}
	return f.fail(lhs, "cannot assign to %s", kernel.ExprString(lhs))
}

func (f *fn) discard(e ast.Expr) error {
	if err := f.expr(e); err != nil {
		return err
	}
	if !f.info.Types[e].IsVoid() {
		f.code.Op(wasm.OpDrop)
	}
	return nil
}

// update lowers lhs op= rhs. A nil rhs means 1, for ++ and --. The current
// value is loaded before rhs is evaluated.
func (f *fn) update(lhs ast.Expr, op token.Token, rhs ast.Expr) error {
	d, err := f.dest(lhs)
	if err != nil {
		return err
	}
	defer f.releaseDest(d)
	k := f.info.Ops[lhs].Default()

	if d.elem {
		f.code.LocalGet(d.addr)
		f.code.LocalGet(d.addr)
		f.load(d.kind)
	} else {
		f.code.LocalGet(d.local)
	}
	f.convert(d.kind, k)
	if rhs == nil {
		f.one(k)
	} else if err := f.exprAs(rhs, k); err != nil {
		return err
	}
	if err := f.arith(lhs, op, k); err != nil {
		return err
	}
	f.convert(k, d.kind)
	f.set(d)
	return nil
}

func (f *fn) varDecl(g *ast.GenDecl) error {
	for _, spec := range g.Specs {
		vs := spec.(*ast.ValueSpec)
		for i, name := range vs.Names {
			if name.Name == "_" {
				if i < len(vs.Values) {
					if err := f.discard(vs.Values[i]); err != nil {
						return err
					}
				}
				continue
			}
			k := f.info.Locals[name.Name].Kind
			if i < len(vs.Values) {
				if err := f.exprAs(vs.Values[i], k); err != nil {
					return err
				}
			} else {
				f.zero(k)
			}
			f.code.LocalSet(f.vars[name.Name])
		}
	}
	return nil
}

func (f *fn) ifStmt(x *ast.IfStmt) error {
	if x.Init != nil {
		if err := f.stmt(x.Init); err != nil {
			return err
		}
	}
	if err := f.expr(x.Cond); err != nil {
		return err
	}
	f.code.If(wasm.BlockVoid)
	if err := f.stmts(x.Body.List); err != nil {
		return err
	}
	if x.Else != nil {
		f.code.Else()
		if err := f.stmt(x.Else); err != nil {
			return err
		}
	}
	f.code.End()
	return nil
}

// loop opens the blocks of a loop:
//
//	block $brk
//	  loop $top
//	    <head>
//	    block $cont
//	      <body>
//	    end
//	    <post>
//	    br $top
//	  end
//	end
func (f *fn) loop(head func(brk wasm.Label) error, body *ast.BlockStmt, post func() error) error {
	brk := f.code.Block(wasm.BlockVoid)
	top := f.code.Loop(wasm.BlockVoid)
	if err := head(brk); err != nil {
		return err
	}
	cont := f.code.Block(wasm.BlockVoid)
	f.loops = append(f.loops, loopLabels{brk: brk, cont: cont})
	if err := f.stmts(body.List); err != nil {
		return err
	}
	f.loops = f.loops[:len(f.loops)-1]
	f.code.End()
	if err := post(); err != nil {
		return err
	}
	f.code.Br(top)
	f.code.End()
	f.code.End()
	return nil
}

func (f *fn) forStmt(x *ast.ForStmt) error {
	if x.Init != nil {
		if err := f.stmt(x.Init); err != nil {
			return err
		}
	}
	head := func(brk wasm.Label) error {
		if x.Cond == nil {
			return nil
		}
		if err := f.expr(x.Cond); err != nil {
			return err
		}
		f.code.Op(wasm.OpI32Eqz)
		f.code.BrIf(brk)
		return nil
	}
	post := func() error {
		if x.Post == nil {
			return nil
		}
		return f.stmt(x.Post)
	}
	return f.loop(head, x.Body, post)
}

// rangeStmt counts an i64 index from zero to the integer or first dimension
// being ranged over. The range expression is evaluated once.
func (f *fn) rangeStmt(x *ast.RangeStmt) error {
	xt := f.info.Types[x.X]
	var v view
	limit := f.temp(wasm.ValI64)
	defer f.release(wasm.ValI64, limit)
	if xt.IsArray() {
		arr, done, err := f.array(x.X)
		if err != nil {
			return err
		}
		defer done()
		v = arr
		f.code.LocalGet(v.dims[0])
		f.code.Op(wasm.OpI64ExtendI32S)
	} else if err := f.exprAs(x.X, types.Int64); err != nil {
		return err
	}
	f.code.LocalSet(limit)

	i := f.temp(wasm.ValI64)
	defer f.release(wasm.ValI64, i)
	f.code.I64Const(0)
	f.code.LocalSet(i)

	head := func(brk wasm.Label) error {
		f.code.LocalGet(i)
		f.code.LocalGet(limit)
		f.code.Op(wasm.OpI64GeS)
		f.code.BrIf(brk)
		if id, ok := x.Key.(*ast.Ident); ok && id.Name != "_" {
			f.code.LocalGet(i)
			f.convert(types.Int64, f.info.Locals[id.Name].Kind)
			f.code.LocalSet(f.vars[id.Name])
		}
		if id, ok := x.Value.(*ast.Ident); ok && id.Name != "_" {
			if len(v.dims) != 1 {
				return f.fail(id, "range over rows")
			}
			f.code.LocalGet(i)
			f.code.Op(wasm.OpI32WrapI64)
			f.scale(v, 1)
			f.load(v.kind)
			f.convert(v.kind, f.info.Locals[id.Name].Kind)
			f.code.LocalSet(f.vars[id.Name])
		}
		return nil
	}
	post := func() error {
		f.code.LocalGet(i)
		f.code.I64Const(1)
		f.code.Op(wasm.OpI64Add)
		f.code.LocalSet(i)
		return nil
	}
	return f.loop(head, x.Body, post)
}
