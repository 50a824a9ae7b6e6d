package interp

import (
	"go/ast"
	"go/token"

	"github.com/wippyai/wasm-kernels/array"
	"github.com/wippyai/wasm-kernels/types"
	"github.com/wippyai/wasm-kernels/typing"
)

type flow uint8

const (
	flowNext flow = iota
	flowBreak
	flowContinue
	flowReturn
)

func (f *frame) block(list []ast.Stmt) (flow, error) {
	for _, s := range list {
		fl, err := f.exec(s)
		if err != nil || fl != flowNext {
			return fl, err
		}
	}
	return flowNext, nil
}

func (f *frame) exec(s ast.Stmt) (flow, error) {
	switch x := s.(type) {
	case *ast.BlockStmt:
		return f.block(x.List)
	case *ast.ExprStmt:
		_, err := f.eval(x.X)
		return flowNext, err
	case *ast.AssignStmt:
		return flowNext, f.assign(x)
	case *ast.IncDecStmt:
		op := token.ADD
		if x.Tok == token.DEC {
			op = token.SUB
		}
		return flowNext, f.update(x.X, op, nil)
	case *ast.DeclStmt:
		return flowNext, f.varDecl(x.Decl.(*ast.GenDecl))
	case *ast.IfStmt:
		return f.ifStmt(x)
	case *ast.ForStmt:
		return f.forStmt(x)
	case *ast.RangeStmt:
		return f.rangeStmt(x)
	case *ast.ReturnStmt:
		if len(x.Results) == 1 {
			v, err := f.result(x.Results[0])
			if err != nil {
				return flowNext, err
			}
			f.ret = v
		}
		return flowReturn, nil
	case *ast.BranchStmt:
		if x.Tok == token.BREAK {
			return flowBreak, nil
		}
		return flowContinue, nil
	case *ast.EmptyStmt:
		return flowNext, nil
	}
	return flowNext, f.internal(s, "unsupported statement")
}

func (f *frame) result(e ast.Expr) (value, error) {
	if f.info.Result.IsArray() {
		return f.eval(e)
	}
	return f.evalAs(e, f.info.Result.Kind)
}

// target is an assignable location.
type target struct {
	arr   *array.Array
	t     types.Type
	slot  int
	off   int
	blank bool
}

func (f *frame) target(lhs ast.Expr) (target, error) {
	switch l := lhs.(type) {
	case *ast.Ident:
		if l.Name == "_" {
			return target{blank: true}, nil
		}
		return target{slot: f.slots[l.Name], t: f.info.Locals[l.Name]}, nil
	case *ast.IndexExpr:
		a, off, _, err := f.locate(l)
		if err != nil {
			return target{}, err
		}
		return target{arr: a, off: off, t: types.Scalar(a.Kind())}, nil
	}
	return target{}, f.internal(lhs, "not assignable")
}

func (f *frame) get(t target) value {
	if t.arr != nil {
		return load(t.arr, t.off)
	}
	return f.vars[t.slot]
}

// set stores v, of kind from, converting it to the target's type.
func (f *frame) set(t target, v value, from types.Kind) {
	switch {
	case t.blank:
	case t.arr != nil:
		store(t.arr, t.off, convert(v, from, t.t.Kind))
	case t.t.IsArray():
		f.vars[t.slot] = v
	default:
		f.vars[t.slot] = convert(v, from, t.t.Kind)
	}
}

func (f *frame) assign(x *ast.AssignStmt) error {
	if x.Tok != token.DEFINE && x.Tok != token.ASSIGN {
		return f.update(x.Lhs[0], typing.AssignOp(x.Tok), x.Rhs[0])
	}

	targets := make([]target, len(x.Lhs))
	for i, l := range x.Lhs {
		t, err := f.target(l)
		if err != nil {
			return err
		}
		targets[i] = t
	}
	vals := make([]value, len(x.Rhs))
	for i, r := range x.Rhs {
		v, err := f.eval(r)
		if err != nil {
			return err
		}
		vals[i] = v
	}
	for i, t := range targets {
		f.set(t, vals[i], f.typeOf(x.Rhs[i]).Kind)
	}
	return nil
}

// update applies lhs op= rhs. A nil rhs means 1, for ++ and --.
func (f *frame) update(lhs ast.Expr, op token.Token, rhs ast.Expr) error {
	t, err := f.target(lhs)
	if err != nil {
		return err
	}
	k := f.info.Ops[lhs]
	cur := convert(f.get(t), t.t.Kind, k)
	r := convert(value{i: 1}, types.Int64, k)
	if rhs != nil {
		if r, err = f.evalAs(rhs, k); err != nil {
			return err
		}
	}
	v, err := f.arith(op, k, cur, r)
	if err != nil {
		return err
	}
	f.set(t, v, k)
	return nil
}

func (f *frame) varDecl(g *ast.GenDecl) error {
	for _, spec := range g.Specs {
		vs := spec.(*ast.ValueSpec)
		for i, name := range vs.Names {
			t, err := f.target(name)
			if err != nil {
				return err
			}
			if i >= len(vs.Values) {
				f.set(t, value{}, t.t.Kind)
				continue
			}
			v, err := f.eval(vs.Values[i])
			if err != nil {
				return err
			}
			f.set(t, v, f.typeOf(vs.Values[i]).Kind)
		}
	}
	return nil
}

func (f *frame) ifStmt(x *ast.IfStmt) (flow, error) {
	if x.Init != nil {
		if _, err := f.exec(x.Init); err != nil {
			return flowNext, err
		}
	}
	c, err := f.eval(x.Cond)
	if err != nil {
		return flowNext, err
	}
	if c.i != 0 {
		return f.block(x.Body.List)
	}
	if x.Else != nil {
		return f.exec(x.Else)
	}
	return flowNext, nil
}

func (f *frame) forStmt(x *ast.ForStmt) (flow, error) {
	if x.Init != nil {
		if _, err := f.exec(x.Init); err != nil {
			return flowNext, err
		}
	}
	for {
		if err := f.tick(); err != nil {
			return flowNext, err
		}
		if x.Cond != nil {
			c, err := f.eval(x.Cond)
			if err != nil {
				return flowNext, err
			}
			if c.i == 0 {
				return flowNext, nil
			}
		}
		fl, err := f.block(x.Body.List)
		if err != nil {
			return flowNext, err
		}
		switch fl {
		case flowBreak:
			return flowNext, nil
		case flowReturn:
			return flowReturn, nil
		}
		if x.Post != nil {
			if _, err := f.exec(x.Post); err != nil {
				return flowNext, err
			}
		}
	}
}

func (f *frame) rangeStmt(x *ast.RangeStmt) (flow, error) {
	xv, err := f.eval(x.X)
	if err != nil {
		return flowNext, err
	}
	xt := f.typeOf(x.X)

	var n int64
	var arr *array.Array
	if xt.IsArray() {
		arr = xv.arr
		n = int64(arr.Dim(0))
	} else {
		n = xv.i
	}

	key, err := f.rangeVar(x.Key)
	if err != nil {
		return flowNext, err
	}
	val, err := f.rangeVar(x.Value)
	if err != nil {
		return flowNext, err
	}

	for i := int64(0); i < n; i++ {
		if err := f.tick(); err != nil {
			return flowNext, err
		}
		if arr == nil {
			f.set(key, value{i: i}, xt.Kind)
		} else {
			f.set(key, value{i: i}, types.Int64)
			switch {
			case val.blank:
			case arr.Rank() == 1:
				f.set(val, load(arr, int(i)), arr.Kind())
			default:
				f.set(val, value{arr: view(arr, int(i), 1)}, arr.Kind())
			}
		}
		fl, err := f.block(x.Body.List)
		if err != nil {
			return flowNext, err
		}
		switch fl {
		case flowBreak:
			return flowNext, nil
		case flowReturn:
			return flowReturn, nil
		}
	}
	return flowNext, nil
}

func (f *frame) rangeVar(e ast.Expr) (target, error) {
	if e == nil {
		return target{blank: true}, nil
	}
	return f.target(e)
}
