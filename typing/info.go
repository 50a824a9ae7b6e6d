package typing

import (
	"go/ast"
	"sort"

	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/types"
)

// CallKind classifies a call expression.
type CallKind uint8

const (
	CallConversion CallKind = iota + 1
	CallBuiltin
	CallMath
	CallKernel
)

// Call is the resolved target of a call expression.
type Call struct {
	Callee  *Info
	Builtin kernel.Builtin
	Math    kernel.MathFunc
	Kind    CallKind
	Conv    types.Kind
}

// Info is the result of inferring a kernel for one Type Signature.
//
// Every expression has a recorded type. A consumer evaluates an expression at
// its recorded type and converts the value to whatever the context needs: the
// operation kind of a binary expression, the type of an assigned variable, a
// parameter type, and so on.
type Info struct {
	Kernel *kernel.Kernel
	Sig    types.Signature
	Result types.Type

	// Locals holds the type of every variable, parameters included. Slots
	// numbers them in LocalNames order.
	Locals map[string]types.Type
	Slots  map[string]int
	Types  map[ast.Expr]types.Type
	// Ops holds the operation kind of binary expressions, min/max calls and
	// the left side of op-assignments and inc/dec statements.
	Ops   map[ast.Expr]types.Kind
	Calls map[*ast.CallExpr]Call

	// Written lists array parameters the kernel or its callees assign to.
	Written map[string]bool

	// Features the compiled backend may not support.
	Prints       bool
	ArrayLocals  bool
	DynamicPanic bool

	key string
}

// Key identifies the kernel and signature.
func (i *Info) Key() string { return i.key }

// TypeOf returns the recorded type of e.
func (i *Info) TypeOf(e ast.Expr) types.Type { return i.Types[e] }

// Op returns the operation kind recorded for e.
func (i *Info) Op(e ast.Expr) types.Kind { return i.Ops[e] }

// LocalNames returns the parameters in order followed by the other locals
// sorted by name.
func (i *Info) LocalNames() []string {
	params := i.Kernel.Params()
	names := make([]string, 0, len(i.Locals))
	isParam := make(map[string]bool, len(params))
	for _, p := range params {
		names = append(names, p.Name)
		isParam[p.Name] = true
	}
	var rest []string
	for name := range i.Locals {
		if !isParam[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// Closure returns i followed by every kernel specialization reachable through
// calls, each once.
func (i *Info) Closure() []*Info {
	seen := map[string]bool{i.key: true}
	out := []*Info{i}
	for n := 0; n < len(out); n++ {
		calls := make([]*ast.CallExpr, 0, len(out[n].Calls))
		for call, c := range out[n].Calls {
			if c.Kind == CallKernel {
				calls = append(calls, call)
			}
		}
		sort.Slice(calls, func(a, b int) bool { return calls[a].Pos() < calls[b].Pos() })
		for _, call := range calls {
			callee := out[n].Calls[call].Callee
			if !seen[callee.key] {
				seen[callee.key] = true
				out = append(out, callee)
			}
		}
	}
	return out
}
