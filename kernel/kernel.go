package kernel

import (
	"go/ast"
	"go/token"
	"strings"
	"sync/atomic"

	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/types"
)

// MaxCallDepth bounds kernel-to-kernel call nesting on every execution path.
const MaxCallDepth = 2000

var nextID atomic.Uint64

// Param is a kernel parameter. A Lazy parameter is declared as any and takes
// its type from the call site.
type Param struct {
	Name string
	Type types.Type
	Lazy bool
}

// Kernel is one function of a Library. Kernels are immutable after parsing.
type Kernel struct {
	lib    *Library
	decl   *ast.FuncDecl
	name   string
	params []Param
	result types.Type
	id     uint64
	class  *Class
	// lazyResult is set for a result declared as any.
	lazyResult bool
}

// ID returns the process-unique identity of the kernel, used in cache keys.
func (k *Kernel) ID() uint64 { return k.id }

// Name returns the function name.
func (k *Kernel) Name() string { return k.name }

// Library returns the library the kernel was parsed into.
func (k *Kernel) Library() *Library { return k.lib }

// Class returns the class of a method kernel, or nil.
func (k *Kernel) Class() *Class { return k.class }

// Decl returns the parsed function declaration.
func (k *Kernel) Decl() *ast.FuncDecl { return k.decl }

// Params returns the parameter list.
func (k *Kernel) Params() []Param { return append([]Param(nil), k.params...) }

// NumParams returns the number of parameters.
func (k *Kernel) NumParams() int { return len(k.params) }

// Param returns parameter i.
func (k *Kernel) Param(i int) Param { return k.params[i] }

// Result returns the declared result type. It is Void when the kernel returns
// nothing or when the result is inferred, see HasResult.
func (k *Kernel) Result() types.Type { return k.result }

// HasResult reports whether the kernel returns a value.
func (k *Kernel) HasResult() bool { return k.lazyResult || !k.result.IsVoid() }

// ResultInferred reports whether the result type is declared as any.
func (k *Kernel) ResultInferred() bool { return k.lazyResult }

// Declared reports whether every parameter has a concrete type, which makes the
// kernel eligible for eager specialization.
func (k *Kernel) Declared() bool {
	for _, p := range k.params {
		if p.Lazy {
			return false
		}
	}
	return true
}

// Signature returns the declared parameter types. ok is false for lazy kernels.
func (k *Kernel) Signature() (sig types.Signature, ok bool) {
	if !k.Declared() {
		return nil, false
	}
	sig = make(types.Signature, len(k.params))
	for i, p := range k.params {
		sig[i] = p.Type
	}
	return sig, true
}

// Pos renders a source position of the kernel's library.
func (k *Kernel) Pos(p token.Pos) string {
	return k.lib.Position(p)
}

func (k *Kernel) String() string {
	var b strings.Builder
	b.WriteString(k.name)
	b.WriteByte('(')
	for i, p := range k.params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		b.WriteByte(' ')
		if p.Lazy {
			b.WriteString("any")
		} else {
			b.WriteString(p.Type.String())
		}
	}
	b.WriteByte(')')
	switch {
	case k.lazyResult:
		b.WriteString(" any")
	case !k.result.IsVoid():
		b.WriteByte(' ')
		b.WriteString(k.result.String())
	}
	return b.String()
}

// Library is a parsed kernel source file. Calls between kernels resolve within
// the library.
type Library struct {
	fset       *token.FileSet
	kernels    map[string]*Kernel
	order      []*Kernel
	classes    map[string]*Class
	classOrder []*Class
	name       string
}

// Name returns the library name: the package clause, or the name passed to
// ParseFile.
func (l *Library) Name() string { return l.name }

// FileSet returns the positions of the parsed source.
func (l *Library) FileSet() *token.FileSet { return l.fset }

// Kernel returns the kernel with the given name.
func (l *Library) Kernel(name string) (*Kernel, error) {
	if k, ok := l.kernels[name]; ok {
		return k, nil
	}
	return nil, kerrors.NotFound(kerrors.PhaseParse, "kernel", name)
}

// Lookup returns the kernel with the given name, if any.
func (l *Library) Lookup(name string) (*Kernel, bool) {
	k, ok := l.kernels[name]
	return k, ok
}

// Kernels returns the kernels in source order.
func (l *Library) Kernels() []*Kernel {
	return append([]*Kernel(nil), l.order...)
}

// Position renders p as file:line:col.
func (l *Library) Position(p token.Pos) string {
	if !p.IsValid() {
		return ""
	}
	return l.fset.Position(p).String()
}
