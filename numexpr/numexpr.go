// Package numexpr evaluates element-wise expressions over arrays.
//
// An expression is a Go expression over named variables, e.g.
//
//	a*b - 4.1*a > 2.5*b
//
// Array variables must share one shape and scalar variables are broadcast.
// The result is a new array of that shape, of bool for comparisons. By
// default the expression is interpreted in chunks on several goroutines;
// WithCache compiles it through a kernel cache instead.
package numexpr

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"runtime"
	"slices"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/wasm-kernels/array"
	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/interp"
	"github.com/wippyai/wasm-kernels/jit"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/vectorize"
)

// DefaultChunkSize is the number of elements one goroutine evaluates.
const DefaultChunkSize = 1 << 14

const valueName = "numexprValue"

// Evaluator evaluates expressions and keeps each parsed expression for
// reuse. It is safe for concurrent use.
type Evaluator struct {
	cache   *jit.Cache
	workers int
	chunk   int
	logger  *zap.Logger

	mu    sync.Mutex
	exprs map[string]*vectorize.Ufunc
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCache evaluates through c, compiling each expression once per operand
// types. Evaluation then runs as one call.
func WithCache(c *jit.Cache) Option {
	return func(e *Evaluator) { e.cache = c }
}

// WithWorkers sets the number of goroutines of interpreted evaluation.
// Defaults to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Evaluator) { e.workers = n }
}

// WithChunkSize sets the number of elements per interpreted chunk.
func WithChunkSize(n int) Option {
	return func(e *Evaluator) { e.chunk = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// NewEvaluator creates an evaluator.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		workers: runtime.GOMAXPROCS(0),
		chunk:   DefaultChunkSize,
		logger:  zap.NewNop(),
		exprs:   make(map[string]*vectorize.Ufunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = 1
	}
	if e.chunk < 1 {
		e.chunk = DefaultChunkSize
	}
	return e
}

// Evaluate evaluates expr once with a new Evaluator.
func Evaluate(ctx context.Context, expr string, vars map[string]any, opts ...Option) (any, error) {
	return NewEvaluator(opts...).Evaluate(ctx, expr, vars)
}

// Evaluate evaluates expr over vars. Values may be *array.Array, slices of
// bool, int32, int64, float32 or float64, or scalars.
func (e *Evaluator) Evaluate(ctx context.Context, expr string, vars map[string]any) (any, error) {
	names, err := Variables(expr, vars)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(names))
	var shape []int
	for i, name := range names {
		v, err := operand(name, vars[name])
		if err != nil {
			return nil, err
		}
		if a, ok := v.(*array.Array); ok {
			switch {
			case shape == nil:
				shape = a.Shape()
			case !slices.Equal(shape, a.Shape()):
				return nil, kerrors.InvalidInput(kerrors.PhaseEval,
					fmt.Sprintf("variable %s has shape %v, want %v", name, a.Shape(), shape))
			}
			v = a.Ravel()
		}
		args[i] = v
	}

	uf, err := e.ufunc(expr, names)
	if err != nil {
		return nil, err
	}
	if shape == nil || e.cache != nil {
		res, err := uf.Apply(ctx, args...)
		if err != nil {
			return nil, err
		}
		if a, ok := res.(*array.Array); ok {
			return a.Reshape(shape...)
		}
		return res, nil
	}
	return e.chunked(ctx, uf, args, shape)
}

// chunked evaluates spans of the operands in parallel. The first chunk runs
// alone and fixes the result kind.
func (e *Evaluator) chunked(ctx context.Context, uf *vectorize.Ufunc, args []any, shape []int) (*array.Array, error) {
	n := 1
	for _, d := range shape {
		n *= d
	}
	span := func(lo, hi int) []any {
		out := make([]any, len(args))
		for i, a := range args {
			if arr, ok := a.(*array.Array); ok {
				out[i] = arr.Span(lo, hi)
				continue
			}
			out[i] = a
		}
		return out
	}

	first := min(e.chunk, n)
	res, err := uf.Apply(ctx, span(0, first)...)
	if err != nil {
		return nil, err
	}
	head := res.(*array.Array)
	out, err := array.New(head.Kind(), shape...)
	if err != nil {
		return nil, err
	}
	flat := out.Ravel()
	flat.Span(0, first).SetBytes(head.Bytes())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for lo := first; lo < n; lo += e.chunk {
		hi := min(lo+e.chunk, n)
		g.Go(func() error {
			res, err := uf.Apply(gctx, span(lo, hi)...)
			if err != nil {
				return err
			}
			flat.Span(lo, hi).SetBytes(res.(*array.Array).Bytes())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	e.logger.Debug("evaluated expression",
		zap.Int("elements", n),
		zap.Int("chunks", (n+e.chunk-1)/e.chunk))
	return out, nil
}

// ufunc returns the element function of expr over names.
func (e *Evaluator) ufunc(expr string, names []string) (*vectorize.Ufunc, error) {
	key := expr + "\x00" + strings.Join(names, ",")
	e.mu.Lock()
	defer e.mu.Unlock()
	if uf, ok := e.exprs[key]; ok {
		return uf, nil
	}

	src := fmt.Sprintf("func %s(%s) any { return %s }\n", valueName, params(names), expr)
	lib, err := kernel.Parse(src)
	if err != nil {
		return nil, err
	}
	k, err := lib.Kernel(valueName)
	if err != nil {
		return nil, err
	}
	cache := e.cache
	if cache == nil {
		in := interp.New(interp.WithLogger(e.logger))
		cache = jit.New(jit.Inferred(in), jit.WithInterpreter(in), jit.WithLogger(e.logger))
	}
	uf, err := vectorize.New(cache, k, nil, vectorize.WithName(expr), vectorize.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}
	e.exprs[key] = uf
	return uf, nil
}

func params(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.Join(names, ", ") + " any"
}

// Variables returns the sorted names of the variables expr refers to. Each
// must be defined in vars.
func Variables(expr string, vars map[string]any) ([]string, error) {
	e, err := parser.ParseExpr(expr)
	if err != nil {
		return nil, kerrors.New(kerrors.PhaseEval, kerrors.KindSyntax).
			Detail("%s", err.Error()).
			Cause(err).
			Build()
	}
	seen := make(map[string]bool)
	var missing string
	ast.Inspect(e, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.SelectorExpr:
			// math.Sqrt and the like; the package name is not a variable.
			return false
		case *ast.Ident:
			if _, ok := vars[x.Name]; ok {
				seen[x.Name] = true
				return true
			}
			if !predeclared(x.Name) && missing == "" {
				missing = x.Name
			}
		}
		return true
	})
	if missing != "" {
		return nil, kerrors.New(kerrors.PhaseEval, kerrors.KindNotFound).
			Detail("variable %q not defined", missing).
			Build()
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func predeclared(name string) bool {
	if _, ok := kernel.ConversionKind(name); ok {
		return true
	}
	if _, ok := kernel.LookupBuiltin(name); ok {
		return true
	}
	return name == "true" || name == "false"
}

func operand(name string, v any) (any, error) {
	var (
		a   *array.Array
		err error
	)
	switch x := v.(type) {
	case []float64:
		a, err = array.FromFloat64(x)
	case []float32:
		a, err = array.FromFloat32(x)
	case []int64:
		a, err = array.FromInt64(x)
	case []int32:
		a, err = array.FromInt32(x)
	case []bool:
		a, err = array.FromBool(x)
	default:
		return v, nil
	}
	if err != nil {
		return nil, kerrors.Wrap(kerrors.PhaseEval, kerrors.KindInvalidInput, err, "variable "+name)
	}
	return a, nil
}
