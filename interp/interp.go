// Package interp executes kernels directly from their syntax tree.
//
// The interpreter is the plain interpreted form of a kernel: it never
// compiles and never caches. It runs from the same typing.Info as the
// compiler, so fixed-width arithmetic, truncating integer division and
// saturating float to integer conversion agree with compiled code, and the
// same runtime errors are raised:
//
//	integer divide by zero
//	integer overflow      (most negative int32/int64 divided by -1)
//	index out of range
//	stack overflow        (more than kernel.MaxCallDepth nested calls)
//
// It also accepts constructs the compiler rejects, such as print and
// println, 8 and 16 bit and unsigned integer kinds, and array aliases.
package interp

import (
	"context"
	"go/ast"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/typing"
)

// Interpreter runs kernels. It is safe for concurrent use.
type Interpreter struct {
	out    io.Writer
	logger *zap.Logger
	outMu  sync.Mutex
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithOutput sets the destination of print and println. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(in *Interpreter) { in.out = w }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(in *Interpreter) { in.logger = l }
}

// New creates an interpreter.
func New(opts ...Option) *Interpreter {
	in := &Interpreter{out: os.Stdout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Call infers k for the runtime types of args and executes it.
func (in *Interpreter) Call(ctx context.Context, k *kernel.Kernel, args ...any) (any, error) {
	sig, err := typing.CallSignature(k, args)
	if err != nil {
		return nil, err
	}
	info, err := typing.Infer(k, sig)
	if err != nil {
		return nil, err
	}
	return in.Run(ctx, info, args...)
}

// Run executes an inferred kernel. Scalar arguments are converted to the
// signature's types; arrays must match exactly and are shared, not copied.
func (in *Interpreter) Run(ctx context.Context, info *typing.Info, args ...any) (any, error) {
	if len(args) != len(info.Sig) {
		return nil, kerrors.New(kerrors.PhaseInterp, kerrors.KindInvalidInput).
			Kernel(info.Kernel.Name()).
			Signature(info.Sig.String()).
			Detail("%d arguments", len(args)).
			Build()
	}
	vals := make([]value, len(args))
	for i, a := range args {
		v, err := fromGo(a, info.Sig[i])
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}

	in.logger.Debug("interpret kernel",
		zap.String("kernel", info.Kernel.Name()),
		zap.String("signature", info.Sig.String()))

	v, err := in.run(ctx, info, info.Kernel.Name(), vals, 0)
	if err != nil {
		return nil, err
	}
	return toGo(v, info.Result), nil
}

func (in *Interpreter) run(ctx context.Context, info *typing.Info, root string, args []value, depth int) (value, error) {
	f := &frame{
		ctx:   ctx,
		in:    in,
		info:  info,
		slots: info.Slots,
		root:  root,
		depth: depth,
	}
	if depth > kernel.MaxCallDepth {
		return value{}, f.raise(kerrors.MsgStackOverflow)
	}
	f.vars = make([]value, len(f.slots))
	copy(f.vars, args)

	if _, err := f.block(info.Kernel.Decl().Body.List); err != nil {
		return value{}, err
	}
	return f.ret, nil
}

func (in *Interpreter) print(ln bool, parts []string) {
	in.outMu.Lock()
	defer in.outMu.Unlock()
	_, _ = io.WriteString(in.out, joinPrint(ln, parts))
}

type frame struct {
	ctx   context.Context
	in    *Interpreter
	info  *typing.Info
	slots map[string]int
	vars  []value
	ret   value
	root  string
	depth int
	steps uint
}

func (f *frame) raise(msg string) error {
	return &kerrors.RaiseError{Kernel: f.root, Message: msg}
}

func (f *frame) internal(n ast.Node, msg string) error {
	return kerrors.New(kerrors.PhaseInterp, kerrors.KindRuntime).
		Kernel(f.info.Kernel.Name()).
		Signature(f.info.Sig.String()).
		Pos(f.info.Kernel.Pos(n.Pos())).
		Detail("%s", msg).
		Build()
}

// tick checks for cancellation on loop back edges.
func (f *frame) tick() error {
	f.steps++
	if f.steps&1023 == 0 {
		return f.ctx.Err()
	}
	return nil
}
