// Package vectorize turns scalar kernels into element-wise functions over
// arrays.
//
// A Ufunc applies a scalar kernel to every element of its array operands.
// Arrays must share one shape; scalar operands are broadcast. For each
// combination of operand element kinds a loop kernel calling the scalar
// kernel is generated and run through the kernel cache, so the loop is
// compiled once and reused:
//
//	k, _ := lib.Kernel("f") // func f(x, y float64) float64 { return x + y }
//	sig, _ := types.ParseFuncSig("float64(float64, float64)")
//	uf, _ := vectorize.New(cache, k, []types.FuncSig{sig})
//	out, _ := uf.Apply(ctx, a, 2.5) // *array.Array with the shape of a
package vectorize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/printer"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-kernels/array"
	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/jit"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/types"
	"github.com/wippyai/wasm-kernels/typing"
)

const loopName = "vectorizeLoop"

// Ufunc is a scalar kernel applied element-wise. It is safe for concurrent use.
type Ufunc struct {
	cache  *jit.Cache
	kernel *kernel.Kernel
	name   string
	sigs   []types.FuncSig
	logger *zap.Logger

	mu    sync.Mutex
	loops map[string]*kernel.Kernel
}

// Option configures a Ufunc.
type Option func(*Ufunc)

// WithName sets the name kernel raises are reported under. Defaults to the
// kernel name.
func WithName(name string) Option {
	return func(u *Ufunc) { u.name = name }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(u *Ufunc) { u.logger = l }
}

// New creates a ufunc from a scalar kernel. With no signatures the element
// kinds of each call decide the specialization; otherwise calls are
// dispatched to the first declared signature the operands convert to
// without loss.
func New(cache *jit.Cache, k *kernel.Kernel, sigs []types.FuncSig, opts ...Option) (*Ufunc, error) {
	if k.Class() != nil {
		return nil, kerrors.Unsupported(kerrors.PhaseSpecialize,
			fmt.Sprintf("method %s cannot be vectorized", k.Name()))
	}
	for _, fs := range sigs {
		if err := checkScalar(k, fs); err != nil {
			return nil, err
		}
	}
	u := &Ufunc{
		cache:  cache,
		kernel: k,
		name:   k.Name(),
		sigs:   slices.Clone(sigs),
		logger: zap.NewNop(),
		loops:  make(map[string]*kernel.Kernel),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

func checkScalar(k *kernel.Kernel, fs types.FuncSig) error {
	invalid := func(format string, args ...any) error {
		return kerrors.New(kerrors.PhaseSpecialize, kerrors.KindInvalidInput).
			Kernel(k.Name()).
			Signature(fs.String()).
			Detail(format, args...).
			Build()
	}
	if len(fs.Params) != k.NumParams() {
		return invalid("%d types for %d parameters", len(fs.Params), k.NumParams())
	}
	if fs.Result.IsArray() {
		return invalid("array result")
	}
	for i, t := range fs.Params {
		if t.IsArray() {
			return invalid("parameter %d is an array; ufuncs take scalars", i)
		}
		if p := k.Param(i); !p.Lazy && p.Type != t {
			return invalid("parameter %s is declared %s", p.Name, p.Type)
		}
	}
	return nil
}

// Kernel returns the scalar kernel.
func (u *Ufunc) Kernel() *kernel.Kernel { return u.kernel }

// Apply evaluates the kernel element-wise. With at least one array operand
// the result is a new array of that shape; with only scalars it is the
// scalar result. When the loop cannot be compiled it is interpreted.
func (u *Ufunc) Apply(ctx context.Context, args ...any) (any, error) {
	if len(args) != u.kernel.NumParams() {
		return nil, kerrors.New(kerrors.PhaseInvoke, kerrors.KindInvalidInput).
			Kernel(u.kernel.Name()).
			Detail("%d arguments for %d parameters", len(args), u.kernel.NumParams()).
			Build()
	}
	got := make(types.Signature, len(args))
	var shape []int
	for i, a := range args {
		t, ok := types.TypeOf(a)
		if !ok {
			return nil, kerrors.Unsupported(kerrors.PhaseInvoke,
				fmt.Sprintf("argument %d has unsupported type %T", i, a))
		}
		if t.IsArray() {
			arr := a.(*array.Array)
			if shape == nil {
				shape = arr.Shape()
			} else if !slices.Equal(shape, arr.Shape()) {
				return nil, kerrors.InvalidInput(kerrors.PhaseInvoke,
					fmt.Sprintf("operands could not be broadcast together with shapes %v and %v", shape, arr.Shape()))
			}
		}
		got[i] = t
	}

	elems := make(types.Signature, len(got))
	for i, t := range got {
		elems[i] = t.Elem()
	}
	sig, result, err := u.dispatch(elems)
	if err != nil {
		return nil, err
	}

	if shape == nil {
		scalars, err := jit.Cast(args, sig)
		if err != nil {
			return nil, err
		}
		res, err := u.cache.InvokeWithFallback(ctx, u.kernel, scalars...)
		if err != nil {
			return nil, u.raised(err)
		}
		return convertResult(res, result), nil
	}

	lk, err := u.loop(got, sig, result)
	if err != nil {
		return nil, err
	}
	out, err := array.New(result, shape...)
	if err != nil {
		return nil, err
	}
	call := make([]any, 0, len(args)+1)
	call = append(call, out.Ravel())
	for i, a := range args {
		if got[i].IsArray() {
			call = append(call, a.(*array.Array).Ravel())
			continue
		}
		v, err := jit.Cast([]any{a}, types.Signature{sig[i]})
		if err != nil {
			return nil, err
		}
		call = append(call, v[0])
	}
	if _, err := u.cache.InvokeWithFallback(ctx, lk, call...); err != nil {
		return nil, u.raised(err)
	}
	return out, nil
}

// raised reports a kernel raise under the ufunc's name instead of the
// generated loop's.
func (u *Ufunc) raised(err error) error {
	var re *kerrors.RaiseError
	if errors.As(err, &re) {
		return &kerrors.RaiseError{Kernel: u.name, Message: re.Message}
	}
	return err
}

// dispatch selects the element signature and result kind.
func (u *Ufunc) dispatch(elems types.Signature) (types.Signature, types.Kind, error) {
	if len(u.sigs) == 0 {
		k, err := u.result(elems)
		return elems, k, err
	}

	params := make([]types.Signature, len(u.sigs))
	for i, fs := range u.sigs {
		params[i] = fs.Params
	}
	sig, ok := jit.Dispatch(params, elems)
	if !ok {
		return nil, types.Invalid, kerrors.New(kerrors.PhaseInvoke, kerrors.KindUnsupported).
			Kernel(u.kernel.Name()).
			Signature(elems.String()).
			Detail("ufunc not supported for the input types").
			Build()
	}
	for _, fs := range u.sigs {
		if !fs.Params.Equal(sig) {
			continue
		}
		if !fs.Result.IsVoid() {
			return sig, fs.Result.Kind, nil
		}
		break
	}
	k, err := u.result(sig)
	return sig, k, err
}

// result infers the scalar result kind of the kernel for sig.
func (u *Ufunc) result(sig types.Signature) (types.Kind, error) {
	info, err := typing.Infer(u.kernel, sig)
	if err != nil {
		return types.Invalid, err
	}
	if info.Result.IsVoid() || info.Result.IsArray() {
		return types.Invalid, kerrors.New(kerrors.PhaseSpecialize, kerrors.KindInvalidInput).
			Kernel(u.kernel.Name()).
			Signature(sig.String()).
			Detail("ufunc kernels return one scalar").
			Build()
	}
	return info.Result.Kind, nil
}

// loop returns the loop kernel for operands of type got calling the scalar
// kernel with sig, generating it on first use.
func (u *Ufunc) loop(got, sig types.Signature, result types.Kind) (*kernel.Kernel, error) {
	key := got.Key() + sig.Key() + result.String()
	u.mu.Lock()
	defer u.mu.Unlock()
	if k, ok := u.loops[key]; ok {
		return k, nil
	}

	src, err := u.loopSource(got, sig, result)
	if err != nil {
		return nil, err
	}
	lib, err := kernel.Parse(src)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.PhaseSpecialize, kerrors.KindInvalidInput, err, "generated loop")
	}
	k, err := lib.Kernel(loopName)
	if err != nil {
		return nil, err
	}
	u.loops[key] = k
	u.logger.Debug("generated ufunc loop",
		zap.String("kernel", u.kernel.Name()),
		zap.String("operands", got.String()),
		zap.String("signature", sig.String()))
	return k, nil
}

// loopSource renders the scalar kernel's library together with
//
//	func vectorizeLoop(out []R, a0 []T0, a1 S1) {
//		for i := 0; i < len(out); i++ {
//			out[i] = R(f(S0(a0[i]), a1))
//		}
//	}
func (u *Ufunc) loopSource(got, sig types.Signature, result types.Kind) (string, error) {
	var b strings.Builder
	lib := u.kernel.Library()
	for _, k := range lib.Kernels() {
		if k.Name() == loopName {
			return "", kerrors.InvalidInput(kerrors.PhaseSpecialize,
				fmt.Sprintf("library already defines %s", loopName))
		}
		var buf bytes.Buffer
		if err := printer.Fprint(&buf, lib.FileSet(), k.Decl()); err != nil {
			return "", kerrors.Wrap(kerrors.PhaseSpecialize, kerrors.KindInvalidInput, err, "render kernel")
		}
		b.Write(buf.Bytes())
		b.WriteString("\n\n")
	}

	params := []string{"out []" + result.String()}
	callArgs := make([]string, len(got))
	for i, t := range got {
		name := fmt.Sprintf("a%d", i)
		if t.IsArray() {
			params = append(params, name+" []"+t.Kind.String())
			callArgs[i] = fmt.Sprintf("%s(%s[i])", sig[i].Kind, name)
			continue
		}
		params = append(params, name+" "+sig[i].Kind.String())
		callArgs[i] = name
	}
	fmt.Fprintf(&b, "func %s(%s) {\n", loopName, strings.Join(params, ", "))
	b.WriteString("\tfor i := 0; i < len(out); i++ {\n")
	fmt.Fprintf(&b, "\t\tout[i] = %s(%s(%s))\n", result, u.kernel.Name(), strings.Join(callArgs, ", "))
	b.WriteString("\t}\n}\n")
	return b.String(), nil
}

func convertResult(v any, k types.Kind) any {
	bits, f, from, ok := types.Unpack(v)
	if !ok || from == k {
		return v
	}
	bits, f = types.Convert(bits, f, from, k)
	return types.Pack(bits, f, k)
}
