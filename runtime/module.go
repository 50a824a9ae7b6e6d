package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-kernels/config"
	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/jit"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/types"
	"github.com/wippyai/wasm-kernels/typing"
)

// Module is a loaded kernel library.
type Module struct {
	lib     *kernel.Library
	handles map[string]*jit.Handle
}

func (m *Module) Library() *kernel.Library { return m.lib }

// Kernel returns the handle of a kernel of this library.
func (m *Module) Kernel(name string) (*jit.Handle, error) {
	h, ok := m.handles[name]
	if !ok {
		return nil, kerrors.NotFound(kerrors.PhaseInvoke, "kernel", name)
	}
	return h, nil
}

// Call runs a kernel of this library compiled for the arguments.
func (m *Module) Call(ctx context.Context, name string, args ...any) (any, error) {
	h, err := m.Kernel(name)
	if err != nil {
		return nil, err
	}
	return h.Call(ctx, args...)
}

// LoadSource parses src as a kernel library and registers its kernels.
func (r *Runtime) LoadSource(ctx context.Context, src string) (*Module, error) {
	return r.Load(ctx, config.KernelSource{Source: src})
}

// Load parses a kernel library and registers its kernels. Kernels with
// configured signatures are compiled and sealed to them; fully declared
// kernels are compiled for their declared signature unless src is lazy, and
// registered lazily if that compilation is unsupported. Kernel names are
// unique across the runtime; a load that fails registers nothing.
func (r *Runtime) Load(ctx context.Context, src config.KernelSource) (*Module, error) {
	lib, err := src.Library()
	if err != nil {
		return nil, err
	}
	for name := range src.Signatures {
		if _, ok := lib.Lookup(name); !ok {
			return nil, kerrors.NotFound(kerrors.PhaseConfig, "kernel", name)
		}
	}

	r.mu.RLock()
	err = r.loaded(lib)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	// Compile without the lock; lookups and other loads proceed meanwhile.
	m := &Module{lib: lib, handles: make(map[string]*jit.Handle)}
	for _, k := range lib.Kernels() {
		h, err := r.register(ctx, k, src)
		if err != nil {
			r.evict(ctx, lib)
			return nil, err
		}
		m.handles[k.Name()] = h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loaded(lib); err != nil {
		r.evict(ctx, lib)
		return nil, err
	}
	for name, h := range m.handles {
		r.handles[name] = h
	}
	r.modules = append(r.modules, m)

	r.logger.Debug("loaded kernel library",
		zap.String("library", lib.Name()),
		zap.Int("kernels", len(m.handles)))
	return m, nil
}

// loaded fails if a kernel of lib shares a name with a loaded one. The caller
// holds r.mu.
func (r *Runtime) loaded(lib *kernel.Library) error {
	for _, k := range lib.Kernels() {
		if _, dup := r.handles[k.Name()]; dup {
			return kerrors.InvalidInput(kerrors.PhaseConfig, "kernel "+k.Name()+" is already loaded")
		}
	}
	return nil
}

func (r *Runtime) evict(ctx context.Context, lib *kernel.Library) {
	for _, k := range lib.Kernels() {
		r.cache.Evict(ctx, k)
	}
}

func (r *Runtime) register(ctx context.Context, k *kernel.Kernel, src config.KernelSource) (*jit.Handle, error) {
	sigs, err := src.FuncSigs(k.Name())
	if err != nil {
		return nil, err
	}
	var opts []jit.RegisterOption
	for _, fs := range sigs {
		if err := checkResult(k, fs); err != nil {
			return nil, err
		}
		opts = append(opts, jit.WithSignatures(fs.Params))
	}
	if src.Lazy && len(sigs) == 0 {
		opts = append(opts, jit.Lazily())
	}
	return r.cache.Register(ctx, k, opts...)
}

// checkResult checks a configured result type against the inferred one.
func checkResult(k *kernel.Kernel, fs types.FuncSig) error {
	if fs.Result.IsVoid() || len(fs.Params) != k.NumParams() {
		return nil
	}
	info, err := typing.Infer(k, fs.Params)
	if err != nil {
		return err
	}
	if info.Result != fs.Result {
		return kerrors.New(kerrors.PhaseConfig, kerrors.KindTypeMismatch).
			Kernel(k.Name()).
			Signature(fs.String()).
			Detail("kernel returns %s", info.Result).
			Build()
	}
	return nil
}
