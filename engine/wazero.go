package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

// Engine owns the wazero runtime that compiles and runs kernel
// specializations. It is safe for concurrent use.
type Engine struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	hostMu  sync.Mutex
	hostErr error
	hostOK  bool
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// CompilationCacheDir persists native code compiled by wazero across
	// processes. Empty keeps the cache in memory only.
	CompilationCacheDir string

	// CloseOnContextDone interrupts running kernels when the call context is
	// done. The interrupted instance is closed and replaced on the next call.
	CloseOnContextDone bool
}

// New creates an engine. A nil config uses defaults.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	e := &Engine{}

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.CompilationCacheDir != "" {
			cache, err := wazero.NewCompilationCacheWithDir(cfg.CompilationCacheDir)
			if err != nil {
				return nil, fmt.Errorf("compilation cache: %w", err)
			}
			e.cache = cache
			runtimeCfg = runtimeCfg.WithCompilationCache(cache)
		}
		if cfg.CloseOnContextDone {
			runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
		}
	}

	e.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	if err := e.initHost(ctx); err != nil {
		_ = e.runtime.Close(ctx)
		return nil, err
	}
	return e, nil
}

// initHost instantiates the host module once per runtime.
func (e *Engine) initHost(ctx context.Context) error {
	e.hostMu.Lock()
	defer e.hostMu.Unlock()
	if e.hostOK {
		return nil
	}
	if e.hostErr != nil {
		return e.hostErr
	}
	if err := instantiateHost(ctx, e.runtime); err != nil {
		e.hostErr = fmt.Errorf("instantiate host module: %w", err)
		return e.hostErr
	}
	e.hostOK = true
	return nil
}

// Load compiles a WebAssembly binary to native code.
func (e *Engine) Load(ctx context.Context, bin []byte) (*Module, error) {
	compiled, err := e.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, fmt.Errorf("compile failed: %w", err)
	}
	Logger().Debug("module compiled",
		zap.Int("bytes", len(bin)),
		zap.Int("exports", len(compiled.ExportedFunctions())))
	return &Module{engine: e, compiled: compiled}, nil
}

// Close releases the runtime, every module and every instance.
func (e *Engine) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		if cerr := e.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

// Module is a compiled WebAssembly module that can be instantiated any
// number of times.
type Module struct {
	engine   *Engine
	compiled wazero.CompiledModule
}

// Instantiate creates an instance. Instances are anonymous, so one module
// may have many live instances.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	cfg := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	mod, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("instantiate: %w", err)
	}
	inst := &Instance{module: mod}
	if mem := mod.Memory(); mem != nil {
		inst.memory = &Memory{mem: mem}
	}
	return inst, nil
}

// Close releases the compiled code.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}
