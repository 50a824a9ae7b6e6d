package runtime

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/wasm-kernels/array"
	"github.com/wippyai/wasm-kernels/config"
	kerrors "github.com/wippyai/wasm-kernels/errors"
)

const stats = `
func mean(x []float64) float64 {
	s := 0.0
	for _, v := range x {
		s += v
	}
	return s / float64(len(x))
}

func mul(x any, f any) any { return x * f }

func scale(x any, f any) {
	for i := range x {
		x[i] = x[i] * f
	}
}
`

func newRuntime(t *testing.T, cfg *config.Config, opts ...Option) *Runtime {
	t.Helper()
	ctx := context.Background()
	rt, err := New(ctx, cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(ctx) })
	return rt
}

func TestRuntime_Invoke(t *testing.T) {
	for _, backend := range []string{config.BackendWasm, config.BackendInterp} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			cfg := config.Default()
			cfg.Cache.Backend = backend
			rt := newRuntime(t, cfg)

			if _, err := rt.LoadSource(ctx, stats); err != nil {
				t.Fatalf("LoadSource: %v", err)
			}
			if got := rt.Kernels(); !slices.Equal(got, []string{"mean", "mul", "scale"}) {
				t.Errorf("Kernels = %v", got)
			}

			x := array.MustFromSlice([]float64{1, 2, 3, 6})
			res, err := rt.Invoke(ctx, "mean", x)
			if err != nil || res != 3.0 {
				t.Errorf("mean = %v, %v", res, err)
			}
			res, err = rt.Invoke(ctx, "mul", int64(6), int64(7))
			if err != nil || res != int64(42) {
				t.Errorf("mul = %v, %v", res, err)
			}
			res, err = rt.InvokeInterpreted(ctx, "mul", 1.5, 2.0)
			if err != nil || res != 3.0 {
				t.Errorf("interpreted mul = %v, %v", res, err)
			}

			st := rt.Stats()
			if st.Entries != 2 || st.Compilations != 2 {
				t.Errorf("stats = %+v, want 2 entries and 2 compilations", st)
			}

			if _, err := rt.Invoke(ctx, "median", x); !errors.Is(err, kerrors.ErrNotFound) {
				t.Errorf("unknown kernel err = %v, want not found", err)
			}
		})
	}
}

func TestRuntime_Objects(t *testing.T) {
	const src = `
type Bag struct {
	value int32
	array []float32
}

func (b *Bag) increment(val float32) int32 {
	for i := range b.array {
		b.array[i] += val
	}
	return b.value
}
`
	for _, backend := range []string{config.BackendWasm, config.BackendInterp} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			cfg := config.Default()
			cfg.Cache.Backend = backend
			rt := newRuntime(t, cfg)
			if _, err := rt.LoadSource(ctx, src); err != nil {
				t.Fatalf("LoadSource: %v", err)
			}
			if got := rt.Kernels(); !slices.Equal(got, []string{"Bag.increment"}) {
				t.Errorf("Kernels = %v", got)
			}

			bag, err := rt.NewObject("Bag")
			if err != nil {
				t.Fatalf("NewObject: %v", err)
			}
			if err := bag.Set("value", int32(4)); err != nil {
				t.Fatal(err)
			}
			if _, err := bag.CallWithFallback(ctx, "increment", float32(1)); !errors.Is(err, kerrors.ErrInvalidInput) {
				t.Errorf("uninitialised err = %v, want invalid input", err)
			}

			arr := array.MustFromSlice([]float32{1, 2})
			if err := bag.Set("array", arr); err != nil {
				t.Fatal(err)
			}
			res, err := bag.CallWithFallback(ctx, "increment", float32(0.5))
			if err != nil || res != int32(4) {
				t.Fatalf("increment = %v, %v", res, err)
			}
			got, _ := array.Slice[float32](arr)
			if !slices.Equal(got, []float32{1.5, 2.5}) {
				t.Errorf("array = %v", got)
			}

			_, err = rt.Invoke(ctx, "Bag.increment", int32(1), arr, float32(1))
			if err != nil && !errors.Is(err, kerrors.ErrUnsupportedSpecialization) {
				t.Errorf("Invoke(Bag.increment): %v", err)
			}
			if _, err := rt.NewObject("Box"); !errors.Is(err, kerrors.ErrNotFound) {
				t.Errorf("unknown class err = %v", err)
			}
		})
	}
}

func TestRuntime_ConfiguredKernels(t *testing.T) {
	ctx := context.Background()
	cfg, err := config.Parse([]byte(`
cache:
  metrics: true
  metrics_namespace: rt_test
kernels:
  - source: |
      func mean(x []float64) float64 {
      	s := 0.0
      	for _, v := range x {
      		s += v
      	}
      	return s / float64(len(x))
      }

      func scale(x any, f any) {
      	for i := range x {
      		x[i] = x[i] * f
      	}
      }
    signatures:
      scale: ["(float64[:], float64)", "(float32[:], float32)"]
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	reg := prometheus.NewRegistry()
	rt := newRuntime(t, cfg, WithRegisterer(reg))

	if got := rt.Stats().Compilations; got != 3 {
		t.Errorf("eager compilations = %d, want 3", got)
	}
	h, err := rt.Kernel("scale")
	if err != nil {
		t.Fatalf("Kernel: %v", err)
	}
	if !h.Sealed() || len(h.Signatures()) != 2 {
		t.Errorf("scale sealed=%v signatures=%v", h.Sealed(), h.Signatures())
	}

	x := array.MustFromSlice([]float64{1, 2})
	if _, err := rt.Invoke(ctx, "scale", x, 2.0); err != nil {
		t.Errorf("scale(float64[:]): %v", err)
	}
	if _, err := rt.Invoke(ctx, "scale", array.MustFromSlice([]int64{1, 2}), int64(2)); !errors.Is(err, kerrors.ErrUnsupportedSpecialization) {
		t.Errorf("scale(int64[:]) err = %v, want unsupported specialization", err)
	}
	got, _ := array.Slice[float64](x)
	if !slices.Equal(got, []float64{2, 4}) {
		t.Errorf("scaled in place = %v", got)
	}

	if rt.Metrics() == nil {
		t.Fatal("metrics disabled")
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("no metrics registered")
	}
	if len(rt.Modules()) != 1 {
		t.Errorf("modules = %d", len(rt.Modules()))
	}
}

func TestRuntime_LoadErrors(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)
	if _, err := rt.LoadSource(ctx, stats); err != nil {
		t.Fatalf("LoadSource: %v", err)
	}

	tests := []struct {
		name string
		src  config.KernelSource
		want error
	}{
		{"duplicate", config.KernelSource{Source: stats}, kerrors.ErrInvalidInput},
		{"unknown kernel", config.KernelSource{
			Source:     "func twice(x float64) float64 { return 2 * x }",
			Signatures: map[string][]string{"thrice": {"(float64)"}},
		}, kerrors.ErrNotFound},
		{"result", config.KernelSource{
			Source:     "func half(x any) any { return x / 2 }",
			Signatures: map[string][]string{"half": {"int64(float64)"}},
		}, kerrors.ErrTypeMismatch},
		{"uncompilable signature", config.KernelSource{
			Source: "func twice(x float64) float64 { return 2 * x }\n" +
				"func shout(x float64) float64 {\n\tprintln(x)\n\treturn x\n}",
			Signatures: map[string][]string{"shout": {"float64(float64)"}},
		}, kerrors.ErrUnsupportedSpecialization},
		{"syntax", config.KernelSource{Source: "func broken( {"}, kerrors.ErrSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := rt.Load(ctx, tt.src); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if got := rt.Kernels(); !slices.Equal(got, []string{"mean", "mul", "scale"}) {
		t.Errorf("failed loads left kernels: %v", got)
	}
	if got := rt.Stats().Entries; got != 1 {
		t.Errorf("failed loads left %d cache entries, want 1", got)
	}
}

func TestRuntime_LoadMixedLibrary(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	rt := newRuntime(t, nil, WithOutput(&out))

	src := `
func show(x float64) float64 {
	println(x)
	return x
}

func narrow(x int8) int8 { return x + 1 }

func add(a, b float64) float64 { return a + b }
`
	mod, err := rt.LoadSource(ctx, src)
	if err != nil {
		t.Fatalf("LoadSource: %v", err)
	}
	if got := rt.Kernels(); !slices.Equal(got, []string{"add", "narrow", "show"}) {
		t.Errorf("Kernels = %v", got)
	}

	h, err := mod.Kernel("add")
	if err != nil {
		t.Fatal(err)
	}
	if !h.Sealed() {
		t.Error("add is not sealed")
	}
	res, err := rt.InvokeWithFallback(ctx, "add", 1.0, 2.0)
	if err != nil || res != 3.0 {
		t.Errorf("add = %v, %v", res, err)
	}

	h, err = mod.Kernel("show")
	if err != nil {
		t.Fatal(err)
	}
	if h.Sealed() {
		t.Error("show is sealed")
	}
	res, err = rt.InvokeWithFallback(ctx, "show", 0.5)
	if err != nil || res != 0.5 {
		t.Errorf("show = %v, %v", res, err)
	}
	if out.String() != "0.5\n" {
		t.Errorf("output = %q", out.String())
	}
	res, err = rt.InvokeWithFallback(ctx, "narrow", int8(3))
	if err != nil || res != int8(4) {
		t.Errorf("narrow = %v (%T), %v", res, res, err)
	}
	if st := rt.Stats(); st.Fallbacks < 1 || st.CompileFailures == 0 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestRuntime_ConcurrentLoads(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = rt.LoadSource(ctx, stats)
		}(i)
	}
	wg.Wait()

	loaded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			loaded++
		case !errors.Is(err, kerrors.ErrInvalidInput):
			t.Errorf("err = %v, want invalid input", err)
		}
	}
	if loaded != 1 {
		t.Fatalf("%d loads succeeded, want 1", loaded)
	}
	if got := rt.Kernels(); !slices.Equal(got, []string{"mean", "mul", "scale"}) {
		t.Errorf("Kernels = %v", got)
	}
	if got := rt.Stats().Entries; got != 1 {
		t.Errorf("Entries = %d, want 1", got)
	}
	res, err := rt.Invoke(ctx, "mean", array.MustFromSlice([]float64{1, 2, 3}))
	if err != nil || res != 2.0 {
		t.Errorf("mean = %v, %v", res, err)
	}
}

func TestRuntime_Fallback(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	rt := newRuntime(t, nil, WithOutput(&out))

	mod, err := rt.Load(ctx, config.KernelSource{
		Source: "func shout(x float64) float64 {\n\tprintln(x)\n\treturn x * 2\n}",
		Lazy:   true,
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := mod.Call(ctx, "shout", 1.5); !errors.Is(err, kerrors.ErrUnsupportedSpecialization) {
		t.Errorf("compiled call err = %v, want unsupported specialization", err)
	}
	res, err := rt.InvokeWithFallback(ctx, "shout", 1.5)
	if err != nil || res != 3.0 {
		t.Errorf("fallback = %v, %v", res, err)
	}
	if out.String() != "1.5\n" {
		t.Errorf("output = %q", out.String())
	}
	if rt.Stats().Fallbacks != 1 {
		t.Errorf("fallbacks = %d", rt.Stats().Fallbacks)
	}
}

func TestRuntime_Evaluate(t *testing.T) {
	ctx := context.Background()
	for _, compile := range []bool{false, true} {
		cfg := config.Default()
		cfg.Eval.Compile = compile
		cfg.Eval.ChunkSize = 2
		rt := newRuntime(t, cfg)

		a := array.MustFromSlice([]float64{1, 2, 3, 4, 5})
		res, err := rt.Evaluate(ctx, "a*a > 2*a", map[string]any{"a": a})
		if err != nil {
			t.Fatalf("Evaluate(compile=%v): %v", compile, err)
		}
		got, ok := array.Slice[bool](res.(*array.Array))
		if !ok || !slices.Equal(got, []bool{false, false, true, true, true}) {
			t.Errorf("Evaluate(compile=%v) = %v", compile, res)
		}
		if compiled := rt.Stats().Compilations > 0; compiled != compile {
			t.Errorf("compile=%v but cache compilations = %d", compile, rt.Stats().Compilations)
		}
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Backend = "gpu"
	if _, err := New(context.Background(), cfg); !errors.Is(err, kerrors.ErrInvalidInput) {
		t.Errorf("err = %v, want invalid input", err)
	}
}
