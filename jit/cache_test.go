package jit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/wippyai/wasm-kernels/array"
	"github.com/wippyai/wasm-kernels/compiler"
	"github.com/wippyai/wasm-kernels/engine"
	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/interp"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/metrics"
	"github.com/wippyai/wasm-kernels/types"
)

var lib = kernel.MustParse(`
func add(x, y any) any { return x + y }

func div(a, b int64) int64 {
	if b == 0 {
		panic("division by zero")
	}
	return a / b
}

func sum32(a, b int32) int32 { return a + b }

func dot(a, b []float64) float64 {
	s := 0.0
	for i := 0; i < len(a); i++ {
		s += a[i] * b[i]
	}
	return s
}
`)

func mustKernel(t *testing.T, name string) *kernel.Kernel {
	t.Helper()
	k, err := lib.Kernel(name)
	if err != nil {
		t.Fatalf("Kernel(%q): %v", name, err)
	}
	return k
}

// countingBackend wraps the inferred backend and counts compilations.
type countingBackend struct {
	inner  Backend
	calls  atomic.Int32
	delay  time.Duration
	reject map[string]bool
	closed atomic.Int32
}

func newCountingBackend() *countingBackend {
	return &countingBackend{inner: Inferred(interp.New()), reject: map[string]bool{}}
}

func (b *countingBackend) Compile(ctx context.Context, k *kernel.Kernel, sig types.Signature) (Compiled, error) {
	b.calls.Add(1)
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.reject[k.Name()] {
		return nil, kerrors.Unsupported(kerrors.PhaseSpecialize, "rejected by test backend")
	}
	c, err := b.inner.Compile(ctx, k, sig)
	if err != nil {
		return nil, err
	}
	return &trackedCompiled{Compiled: c, closed: &b.closed}, nil
}

type trackedCompiled struct {
	Compiled
	closed *atomic.Int32
}

func (c *trackedCompiled) Close(ctx context.Context) error {
	c.closed.Add(1)
	return c.Compiled.Close(ctx)
}

func TestCache_Idempotent(t *testing.T) {
	ctx := context.Background()
	b := newCountingBackend()
	c := New(b)
	add := mustKernel(t, "add")

	for i := 0; i < 5; i++ {
		res, err := c.Invoke(ctx, add, 2, 3)
		if err != nil {
			t.Fatalf("Invoke: %v", err)
		}
		if res != int64(5) {
			t.Fatalf("add(2, 3) = %v (%T), want 5", res, res)
		}
	}
	if got := b.calls.Load(); got != 1 {
		t.Errorf("backend compiled %d times, want 1", got)
	}
	st := c.Stats()
	want := Stats{Hits: 4, Misses: 1, Compilations: 1, Entries: 1}
	if st != want {
		t.Errorf("Stats = %+v, want %+v", st, want)
	}
}

func TestCache_SignatureDiscrimination(t *testing.T) {
	ctx := context.Background()
	b := newCountingBackend()
	c := New(b)
	add := mustKernel(t, "add")

	res, err := c.Invoke(ctx, add, 2, 3)
	if err != nil || res != int64(5) {
		t.Fatalf("add(2, 3) = %v, %v", res, err)
	}
	res, err = c.Invoke(ctx, add, 2.5, 0.5)
	if err != nil || res != 3.0 {
		t.Fatalf("add(2.5, 0.5) = %v, %v", res, err)
	}
	res, err = c.Invoke(ctx, add, int32(7), int32(1))
	if err != nil || res != int32(8) {
		t.Fatalf("add(int32 7, int32 1) = %v, %v", res, err)
	}

	if got := c.Stats().Entries; got != 3 {
		t.Errorf("Entries = %d, want 3", got)
	}
	if got := b.calls.Load(); got != 3 {
		t.Errorf("backend compiled %d times, want 3", got)
	}
	sigs := c.Signatures(add)
	if len(sigs) != 3 {
		t.Fatalf("Signatures = %v, want 3", sigs)
	}
}

func TestCache_Unsupported(t *testing.T) {
	ctx := context.Background()
	b := newCountingBackend()
	b.reject["add"] = true
	c := New(b)
	add := mustKernel(t, "add")

	_, err := c.Invoke(ctx, add, 2, 3)
	if !errors.Is(err, kerrors.ErrUnsupportedSpecialization) {
		t.Fatalf("Invoke err = %v, want unsupported specialization", err)
	}
	if _, err := c.Invoke(ctx, add, 2, 3); err == nil {
		t.Fatal("second Invoke succeeded")
	}
	if got := b.calls.Load(); got != 2 {
		t.Errorf("backend compiled %d times, want 2 (failures are not cached)", got)
	}

	res, err := c.InvokeInterpreted(ctx, add, 2, 3)
	if err != nil || res != int64(5) {
		t.Fatalf("InvokeInterpreted = %v, %v", res, err)
	}
	res, err = c.InvokeWithFallback(ctx, add, 2.5, 0.5)
	if err != nil || res != 3.0 {
		t.Fatalf("InvokeWithFallback = %v, %v", res, err)
	}

	st := c.Stats()
	if st.Entries != 0 || st.CompileFailures != 3 || st.Fallbacks != 1 || st.Compilations != 0 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestCache_BackendErrorIsUnsupported(t *testing.T) {
	boom := errors.New("boom")
	c := New(BackendFunc(func(context.Context, *kernel.Kernel, types.Signature) (Compiled, error) {
		return nil, boom
	}))
	_, err := c.Invoke(context.Background(), mustKernel(t, "add"), 1, 2)
	if !errors.Is(err, kerrors.ErrUnsupportedSpecialization) {
		t.Fatalf("err = %v, want unsupported specialization", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want cause preserved", err)
	}
}

func TestCache_RaisePassesThrough(t *testing.T) {
	ctx := context.Background()
	c := New(newCountingBackend())
	div := mustKernel(t, "div")

	_, err := c.Invoke(ctx, div, 1, 0)
	var raise *kerrors.RaiseError
	if !errors.As(err, &raise) {
		t.Fatalf("err = %v, want RaiseError", err)
	}
	if raise.Message != "division by zero" || raise.Kernel != "div" {
		t.Errorf("raise = %+v", raise)
	}
	_, ierr := c.InvokeInterpreted(ctx, div, 1, 0)
	if !errors.Is(ierr, raise) {
		t.Errorf("interpreted err = %v, want %v", ierr, raise)
	}

	res, err := c.Invoke(ctx, div, 7, 2)
	if err != nil || res != int64(3) {
		t.Fatalf("div(7, 2) = %v, %v", res, err)
	}
	if st := c.Stats(); st.Entries != 1 || st.Compilations != 1 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestCache_ConcurrentFirstUse(t *testing.T) {
	tests := []struct {
		name         string
		singleflight bool
	}{
		{"singleflight", true},
		{"racing", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			b := newCountingBackend()
			b.delay = 20 * time.Millisecond
			c := New(b, WithSingleflight(tt.singleflight))
			add := mustKernel(t, "add")

			const n = 16
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					res, err := c.Invoke(ctx, add, i, 1)
					if err != nil {
						errs <- err
						return
					}
					if res != int64(i+1) {
						errs <- errors.New("wrong result")
					}
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Error(err)
			}

			calls := b.calls.Load()
			if tt.singleflight && calls != 1 {
				t.Errorf("backend compiled %d times, want 1", calls)
			}
			if calls < 1 || calls > n {
				t.Errorf("backend compiled %d times, want 1..%d", calls, n)
			}
			if got := b.closed.Load(); got != calls-1 {
				t.Errorf("closed %d redundant results, want %d", got, calls-1)
			}
			if got := c.Stats().Entries; got != 1 {
				t.Errorf("Entries = %d, want 1", got)
			}
		})
	}
}

func TestCache_SharedCompileOutlivesCaller(t *testing.T) {
	b := newCountingBackend()
	b.delay = 50 * time.Millisecond
	c := New(b)
	add := mustKernel(t, "add")

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Invoke(first, add, 1, 2)
		firstErr <- err
	}()
	for b.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	second := make(chan error, 1)
	go func() {
		res, err := c.Invoke(context.Background(), add, 3, 4)
		if err == nil && res != int64(7) {
			err = errors.New("wrong result")
		}
		second <- err
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller: err = %v, want context.Canceled", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("waiting caller: %v", err)
	}
	if got := b.calls.Load(); got != 1 {
		t.Errorf("backend compiled %d times, want 1", got)
	}
	st := c.Stats()
	if st.Entries != 1 || st.CompileFailures != 0 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestCache_SignatureMismatch(t *testing.T) {
	ctx := context.Background()
	c := New(newCountingBackend())
	add := mustKernel(t, "add")

	s, err := c.Specialize(ctx, add, types.Signature{types.Scalar(types.Int64), types.Scalar(types.Int64)})
	if err != nil {
		t.Fatalf("Specialize: %v", err)
	}
	if _, err := s.Call(ctx, 1.5, 2.5); !errors.Is(err, kerrors.ErrSignatureMismatch) {
		t.Fatalf("err = %v, want signature mismatch", err)
	}
}

func TestCache_DeclaredConversions(t *testing.T) {
	ctx := context.Background()
	c := New(newCountingBackend())
	div := mustKernel(t, "div")

	res, err := c.Invoke(ctx, div, int32(9), int8(2))
	if err != nil {
		t.Fatalf("div(int32, int8): %v", err)
	}
	if res != int64(4) {
		t.Errorf("div(9, 2) = %v (%T), want 4", res, res)
	}

	lossy := [][]any{
		{7.9, 2.0},
		{int64(7), float32(2)},
		{uint64(1 << 63), int64(1)},
	}
	for _, args := range lossy {
		if _, err := c.Invoke(ctx, div, args...); !errors.Is(err, kerrors.ErrSignatureMismatch) {
			t.Errorf("div%v: err = %v, want signature mismatch", args, err)
		}
	}
	if got := c.Stats().Entries; got != 1 {
		t.Errorf("Entries = %d, want 1", got)
	}

	sum32 := mustKernel(t, "sum32")
	if _, err := c.Invoke(ctx, sum32, int64(1<<33+5), int32(1)); !errors.Is(err, kerrors.ErrSignatureMismatch) {
		t.Errorf("sum32(int64, int32): err = %v, want signature mismatch", err)
	}
	s, err := c.Specialize(ctx, sum32, types.Signature{types.Scalar(types.Int32), types.Scalar(types.Int32)})
	if err != nil {
		t.Fatalf("Specialize: %v", err)
	}
	if _, err := s.Call(ctx, 2.9, -7.9); !errors.Is(err, kerrors.ErrSignatureMismatch) {
		t.Errorf("Call(2.9, -7.9): err = %v, want signature mismatch", err)
	}
	res, err = s.Call(ctx, int8(2), int16(-7))
	if err != nil || res != int32(-5) {
		t.Errorf("Call(int8, int16) = %v, %v", res, err)
	}
}

func TestCache_EvictAndClose(t *testing.T) {
	ctx := context.Background()
	b := newCountingBackend()
	c := New(b)
	add := mustKernel(t, "add")
	div := mustKernel(t, "div")

	for _, args := range [][]any{{1, 2}, {1.0, 2.0}} {
		if _, err := c.Invoke(ctx, add, args...); err != nil {
			t.Fatalf("Invoke: %v", err)
		}
	}
	if _, err := c.Invoke(ctx, div, 4, 2); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if n := c.Evict(ctx, add); n != 2 {
		t.Errorf("Evict = %d, want 2", n)
	}
	if got := c.Stats().Entries; got != 1 {
		t.Errorf("Entries = %d, want 1", got)
	}
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := b.closed.Load(); got != 3 {
		t.Errorf("closed = %d, want 3", got)
	}
	if got := c.Stats().Entries; got != 0 {
		t.Errorf("Entries = %d, want 0", got)
	}
}

func TestCache_Metrics(t *testing.T) {
	ctx := context.Background()
	m := metrics.NewCollector("kernels")
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	c := New(newCountingBackend(),
		WithMetrics(m),
		WithTracer(noop.NewTracerProvider().Tracer("test")))
	add := mustKernel(t, "add")

	for i := 0; i < 3; i++ {
		if _, err := c.Invoke(ctx, add, 1, 2); err != nil {
			t.Fatalf("Invoke: %v", err)
		}
	}

	const want = `
# HELP kernels_cache_hits_total Calls served by a cached specialization.
# TYPE kernels_cache_hits_total counter
kernels_cache_hits_total{kernel="add"} 2
# HELP kernels_cache_compilations_total Specializations compiled.
# TYPE kernels_cache_compilations_total counter
kernels_cache_compilations_total{kernel="add"} 1
# HELP kernels_cache_entries Specializations held by the cache.
# TYPE kernels_cache_entries gauge
kernels_cache_entries 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(want),
		"kernels_cache_hits_total", "kernels_cache_compilations_total", "kernels_cache_entries")
	if err != nil {
		t.Error(err)
	}
}

func TestCache_Wasm(t *testing.T) {
	ctx := context.Background()
	e, err := engine.New(ctx, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { _ = e.Close(ctx) })
	c := New(Wasm(compiler.New(e)))
	t.Cleanup(func() { _ = c.Close(ctx) })
	dot := mustKernel(t, "dot")

	a := array.MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, 6)
	b := array.MustFromSlice([]float64{0.5, 1.5, 2.5, 3.5, 4.5, 5.5}, 6)
	compiled, err := c.Invoke(ctx, dot, a, b)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	interpreted, err := c.InvokeInterpreted(ctx, dot, a, b)
	if err != nil {
		t.Fatalf("InvokeInterpreted: %v", err)
	}
	if compiled != interpreted {
		t.Errorf("compiled %v, interpreted %v", compiled, interpreted)
	}
	if compiled != 80.5 {
		t.Errorf("dot = %v, want 80.5", compiled)
	}

	if _, err := c.Invoke(ctx, dot, a, b); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if st := c.Stats(); st.Compilations != 1 || st.Hits != 1 {
		t.Errorf("Stats = %+v", st)
	}
}
