package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	kerrors "github.com/wippyai/wasm-kernels/errors"
)

func TestParse(t *testing.T) {
	t.Setenv("KERNELS_TEST_CACHE", "/tmp/kernels-cache")
	cfg, err := Parse([]byte(`
engine:
  memory_limit_pages: 256
  compilation_cache_dir: ${KERNELS_TEST_CACHE}
cache:
  backend: interp
  singleflight: false
  metrics: true
eval:
  workers: 3
  chunk_size: 4096
log:
  level: ${KERNELS_TEST_UNSET:-debug}
  encoding: json
kernels:
  - source: |
      func add(a, b float64) float64 { return a + b }
    signatures:
      add: ["float64(float64, float64)", "(float32, float32)"]
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Engine.MemoryLimitPages != 256 || cfg.Engine.CompilationCacheDir != "/tmp/kernels-cache" {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Cache.Backend != BackendInterp || cfg.Cache.SingleflightEnabled() || !cfg.Cache.Metrics {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Cache.MetricsNamespace != "kernels" {
		t.Errorf("metrics namespace = %q", cfg.Cache.MetricsNamespace)
	}
	if cfg.Eval.Workers != 3 || cfg.Eval.ChunkSize != 4096 {
		t.Errorf("eval = %+v", cfg.Eval)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Encoding != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}

	if len(cfg.Kernels) != 1 {
		t.Fatalf("kernels = %d", len(cfg.Kernels))
	}
	lib, err := cfg.Kernels[0].Library()
	if err != nil {
		t.Fatalf("Library: %v", err)
	}
	if _, err := lib.Kernel("add"); err != nil {
		t.Errorf("Kernel(add): %v", err)
	}
	sigs, err := cfg.Kernels[0].FuncSigs("add")
	if err != nil || len(sigs) != 2 {
		t.Fatalf("FuncSigs = %v, %v", sigs, err)
	}
	if got := sigs[0].Params.String(); got != "(float64, float64)" {
		t.Errorf("first signature = %s", got)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Cache.Backend != BackendWasm || !cfg.Cache.SingleflightEnabled() {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Log.Level != "info" || cfg.Log.Encoding != "console" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	empty, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(empty): %v", err)
	}
	if empty.Cache.Backend != BackendWasm {
		t.Errorf("empty backend = %q", empty.Cache.Backend)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"backend", "cache: {backend: llvm}"},
		{"workers", "eval: {workers: -1}"},
		{"chunk", "eval: {chunk_size: -8}"},
		{"level", "log: {level: loud}"},
		{"encoding", "log: {encoding: xml}"},
		{"unknown key", "cache: {backnd: wasm}"},
		{"no source", "kernels: [{signatures: {f: [\"(float64)\"]}}]"},
		{"both sources", "kernels: [{path: a.go, source: \"func f() {}\"}]"},
		{"signature", "kernels: [{source: \"func f(x float64) float64 { return x }\", signatures: {f: [\"float64(complex)\"]}}]"},
		{"yaml", "cache: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); !errors.Is(err, kerrors.ErrInvalidInput) {
				t.Errorf("err = %v, want invalid input", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "kernels"), 0o755); err != nil {
		t.Fatal(err)
	}
	src := "func mean(x []float64) float64 {\n\ts := 0.0\n\tfor _, v := range x {\n\t\ts += v\n\t}\n\treturn s / float64(len(x))\n}\n"
	if err := os.WriteFile(filepath.Join(dir, "kernels", "stats.go"), []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "kernels.yaml")
	conf := "kernels:\n  - path: kernels/stats.go\n    signatures:\n      mean: [\"float64(float64[:])\"]\n"
	if err := os.WriteFile(path, []byte(conf), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := filepath.Join(dir, "kernels", "stats.go"); cfg.Kernels[0].Path != want {
		t.Errorf("path = %q, want %q", cfg.Kernels[0].Path, want)
	}
	lib, err := cfg.Kernels[0].Library()
	if err != nil {
		t.Fatalf("Library: %v", err)
	}
	if _, err := lib.Kernel("mean"); err != nil {
		t.Errorf("Kernel(mean): %v", err)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); !errors.Is(err, kerrors.ErrNotFound) {
		t.Errorf("missing file err = %v, want not found", err)
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("KERNELS_A", "alpha")
	t.Setenv("KERNELS_EMPTY", "")
	tests := []struct {
		in, want string
	}{
		{"x: ${KERNELS_A}", "x: alpha"},
		{"${KERNELS_A}-${KERNELS_A}", "alpha-alpha"},
		{"${KERNELS_EMPTY:-fallback}", "fallback"},
		{"${KERNELS_NOT_SET_ANYWHERE}", ""},
		{"${KERNELS_A:-unused}", "alpha"},
		{"no vars", "no vars"},
		{"open ${KERNELS_A", "open ${KERNELS_A"},
	}
	for _, tt := range tests {
		if got := substituteEnvVars(tt.in); got != tt.want {
			t.Errorf("substituteEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "warn", Encoding: "json", OutputPaths: []string{filepath.Join(t.TempDir(), "log.json")}})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.Core().Enabled(-1) {
		t.Error("debug enabled at warn level")
	}
	if !logger.Core().Enabled(2) {
		t.Error("error disabled at warn level")
	}

	if _, err := NewLogger(LogConfig{Level: "chatty"}); !errors.Is(err, kerrors.ErrInvalidInput) {
		t.Errorf("bad level err = %v, want invalid input", err)
	}
}
