// Package config loads the configuration of the kernels runtime from YAML.
//
// Values may reference environment variables as ${NAME} or
// ${NAME:-default}:
//
//	engine:
//	  memory_limit_pages: 1024
//	  compilation_cache_dir: ${KERNELS_CACHE_DIR}
//	cache:
//	  backend: wasm
//	  metrics: true
//	eval:
//	  workers: 4
//	log:
//	  level: ${KERNELS_LOG_LEVEL:-info}
//	kernels:
//	  - path: kernels/stats.go
//	    signatures:
//	      mean: ["float64(float64[:])"]
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/types"
)

// Cache backends.
const (
	BackendWasm   = "wasm"
	BackendInterp = "interp"
)

type Config struct {
	Engine  EngineConfig   `yaml:"engine"`
	Cache   CacheConfig    `yaml:"cache"`
	Eval    EvalConfig     `yaml:"eval"`
	Log     LogConfig      `yaml:"log"`
	Kernels []KernelSource `yaml:"kernels"`
}

type EngineConfig struct {
	// MemoryLimitPages caps linear memory per instance in 64KiB pages.
	// 0 keeps the wazero default.
	MemoryLimitPages    uint32 `yaml:"memory_limit_pages"`
	CompilationCacheDir string `yaml:"compilation_cache_dir"`
	CloseOnContextDone  bool   `yaml:"close_on_context_done"`
}

type CacheConfig struct {
	Backend          string `yaml:"backend"`
	Singleflight     *bool  `yaml:"singleflight"`
	Metrics          bool   `yaml:"metrics"`
	MetricsNamespace string `yaml:"metrics_namespace"`
}

// SingleflightEnabled reports whether concurrent misses share a compilation.
func (c CacheConfig) SingleflightEnabled() bool {
	return c.Singleflight == nil || *c.Singleflight
}

type EvalConfig struct {
	Workers   int `yaml:"workers"`
	ChunkSize int `yaml:"chunk_size"`
	// Compile evaluates expressions through the kernel cache.
	Compile bool `yaml:"compile"`
}

type LogConfig struct {
	Level       string   `yaml:"level"`
	Development bool     `yaml:"development"`
	Encoding    string   `yaml:"encoding"`
	OutputPaths []string `yaml:"output_paths"`
}

// KernelSource is a kernel library given inline or by path, with the
// signatures to compile eagerly per kernel name. Kernels without listed
// signatures compile their declared signature at load unless Lazy is set; if
// that fails the kernel is loaded lazily. A listed signature that fails to
// compile fails the load.
type KernelSource struct {
	Path       string              `yaml:"path"`
	Source     string              `yaml:"source"`
	Signatures map[string][]string `yaml:"signatures"`
	Lazy       bool                `yaml:"lazy"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendWasm
	}
	if c.Cache.MetricsNamespace == "" {
		c.Cache.MetricsNamespace = "kernels"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = "console"
	}
}

// Load reads, substitutes, defaults and validates a configuration file.
// Relative kernel paths are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is chosen by the caller
	if err != nil {
		return nil, kerrors.Wrap(kerrors.PhaseConfig, kerrors.KindNotFound, err, "read config file")
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	for i, k := range cfg.Kernels {
		if k.Path != "" && !filepath.IsAbs(k.Path) {
			cfg.Kernels[i].Path = filepath.Join(dir, k.Path)
		}
	}
	return cfg, nil
}

// Parse decodes YAML configuration. Unknown keys are errors.
func Parse(data []byte) (*Config, error) {
	content := substituteEnvVars(string(data))
	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, kerrors.Wrap(kerrors.PhaseConfig, kerrors.KindInvalidInput, err, "parse YAML")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and kernel signatures.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return kerrors.InvalidInput(kerrors.PhaseConfig, fmt.Sprintf(format, args...))
	}
	switch c.Cache.Backend {
	case BackendWasm, BackendInterp:
	default:
		return invalid("cache.backend must be %q or %q, got %q", BackendWasm, BackendInterp, c.Cache.Backend)
	}
	if c.Eval.Workers < 0 {
		return invalid("eval.workers must not be negative")
	}
	if c.Eval.ChunkSize < 0 {
		return invalid("eval.chunk_size must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level: %v", err)
	}
	switch c.Log.Encoding {
	case "json", "console":
	default:
		return invalid("log.encoding must be json or console, got %q", c.Log.Encoding)
	}
	for i, k := range c.Kernels {
		if (k.Path == "") == (k.Source == "") {
			return invalid("kernels[%d]: set exactly one of path and source", i)
		}
		for name, sigs := range k.Signatures {
			for _, s := range sigs {
				if _, err := types.ParseFuncSig(s); err != nil {
					return invalid("kernels[%d].signatures.%s: %v", i, name, err)
				}
			}
		}
	}
	return nil
}

// Library parses the kernel source.
func (k KernelSource) Library() (*kernel.Library, error) {
	if k.Source != "" {
		return kernel.Parse(k.Source)
	}
	src, err := os.ReadFile(k.Path) //nolint:gosec // path comes from the config file
	if err != nil {
		return nil, kerrors.Wrap(kerrors.PhaseConfig, kerrors.KindNotFound, err, "read kernel source")
	}
	return kernel.ParseFile(k.Path, string(src))
}

// FuncSigs returns the parsed eager signatures of the named kernel.
func (k KernelSource) FuncSigs(name string) ([]types.FuncSig, error) {
	var out []types.FuncSig
	for _, s := range k.Signatures[name] {
		fs, err := types.ParseFuncSig(s)
		if err != nil {
			return nil, err
		}
		out = append(out, fs)
	}
	return out, nil
}

// substituteEnvVars replaces ${NAME} and ${NAME:-default}.
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(content[:start])
		name, def, hasDef := strings.Cut(content[start+2:end], ":-")
		value, ok := os.LookupEnv(name)
		if (!ok || value == "") && hasDef {
			value = def
		}
		b.WriteString(value)
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
