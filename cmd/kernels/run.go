package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-kernels/array"
	"github.com/wippyai/wasm-kernels/config"
	"github.com/wippyai/wasm-kernels/jit"
	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/runtime"
	"github.com/wippyai/wasm-kernels/types"
)

type runOptions struct {
	files       []string
	sigs        []string
	interpreted bool
	fallback    bool
	interactive bool
}

// RunResult is the output of kernels run.
type RunResult struct {
	Kernel string `json:"kernel"`
	Path   string `json:"path"`
	Result any    `json:"result"`
	// Arrays holds the array arguments after the call; kernels may write
	// to them.
	Arrays []any      `json:"arrays,omitempty"`
	Stats  *jit.Stats `json:"stats,omitempty"`
}

func (r *RunResult) String() string {
	var b strings.Builder
	if r.Result != nil {
		fmt.Fprintf(&b, "%v", r.Result)
	}
	for i, a := range r.Arrays {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "array %d: %v", i, a)
	}
	if r.Stats != nil {
		fmt.Fprintf(&b, "\n%s, %d compilations, %d hits, %d misses, %d fallbacks",
			r.Path, r.Stats.Compilations, r.Stats.Hits, r.Stats.Misses, r.Stats.Fallbacks)
	}
	return b.String()
}

// NewRunCommand creates the run command.
func NewRunCommand(root *RootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <kernel> [args...]",
		Short: "Run a kernel",
		Long: `Run a kernel compiled for the types of its arguments.

Arguments are bool, integer or float literals, or JSON lists for arrays.
Prefix a kind to choose it: int32:7, float32:[1, 2.5], float64:[[1, 2], [3, 4]].
Literals for typed parameters take the parameter's kind; integers must fit
exactly. Elsewhere integer literals are int64 and float literals float64.

Example:
  kernels run -f stats.go mean '[1, 2, 3, 6]'
  kernels run -f stats.go scale float32:[1,2] float32:0.5 --sig '(float32[:], float32)'
  kernels run -f stats.go -i`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := root.formatter(cmd)
			if opts.interactive {
				return runInteractive(cmd, root, opts.files)
			}
			if len(args) == 0 {
				return out.Error(fmt.Errorf("kernel name required"))
			}
			res, err := runKernel(cmd.Context(), cmd, root, opts, args[0], args[1:])
			if err != nil {
				return out.Error(err)
			}
			return out.Success(res)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.files, "file", "f", nil, "kernel library to load (repeatable)")
	cmd.Flags().StringArrayVar(&opts.sigs, "sig", nil, "signature to compile eagerly and seal the kernel to (repeatable)")
	cmd.Flags().BoolVar(&opts.interpreted, "interpreted", false, "run with the interpreter")
	cmd.Flags().BoolVar(&opts.fallback, "fallback", false, "interpret when the kernel cannot be compiled")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "interactive mode with TUI")
	cmd.MarkFlagsMutuallyExclusive("interpreted", "fallback")

	return cmd
}

func runKernel(ctx context.Context, cmd *cobra.Command, root *RootOptions, opts *runOptions, name string, rawArgs []string) (*RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := root.loadConfig()
	if err != nil {
		return nil, err
	}
	rt, err := root.newRuntime(ctx, cfg, root.kernelOutput(cmd))
	if err != nil {
		return nil, err
	}
	defer rt.Close(ctx)

	sealed := map[string][]string{}
	if len(opts.sigs) > 0 {
		sealed[name] = opts.sigs
	}
	if err := loadFiles(ctx, rt, opts.files, sealed); err != nil {
		return nil, err
	}

	h, err := rt.Kernel(name)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(rawArgs))
	for i, s := range rawArgs {
		if args[i], err = parseArg(s, paramKind(h.Kernel(), i)); err != nil {
			return nil, err
		}
	}

	res := &RunResult{Kernel: name, Path: "compiled"}
	before := rt.Stats().Fallbacks
	switch {
	case opts.interpreted:
		res.Path = "interpreted"
		res.Result, err = rt.InvokeInterpreted(ctx, name, args...)
	case opts.fallback:
		res.Result, err = rt.InvokeWithFallback(ctx, name, args...)
		if rt.Stats().Fallbacks > before {
			res.Path = "interpreted"
		}
	default:
		res.Result, err = rt.Invoke(ctx, name, args...)
	}
	if err != nil {
		return nil, err
	}

	res.Result = plain(res.Result)
	for _, a := range args {
		if arr, ok := a.(*array.Array); ok {
			res.Arrays = append(res.Arrays, plain(arr))
		}
	}
	if root.Verbose {
		st := rt.Stats()
		res.Stats = &st
	}
	return res, nil
}

// loadFiles loads kernel libraries lazily, except for kernels listed in
// sigs, which are compiled and sealed.
func loadFiles(ctx context.Context, rt *runtime.Runtime, files []string, sigs map[string][]string) error {
	for _, f := range files {
		src := config.KernelSource{Path: f, Lazy: true}
		lib, err := src.Library()
		if err != nil {
			return err
		}
		for name, s := range sigs {
			if _, ok := lib.Lookup(name); ok {
				if src.Signatures == nil {
					src.Signatures = make(map[string][]string)
				}
				src.Signatures[name] = s
			}
		}
		if _, err := rt.Load(ctx, src); err != nil {
			return err
		}
	}
	return nil
}

// paramKind returns the declared kind of parameter i, or types.Invalid for
// untyped and surplus parameters.
func paramKind(k *kernel.Kernel, i int) types.Kind {
	if i >= k.NumParams() || k.Param(i).Lazy {
		return types.Invalid
	}
	return k.Param(i).Type.Kind
}
