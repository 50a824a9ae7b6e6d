package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewEvalCommand creates the eval command.
func NewEvalCommand(root *RootOptions) *cobra.Command {
	var compile bool

	cmd := &cobra.Command{
		Use:   "eval <expr> [name=value...]",
		Short: "Evaluate an element-wise expression",
		Long: `Evaluate a Go expression element-wise over array variables.
Scalar variables are broadcast; arrays must share one shape.

Example:
  kernels eval 'a*b - 4.1*a > 2.5*b' a='[1, 2, 3]' b='[4, 5, 6]'
  kernels eval 'math.Sqrt(x) + 1' x=float32:[[1, 4], [9, 16]]`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := root.formatter(cmd)
			res, err := evaluate(cmd, root, args[0], args[1:], compile)
			if err != nil {
				return out.Error(err)
			}
			return out.Success(res)
		},
	}
	cmd.Flags().BoolVar(&compile, "compile", false, "compile the expression instead of interpreting it in parallel chunks")
	return cmd
}

func evaluate(cmd *cobra.Command, root *RootOptions, expr string, assigns []string, compile bool) (any, error) {
	ctx := cmd.Context()
	vars := make(map[string]any, len(assigns))
	for _, a := range assigns {
		name, raw, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("variable %q is not name=value", a)
		}
		v, err := parseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		vars[name] = v
	}

	cfg, err := root.loadConfig()
	if err != nil {
		return nil, err
	}
	if compile {
		cfg.Eval.Compile = true
	}
	rt, err := root.newRuntime(ctx, cfg, root.kernelOutput(cmd))
	if err != nil {
		return nil, err
	}
	defer rt.Close(ctx)

	res, err := rt.Evaluate(ctx, expr, vars)
	if err != nil {
		return nil, err
	}
	return plain(res), nil
}
