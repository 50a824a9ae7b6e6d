package main

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-kernels/config"
	"github.com/wippyai/wasm-kernels/engine"
	"github.com/wippyai/wasm-kernels/runtime"
)

// RootOptions holds the global flags.
type RootOptions struct {
	Config  string
	Format  string
	Verbose bool
}

// NewRootCommand creates the kernels command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "kernels",
		Short: "Compile and run numeric kernels",
		Long: `kernels specializes numeric kernels written in a Go subset to WebAssembly,
once per argument type signature, and runs them or evaluates element-wise
expressions over arrays.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "configuration file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewEvalCommand(opts))
	cmd.AddCommand(NewEmitCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	if o.Config == "" {
		cfg := config.Default()
		cfg.Log.Level = "warn"
		return cfg, nil
	}
	return config.Load(o.Config)
}

// kernelOutput is where kernels print: stderr in JSON mode.
func (o *RootOptions) kernelOutput(cmd *cobra.Command) io.Writer {
	if o.Format == "json" {
		return cmd.ErrOrStderr()
	}
	return cmd.OutOrStdout()
}

// newRuntime creates a runtime from cfg with kernel output going to out.
func (o *RootOptions) newRuntime(ctx context.Context, cfg *config.Config, out io.Writer) (*runtime.Runtime, error) {
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	engine.SetLogger(logger)
	return runtime.New(ctx, cfg, runtime.WithLogger(logger), runtime.WithOutput(out))
}
