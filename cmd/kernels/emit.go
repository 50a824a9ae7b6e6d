package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-kernels/compiler"
	"github.com/wippyai/wasm-kernels/config"
	kerrors "github.com/wippyai/wasm-kernels/errors"
	"github.com/wippyai/wasm-kernels/types"
)

// EmitResult is the output of kernels emit.
type EmitResult struct {
	Kernel    string `json:"kernel"`
	Signature string `json:"signature"`
	Output    string `json:"output"`
	Bytes     int    `json:"bytes"`
}

func (r EmitResult) String() string {
	return fmt.Sprintf("%s%s: wrote %d bytes to %s", r.Kernel, r.Signature, r.Bytes, r.Output)
}

// NewEmitCommand creates the emit command.
func NewEmitCommand(root *RootOptions) *cobra.Command {
	var file, sig, output string

	cmd := &cobra.Command{
		Use:   "emit <kernel>",
		Short: "Write the WebAssembly module of a specialization",
		Long: `Compile a kernel for one signature and write the WebAssembly binary
without running it. Fully typed kernels default to their declared signature.

Example:
  kernels emit -f stats.go mean --sig '(float64[:])' -o mean.wasm`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := root.formatter(cmd)
			res, err := emit(file, args[0], sig, output)
			if err != nil {
				return out.Error(err)
			}
			return out.Success(res)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "kernel library (required)")
	cmd.Flags().StringVar(&sig, "sig", "", "parameter types, e.g. (float64[:], int64)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default <kernel>.wasm)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func emit(file, name, sigText, output string) (*EmitResult, error) {
	lib, err := config.KernelSource{Path: file}.Library()
	if err != nil {
		return nil, err
	}
	k, err := lib.Kernel(name)
	if err != nil {
		return nil, err
	}

	var sig types.Signature
	if sigText != "" {
		fs, err := types.ParseFuncSig(sigText)
		if err != nil {
			return nil, err
		}
		sig = fs.Params
	} else {
		declared, ok := k.Signature()
		if !ok {
			return nil, kerrors.InvalidInput(kerrors.PhaseSpecialize, "kernel "+name+" has untyped parameters; pass --sig")
		}
		sig = declared
	}

	bin, err := compiler.Emit(k, sig)
	if err != nil {
		return nil, err
	}
	if output == "" {
		output = name + ".wasm"
	}
	if err := os.WriteFile(output, bin, 0o644); err != nil { //nolint:gosec // module binaries are not secret
		return nil, fmt.Errorf("write %s: %w", output, err)
	}
	return &EmitResult{Kernel: name, Signature: sig.String(), Output: output, Bytes: len(bin)}, nil
}
