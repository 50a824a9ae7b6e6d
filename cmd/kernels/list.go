package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// KernelInfo describes a loaded kernel.
type KernelInfo struct {
	Name        string   `json:"name"`
	Declaration string   `json:"declaration"`
	Sealed      bool     `json:"sealed"`
	Signatures  []string `json:"signatures,omitempty"`
}

func (k KernelInfo) String() string {
	s := k.Declaration
	if len(k.Signatures) > 0 {
		state := "compiled"
		if k.Sealed {
			state = "sealed"
		}
		s += fmt.Sprintf("  [%s: %s]", state, strings.Join(k.Signatures, " "))
	}
	return s
}

// NewListCommand creates the list command.
func NewListCommand(root *RootOptions) *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List kernels",
		Long: `List the kernels of the configuration file and of the given libraries,
with the signatures compiled at load.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := root.formatter(cmd)
			infos, err := listKernels(cmd, root, files)
			if err != nil {
				return out.Error(err)
			}
			if root.Format == "json" {
				return out.Success(infos)
			}
			lines := make([]string, len(infos))
			for i, info := range infos {
				lines[i] = info.String()
			}
			return out.Success(lines)
		},
	}
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "kernel library to load (repeatable)")
	return cmd
}

func listKernels(cmd *cobra.Command, root *RootOptions, files []string) ([]KernelInfo, error) {
	ctx := cmd.Context()
	cfg, err := root.loadConfig()
	if err != nil {
		return nil, err
	}
	rt, err := root.newRuntime(ctx, cfg, root.kernelOutput(cmd))
	if err != nil {
		return nil, err
	}
	defer rt.Close(ctx)

	if err := loadFiles(ctx, rt, files, nil); err != nil {
		return nil, err
	}

	names := rt.Kernels()
	infos := make([]KernelInfo, 0, len(names))
	for _, name := range names {
		h, err := rt.Kernel(name)
		if err != nil {
			return nil, err
		}
		info := KernelInfo{
			Name:        name,
			Declaration: h.Kernel().String(),
			Sealed:      h.Sealed(),
		}
		for _, sig := range h.Signatures() {
			info.Signatures = append(info.Signatures, sig.String())
		}
		infos = append(infos, info)
	}
	return infos, nil
}
