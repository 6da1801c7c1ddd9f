package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tidegate/simroom/internal/def"
)

// NewCompileCommand creates the compile command: CUE definition in,
// normalized JSON out.
func NewCompileCommand(root *RootOptions) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:           "compile <definition.cue>",
		Short:         "Compile a CUE game definition to normalized JSON",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, root)

			src, err := os.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "cannot read definition", err)
			}

			data, err := def.ExportJSON(src, filepath.Base(args[0]))
			if err != nil {
				_ = p.Fail("COMPILE", err.Error(), "")
				return WrapExitError(ExitFailure, "compilation failed", err)
			}

			if outputPath == "" {
				fmt.Fprint(cmd.OutOrStdout(), string(data))
				return nil
			}
			if err := os.WriteFile(outputPath, data, 0o644); err != nil {
				return WrapExitError(ExitCommandError, "cannot write output", err)
			}
			p.Logf("wrote %s (%d bytes)", outputPath, len(data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default stdout)")
	return cmd
}
