package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tidegate/simroom/internal/def"
	"github.com/tidegate/simroom/internal/harness"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "validate <definition>",
		Short:         "Validate a game definition (.json or .cue)",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true, // commands emit their own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, root)

			d, err := harness.LoadDefinition(args[0])
			if err != nil {
				var se *def.SchemaError
				if errors.As(err, &se) {
					_ = p.Fail(se.Code, se.Message, se.Path)
					return NewExitError(ExitFailure, se.Error())
				}
				_ = p.Fail("IO", err.Error(), "")
				return WrapExitError(ExitCommandError, "cannot load definition", err)
			}

			p.Logf("parsed %d vars, %d entities, %d actions, %d rules",
				len(d.Vars), len(d.Entities), len(d.Actions), len(d.Rules))
			return p.OK(fmt.Sprintf("%s %s: valid", d.Meta.Name, d.Meta.Version))
		},
	}
	return cmd
}
