package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tidegate/simroom/internal/harness"
)

// NewTestCommand creates the test command: run scripted scenarios and
// fail on any unmet assertion.
func NewTestCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "test <scenario.yaml>...",
		Short:         "Run scripted scenarios against their definitions",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, root)

			failed := 0
			type summary struct {
				Scenario string   `json:"scenario"`
				Passed   bool     `json:"passed"`
				Failures []string `json:"failures,omitempty"`
			}
			var summaries []summary

			for _, path := range args {
				sc, err := harness.Load(path)
				if err != nil {
					return WrapExitError(ExitCommandError, "cannot load scenario", err)
				}
				res, err := harness.Run(sc)
				if err != nil {
					return WrapExitError(ExitCommandError, fmt.Sprintf("scenario %s", sc.Name), err)
				}

				summaries = append(summaries, summary{
					Scenario: sc.Name,
					Passed:   res.Passed(),
					Failures: res.Failures,
				})
				if !res.Passed() {
					failed++
				}
			}

			if p.JSON {
				if err := p.OK(summaries); err != nil {
					return err
				}
			} else {
				for _, s := range summaries {
					if s.Passed {
						fmt.Fprintf(cmd.OutOrStdout(), "PASS %s\n", s.Scenario)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s\n", s.Scenario)
					for _, f := range s.Failures {
						fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", f)
					}
				}
			}

			if failed > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", failed, len(args)))
			}
			return nil
		},
	}
	return cmd
}
