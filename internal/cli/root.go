// Package cli implements the simroom command line: validating and
// compiling game definitions, running live simulations, and executing
// scripted scenarios.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds the global flags every subcommand reads.
type RootOptions struct {
	Verbose bool
	Format  string
}

// outputFormats are the values --format accepts.
var outputFormats = []string{"text", "json"}

func (o *RootOptions) validate() error {
	if !slices.Contains(outputFormats, o.Format) {
		return fmt.Errorf("unknown --format %q (want text or json)", o.Format)
	}
	return nil
}

// NewRootCommand wires up the simroom command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	root := &cobra.Command{
		Use:   "simroom",
		Short: "Declarative multiplayer simulation engine",
		Long: `simroom runs multiplayer simulations declared as JSON or CUE game
definitions: validate and compile definitions, run them live, or replay
scripted scenarios against them.`,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return opts.validate()
		},
	}

	root.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	for _, sub := range []*cobra.Command{
		NewValidateCommand(opts),
		NewCompileCommand(opts),
		NewRunCommand(opts),
		NewTestCommand(opts),
	} {
		root.AddCommand(sub)
	}
	return root
}
