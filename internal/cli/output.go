package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Exit codes.
const (
	ExitSuccess      = 0 // command succeeded
	ExitFailure      = 1 // domain failure (invalid definition, failed scenario)
	ExitCommandError = 2 // usage or environment error (missing file, bad flag)
)

// ExitError carries a specific process exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error, defaulting to
// ExitFailure for plain errors.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Printer renders command results as plain text or as the simroom JSON
// envelope. Verbose chatter goes to Diag so JSON on Out stays
// parseable.
type Printer struct {
	JSON    bool
	Out     io.Writer
	Diag    io.Writer
	Verbose bool
}

func newPrinter(cmd *cobra.Command, root *RootOptions) *Printer {
	return &Printer{
		JSON:    root.Format == "json",
		Out:     cmd.OutOrStdout(),
		Diag:    cmd.ErrOrStderr(),
		Verbose: root.Verbose,
	}
}

// envelope is the shape every command emits in --format json. Exactly
// one of result or error is set.
type envelope struct {
	Result any         `json:"result,omitempty"`
	Error  *diagnostic `json:"error,omitempty"`
}

// diagnostic is a coded failure; Path carries the JSON path when a
// schema error names one.
type diagnostic struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// OK renders a successful result.
func (p *Printer) OK(result any) error {
	if p.JSON {
		return json.NewEncoder(p.Out).Encode(envelope{Result: result})
	}
	fmt.Fprintln(p.Out, result)
	return nil
}

// Fail renders a coded failure. Pass an empty path when the failure
// has no location.
func (p *Printer) Fail(code, message, path string) error {
	if p.JSON {
		return json.NewEncoder(p.Out).Encode(envelope{
			Error: &diagnostic{Code: code, Message: message, Path: path},
		})
	}
	if path != "" {
		fmt.Fprintf(p.Out, "error [%s] at %s: %s\n", code, path, message)
		return nil
	}
	fmt.Fprintf(p.Out, "error [%s]: %s\n", code, message)
	return nil
}

// Logf emits progress chatter in verbose mode only.
func (p *Printer) Logf(format string, args ...any) {
	if p.Verbose {
		fmt.Fprintf(p.Diag, format+"\n", args...)
	}
}
