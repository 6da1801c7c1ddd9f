package expr

import (
	"errors"
	"fmt"
)

// Evaluation error codes (E200-E299).
const (
	// ErrCodeUnsafeChar indicates a character outside the whitelist
	// survived substitution.
	ErrCodeUnsafeChar = "E200"

	// ErrCodeSyntax indicates the expression failed to parse.
	ErrCodeSyntax = "E201"

	// ErrCodeUnknownName indicates an identifier the source could not
	// resolve.
	ErrCodeUnknownName = "E202"

	// ErrCodeDivideByZero indicates a division by zero during evaluation.
	ErrCodeDivideByZero = "E203"

	// ErrCodeNotFinite indicates a resolved value was NaN or infinite.
	ErrCodeNotFinite = "E204"
)

// EvalError is a failed condition evaluation. Callers that only need a
// boolean treat any EvalError as false.
type EvalError struct {
	Code    string
	Expr    string
	Message string
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	return fmt.Sprintf("[%s] eval %q: %s", e.Code, e.Expr, e.Message)
}

// IsEvalError reports whether err is (or wraps) an EvalError.
func IsEvalError(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee)
}

func evalErr(code, expr, format string, args ...any) *EvalError {
	return &EvalError{Code: code, Expr: expr, Message: fmt.Sprintf(format, args...)}
}
