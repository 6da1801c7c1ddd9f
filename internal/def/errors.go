package def

import (
	"errors"
	"fmt"
)

// Schema error codes (D100-D199).
const (
	// ErrCodeBadJSON indicates the document is not well-formed JSON.
	ErrCodeBadJSON = "D100"

	// ErrCodeWrongType indicates a field holds a value of the wrong type.
	ErrCodeWrongType = "D101"

	// ErrCodeMissingField indicates a required field is absent.
	ErrCodeMissingField = "D102"

	// ErrCodeBadEnum indicates a value outside a closed set (effect type,
	// requirement type, trigger, widget type, status, operation).
	ErrCodeBadEnum = "D103"

	// ErrCodeBadCUE indicates a CUE-authored definition failed to compile
	// or export.
	ErrCodeBadCUE = "D104"
)

// SchemaError is a load-time validation failure, fatal to the definition
// being parsed. Path names the offending location in the source document,
// e.g. "action[2].effects[0].target".
type SchemaError struct {
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Path, e.Message)
}

// IsSchemaError reports whether err is (or wraps) a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

func schemaErr(code, path, format string, args ...any) *SchemaError {
	return &SchemaError{Code: code, Path: path, Message: fmt.Sprintf(format, args...)}
}
