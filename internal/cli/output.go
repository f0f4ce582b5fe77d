package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for the cellflow binary.
const (
	ExitSuccess      = 0 // command completed
	ExitFailure      = 1 // write rejected or cell not found
	ExitCommandError = 2 // bad config, unreadable database, invalid flags
)

// ExitError carries the process exit code alongside the error.
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

// GetExitCode maps an error onto the process exit code. Plain errors
// default to ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter renders command results as plain text or as a JSON
// envelope, depending on the --format flag.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Envelope wraps JSON command output. Data holds a cell or a sheet on
// success; Error is set when the command was rejected.
type Envelope struct {
	Status string       `json:"status"`
	Data   any          `json:"data,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail reports why a command was rejected, using the same code
// strings the HTTP API uses (CIRCULAR_REFERENCE, UNRESOLVED_VARIABLE,
// NOT_FOUND and so on).
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success outputs a result in the configured format. In text mode the
// payload's String form is printed.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Envelope{
			Status: "ok",
			Data:   data,
		})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs a rejection in the configured format.
func (f *OutputFormatter) Error(code, message string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Envelope{
			Status: "error",
			Error: &ErrorDetail{
				Code:    code,
				Message: message,
			},
		})
	}
	fmt.Fprintf(f.Writer, "error [%s]: %s\n", code, message)
	return nil
}
