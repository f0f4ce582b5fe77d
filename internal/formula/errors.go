package formula

import (
	"errors"
	"fmt"
)

// EvalErrorCode categorizes formula evaluation failures. These are input
// errors: they abort the enclosing write without mutating anything.
type EvalErrorCode string

const (
	// ErrCodeUnknownVariable indicates a variable reference with no binding
	// in the evaluation environment.
	ErrCodeUnknownVariable EvalErrorCode = "UNKNOWN_VARIABLE"

	// ErrCodeUnknownFunction indicates a call to a function that is not in
	// the builtin table.
	ErrCodeUnknownFunction EvalErrorCode = "UNKNOWN_FUNCTION"

	// ErrCodeTypeMismatch indicates a numeric operator or function applied
	// to a non-numeric operand.
	ErrCodeTypeMismatch EvalErrorCode = "TYPE_MISMATCH"

	// ErrCodeDivideByZero indicates division with a zero divisor.
	ErrCodeDivideByZero EvalErrorCode = "DIVIDE_BY_ZERO"

	// ErrCodeInvalidArgument indicates a malformed external_ref argument.
	ErrCodeInvalidArgument EvalErrorCode = "INVALID_ARGUMENT"

	// ErrCodeUnsupportedNode indicates a syntax tree node the evaluator
	// does not recognize (corrupt or future-version persisted formula).
	ErrCodeUnsupportedNode EvalErrorCode = "UNSUPPORTED_NODE"
)

// EvalError is a domain failure produced while evaluating a formula.
type EvalError struct {
	Code    EvalErrorCode
	Message string
	Err     error // underlying cause (optional)
}

func (e *EvalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// EvalCode extracts the EvalErrorCode from an error chain.
// Returns "" if the error is not an EvalError.
func EvalCode(err error) EvalErrorCode {
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

func newEvalError(code EvalErrorCode, format string, args ...any) *EvalError {
	return &EvalError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ParseError reports a formula that could not be parsed. Pos is the index
// of the offending token in the tokenized formula.
type ParseError struct {
	Pos     int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at token %d: %s", e.Pos, e.Message)
}

// IsParseError reports whether err is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
