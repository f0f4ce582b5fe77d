package external

import (
	"errors"
	"fmt"
)

// FetchError represents a failure to obtain a value from an external
// service.
type FetchError struct {
	// Code identifies the error category.
	Code FetchErrorCode

	// URL is the external value URL that failed.
	URL string

	// Message is a human-readable description.
	Message string
}

// FetchErrorCode categorizes external fetch errors.
type FetchErrorCode string

const (
	// ErrCodeFetchFailed indicates the request could not be made or
	// returned a non-2xx status.
	ErrCodeFetchFailed FetchErrorCode = "FETCH_FAILED"

	// ErrCodeResponseTooLarge indicates the response body exceeded the
	// size limit.
	ErrCodeResponseTooLarge FetchErrorCode = "RESPONSE_TOO_LARGE"

	// ErrCodeInvalidResponse indicates the body was not a JSON object
	// with a string result field.
	ErrCodeInvalidResponse FetchErrorCode = "INVALID_RESPONSE"
)

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s (url=%s)", e.Code, e.Message, e.URL)
}

// FetchCode extracts the FetchErrorCode from err, unwrapping as
// needed. Returns "" if err is not a FetchError.
func FetchCode(err error) FetchErrorCode {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}
