package engine

import (
	"errors"
	"fmt"
)

// RecalcError represents an error detected while writing a cell or
// recalculating its dependents.
//
// Recalculation errors include:
//   - Circular reference: The written cell is reachable from its own dependents
//   - Unresolved variable: A formula references a name with no cell in its sheet
//   - Inconsistent graph: Stored dependency edges don't form a schedulable graph
//   - Missing formula: A dependent cell has no stored formula to re-evaluate
//
// RecalcError includes structured fields for diagnostics.
type RecalcError struct {
	// Code identifies the error category.
	Code RecalcErrorCode

	// Message is a human-readable description.
	Message string

	// SheetID identifies the affected sheet.
	SheetID string

	// CellID identifies the cell being written or recalculated.
	CellID string
}

// RecalcErrorCode categorizes recalculation errors.
type RecalcErrorCode string

const (
	// ErrCodeCircularReference indicates a write would make the cell
	// depend, directly or transitively, on itself.
	ErrCodeCircularReference RecalcErrorCode = "CIRCULAR_REFERENCE"

	// ErrCodeUnresolvedVariable indicates a formula references a name
	// that no cell in the same sheet defines.
	ErrCodeUnresolvedVariable RecalcErrorCode = "UNRESOLVED_VARIABLE"

	// ErrCodeInconsistentGraph indicates the stored dependency edges
	// could not be layered into stages.
	ErrCodeInconsistentGraph RecalcErrorCode = "INCONSISTENT_GRAPH"

	// ErrCodeMissingFormula indicates a dependent cell has no stored
	// formula even though other cells link to it.
	ErrCodeMissingFormula RecalcErrorCode = "MISSING_FORMULA"

	// ErrCodeVariableRedefined indicates a recalculation tried to bind
	// the same cell twice within one run.
	ErrCodeVariableRedefined RecalcErrorCode = "VARIABLE_REDEFINED"

	// ErrCodeUnknownSubscription indicates a pushed external update
	// referenced a subscription id that was never issued.
	ErrCodeUnknownSubscription RecalcErrorCode = "UNKNOWN_SUBSCRIPTION"
)

// Error implements the error interface.
func (e *RecalcError) Error() string {
	if e.SheetID != "" && e.CellID != "" {
		return fmt.Sprintf("%s: %s (sheet=%s, cell=%s)", e.Code, e.Message, e.SheetID, e.CellID)
	}
	if e.CellID != "" {
		return fmt.Sprintf("%s: %s (cell=%s)", e.Code, e.Message, e.CellID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// RecalcCode extracts the RecalcErrorCode from err, unwrapping as needed.
// Returns "" if err is not a RecalcError.
func RecalcCode(err error) RecalcErrorCode {
	var re *RecalcError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsCircularReference returns true if the error is a circular reference
// error. Uses errors.As to handle wrapped errors.
func IsCircularReference(err error) bool {
	return RecalcCode(err) == ErrCodeCircularReference
}

// IsUnresolvedVariable returns true if the error is an unresolved
// variable error. Uses errors.As to handle wrapped errors.
func IsUnresolvedVariable(err error) bool {
	return RecalcCode(err) == ErrCodeUnresolvedVariable
}

// NewCircularReferenceError creates a RecalcError for a detected cycle.
func NewCircularReferenceError(sheetID, cellID string) *RecalcError {
	return &RecalcError{
		Code:    ErrCodeCircularReference,
		Message: "cell is reachable from its own dependents",
		SheetID: sheetID,
		CellID:  cellID,
	}
}

// NewUnresolvedVariableError creates a RecalcError for a formula
// referencing names with no backing cells.
func NewUnresolvedVariableError(sheetID string, names []string) *RecalcError {
	return &RecalcError{
		Code:    ErrCodeUnresolvedVariable,
		Message: fmt.Sprintf("undefined variables: %v", names),
		SheetID: sheetID,
	}
}
