// Package value defines the typed result model for cell computation.
//
// A cell's computed result is either a Number or a String. Results are
// persisted as text and re-parsed on load, so Parse and Text must round-trip
// every value the engine can produce.
package value

import (
	"errors"
	"math"
	"strconv"
)

// Value is a sealed interface representing a computed cell value.
// Only Number and String implement it.
type Value interface {
	cellValue() // Sealed - only these types implement it
}

// Number represents a numeric cell value.
type Number float64

func (Number) cellValue() {}

// String represents a textual cell value.
type String string

func (String) cellValue() {}

// ErrNotANumber is returned by Numbers when an element is not a Number.
// Callers map it to their own type-mismatch error kind.
var ErrNotANumber = errors.New("expected numeric value")

// Parse interprets raw text as a Value. Text that parses as a finite
// float becomes a Number; everything else is a String.
func Parse(text string) Value {
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return String(text)
	}
	return Number(f)
}

// Text renders a Value in its natural string form. Numbers use the
// shortest decimal representation, so Parse(Text(v)) == v.
func Text(v Value) string {
	switch val := v.(type) {
	case Number:
		return strconv.FormatFloat(float64(val), 'f', -1, 64)
	case String:
		return string(val)
	default:
		return ""
	}
}

// Equal compares two Values structurally: same variant and same payload.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	default:
		return false
	}
}

// Numbers converts a list of Values to float64s. Fails with ErrNotANumber
// on the first non-numeric element.
func Numbers(vals []Value) ([]float64, error) {
	out := make([]float64, len(vals))
	for i, v := range vals {
		n, ok := v.(Number)
		if !ok {
			return nil, ErrNotANumber
		}
		out[i] = float64(n)
	}
	return out, nil
}
