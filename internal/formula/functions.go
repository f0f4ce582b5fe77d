package formula

import (
	"github.com/cellflow/cellflow/internal/value"
)

// ExternalRefFunc is the builtin that resolves a URL through the external
// value cache. It is dispatched separately from the pure builtins because
// it needs the evaluation context.
const ExternalRefFunc = "external_ref"

// builtinFunc is a pure aggregate over already-evaluated arguments.
type builtinFunc func(args []value.Value) (value.Value, error)

// builtins maps lower-cased function names to implementations. The parser
// checks names against this table, so evaluation of a freshly parsed
// formula cannot hit an unknown function.
var builtins = map[string]builtinFunc{
	"min": numericFunc("min", func(nums []float64) float64 {
		m := nums[0]
		for _, n := range nums[1:] {
			if n < m {
				m = n
			}
		}
		return m
	}),
	"max": numericFunc("max", func(nums []float64) float64 {
		m := nums[0]
		for _, n := range nums[1:] {
			if n > m {
				m = n
			}
		}
		return m
	}),
	"sum": numericFunc("sum", func(nums []float64) float64 {
		var total float64
		for _, n := range nums {
			total += n
		}
		return total
	}),
	"avg": numericFunc("avg", func(nums []float64) float64 {
		var total float64
		for _, n := range nums {
			total += n
		}
		return total / float64(len(nums))
	}),
}

// numericFunc adapts an aggregate over float64s into a builtinFunc that
// enforces all-numeric arguments and at least one argument.
func numericFunc(name string, fn func(nums []float64) float64) builtinFunc {
	return func(args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return nil, newEvalError(ErrCodeInvalidArgument, "%s requires at least one argument", name)
		}
		nums, err := value.Numbers(args)
		if err != nil {
			return nil, newEvalError(ErrCodeTypeMismatch, "%s expects numeric arguments", name)
		}
		return value.Number(fn(nums)), nil
	}
}

// knownFunction reports whether name is callable in a formula.
func knownFunction(name string) bool {
	if name == ExternalRefFunc {
		return true
	}
	_, ok := builtins[name]
	return ok
}
