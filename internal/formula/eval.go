package formula

import (
	"context"
	"fmt"
	"math"
	"net/url"

	"github.com/sourcegraph/conc"

	"github.com/cellflow/cellflow/internal/value"
)

// ExternalResolver resolves an external_ref URL to its current value.
// Implementations may block on network I/O; they must be safe for
// concurrent use because sibling subtrees evaluate in parallel.
type ExternalResolver interface {
	Resolve(ctx context.Context, rawURL string) (value.Value, error)
}

// Env binds lower-cased variable names to their current values for one
// evaluation.
type Env map[string]value.Value

// Evaluate computes the value of a formula syntax tree.
//
// Operands of an operator and arguments of a call are independent subtrees,
// so they are evaluated concurrently and joined before the parent applies.
// The result is deterministic: child results are consumed in argument order
// and the first error (in argument order) wins.
func Evaluate(ctx context.Context, node *Node, env Env, externals ExternalResolver) (value.Value, error) {
	ev := &evaluator{env: env, externals: externals}
	return ev.eval(ctx, node)
}

type evaluator struct {
	env       Env
	externals ExternalResolver
}

func (ev *evaluator) eval(ctx context.Context, node *Node) (value.Value, error) {
	switch node.Kind {
	case KindNumber:
		return value.Number(node.Number), nil

	case KindString:
		return value.String(node.Text), nil

	case KindVariable:
		v, ok := ev.env[node.Name]
		if !ok {
			return nil, newEvalError(ErrCodeUnknownVariable, "unknown variable %q", node.Name)
		}
		return v, nil

	case KindGroup:
		if len(node.Args) != 1 {
			return nil, newEvalError(ErrCodeUnsupportedNode, "malformed group node")
		}
		return ev.eval(ctx, node.Args[0])

	case KindOperator:
		if len(node.Args) != 2 {
			return nil, newEvalError(ErrCodeUnsupportedNode, "malformed operator node %q", node.Name)
		}
		operands, err := ev.evalAll(ctx, node.Args)
		if err != nil {
			return nil, err
		}
		return applyOperator(node.Name, operands[0], operands[1])

	case KindCall:
		if node.Name == ExternalRefFunc {
			return ev.evalExternalRef(ctx, node)
		}
		fn, ok := builtins[node.Name]
		if !ok {
			return nil, newEvalError(ErrCodeUnknownFunction, "unknown function %q", node.Name)
		}
		args, err := ev.evalAll(ctx, node.Args)
		if err != nil {
			return nil, err
		}
		return fn(args)

	default:
		return nil, newEvalError(ErrCodeUnsupportedNode, "unsupported node kind %q", node.Kind)
	}
}

// evalAll evaluates sibling subtrees concurrently and joins the results in
// argument order.
func (ev *evaluator) evalAll(ctx context.Context, nodes []*Node) ([]value.Value, error) {
	results := make([]value.Value, len(nodes))
	errs := make([]error, len(nodes))

	var wg conc.WaitGroup
	for i, n := range nodes {
		wg.Go(func() {
			results[i], errs[i] = ev.eval(ctx, n)
		})
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// applyOperator implements the binary operator semantics. "+" is the only
// operator with string behavior: if either operand is a String, both are
// rendered as text and concatenated.
func applyOperator(op string, a, b value.Value) (value.Value, error) {
	if op == "+" {
		an, aok := a.(value.Number)
		bn, bok := b.(value.Number)
		if aok && bok {
			return an + bn, nil
		}
		return value.String(value.Text(a) + value.Text(b)), nil
	}

	nums, err := value.Numbers([]value.Value{a, b})
	if err != nil {
		return nil, newEvalError(ErrCodeTypeMismatch, "operator %q expects numeric operands", op)
	}

	switch op {
	case "-":
		return value.Number(nums[0] - nums[1]), nil
	case "*":
		return value.Number(nums[0] * nums[1]), nil
	case "/":
		if nums[1] == 0 {
			return nil, newEvalError(ErrCodeDivideByZero, "division by zero")
		}
		return value.Number(nums[0] / nums[1]), nil
	case "^":
		return value.Number(math.Pow(nums[0], nums[1])), nil
	default:
		return nil, newEvalError(ErrCodeUnsupportedNode, "unsupported operator %q", op)
	}
}

// evalExternalRef validates the single https URL argument and resolves it
// through the external value cache.
func (ev *evaluator) evalExternalRef(ctx context.Context, node *Node) (value.Value, error) {
	if len(node.Args) != 1 {
		return nil, newEvalError(ErrCodeInvalidArgument, "%s requires exactly one argument", ExternalRefFunc)
	}
	arg, err := ev.eval(ctx, node.Args[0])
	if err != nil {
		return nil, err
	}
	s, ok := arg.(value.String)
	if !ok {
		return nil, newEvalError(ErrCodeInvalidArgument, "%s argument must be a URL string", ExternalRefFunc)
	}
	u, err := url.Parse(string(s))
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return nil, newEvalError(ErrCodeInvalidArgument, "%s argument must be a well-formed https URL", ExternalRefFunc)
	}
	if ev.externals == nil {
		return nil, fmt.Errorf("external resolver not configured")
	}
	return ev.externals.Resolve(ctx, string(s))
}
