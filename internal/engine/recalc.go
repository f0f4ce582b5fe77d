package engine

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc"

	"github.com/cellflow/cellflow/internal/formula"
	"github.com/cellflow/cellflow/internal/store"
	"github.com/cellflow/cellflow/internal/value"
)

// recalculate re-evaluates every transitive dependent of root in
// staged order. The root's fresh value must already be bound in the
// cache; the root stage itself is skipped. Changed results are
// persisted in one batch after all stages evaluate, and the changed
// cells are returned with their new results.
func (e *Engine) recalculate(ctx context.Context, q *store.Queries, rootID string, cache *varCache, resolver formula.ExternalResolver) ([]store.Cell, error) {
	stages, err := planStages(ctx, q, rootID)
	if err != nil {
		return nil, err
	}

	var changed []store.Cell
	for _, stage := range stages[1:] {
		depIDs, err := q.Dependencies(ctx, stage)
		if err != nil {
			return nil, fmt.Errorf("load stage dependencies: %w", err)
		}
		env, err := cache.populate(ctx, q, depIDs)
		if err != nil {
			return nil, err
		}
		cells, err := q.CellsByIDs(ctx, stage)
		if err != nil {
			return nil, err
		}
		if len(cells) != len(stage) {
			return nil, &RecalcError{
				Code:    ErrCodeInconsistentGraph,
				Message: fmt.Sprintf("stage references %d cells but %d exist", len(stage), len(cells)),
				CellID:  rootID,
			}
		}

		// Cells within a stage never depend on each other.
		results := make([]value.Value, len(cells))
		errs := make([]error, len(cells))
		var wg conc.WaitGroup
		for i, cell := range cells {
			wg.Go(func() {
				results[i], errs[i] = evalCell(ctx, cell, env, resolver)
			})
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}

		for i, cell := range cells {
			if err := cache.setValue(cell.ID, cell.CellID, results[i]); err != nil {
				return nil, err
			}
			if value.Equal(results[i], value.Parse(cell.Result)) {
				continue
			}
			cell.Result = value.Text(results[i])
			changed = append(changed, cell)
		}
	}

	for _, cell := range changed {
		if err := q.UpdateCellResult(ctx, cell.ID, cell.Result); err != nil {
			return nil, err
		}
	}
	return changed, nil
}

// evalCell re-evaluates one dependent cell against the shared stage
// environment, overlaying the cell's own preprocessor bindings.
func evalCell(ctx context.Context, cell store.Cell, env formula.Env, resolver formula.ExternalResolver) (value.Value, error) {
	if len(cell.Formula) == 0 {
		return nil, &RecalcError{
			Code:    ErrCodeMissingFormula,
			Message: "dependent cell has no stored formula",
			SheetID: cell.SheetID,
			CellID:  cell.CellID,
		}
	}
	node, err := formula.UnmarshalNode(cell.Formula)
	if err != nil {
		return nil, fmt.Errorf("decode formula for cell %s: %w", cell.CellID, err)
	}
	defaults, err := unmarshalDefaultVars(cell.DefaultVars)
	if err != nil {
		return nil, err
	}
	merged := make(formula.Env, len(env)+len(defaults))
	for name, v := range env {
		merged[name] = v
	}
	for name, v := range defaults {
		merged[name] = v
	}
	return formula.Evaluate(ctx, node, merged, resolver)
}

// evalStored re-evaluates a cell from its stored formula, resolving
// its dependencies fresh through the given cache. Used when an
// external value push invalidates a cell's own result.
func (e *Engine) evalStored(ctx context.Context, q *store.Queries, cache *varCache, cell store.Cell, resolver formula.ExternalResolver) (value.Value, error) {
	if len(cell.Formula) == 0 {
		return nil, &RecalcError{
			Code:    ErrCodeMissingFormula,
			Message: "cell linked to an external value has no stored formula",
			SheetID: cell.SheetID,
			CellID:  cell.CellID,
		}
	}
	node, err := formula.UnmarshalNode(cell.Formula)
	if err != nil {
		return nil, fmt.Errorf("decode formula for cell %s: %w", cell.CellID, err)
	}
	defaults, err := unmarshalDefaultVars(cell.DefaultVars)
	if err != nil {
		return nil, err
	}
	depIDs, err := resolveNames(ctx, q, cell.SheetID, cellVariables(node, defaults))
	if err != nil {
		return nil, err
	}
	env, err := cache.populate(ctx, q, depIDs)
	if err != nil {
		return nil, err
	}
	for name, v := range defaults {
		env[name] = v
	}
	return formula.Evaluate(ctx, node, env, resolver)
}
