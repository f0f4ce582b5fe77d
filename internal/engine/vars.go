package engine

import (
	"context"
	"fmt"

	"github.com/cellflow/cellflow/internal/formula"
	"github.com/cellflow/cellflow/internal/store"
	"github.com/cellflow/cellflow/internal/value"
)

// varBinding is a resolved cell value keyed by the cell's row id.
type varBinding struct {
	name string
	val  value.Value
}

// varCache resolves cell ids to values for one recalculation run.
//
// The cache is request scoped: every write or external update builds a
// fresh cache, seeds it with the freshly computed root value, and passes
// it through the stage loop so later stages see results computed by
// earlier stages instead of stale stored results.
type varCache struct {
	bindings map[string]varBinding
}

func newVarCache() *varCache {
	return &varCache{bindings: make(map[string]varBinding)}
}

// populate resolves the given cell ids to an evaluation environment
// keyed by cell name. Ids already bound in the cache keep their cached
// values; the rest are batch-loaded from storage and their stored
// results parsed. An id with no backing row means the dependency edges
// point at a cell that no longer exists.
func (c *varCache) populate(ctx context.Context, q *store.Queries, ids []string) (formula.Env, error) {
	env := make(formula.Env, len(ids))
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		b, ok := c.bindings[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		env[b.name] = b.val
	}
	if len(missing) == 0 {
		return env, nil
	}

	cells, err := q.CellsByIDs(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("load variable cells: %w", err)
	}
	loaded := make(map[string]bool, len(cells))
	for _, cell := range cells {
		v := value.Parse(cell.Result)
		if err := c.setValue(cell.ID, cell.CellID, v); err != nil {
			return nil, err
		}
		env[cell.CellID] = v
		loaded[cell.ID] = true
	}
	for _, id := range missing {
		if !loaded[id] {
			return nil, &RecalcError{
				Code:    ErrCodeUnresolvedVariable,
				Message: fmt.Sprintf("dependency cell %s does not exist", id),
				CellID:  id,
			}
		}
	}
	return env, nil
}

// setValue binds a cell id to a freshly computed value. Binding the
// same id twice within one run means the stage plan evaluated a cell
// more than once, which is a bug, so it fails hard.
func (c *varCache) setValue(id, name string, v value.Value) error {
	if _, ok := c.bindings[id]; ok {
		return &RecalcError{
			Code:    ErrCodeVariableRedefined,
			Message: fmt.Sprintf("cell %s (%s) bound twice in one recalculation", id, name),
			CellID:  name,
		}
	}
	c.bindings[id] = varBinding{name: name, val: v}
	return nil
}
