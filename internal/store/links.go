package store

import (
	"context"
	"fmt"
)

// ReplaceLinks makes the stored edge set into dependentID exactly
// dependencyIDs: stale edges are deleted, new ones inserted, existing
// correct ones left alone. Called on every write that changes a formula so
// the edge set always mirrors the current variable references.
func (q *Queries) ReplaceLinks(ctx context.Context, dependentID string, dependencyIDs []string) error {
	if len(dependencyIDs) == 0 {
		if _, err := q.db.ExecContext(ctx,
			`DELETE FROM cell_links WHERE dependent_cell_id = ?`, dependentID); err != nil {
			return fmt.Errorf("clear links: %w", err)
		}
		return nil
	}

	args := append([]any{dependentID}, stringArgs(dependencyIDs)...)
	if _, err := q.db.ExecContext(ctx, `
		DELETE FROM cell_links
		WHERE dependent_cell_id = ?
		  AND dependency_cell_id NOT IN (`+placeholders(len(dependencyIDs))+`)
	`, args...); err != nil {
		return fmt.Errorf("delete stale links: %w", err)
	}

	for _, depID := range dependencyIDs {
		if _, err := q.db.ExecContext(ctx, `
			INSERT INTO cell_links (dependency_cell_id, dependent_cell_id)
			VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, depID, dependentID); err != nil {
			return fmt.Errorf("insert link: %w", err)
		}
	}
	return nil
}

// Dependents returns, for each given id, the ids of cells whose formula
// directly reads it. Ids with no dependents are absent from the map.
func (q *Queries) Dependents(ctx context.Context, ids []string) (map[string][]string, error) {
	if len(ids) == 0 {
		return map[string][]string{}, nil
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT dependency_cell_id, dependent_cell_id
		FROM cell_links
		WHERE dependency_cell_id IN (`+placeholders(len(ids))+`)
		ORDER BY dependency_cell_id ASC, dependent_cell_id ASC
	`, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query dependents: %w", err)
	}
	defer rows.Close()

	result := map[string][]string{}
	for rows.Next() {
		var dependency, dependent string
		if err := rows.Scan(&dependency, &dependent); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		result[dependency] = append(result[dependency], dependent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return result, nil
}

// Dependencies returns the deduplicated ids of cells directly read by the
// formulas of the given cells.
func (q *Queries) Dependencies(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT DISTINCT dependency_cell_id
		FROM cell_links
		WHERE dependent_cell_id IN (`+placeholders(len(ids))+`)
		ORDER BY dependency_cell_id ASC
	`, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query dependencies: %w", err)
	}
	defer rows.Close()

	deps := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dependencies: %w", err)
	}
	return deps, nil
}
