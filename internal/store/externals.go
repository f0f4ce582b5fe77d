package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ExternalValue is a cached result fetched from an outside HTTP resource,
// shared by every cell referencing the same URL.
type ExternalValue struct {
	ID     int64
	URL    string
	Result string
}

// ExternalByURL returns the cached external value for a URL.
// Returns ErrNotFound if the URL has never been fetched.
func (q *Queries) ExternalByURL(ctx context.Context, url string) (*ExternalValue, error) {
	return q.externalBy(ctx, `SELECT id, url, result FROM external_values WHERE url = ?`, url)
}

// ExternalByID returns a cached external value by row id.
// Returns ErrNotFound if no such row exists.
func (q *Queries) ExternalByID(ctx context.Context, id int64) (*ExternalValue, error) {
	return q.externalBy(ctx, `SELECT id, url, result FROM external_values WHERE id = ?`, id)
}

func (q *Queries) externalBy(ctx context.Context, query string, arg any) (*ExternalValue, error) {
	var ev ExternalValue
	err := q.db.QueryRowContext(ctx, query, arg).Scan(&ev.ID, &ev.URL, &ev.Result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("external value: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get external value: %w", err)
	}
	return &ev, nil
}

// InsertExternal stores a freshly fetched external value and returns its
// row id. The URL is unique system-wide; a conflicting insert fails.
func (q *Queries) InsertExternal(ctx context.Context, url, result string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO external_values (url, result) VALUES (?, ?)`, url, result)
	if err != nil {
		return 0, fmt.Errorf("insert external value: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert external value: %w", err)
	}
	return id, nil
}

// UpdateExternalResult updates the cached result in place. Rows are never
// duplicated; push notifications only ever rewrite this column.
func (q *Queries) UpdateExternalResult(ctx context.Context, id int64, result string) error {
	if _, err := q.db.ExecContext(ctx,
		`UPDATE external_values SET result = ? WHERE id = ?`, result, id); err != nil {
		return fmt.Errorf("update external value: %w", err)
	}
	return nil
}

// ReplaceCellExternals makes the set of external values referenced by a
// cell exactly externalIDs, mirroring ReplaceLinks for the cell↔external
// relationship.
func (q *Queries) ReplaceCellExternals(ctx context.Context, cellID string, externalIDs []int64) error {
	if len(externalIDs) == 0 {
		if _, err := q.db.ExecContext(ctx,
			`DELETE FROM cell_externals WHERE cell_id = ?`, cellID); err != nil {
			return fmt.Errorf("clear cell externals: %w", err)
		}
		return nil
	}

	args := make([]any, 0, len(externalIDs)+1)
	args = append(args, cellID)
	for _, id := range externalIDs {
		args = append(args, id)
	}
	if _, err := q.db.ExecContext(ctx, `
		DELETE FROM cell_externals
		WHERE cell_id = ?
		  AND external_id NOT IN (`+placeholders(len(externalIDs))+`)
	`, args...); err != nil {
		return fmt.Errorf("delete stale cell externals: %w", err)
	}

	for _, id := range externalIDs {
		if _, err := q.db.ExecContext(ctx, `
			INSERT INTO cell_externals (cell_id, external_id)
			VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, cellID, id); err != nil {
			return fmt.Errorf("insert cell external: %w", err)
		}
	}
	return nil
}

// CellsUsingExternal returns every cell whose formula reads the given
// external value, ordered deterministically by storage id.
func (q *Queries) CellsUsingExternal(ctx context.Context, externalID int64) ([]Cell, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT c.id, c.sheet_id, c.cell_id, c.value, c.result, c.formula, c.default_vars
		FROM cells c
		JOIN cell_externals ce ON ce.cell_id = c.id
		WHERE ce.external_id = ?
		ORDER BY c.id ASC
	`, externalID)
	if err != nil {
		return nil, fmt.Errorf("query cells using external: %w", err)
	}
	defer rows.Close()

	return collectCells(rows)
}
