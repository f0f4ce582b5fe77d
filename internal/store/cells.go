package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Cell is a stored sheet cell. Formula holds the serialized syntax tree
// (nil for plain literals); DefaultVars holds the serialized synthetic
// variable bindings produced by the formula pre-processor (nil if none).
// Result is always the last successful evaluation under the current
// dependency edges.
type Cell struct {
	ID          string
	SheetID     string
	CellID      string
	Value       string
	Result      string
	Formula     []byte
	DefaultVars []byte
}

const cellColumns = "id, sheet_id, cell_id, value, result, formula, default_vars"

// UpsertCell inserts a cell row or updates all mutable fields in place if
// the (sheet_id, cell_id) pair already exists. The storage id of an
// existing row never changes, so dependency edges stay valid across
// rewrites.
func (q *Queries) UpsertCell(ctx context.Context, cell Cell) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO cells (id, sheet_id, cell_id, value, result, formula, default_vars)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sheet_id, cell_id) DO UPDATE SET
			value = excluded.value,
			result = excluded.result,
			formula = excluded.formula,
			default_vars = excluded.default_vars
	`,
		cell.ID,
		cell.SheetID,
		cell.CellID,
		cell.Value,
		cell.Result,
		nullableBytes(cell.Formula),
		nullableBytes(cell.DefaultVars),
	)
	if err != nil {
		return fmt.Errorf("upsert cell: %w", err)
	}
	return nil
}

// UpdateCellResult persists a recalculated result for one cell.
func (q *Queries) UpdateCellResult(ctx context.Context, id, result string) error {
	if _, err := q.db.ExecContext(ctx, `UPDATE cells SET result = ? WHERE id = ?`, result, id); err != nil {
		return fmt.Errorf("update cell result: %w", err)
	}
	return nil
}

// GetCell returns the cell at (sheetID, cellID).
// Returns ErrNotFound if no such cell exists.
func (q *Queries) GetCell(ctx context.Context, sheetID, cellID string) (*Cell, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+cellColumns+`
		FROM cells
		WHERE sheet_id = ? AND cell_id = ?
	`, sheetID, cellID)

	cell, err := scanCell(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("cell %s/%s: %w", sheetID, cellID, ErrNotFound)
		}
		return nil, fmt.Errorf("get cell: %w", err)
	}
	return cell, nil
}

// SheetCells returns every cell of a sheet ordered by cell id.
// Returns an empty slice (not nil) for an unknown sheet.
func (q *Queries) SheetCells(ctx context.Context, sheetID string) ([]Cell, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+cellColumns+`
		FROM cells
		WHERE sheet_id = ?
		ORDER BY cell_id ASC
	`, sheetID)
	if err != nil {
		return nil, fmt.Errorf("query sheet cells: %w", err)
	}
	defer rows.Close()

	return collectCells(rows)
}

// CellsByIDs batch-loads cells by storage id. Missing ids are simply
// absent from the result; the caller decides whether that is an error.
func (q *Queries) CellsByIDs(ctx context.Context, ids []string) ([]Cell, error) {
	if len(ids) == 0 {
		return []Cell{}, nil
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT `+cellColumns+`
		FROM cells
		WHERE id IN (`+placeholders(len(ids))+`)
	`, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query cells by id: %w", err)
	}
	defer rows.Close()

	return collectCells(rows)
}

// CellsByName batch-loads cells of one sheet by cell id. Missing names are
// simply absent from the result.
func (q *Queries) CellsByName(ctx context.Context, sheetID string, names []string) ([]Cell, error) {
	if len(names) == 0 {
		return []Cell{}, nil
	}

	args := append([]any{sheetID}, stringArgs(names)...)
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+cellColumns+`
		FROM cells
		WHERE sheet_id = ? AND cell_id IN (`+placeholders(len(names))+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query cells by name: %w", err)
	}
	defer rows.Close()

	return collectCells(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCell(row rowScanner) (*Cell, error) {
	var cell Cell
	var formula, defaultVars sql.NullString
	if err := row.Scan(
		&cell.ID,
		&cell.SheetID,
		&cell.CellID,
		&cell.Value,
		&cell.Result,
		&formula,
		&defaultVars,
	); err != nil {
		return nil, err
	}
	if formula.Valid {
		cell.Formula = []byte(formula.String)
	}
	if defaultVars.Valid {
		cell.DefaultVars = []byte(defaultVars.String)
	}
	return &cell, nil
}

func collectCells(rows *sql.Rows) ([]Cell, error) {
	cells := []Cell{}
	for rows.Next() {
		cell, err := scanCell(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		cells = append(cells, *cell)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cells: %w", err)
	}
	return cells, nil
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
