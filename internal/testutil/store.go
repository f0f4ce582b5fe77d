// Package testutil provides shared helpers for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cellflow/cellflow/internal/store"
)

// OpenStore opens a fresh SQLite store in a per-test temp dir and
// closes it on test cleanup.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "cellflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// SeedCell inserts a literal cell whose value and result are the same
// text.
func SeedCell(t *testing.T, q *store.Queries, id, sheetID, cellID, result string) store.Cell {
	t.Helper()
	cell := store.Cell{ID: id, SheetID: sheetID, CellID: cellID, Value: result, Result: result}
	require.NoError(t, q.UpsertCell(context.Background(), cell))
	return cell
}
