package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertCell(t *testing.T, q *Queries, sheetID, cellID, val, result string) Cell {
	t.Helper()
	cell := Cell{
		ID:      uuid.NewString(),
		SheetID: sheetID,
		CellID:  cellID,
		Value:   val,
		Result:  result,
	}
	require.NoError(t, q.UpsertCell(context.Background(), cell))
	return cell
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := openTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
}

func TestOpen_Idempotent(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir + "/test.db")
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(dir + "/test.db")
	require.NoError(t, err)
	assert.NoError(t, s2.Close())
}

func TestUpsertCell_UpdatesInPlace(t *testing.T) {
	s := openTestStore(t)
	q := s.Queries()
	ctx := context.Background()

	cell := insertCell(t, q, "s1", "a", "2", "2")

	// Same (sheet, cell) key with a new id: fields update, id is kept.
	updated := cell
	updated.ID = uuid.NewString()
	updated.Value = "=b+1"
	updated.Result = "4"
	updated.Formula = []byte(`{"kind":"variable","name":"b"}`)
	require.NoError(t, q.UpsertCell(ctx, updated))

	got, err := q.GetCell(ctx, "s1", "a")
	require.NoError(t, err)
	assert.Equal(t, cell.ID, got.ID)
	assert.Equal(t, "=b+1", got.Value)
	assert.Equal(t, "4", got.Result)
	assert.Equal(t, updated.Formula, got.Formula)
	assert.Nil(t, got.DefaultVars)
}

func TestGetCell_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Queries().GetCell(context.Background(), "s1", "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSheetCells_OrderedAndEmpty(t *testing.T) {
	s := openTestStore(t)
	q := s.Queries()
	ctx := context.Background()

	insertCell(t, q, "s1", "b", "2", "2")
	insertCell(t, q, "s1", "a", "1", "1")
	insertCell(t, q, "other", "z", "9", "9")

	cells, err := q.SheetCells(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, cells, 2)
	assert.Equal(t, "a", cells[0].CellID)
	assert.Equal(t, "b", cells[1].CellID)

	empty, err := q.SheetCells(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReplaceLinks(t *testing.T) {
	s := openTestStore(t)
	q := s.Queries()
	ctx := context.Background()

	a := insertCell(t, q, "s1", "a", "1", "1")
	b := insertCell(t, q, "s1", "b", "2", "2")
	c := insertCell(t, q, "s1", "c", "=a+b", "3")

	require.NoError(t, q.ReplaceLinks(ctx, c.ID, []string{a.ID, b.ID}))

	deps, err := q.Dependents(ctx, []string{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, deps[a.ID])
	assert.Equal(t, []string{c.ID}, deps[b.ID])

	// Rewriting c's formula to reference only b drops the a edge.
	require.NoError(t, q.ReplaceLinks(ctx, c.ID, []string{b.ID}))

	deps, err = q.Dependents(ctx, []string{a.ID, b.ID})
	require.NoError(t, err)
	assert.NotContains(t, deps, a.ID)
	assert.Equal(t, []string{c.ID}, deps[b.ID])

	// Replacement is idempotent.
	require.NoError(t, q.ReplaceLinks(ctx, c.ID, []string{b.ID}))

	ids, err := q.Dependencies(ctx, []string{c.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids)

	// Clearing edges removes everything for the dependent.
	require.NoError(t, q.ReplaceLinks(ctx, c.ID, nil))
	ids, err = q.Dependencies(ctx, []string{c.ID})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestExternalValues(t *testing.T) {
	s := openTestStore(t)
	q := s.Queries()
	ctx := context.Background()

	_, err := q.ExternalByURL(ctx, "https://example.com/x")
	assert.True(t, errors.Is(err, ErrNotFound))

	id, err := q.InsertExternal(ctx, "https://example.com/x", "7")
	require.NoError(t, err)

	ev, err := q.ExternalByURL(ctx, "https://example.com/x")
	require.NoError(t, err)
	assert.Equal(t, id, ev.ID)
	assert.Equal(t, "7", ev.Result)

	require.NoError(t, q.UpdateExternalResult(ctx, id, "8"))
	ev, err = q.ExternalByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "8", ev.Result)

	// URL uniqueness is enforced by the schema.
	_, err = q.InsertExternal(ctx, "https://example.com/x", "9")
	assert.Error(t, err)
}

func TestCellExternals(t *testing.T) {
	s := openTestStore(t)
	q := s.Queries()
	ctx := context.Background()

	a := insertCell(t, q, "s1", "a", "=external_ref(url_var_0)", "7")
	b := insertCell(t, q, "s2", "b", "=external_ref(url_var_0)", "7")
	id, err := q.InsertExternal(ctx, "https://example.com/x", "7")
	require.NoError(t, err)

	require.NoError(t, q.ReplaceCellExternals(ctx, a.ID, []int64{id}))
	require.NoError(t, q.ReplaceCellExternals(ctx, b.ID, []int64{id}))
	// Idempotent relink.
	require.NoError(t, q.ReplaceCellExternals(ctx, a.ID, []int64{id}))

	cells, err := q.CellsUsingExternal(ctx, id)
	require.NoError(t, err)
	assert.Len(t, cells, 2)

	require.NoError(t, q.ReplaceCellExternals(ctx, b.ID, nil))
	cells, err = q.CellsUsingExternal(ctx, id)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, a.ID, cells[0].ID)
}

func TestSubscriptions(t *testing.T) {
	s := openTestStore(t)
	q := s.Queries()
	ctx := context.Background()

	cell := insertCell(t, q, "s1", "a", "1", "1")

	require.NoError(t, q.InsertSubscription(ctx, WebhookSubscription{
		ID: uuid.NewString(), CellID: cell.ID, URL: "https://hooks.example/1",
	}))
	require.NoError(t, q.InsertSubscription(ctx, WebhookSubscription{
		ID: uuid.NewString(), CellID: cell.ID, URL: "https://hooks.example/2",
	}))

	subs, err := q.SubscriptionsForCells(ctx, []string{cell.ID})
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	subs, err = q.SubscriptionsForCells(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := s.WithTx(ctx, func(q *Queries) error {
		insertCell(t, q, "s1", "a", "1", "1")
		return sentinel
	})
	assert.True(t, errors.Is(err, sentinel))

	_, err = s.Queries().GetCell(ctx, "s1", "a")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestWithTx_Commits(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(q *Queries) error {
		insertCell(t, q, "s1", "a", "1", "1")
		return nil
	})
	require.NoError(t, err)

	got, err := s.Queries().GetCell(ctx, "s1", "a")
	require.NoError(t, err)
	assert.Equal(t, "1", got.Result)
}
