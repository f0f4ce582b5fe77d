package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/cellflow/cellflow/internal/formula"
	"github.com/cellflow/cellflow/internal/store"
	"github.com/cellflow/cellflow/internal/value"
)

// ExternalSource hands out per-transaction resolvers for external_ref
// lookups. Implemented by external.Fetcher (production) and test stubs.
//
// The resolver is bound to the write's query handle so cache reads and
// inserts share the write transaction.
type ExternalSource interface {
	Resolver(q *store.Queries) formula.ExternalResolver
}

// Notifier delivers change notifications to subscribed webhooks.
// Implemented by webhook.Notifier (production) and test stubs.
type Notifier interface {
	Notify(ctx context.Context, cells []store.Cell)
}

// Engine owns the cell write path: preprocessing, evaluation, edge
// maintenance, staged recalculation of dependents, and change
// notification.
//
// Thread-safety model:
//   - All methods are safe from any goroutine
//   - Writes serialize on the store's single SQLite connection
//   - Each write runs in one transaction; rollback leaves prior
//     values and edges untouched
type Engine struct {
	store     *store.Store
	externals ExternalSource
	notifier  Notifier
	logger    *slog.Logger
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithLogger sets the logger used for write and notification diagnostics.
//
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine over a store, an external value source, and a
// webhook notifier.
func New(s *store.Store, externals ExternalSource, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		externals: externals,
		notifier:  notifier,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetCell returns one cell by sheet and cell name. Names are matched
// case-insensitively. Returns store.ErrNotFound if absent.
func (e *Engine) GetCell(ctx context.Context, sheetID, cellID string) (store.Cell, error) {
	sheetID = formula.NormalizeName(sheetID)
	cellID = formula.NormalizeName(cellID)
	cell, err := e.store.Queries().GetCell(ctx, sheetID, cellID)
	if err != nil {
		return store.Cell{}, err
	}
	return *cell, nil
}

// GetSheet returns every cell of a sheet ordered by cell name.
// Returns store.ErrNotFound if the sheet has no cells.
func (e *Engine) GetSheet(ctx context.Context, sheetID string) ([]store.Cell, error) {
	sheetID = formula.NormalizeName(sheetID)
	cells, err := e.store.Queries().SheetCells(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("sheet %s: %w", sheetID, store.ErrNotFound)
	}
	return cells, nil
}

// SetCell writes a literal or formula to a cell, re-evaluates it,
// rewrites its dependency edges, and recalculates every transitive
// dependent. The whole write is one transaction; a cycle or evaluation
// failure rolls everything back. Subscribed webhooks are notified
// after commit for the written cell and every dependent whose result
// changed.
func (e *Engine) SetCell(ctx context.Context, sheetID, cellID, raw string) (store.Cell, error) {
	sheetID = formula.NormalizeName(sheetID)
	cellID = formula.NormalizeName(cellID)

	pre := formula.Preprocess(raw)
	var node *formula.Node
	if pre.IsFormula {
		var err error
		node, err = formula.Parse(strings.TrimPrefix(pre.Text, "="))
		if err != nil {
			return store.Cell{}, err
		}
	}

	var written store.Cell
	var changed []store.Cell
	err := e.store.WithTx(ctx, func(q *store.Queries) error {
		existing, err := q.GetCell(ctx, sheetID, cellID)
		switch {
		case err == nil:
			written.ID = existing.ID
		case errors.Is(err, store.ErrNotFound):
			written.ID = uuid.NewString()
		default:
			return err
		}
		written.SheetID = sheetID
		written.CellID = cellID
		written.Value = pre.Text

		cache := newVarCache()
		resolver := e.externals.Resolver(q)
		var depIDs []string
		var env formula.Env

		if node == nil {
			written.Result = pre.Text
			if err := cache.setValue(written.ID, cellID, value.Parse(pre.Text)); err != nil {
				return err
			}
		} else {
			refNames := cellVariables(node, pre.Vars)
			depIDs, err = resolveNames(ctx, q, sheetID, refNames)
			if err != nil {
				return err
			}
			for _, depID := range depIDs {
				if depID == written.ID {
					return NewCircularReferenceError(sheetID, cellID)
				}
			}
			env, err = cache.populate(ctx, q, depIDs)
			if err != nil {
				return err
			}
			for name, v := range pre.Vars {
				env[name] = v
			}
			result, err := formula.Evaluate(ctx, node, env, resolver)
			if err != nil {
				return err
			}
			written.Result = value.Text(result)
			if written.Formula, err = formula.MarshalNode(node); err != nil {
				return fmt.Errorf("encode formula: %w", err)
			}
			if len(pre.Vars) > 0 {
				if written.DefaultVars, err = marshalDefaultVars(pre.Vars); err != nil {
					return fmt.Errorf("encode default vars: %w", err)
				}
			}
			if err := cache.setValue(written.ID, cellID, result); err != nil {
				return err
			}
		}

		if err := q.UpsertCell(ctx, written); err != nil {
			return err
		}
		if err := q.ReplaceLinks(ctx, written.ID, depIDs); err != nil {
			return err
		}
		extIDs, err := e.linkedExternalIDs(ctx, q, node, env)
		if err != nil {
			return err
		}
		if err := q.ReplaceCellExternals(ctx, written.ID, extIDs); err != nil {
			return err
		}

		changed, err = e.recalculate(ctx, q, written.ID, cache, resolver)
		return err
	})
	if err != nil {
		return store.Cell{}, err
	}

	e.notify(ctx, append([]store.Cell{written}, changed...))
	return written, nil
}

// Subscribe registers a webhook for change notifications on a cell.
// Returns the subscription id, or store.ErrNotFound if the cell does
// not exist.
func (e *Engine) Subscribe(ctx context.Context, sheetID, cellID, webhookURL string) (string, error) {
	cell, err := e.GetCell(ctx, sheetID, cellID)
	if err != nil {
		return "", err
	}
	sub := store.WebhookSubscription{
		ID:     uuid.NewString(),
		CellID: cell.ID,
		URL:    webhookURL,
	}
	if err := e.store.Queries().InsertSubscription(ctx, sub); err != nil {
		return "", err
	}
	return sub.ID, nil
}

// HandleExternalUpdate applies a pushed value for an external
// subscription. Every cell referencing the URL is re-evaluated, and
// any whose result changes triggers a staged recalculation of its
// dependents. A push carrying the already-stored value is a no-op.
func (e *Engine) HandleExternalUpdate(ctx context.Context, id int64, result string) error {
	ev, err := e.store.Queries().ExternalByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &RecalcError{
				Code:    ErrCodeUnknownSubscription,
				Message: fmt.Sprintf("no external subscription with id %d", id),
			}
		}
		return err
	}
	if ev.Result == result {
		return nil
	}

	var notify []store.Cell
	err = e.store.WithTx(ctx, func(q *store.Queries) error {
		if err := q.UpdateExternalResult(ctx, id, result); err != nil {
			return err
		}
		cells, err := q.CellsUsingExternal(ctx, id)
		if err != nil {
			return err
		}
		resolver := e.externals.Resolver(q)
		for _, cell := range cells {
			cache := newVarCache()
			newVal, err := e.evalStored(ctx, q, cache, cell, resolver)
			if err != nil {
				return err
			}
			if value.Equal(newVal, value.Parse(cell.Result)) {
				continue
			}
			cell.Result = value.Text(newVal)
			if err := q.UpdateCellResult(ctx, cell.ID, cell.Result); err != nil {
				return err
			}
			if err := cache.setValue(cell.ID, cell.CellID, newVal); err != nil {
				return err
			}
			changed, err := e.recalculate(ctx, q, cell.ID, cache, resolver)
			if err != nil {
				return err
			}
			notify = append(notify, cell)
			notify = append(notify, changed...)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.notify(ctx, notify)
	return nil
}

// notify forwards changed cells to the webhook notifier, deduplicated
// by row id. Nil notifiers and empty sets are silently skipped.
func (e *Engine) notify(ctx context.Context, cells []store.Cell) {
	if e.notifier == nil || len(cells) == 0 {
		return
	}
	seen := make(map[string]bool, len(cells))
	deduped := cells[:0]
	for _, cell := range cells {
		if seen[cell.ID] {
			continue
		}
		seen[cell.ID] = true
		deduped = append(deduped, cell)
	}
	e.notifier.Notify(ctx, deduped)
}

// linkedExternalIDs maps the formula's external_ref arguments to
// external value row ids for the cell/external junction. A variable
// argument resolves through the evaluation environment; references
// whose URL never made it into the cache (because evaluation did not
// reach them) are skipped.
func (e *Engine) linkedExternalIDs(ctx context.Context, q *store.Queries, node *formula.Node, env formula.Env) ([]int64, error) {
	if node == nil {
		return nil, nil
	}
	var ids []int64
	for _, ref := range formula.FindExternalRefs(node) {
		url := ref
		if v, ok := env[ref]; ok {
			url = value.Text(v)
		}
		ev, err := q.ExternalByURL(ctx, url)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, ev.ID)
	}
	return ids, nil
}

// cellVariables returns the formula's variables that must resolve to
// cells, excluding names bound by the preprocessor.
func cellVariables(node *formula.Node, defaults map[string]value.Value) []string {
	var names []string
	for _, name := range formula.FindVariables(node) {
		if _, ok := defaults[name]; ok {
			continue
		}
		names = append(names, name)
	}
	return names
}

// resolveNames maps variable names to cell ids within one sheet.
// Any name without a backing cell fails the write.
func resolveNames(ctx context.Context, q *store.Queries, sheetID string, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	cells, err := q.CellsByName(ctx, sheetID, names)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(cells))
	for _, cell := range cells {
		byName[cell.CellID] = cell.ID
	}
	ids := make([]string, 0, len(names))
	var missing []string
	for _, name := range names {
		id, ok := byName[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		ids = append(ids, id)
	}
	if len(missing) > 0 {
		return nil, NewUnresolvedVariableError(sheetID, missing)
	}
	return ids, nil
}

// marshalDefaultVars encodes preprocessor bindings as a JSON object of
// name to source text, round-trippable through value.Parse.
func marshalDefaultVars(vars map[string]value.Value) ([]byte, error) {
	texts := make(map[string]string, len(vars))
	for name, v := range vars {
		texts[name] = value.Text(v)
	}
	return json.Marshal(texts)
}

// unmarshalDefaultVars decodes stored preprocessor bindings back into
// an evaluation environment.
func unmarshalDefaultVars(data []byte) (formula.Env, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var texts map[string]string
	if err := json.Unmarshal(data, &texts); err != nil {
		return nil, fmt.Errorf("decode default vars: %w", err)
	}
	env := make(formula.Env, len(texts))
	for name, text := range texts {
		env[name] = value.Parse(text)
	}
	return env, nil
}
