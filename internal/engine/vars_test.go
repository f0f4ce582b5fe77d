package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellflow/cellflow/internal/formula"
	"github.com/cellflow/cellflow/internal/value"
)

func TestVarCachePopulateFromStore(t *testing.T) {
	s := openTestStore(t)
	q := s.Queries()
	ctx := context.Background()

	insertTestCell(t, q, "id-a", "s1", "a")
	insertTestCell(t, q, "id-b", "s1", "b")

	cache := newVarCache()
	env, err := cache.populate(ctx, q, []string{"id-a", "id-b"})
	require.NoError(t, err)
	assert.Equal(t, formula.Env{"a": value.Number(0), "b": value.Number(0)}, env)
}

func TestVarCacheBoundValueWinsOverStored(t *testing.T) {
	s := openTestStore(t)
	q := s.Queries()
	ctx := context.Background()

	insertTestCell(t, q, "id-a", "s1", "a")

	cache := newVarCache()
	require.NoError(t, cache.setValue("id-a", "a", value.Number(42)))

	env, err := cache.populate(ctx, q, []string{"id-a"})
	require.NoError(t, err)
	assert.Equal(t, value.Number(42), env["a"])
}

func TestVarCachePopulateMissingCell(t *testing.T) {
	s := openTestStore(t)
	q := s.Queries()

	cache := newVarCache()
	_, err := cache.populate(context.Background(), q, []string{"no-such-id"})
	require.Error(t, err)
	assert.Equal(t, ErrCodeUnresolvedVariable, RecalcCode(err))
}

func TestVarCacheSetValueTwice(t *testing.T) {
	cache := newVarCache()
	require.NoError(t, cache.setValue("id-a", "a", value.Number(1)))

	err := cache.setValue("id-a", "a", value.Number(2))
	require.Error(t, err)
	assert.Equal(t, ErrCodeVariableRedefined, RecalcCode(err))
}
