package state

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapfit/pkg/core"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore()
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleFit(t *testing.T, name string) *core.Fit {
	t.Helper()
	// 3 draws x 2 chains x 2 params
	fit, err := core.NewFit(name, []string{"mu", "lp__"}, 3, 2, []float64{
		1, -1, 2, -2,
		3, -3, 4, -4,
		5, math.NaN(), 6, -6,
	})
	require.NoError(t, err)
	fit.Source = "chain1.csv,chain2.csv"
	return fit
}

func TestSQLiteStore_InitSchema(t *testing.T) {
	store := setupTestStore(t)

	for _, table := range []string{"fits", "fit_parameters", "fit_chains"} {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		require.NoError(t, err, "table %s", table)
		_ = rows.Close()
	}

	v, err := store.GetMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	fit := sampleFit(t, "schools")

	id, err := store.SaveFit(ctx, fit)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := store.GetFit(ctx, "schools")
	require.NoError(t, err)
	assert.Equal(t, fit.Parameters, got.Parameters)
	assert.Equal(t, fit.NumDraws, got.NumDraws)
	assert.Equal(t, fit.NumChains, got.NumChains)
	assert.Equal(t, fit.Source, got.Source)

	require.Len(t, got.Values, len(fit.Values))
	for i, v := range fit.Values {
		if math.IsNaN(v) {
			assert.True(t, math.IsNaN(got.Values[i]), "value %d", i)
			continue
		}
		assert.Equal(t, v, got.Values[i], "value %d", i)
	}
}

func TestSQLiteStore_SaveReplacesByName(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	_, err := store.SaveFit(ctx, sampleFit(t, "f"))
	require.NoError(t, err)

	replacement, err := core.NewFit("f", []string{"tau"}, 1, 1, []float64{42})
	require.NoError(t, err)
	_, err = store.SaveFit(ctx, replacement)
	require.NoError(t, err)

	got, err := store.GetFit(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, []string{"tau"}, got.Parameters)
	assert.Equal(t, []float64{42}, got.Values)

	fits, err := store.ListFits(ctx)
	require.NoError(t, err)
	assert.Len(t, fits, 1)

	var chains int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM fit_chains").Scan(&chains))
	assert.Equal(t, 1, chains, "old chains are removed with the old fit")
}

func TestSQLiteStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	for _, name := range []string{"a", "b"} {
		_, err := store.SaveFit(ctx, sampleFit(t, name))
		require.NoError(t, err)
	}

	fits, err := store.ListFits(ctx)
	require.NoError(t, err)
	require.Len(t, fits, 2)
	for _, info := range fits {
		assert.Equal(t, 3, info.NumDraws)
		assert.Equal(t, 2, info.NumChains)
		assert.Equal(t, 2, info.NumParams)
	}

	require.NoError(t, store.DeleteFit(ctx, "a"))
	_, err = store.GetFit(ctx, "a")
	assert.ErrorIs(t, err, core.ErrFitNotFound)

	err = store.DeleteFit(ctx, "a")
	assert.ErrorIs(t, err, core.ErrFitNotFound)
}

func TestSQLiteStore_FileBacked(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	store := NewSQLiteStore()
	require.NoError(t, store.Open(path))
	require.NoError(t, store.InitSchema())
	_, err := store.SaveFit(ctx, sampleFit(t, "persisted"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened := NewSQLiteStore()
	require.NoError(t, reopened.Open(path))
	defer func() { _ = reopened.Close() }()
	require.NoError(t, reopened.InitSchema())

	got, err := reopened.GetFit(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Name)
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore()
	_, err := store.ListFits(context.Background())
	assert.Error(t, err)
	assert.NoError(t, store.Close())
}

func TestDecodeDraws_RejectsTruncatedBlob(t *testing.T) {
	_, err := decodeDraws([]byte{1, 2, 3})
	assert.ErrorIs(t, err, core.ErrShapeMismatch)

	got, err := decodeDraws(encodeDraws([]float64{1.5, -2, math.Inf(1)}))
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2, math.Inf(1)}, got)
}
