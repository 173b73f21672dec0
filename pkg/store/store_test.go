package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "data"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, BucketVaults, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(ctx, BucketVaults, "b", []byte("two")))
			require.NoError(t, s.Put(ctx, BucketVaults, "a", []byte("one")))
			require.NoError(t, s.Put(ctx, BucketSettings, "app", []byte("{}")))

			got, err := s.Get(ctx, BucketVaults, "a")
			require.NoError(t, err)
			assert.Equal(t, []byte("one"), got)

			// Upsert replaces the whole value.
			require.NoError(t, s.Put(ctx, BucketVaults, "a", []byte("uno")))
			got, err = s.Get(ctx, BucketVaults, "a")
			require.NoError(t, err)
			assert.Equal(t, []byte("uno"), got)

			items, err := s.GetAll(ctx, BucketVaults)
			require.NoError(t, err)
			require.Len(t, items, 2)
			assert.Equal(t, "a", items[0].Key)
			assert.Equal(t, "b", items[1].Key)

			require.NoError(t, s.Delete(ctx, BucketVaults, "a"))
			require.NoError(t, s.Delete(ctx, BucketVaults, "a"))
			_, err = s.Get(ctx, BucketVaults, "a")
			assert.ErrorIs(t, err, ErrNotFound)

			items, err = s.GetAll(ctx, "empty")
			require.NoError(t, err)
			assert.Empty(t, items)
		})
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	v := []byte("abc")
	require.NoError(t, m.Put(ctx, "b", "k", v))
	v[0] = 'x'

	got, err := m.Get(ctx, "b", "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[1] = 'y'
	again, _ := m.Get(ctx, "b", "k")
	assert.Equal(t, "abc", string(again))
}

func TestMemoryCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewMemory().Put(ctx, "b", "k", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")

	s, err := OpenSQLite(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, BucketVaults, "id1", []byte(`{"id":"id1"}`)))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(dir, nil)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, BucketVaults, "id1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"id1"}`, string(got))
	assert.NoError(t, s.CheckIntegrity(ctx))
}

func TestSQLitePermissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	s, err := OpenSQLite(dir, nil)
	require.NoError(t, err)
	defer s.Close()

	info, err := os.Stat(filepath.Join(dir, DBFileName))
	require.NoError(t, err)
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		t.Errorf("database permissions = %04o, want 0600", perm)
	}
	assert.Equal(t, dir, s.Dir())
}

func TestSQLiteCheckDiskSpace(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "data"), nil)
	require.NoError(t, err)
	defer s.Close()

	info, err := s.CheckDiskSpace()
	require.NoError(t, err)
	assert.Greater(t, info.Total, uint64(0))
	assert.GreaterOrEqual(t, info.UsedPct, 0)
	assert.LessOrEqual(t, info.UsedPct, 100)
}

func TestSQLiteSchemaVersion(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	s, err := OpenSQLite(dir, nil)
	require.NoError(t, err)

	v, err := schemaVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)

	// Reopening an up-to-date database is a no-op.
	require.NoError(t, migrate(ctx, s.db))

	_, err = s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", CurrentSchemaVersion+1)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = OpenSQLite(dir, nil)
	assert.ErrorIs(t, err, ErrSchemaTooNew)
}
