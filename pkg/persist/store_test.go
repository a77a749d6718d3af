package persist

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/matrixgraph/pkg/storage"
)

func openMemory(t *testing.T, perKey uint64) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true, EntitiesPerKey: perKey})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t, 2)
	g := buildGraph(t)

	require.NoError(t, s.Save(ctx, g))
	require.NoError(t, s.Save(ctx, storage.NewGraph("other")))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "roundtrip"}, names)

	got, err := s.Load(ctx, "roundtrip")
	require.NoError(t, err)
	assert.Equal(t, dump(t, g), dump(t, got))

	_, err = s.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrGraphNotFound)
}

func TestStore_SaveReplacesOlderSnapshot(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t, 1)

	require.NoError(t, s.Save(ctx, buildGraph(t)))
	// fewer keys than the first snapshot; stale keys must not survive
	require.NoError(t, s.Save(ctx, storage.NewGraph("roundtrip")))

	got, err := s.Load(ctx, "roundtrip")
	require.NoError(t, err)
	assert.Zero(t, got.NodeCount())
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t, 0)
	require.NoError(t, s.Save(ctx, buildGraph(t)))

	require.NoError(t, s.Delete("roundtrip"))
	_, err := s.Load(ctx, "roundtrip")
	assert.ErrorIs(t, err, ErrGraphNotFound)
	assert.ErrorIs(t, s.Delete("roundtrip"), ErrGraphNotFound)

	names, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestStore_InvalidName(t *testing.T) {
	s := openMemory(t, 0)
	assert.Error(t, s.Save(context.Background(), storage.NewGraph("a/b")))
	assert.Error(t, s.Save(context.Background(), storage.NewGraph("")))
}

func TestStore_Closed(t *testing.T) {
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Save(context.Background(), storage.NewGraph("g")), ErrStorageClosed)
	_, err = s.Load(context.Background(), "g")
	assert.ErrorIs(t, err, ErrStorageClosed)
	_, err = s.List()
	assert.ErrorIs(t, err, ErrStorageClosed)
	assert.ErrorIs(t, s.Backup(filepath.Join(t.TempDir(), "b")), ErrStorageClosed)
}

func TestStore_CanceledContext(t *testing.T) {
	s := openMemory(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Save(ctx, buildGraph(t)), context.Canceled)
}

func TestStore_EncryptedBackupRestore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	g := buildGraph(t)
	want := dump(t, g)

	s, err := Open(Options{Dir: dir, EncryptionPassword: "hunter2", EntitiesPerKey: 3})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, g))

	backup := filepath.Join(t.TempDir(), "graphs.bak")
	require.NoError(t, s.Backup(backup))
	require.NoError(t, s.Close())

	salt, err := os.ReadFile(filepath.Join(dir, saltFile))
	require.NoError(t, err)
	assert.Len(t, salt, saltSize)

	t.Run("reopen with the same password", func(t *testing.T) {
		s, err := Open(Options{Dir: dir, EncryptionPassword: "hunter2"})
		require.NoError(t, err)
		defer s.Close()

		got, err := s.Load(ctx, "roundtrip")
		require.NoError(t, err)
		assert.Equal(t, want, dump(t, got))
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := Open(Options{Dir: dir, EncryptionPassword: "wrong"})
		assert.Error(t, err)
	})

	t.Run("restore into a fresh store", func(t *testing.T) {
		fresh := openMemory(t, 0)
		require.NoError(t, fresh.Restore(backup))

		got, err := fresh.Load(ctx, "roundtrip")
		require.NoError(t, err)
		assert.Equal(t, want, dump(t, got))
	})
}
