package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tickledger/store"
	"github.com/xraph/tickledger/store/file"
	"github.com/xraph/tickledger/store/storetest"
)

func newStore(t *testing.T) *file.Store {
	t.Helper()

	s, err := file.New(filepath.Join(t.TempDir(), "snapshots"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newStore(t)
	})
}

func TestNewRejectsEmptyDir(t *testing.T) {
	_, err := file.New("")
	require.Error(t, err)
}

func TestSaveWritesTOMLWithPrivateMode(t *testing.T) {
	s := newStore(t)
	snap := storetest.Sample()
	require.NoError(t, s.SaveSnapshot(context.Background(), snap))

	path := filepath.Join(s.Dir(), snap.InstanceID.String()+".toml")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "version = 1")
	assert.Contains(t, string(data), "[[subscriptions]]")
	assert.Contains(t, string(data), "[[timeline]]")

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestLoadRejectsNewerSchema(t *testing.T) {
	s := newStore(t)
	snap := storetest.Sample()
	path := filepath.Join(s.Dir(), snap.InstanceID.String()+".toml")
	require.NoError(t, os.WriteFile(path, []byte("version = 99\n"), 0o600))

	_, err := s.LoadSnapshot(context.Background(), snap.InstanceID)
	require.ErrorContains(t, err, "unsupported snapshot schema version")
}

func TestLoadRejectsMismatchedInstance(t *testing.T) {
	s := newStore(t)
	a, b := storetest.Sample(), storetest.Sample()
	require.NoError(t, s.SaveSnapshot(context.Background(), a))

	src := filepath.Join(s.Dir(), a.InstanceID.String()+".toml")
	dst := filepath.Join(s.Dir(), b.InstanceID.String()+".toml")
	require.NoError(t, os.Rename(src, dst))

	_, err := s.LoadSnapshot(context.Background(), b.InstanceID)
	require.Error(t, err)
}

func TestPingMissingDir(t *testing.T) {
	s, err := file.New(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	require.Error(t, s.Ping(context.Background()))
}
