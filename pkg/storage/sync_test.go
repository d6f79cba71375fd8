package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeObjectStore implements ObjectStore in memory.
type fakeObjectStore struct {
	remote    map[string]int64
	uploaded  []string
	uploadErr map[string]error
}

func (f *fakeObjectStore) List(ctx context.Context) (map[string]int64, error) {
	return f.remote, nil
}

func (f *fakeObjectStore) Upload(ctx context.Context, key, localPath string) error {
	if err, ok := f.uploadErr[key]; ok {
		return err
	}
	f.uploaded = append(f.uploaded, key)
	return nil
}

func writeLocal(t *testing.T, root, rel string, size int) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestSyncUploadsNewAndChangedFiles(t *testing.T) {
	root := t.TempDir()
	writeLocal(t, root, "messages/dt=2025-10-15/channel=eng/data.parquet", 100)
	writeLocal(t, root, "users.parquet", 50)
	writeLocal(t, root, "issue_tickets/dt=2025-10-15/data.parquet", 70)

	store := &fakeObjectStore{remote: map[string]int64{
		"users.parquet": 50, // same size: skip
		"issue_tickets/dt=2025-10-15/data.parquet": 60, // size differs: re-upload
	}}

	result, err := NewSyncer(store, root, zerolog.Nop()).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Uploaded)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	assert.ElementsMatch(t, []string{
		"messages/dt=2025-10-15/channel=eng/data.parquet",
		"issue_tickets/dt=2025-10-15/data.parquet",
	}, store.uploaded)
	assert.True(t, result.Success())
}

func TestSyncDryRunUploadsNothing(t *testing.T) {
	root := t.TempDir()
	writeLocal(t, root, "users.parquet", 50)

	store := &fakeObjectStore{remote: map[string]int64{}}
	syncer := NewSyncer(store, root, zerolog.Nop())
	syncer.DryRun = true

	result, err := syncer.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Uploaded, "dry run still counts planned uploads")
	assert.Empty(t, store.uploaded)
}

func TestSyncIsolatesUploadFailures(t *testing.T) {
	root := t.TempDir()
	writeLocal(t, root, "a.parquet", 10)
	writeLocal(t, root, "b.parquet", 10)

	store := &fakeObjectStore{
		remote:    map[string]int64{},
		uploadErr: map[string]error{"a.parquet": errors.New("access denied")},
	}

	result, err := NewSyncer(store, root, zerolog.Nop()).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Uploaded)
	assert.Equal(t, 1, result.Failed)
	assert.False(t, result.Success())
	assert.Contains(t, result.Summary(), "1 failed")
}

func TestSyncSkipsTempFiles(t *testing.T) {
	root := t.TempDir()
	writeLocal(t, root, "data.parquet.tmp", 10)

	store := &fakeObjectStore{remote: map[string]int64{}}
	result, err := NewSyncer(store, root, zerolog.Nop()).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Uploaded)
}

func TestSyncEmptyTree(t *testing.T) {
	store := &fakeObjectStore{remote: map[string]int64{}}
	result, err := NewSyncer(store, t.TempDir(), zerolog.Nop()).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Uploaded+result.Skipped+result.Failed)
}
