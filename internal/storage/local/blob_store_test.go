package local_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/assignment-webapp/internal/storage/local"
)

const archiveType = "application/zip"

func newStore(t *testing.T) (*local.BlobStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	return store, dir
}

func TestNewCreatesMissingBaseDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archives", "2024")
	_, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewRejectsBadBaseDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	for name, dir := range map[string]string{
		"blank": "  ",
		"file":  file,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := local.New(local.Config{BaseDir: dir})
			assert.Error(t, err)
		})
	}
}

func TestNewRejectsReadOnlyBaseDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	dir := t.TempDir()
	// #nosec G302 -- read-only directory under test.
	require.NoError(t, os.Chmod(dir, 0o500))
	// #nosec G302 -- restore so TempDir cleanup succeeds.
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

	_, err := local.New(local.Config{BaseDir: dir})
	assert.ErrorContains(t, err, "not writable")
}

func TestPutObjectStoresArchive(t *testing.T) {
	store, dir := newStore(t)
	name := "0b6f3c1e-7d6a-4c1c-9d55-2f0c7f9d1e11HW1.zip"
	archive := []byte("PK\x03\x04archive")

	uri, err := store.PutObject(context.Background(), name, archiveType, bytes.NewReader(archive))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(dir, name), uri)

	// #nosec G304 -- reading back from the test's own temp dir.
	got, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, archive, got)
}

func TestPutObjectReplacesExisting(t *testing.T) {
	store, dir := newStore(t)
	ctx := context.Background()

	for _, body := range []string{"first", "second"} {
		_, err := store.PutObject(ctx, "HW1.zip", archiveType, strings.NewReader(body))
		require.NoError(t, err)
	}
	// #nosec G304 -- reading back from the test's own temp dir.
	got, err := os.ReadFile(filepath.Join(dir, "HW1.zip"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestPutObjectRejectsBadNames(t *testing.T) {
	store, _ := newStore(t)

	for _, name := range []string{"", "   ", "../escape.zip", "a/../../escape.zip"} {
		_, err := store.PutObject(context.Background(), name, archiveType, strings.NewReader("x"))
		assert.Error(t, err, "name %q", name)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestPutObjectLeavesNothingOnReadError(t *testing.T) {
	store, dir := newStore(t)

	_, err := store.PutObject(context.Background(), "HW2.zip", archiveType, failingReader{})
	require.ErrorContains(t, err, "connection reset")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
