package janitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func age(t *testing.T, path string, d time.Duration) {
	t.Helper()
	old := time.Now().Add(-d)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestSweepBeforeRemovesOldMatches(t *testing.T) {
	dir := t.TempDir()
	oldDir := filepath.Join(dir, "snap-old")
	require.NoError(t, os.MkdirAll(filepath.Join(oldDir, "inner"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(oldDir, "inner", "db"), []byte("x"), 0o600))
	age(t, oldDir, 2*time.Hour)

	oldFile := filepath.Join(dir, "page-old.html")
	require.NoError(t, os.WriteFile(oldFile, []byte("x"), 0o600))
	age(t, oldFile, 2*time.Hour)

	fresh := filepath.Join(dir, "snap-fresh")
	require.NoError(t, os.Mkdir(fresh, 0o700))

	other := filepath.Join(dir, "unrelated")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o600))
	age(t, other, 2*time.Hour)

	a := TempArtifacts{Dir: dir, Prefixes: []string{"snap-", "page-"}}
	n, err := a.SweepBefore(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.NoDirExists(t, oldDir)
	assert.NoFileExists(t, oldFile)
	assert.DirExists(t, fresh)
	assert.FileExists(t, other)
}

func TestSweepBeforeEmptyPrefixMatchesNothing(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "anything")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o600))
	age(t, f, 2*time.Hour)

	n, err := TempArtifacts{Dir: dir, Prefixes: []string{""}}.SweepBefore(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.FileExists(t, f)
}

func TestSweepBeforeMissingDir(t *testing.T) {
	a := TempArtifacts{Dir: filepath.Join(t.TempDir(), "missing"), Prefixes: []string{"x"}}
	_, err := a.SweepBefore(context.Background(), time.Now())
	assert.Error(t, err)
}

func TestSweepBeforeCanceled(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "snap-1")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o600))
	age(t, f, 2*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := TempArtifacts{Dir: dir, Prefixes: []string{"snap-"}}.SweepBefore(ctx, time.Now())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
	assert.FileExists(t, f)
}
