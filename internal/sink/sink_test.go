package sink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitRenamesTempFile(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.psd")

	s, err := New(dest)
	require.NoError(t, err)

	_, err = s.Write([]byte("hello world"))
	require.NoError(t, err)

	require.NoError(t, s.Commit())

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp file should remain")
}

func TestAbortRemovesTempFileAndLeavesDestUntouched(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.psd")
	require.NoError(t, os.WriteFile(dest, []byte("original"), 0o644))

	s, err := New(dest)
	require.NoError(t, err)

	_, err = s.Write([]byte("partial write"))
	require.NoError(t, err)

	require.NoError(t, s.Abort())

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
}

func TestCommitTwiceFails(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.psd")

	s, err := New(dest)
	require.NoError(t, err)
	require.NoError(t, s.Commit())

	assert.Error(t, s.Commit())
}

func TestStdoutSinkIsANoopFile(t *testing.T) {
	s, err := New("-")
	require.NoError(t, err)
	_, err = s.Write([]byte("to stdout"))
	require.NoError(t, err)
	require.NoError(t, s.Commit())
}
