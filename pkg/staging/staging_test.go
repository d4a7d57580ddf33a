package staging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage(t *testing.T) {
	s, err := NewStager(t.TempDir())
	require.NoError(t, err)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }

	local, err := s.Stage("/var/www/index.html", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "ideaftp-1700000000000-index.html", filepath.Base(local))

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	// same millisecond, same name
	second, err := s.Stage("/other/index.html", []byte("again"))
	require.NoError(t, err)
	assert.NotEqual(t, local, second)
	assert.True(t, strings.HasPrefix(filepath.Base(second), "ideaftp-"))
}

func TestRemoveOnlyStagedFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStager(dir)
	require.NoError(t, err)

	foreign := filepath.Join(dir, "keep.txt")
	require.NoError(t, os.WriteFile(foreign, []byte("x"), 0600))
	require.NoError(t, s.Remove(foreign))
	assert.FileExists(t, foreign)

	local, err := s.Stage("/a.txt", []byte("a"))
	require.NoError(t, err)
	require.NoError(t, s.Remove(local))
	assert.NoFileExists(t, local)
	assert.Empty(t, s.Staged())
}

func TestCleanup(t *testing.T) {
	s, err := NewStager(t.TempDir())
	require.NoError(t, err)

	a, err := s.Stage("/a.txt", []byte("a"))
	require.NoError(t, err)
	b, err := s.Stage("/b.txt", []byte("b"))
	require.NoError(t, err)

	require.NoError(t, s.Cleanup())
	assert.NoFileExists(t, a)
	assert.NoFileExists(t, b)
	assert.Empty(t, s.Staged())
}
