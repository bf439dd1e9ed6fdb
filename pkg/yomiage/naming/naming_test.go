package naming

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-yomiage/pkg/yomiage/problem"
)

func TestTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 9, 7, 5, 2, 0, time.Local)
	assert.Equal(t, "20240309070502", Timestamp(ts))
}

func TestDirectoryFor(t *testing.T) {
	cfg := problem.Config{MinDigit: 3, MaxDigit: 6, Length: 10, Subtractions: 3}
	assert.Equal(t, "3-6-10-20240309070502", DirectoryFor(cfg, "20240309070502"))
}

func TestFileNameFor(t *testing.T) {
	assert.Equal(t, "1-加算.wav", FileNameFor(0, 1))
	assert.Equal(t, "2-加減算.wav", FileNameFor(3, 2))
	assert.Equal(t, "加減算", Label(1))
}

func TestEnsureDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing", "root")

	require.NoError(t, EnsureDir(root))
	require.NoError(t, EnsureDir(root))
	assert.DirExists(t, root)
}

func TestEnsureDirFailure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	err := EnsureDir(filepath.Join(file, "sub"))
	var ioErr *ErrIO
	require.True(t, errors.As(err, &ioErr))
	assert.Contains(t, ioErr.Path, "sub")
}
