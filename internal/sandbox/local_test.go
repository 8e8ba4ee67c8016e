package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newLocal(t *testing.T) (*Local, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.py"), "print('hi')")
	writeFile(t, filepath.Join(root, "pkg", "util.py"), "x = 1")
	writeFile(t, filepath.Join(root, "pkg", "notes.md"), "# notes")
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref")

	l, err := NewLocal(root)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, l.Root()
}

func TestLocalReadFile(t *testing.T) {
	l, root := newLocal(t)
	ctx := context.Background()

	content, err := l.ReadFile(ctx, "main.py")
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", content)

	content, err = l.ReadFile(ctx, filepath.Join(root, "pkg", "util.py"))
	require.NoError(t, err)
	assert.Equal(t, "x = 1", content)

	_, err = l.ReadFile(ctx, "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.ReadFile(ctx, "../outside")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestLocalGlobFiles(t *testing.T) {
	l, root := newLocal(t)
	ctx := context.Background()

	files, err := l.GlobFiles(ctx, "**/*.py", ".")
	require.NoError(t, err)
	sort.Strings(files)
	assert.Equal(t, []string{filepath.Join(root, "main.py"), filepath.Join(root, "pkg", "util.py")}, files)

	files, err = l.GlobFiles(ctx, "*", "pkg")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	all, err := l.GlobFiles(ctx, "**/*", ".")
	require.NoError(t, err)
	for _, f := range all {
		assert.NotContains(t, f, ".git")
	}
}

func TestLocalGlobSeesNewFiles(t *testing.T) {
	l, root := newLocal(t)
	ctx := context.Background()

	_, err := l.GlobFiles(ctx, "**/*", ".")
	require.NoError(t, err)

	writeFile(t, filepath.Join(root, "pkg", "fresh.py"), "y = 2")

	require.Eventually(t, func() bool {
		files, err := l.GlobFiles(ctx, "**/fresh.py", ".")
		return err == nil && len(files) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestLocalHealthAndReconnect(t *testing.T) {
	l, root := newLocal(t)
	ctx := context.Background()

	require.NoError(t, l.Health(ctx))
	require.NoError(t, l.Reconnect(ctx))

	files, err := l.GlobFiles(ctx, "main.py", ".")
	require.NoError(t, err)
	assert.Len(t, files, 1)

	require.NoError(t, os.RemoveAll(root))
	assert.Error(t, l.Health(ctx))
	assert.Error(t, l.Reconnect(ctx))
	assert.True(t, IsSandboxError(l.Health(ctx).Error()))
}

func TestNewLocalRejectsMissingRoot(t *testing.T) {
	_, err := NewLocal(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
