package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptcagent/internal/config"
	"ptcagent/internal/runtime"
	"ptcagent/internal/sandbox"
	"ptcagent/internal/ui"
)

func testApp(out *bytes.Buffer) *App {
	return &App{
		cfg:      config.DefaultConfig(),
		console:  ui.NewConsole(out, ui.WithTerminal(false)),
		client:   runtime.New(config.ServerConfig{URL: "http://127.0.0.1:1"}),
		usage:    &tokenTracker{},
		files:    &fileCache{},
		threadID: "t-1",
	}
}

func TestTokenTracker(t *testing.T) {
	var tr tokenTracker
	assert.Equal(t, "No token usage recorded yet", tr.String())

	tr.Add(100, 20)
	tr.Add(50, 5)
	assert.Equal(t, "Tokens: 150 input, 25 output, 175 total over 2 turn(s)", tr.String())

	tr.Reset()
	assert.Equal(t, "No token usage recorded yet", tr.String())
}

func TestFileCacheRefreshStripsRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.py"), []byte("print(1)"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data", "x.csv"), []byte("a,b"), 0o644))

	sb, err := sandbox.NewLocal(root)
	require.NoError(t, err)
	defer sb.Close()

	var c fileCache
	c.refresh(context.Background(), sb, sb.Root())
	assert.ElementsMatch(t, []string{"main.py", "data/x.csv"}, c.Files())
}

func TestHandleCommand(t *testing.T) {
	var out bytes.Buffer
	a := testApp(&out)

	assert.False(t, a.handleCommand("/plan"))
	assert.True(t, a.planMode)
	assert.False(t, a.handleCommand("/AUTO"))
	assert.True(t, a.autoApprove)

	a.usage.Add(10, 2)
	assert.False(t, a.handleCommand("/new"))
	assert.NotEqual(t, "t-1", a.threadID)
	assert.Equal(t, "No token usage recorded yet", a.usage.String())

	assert.False(t, a.handleCommand("/tasks"))
	assert.Contains(t, out.String(), "No background tasks")

	assert.False(t, a.handleCommand("/files"))
	assert.Contains(t, out.String(), "No sandbox files cached")

	assert.False(t, a.handleCommand("/bogus arg"))
	assert.Contains(t, out.String(), "Unknown command: /bogus")

	assert.True(t, a.handleCommand("/exit"))
	assert.True(t, a.handleCommand("/quit"))
}

func TestLineReaderKeepsBufferedLines(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	_, err = w.WriteString("first\nsecond\nthird")
	require.NoError(t, err)
	w.Close()

	lr := newLineReader(r)
	defer lr.Close()
	ctx := context.Background()

	for _, want := range []string{"first\n", "second\n", "third"} {
		line, err := lr.ReadLine(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}
	_, err = lr.ReadLine(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineReaderCancelled(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	lr := newLineReader(r)
	defer lr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = lr.ReadLine(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The reader is usable again after a cancelled read.
	_, err = w.WriteString("later\n")
	require.NoError(t, err)
	line, err := lr.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "later\n", line)
}

func TestFilesCommandListsCache(t *testing.T) {
	var out bytes.Buffer
	a := testApp(&out)

	files := make([]string, maxListedFiles+2)
	for i := range files {
		files[i] = fmt.Sprintf("src/f%02d.py", i)
	}
	a.files.SetFiles(files)

	a.handleCommand("/files")
	assert.Contains(t, out.String(), "src/f00.py")
	assert.NotContains(t, out.String(), fmt.Sprintf("src/f%02d.py", maxListedFiles))
	assert.Contains(t, out.String(), "... and 2 more")
}
