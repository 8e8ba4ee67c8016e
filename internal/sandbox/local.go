package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ptcagent/internal/logging"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Local is a sandbox rooted at a directory on this machine. The recursive
// file listing is cached and invalidated by filesystem events.
type Local struct {
	root string

	mu      sync.Mutex
	files   []string // relative to root, slash separated
	valid   bool
	gen     uint64 // bumped on every filesystem event
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewLocal creates a local sandbox rooted at root.
func NewLocal(root string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	l := &Local{root: abs}
	if err := l.Health(context.Background()); err != nil {
		return nil, err
	}
	l.startWatcher()
	return l, nil
}

// Root returns the sandbox root directory.
func (l *Local) Root() string {
	return l.root
}

func (l *Local) startWatcher() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		// Without a watcher the cache is rebuilt on every listing.
		logging.Warn("sandbox_local_watch_unavailable", "error", err)
		return
	}
	done := make(chan struct{})

	l.mu.Lock()
	l.watcher = w
	l.done = done
	l.valid = false
	l.mu.Unlock()

	go l.processEvents(w, done)
}

func (l *Local) stopWatcher() {
	l.mu.Lock()
	w, done := l.watcher, l.done
	l.watcher, l.done = nil, nil
	l.valid = false
	l.mu.Unlock()

	if w != nil {
		close(done)
		w.Close()
	}
}

func (l *Local) processEvents(w *fsnotify.Watcher, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			l.mu.Lock()
			l.valid = false
			l.gen++
			l.mu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logging.Debug("sandbox_local_watch_error", "error", err)
		}
	}
}

// NormalizePath resolves p against the sandbox root.
func (l *Local) NormalizePath(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(l.root, p)
}

func (l *Local) contains(p string) bool {
	rel, err := filepath.Rel(l.root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ReadFile reads a file inside the sandbox root.
func (l *Local) ReadFile(_ context.Context, p string) (string, error) {
	p = l.NormalizePath(p)
	if !l.contains(p) {
		return "", fmt.Errorf("path %s is outside the sandbox", p)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	return string(data), nil
}

// GlobFiles returns absolute paths of files under dir matching pattern.
func (l *Local) GlobFiles(ctx context.Context, pattern, dir string) ([]string, error) {
	files, err := l.listing(ctx)
	if err != nil {
		return nil, err
	}

	base, err := filepath.Rel(l.root, l.NormalizePath(dir))
	if err != nil {
		return nil, err
	}
	base = filepath.ToSlash(base)
	prefix := ""
	if base != "." {
		prefix = base + "/"
	}

	var out []string
	for _, f := range files {
		if !strings.HasPrefix(f, prefix) {
			continue
		}
		if ok, _ := doublestar.Match(pattern, strings.TrimPrefix(f, prefix)); ok {
			out = append(out, filepath.Join(l.root, filepath.FromSlash(f)))
		}
	}
	return out, nil
}

// listing returns the cached recursive listing, rebuilding it if stale.
func (l *Local) listing(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	if l.valid {
		files := l.files
		l.mu.Unlock()
		return files, nil
	}
	w := l.watcher
	gen := l.gen
	l.mu.Unlock()

	var files []string
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != l.root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			if w != nil {
				_ = w.Add(p)
			}
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		if len(files) >= maxListedFiles {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.files = files
	// A change during the walk leaves the cache stale.
	l.valid = w != nil && l.watcher == w && l.gen == gen
	l.mu.Unlock()
	return files, nil
}

// Health checks that the root directory is still present.
func (l *Local) Health(_ context.Context) error {
	info, err := os.Stat(l.root)
	if err != nil {
		return fmt.Errorf("sandbox root unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("sandbox root %s is not a directory", l.root)
	}
	return nil
}

// Reconnect restarts the watcher and drops the cached listing.
func (l *Local) Reconnect(ctx context.Context) error {
	l.stopWatcher()
	if err := l.Health(ctx); err != nil {
		return err
	}
	l.startWatcher()
	return nil
}

// Close stops the watcher.
func (l *Local) Close() error {
	l.stopWatcher()
	return nil
}
