// Package keywatch watches the terminal for a single cancel key while a run
// is streaming and the line editor is not reading input.
package keywatch

import (
	"errors"
	"os"
	"sync"

	"ptcagent/internal/logging"

	"github.com/muesli/cancelreader"
	"golang.org/x/term"
)

// Esc is the escape key byte.
const Esc byte = 0x1b

// Option configures a Watcher.
type Option func(*Watcher)

// WithKey watches for key instead of Esc.
func WithKey(key byte) Option {
	return func(w *Watcher) { w.key = key }
}

// WithoutTerminal lets the watcher run on input that is not a terminal.
// The terminal mode is left untouched in that case.
func WithoutTerminal() Option {
	return func(w *Watcher) { w.requireTTY = false }
}

// Watcher calls onKey at most once per Start when the key is pressed.
// After firing it stops reading and restores the terminal by itself.
type Watcher struct {
	in         *os.File
	onKey      func()
	key        byte
	requireTTY bool

	mu   sync.Mutex
	sess *session
}

type session struct {
	cr      cancelreader.CancelReader
	restore func()
	done    chan struct{}
}

// New creates a watcher on in. Nothing is read until Start.
func New(in *os.File, onKey func(), opts ...Option) *Watcher {
	w := &Watcher{
		in:         in,
		onKey:      onKey,
		key:        Esc,
		requireTTY: true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It does nothing when input is not a terminal or
// a watch is already active.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sess != nil {
		select {
		case <-w.sess.done:
			// Fired earlier; allow a fresh watch.
			w.sess = nil
		default:
			return
		}
	}

	fd := int(w.in.Fd())
	isTTY := term.IsTerminal(fd)
	if w.requireTTY && !isTTY {
		return
	}

	var restore func()
	if isTTY {
		r, err := enterCbreak(fd)
		if err != nil {
			logging.Debug("esc_watcher_cbreak_failed", "error", err)
			return
		}
		restore = r
	}

	cr, err := cancelreader.NewReader(w.in)
	if err != nil {
		if restore != nil {
			restore()
		}
		logging.Debug("esc_watcher_reader_failed", "error", err)
		return
	}

	s := &session{cr: cr, restore: restore, done: make(chan struct{})}
	w.sess = s
	go w.run(s)
}

func (w *Watcher) run(s *session) {
	defer close(s.done)
	defer func() {
		s.cr.Close()
		if s.restore != nil {
			s.restore()
		}
	}()

	buf := make([]byte, 1)
	for {
		n, err := s.cr.Read(buf)
		if err != nil {
			if !errors.Is(err, cancelreader.ErrCanceled) {
				logging.Debug("esc_watcher_read_ended", "error", err)
			}
			return
		}
		if n == 1 && buf[0] == w.key {
			w.onKey()
			return
		}
	}
}

// Stop ends the watch, waits for the reader to exit, and restores the
// terminal mode. It is safe to call when not started and more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	s := w.sess
	w.sess = nil
	w.mu.Unlock()

	if s == nil {
		return
	}
	s.cr.Cancel()
	<-s.done
}

// Active reports whether a watch is running.
func (w *Watcher) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sess == nil {
		return false
	}
	select {
	case <-w.sess.done:
		return false
	default:
		return true
	}
}
