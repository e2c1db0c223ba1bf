// Package watch reports changes to the notes directory, including edits made
// outside the application.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/storage"
)

// Kind classifies a change.
type Kind string

const (
	Created Kind = "created"
	Updated Kind = "updated"
	Removed Kind = "removed"
)

// DefaultDebounce coalesces bursts of events for the same note.
const DefaultDebounce = 150 * time.Millisecond

// Callback is called once per settled change. For Removed only note.Name
// is set.
type Callback func(kind Kind, note models.NoteInfo)

// Watcher follows a flat notes directory. Subdirectories are ignored.
type Watcher struct {
	fs       *fsnotify.Watcher
	store    storage.Provider
	root     string
	logger   *slog.Logger
	debounce time.Duration

	// name -> checksum of every note seen so far
	known map[string]string
}

// Open starts watching root. Events are buffered by fsnotify until Run is
// called.
func Open(root string, store storage.Provider, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(root); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{
		fs:       fw,
		store:    store,
		root:     root,
		logger:   logger,
		debounce: DefaultDebounce,
		known:    make(map[string]string),
	}

	notes, err := store.List()
	if err != nil {
		_ = fw.Close()
		return nil, err
	}
	for _, n := range notes {
		w.known[n.Name] = n.Checksum
	}
	return w, nil
}

// Run processes events until ctx is cancelled, then closes the watcher.
// cb may be nil.
func (w *Watcher) Run(ctx context.Context, cb Callback) error {
	defer w.fs.Close()

	w.logger.Info("watcher: started", slog.String("root", w.root))

	pending := make(map[string]struct{})
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			timerCh = timer.C
			return
		}
		timer.Reset(w.debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			for name := range pending {
				w.settle(name, cb)
			}
			clear(pending)

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Dir(ev.Name) != filepath.Clean(w.root) {
				continue
			}
			name := filepath.Base(ev.Name)
			if strings.HasPrefix(name, storage.TempPrefix) || ev.Op == fsnotify.Chmod {
				continue
			}
			pending[name] = struct{}{}
			schedule()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

// settle compares the note on disk against what was last seen and reports
// the difference. Rewrites with identical content are not reported.
func (w *Watcher) settle(name string, cb Callback) {
	prev, seen := w.known[name]

	info, err := w.store.Stat(name)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		if !seen {
			return
		}
		delete(w.known, name)
		w.emit(Removed, models.NoteInfo{Name: name}, cb)
		return
	case err != nil:
		w.logger.Warn("watcher: stat failed", slog.String("filename", name), slog.String("error", err.Error()))
		return
	}

	w.known[name] = info.Checksum
	switch {
	case !seen:
		w.emit(Created, info, cb)
	case prev != info.Checksum:
		w.emit(Updated, info, cb)
	}
}

func (w *Watcher) emit(kind Kind, note models.NoteInfo, cb Callback) {
	w.logger.Debug("watcher: change", slog.String("filename", note.Name), slog.String("kind", string(kind)))
	if cb != nil {
		cb(kind, note)
	}
}
