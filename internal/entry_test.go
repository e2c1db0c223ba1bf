package internal

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/quill/internal/agent"
	"github.com/starford/quill/internal/api"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/sse"
	"github.com/starford/quill/internal/testutil"
	"github.com/starford/quill/internal/watch"
)

type stubRunner struct{}

func (stubRunner) Run(context.Context, string) agent.Outcome {
	return agent.Outcome{Reply: "ok"}
}

func TestHandlerRoutes(t *testing.T) {
	_, store := testutil.TestNotes(t)
	h := NewHandler(api.NewHandler(stubRunner{}, store, nil), nil)

	for _, tc := range []struct {
		path string
		code int
	}{
		{"/health/live", http.StatusOK},
		{"/health/ready", http.StatusOK},
		{"/api/notes", http.StatusOK},
		{"/download/missing.txt", http.StatusNotFound},
		{"/nope", http.StatusNotFound},
	} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if w.Code != tc.code {
			t.Errorf("GET %s = %d, want %d", tc.path, w.Code, tc.code)
		}
		if tc.path == "/health/live" && w.Body.String() != `{"status":"ok"}` {
			t.Errorf("health body = %q", w.Body.String())
		}
	}
}

func TestEventType(t *testing.T) {
	cases := map[watch.Kind]string{
		watch.Created: sse.TypeNoteCreated,
		watch.Updated: sse.TypeNoteUpdated,
		watch.Removed: sse.TypeNoteRemoved,
	}
	for kind, want := range cases {
		if got := eventType(kind); got != want {
			t.Errorf("eventType(%s) = %q, want %q", kind, got, want)
		}
	}
}

func TestSetupRequiresConfig(t *testing.T) {
	if _, _, err := setup(nil); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestSetupCreatesNotesDir(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Notes.Dir = t.TempDir() + "/nested/notes"

	_, c, err := setup([]Option{WithConfig(cfg), WithLogOutput(io.Discard)})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.registry.Tools(); len(got) != 2 {
		t.Errorf("tools = %d", len(got))
	}
	if err := c.store.Write("a.txt", []byte("x")); err != nil {
		t.Errorf("write into created dir: %v", err)
	}
}

func TestOpenWatcherFailureIsNotFatal(t *testing.T) {
	_, store := testutil.TestNotes(t)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	if w := openWatcher(filepath.Join(t.TempDir(), "missing"), store, logger); w != nil {
		t.Fatal("expected nil watcher for a missing directory")
	}

	root, store := testutil.TestNotes(t)
	w := openWatcher(root, store, logger)
	if w == nil {
		t.Fatal("expected a watcher")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx, nil); err != nil {
		t.Errorf("run: %v", err)
	}
}

func TestForwardFeedsBroker(t *testing.T) {
	b := sse.NewBroker(nil, time.Millisecond, nil)
	defer b.Close()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)
	<-sub.Frames() // initial listing

	forward(b)(watch.Created, models.NoteInfo{Name: "a.txt", Size: 1})

	select {
	case f := <-sub.Frames():
		if !strings.HasPrefix(string(f), "event: note.created\ndata: {\"name\":\"a.txt\"") {
			t.Errorf("frame = %q", f)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for note.created")
	}
}
