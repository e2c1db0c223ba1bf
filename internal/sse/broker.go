// Package sse streams the state of the notes directory to browsers as
// Server-Sent Events.
//
// A new client first receives the full listing as notes.changed. After that
// every change produces one per-note event, and the listing is re-sent at
// most once per throttle window, always including the latest state.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/starford/quill/internal/models"
)

// Event types.
const (
	TypeNoteCreated  = "note.created"
	TypeNoteUpdated  = "note.updated"
	TypeNoteRemoved  = "note.removed"
	TypeNotesChanged = "notes.changed"
)

// DefaultListThrottle is the minimum gap between two notes.changed events.
const DefaultListThrottle = 2 * time.Second

const (
	heartbeat    = 25 * time.Second
	clientBuffer = 64
)

// Change describes one note event. For removals only Note.Name is used.
type Change struct {
	Type string
	Note models.NoteInfo
}

// Listing is the notes.changed payload.
type Listing struct {
	Notes []models.NoteInfo `json:"notes"`
}

type removed struct {
	Name string `json:"name"`
}

// Subscription is one connected client.
type Subscription struct {
	frames chan []byte
}

// Frames yields encoded SSE frames until the subscription ends.
func (s *Subscription) Frames() <-chan []byte {
	return s.frames
}

// Broker keeps the current listing and fans note events out to clients.
// A single goroutine owns the listing and the client set.
type Broker struct {
	throttle time.Duration
	logger   *slog.Logger

	changes chan Change
	join    chan *Subscription
	leave   chan *Subscription

	quit    chan struct{}
	done    chan struct{}
	closing atomic.Bool
}

// NewBroker starts a broker seeded with the notes currently on disk. A
// non-positive throttle uses DefaultListThrottle.
func NewBroker(initial []models.NoteInfo, throttle time.Duration, logger *slog.Logger) *Broker {
	if throttle <= 0 {
		throttle = DefaultListThrottle
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Broker{
		throttle: throttle,
		logger:   logger,
		changes:  make(chan Change, 256),
		join:     make(chan *Subscription),
		leave:    make(chan *Subscription),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	notes := make(map[string]models.NoteInfo, len(initial))
	for _, n := range initial {
		notes[n.Name] = n
	}
	go b.loop(notes)
	return b
}

func frame(typ string, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", typ, payload)), nil
}

func listing(notes map[string]models.NoteInfo) Listing {
	out := Listing{Notes: make([]models.NoteInfo, 0, len(notes))}
	for _, n := range notes {
		out.Notes = append(out.Notes, n)
	}
	sort.Slice(out.Notes, func(i, j int) bool { return out.Notes[i].Name < out.Notes[j].Name })
	return out
}

func (b *Broker) loop(notes map[string]models.NoteInfo) {
	defer close(b.done)

	subs := make(map[*Subscription]struct{})

	var (
		lastListing time.Time
		pending     bool
		flush       *time.Timer
		flushC      <-chan time.Time
	)

	deliver := func(to []*Subscription, typ string, v any) {
		f, err := frame(typ, v)
		if err != nil {
			b.logger.Warn("sse: encode event", slog.String("type", typ), slog.String("error", err.Error()))
			return
		}
		for _, s := range to {
			select {
			case s.frames <- f:
			default:
				// slow client; drop the frame
			}
		}
	}
	all := func() []*Subscription {
		out := make([]*Subscription, 0, len(subs))
		for s := range subs {
			out = append(out, s)
		}
		return out
	}
	sendListing := func() {
		pending = false
		lastListing = time.Now()
		deliver(all(), TypeNotesChanged, listing(notes))
	}

	for {
		select {
		case <-b.quit:
			if flush != nil {
				flush.Stop()
			}
			for s := range subs {
				close(s.frames)
			}
			return

		case s := <-b.join:
			subs[s] = struct{}{}
			deliver([]*Subscription{s}, TypeNotesChanged, listing(notes))
			b.logger.Debug("sse: client joined", slog.Int("clients", len(subs)))

		case s := <-b.leave:
			if _, ok := subs[s]; ok {
				delete(subs, s)
				close(s.frames)
				b.logger.Debug("sse: client left", slog.Int("clients", len(subs)))
			}

		case c := <-b.changes:
			if c.Type == TypeNoteRemoved {
				delete(notes, c.Note.Name)
				deliver(all(), c.Type, removed{Name: c.Note.Name})
			} else {
				notes[c.Note.Name] = c.Note
				deliver(all(), c.Type, c.Note)
			}

			wait := b.throttle - time.Since(lastListing)
			switch {
			case wait <= 0:
				sendListing()
			case !pending:
				pending = true
				if flush == nil {
					flush = time.NewTimer(wait)
					flushC = flush.C
				} else {
					flush.Reset(wait)
				}
			}

		case <-flushC:
			if pending {
				sendListing()
			}
		}
	}
}

// Close stops the broker and ends every subscription. It is safe to call
// more than once.
func (b *Broker) Close() {
	if b.closing.CompareAndSwap(false, true) {
		close(b.quit)
	}
	<-b.done
}

// Subscribe registers a client. Its first frame is the current listing.
func (b *Broker) Subscribe() *Subscription {
	s := &Subscription{frames: make(chan []byte, clientBuffer)}
	if b.closing.Load() {
		close(s.frames)
		return s
	}
	select {
	case b.join <- s:
	case <-b.done:
		close(s.frames)
	}
	return s
}

// Unsubscribe ends a subscription.
func (b *Broker) Unsubscribe(s *Subscription) {
	if b.closing.Load() {
		return
	}
	select {
	case b.leave <- s:
	case <-b.done:
	}
}

// NoteChanged records a change and broadcasts it. c.Type is one of the
// TypeNote* constants.
func (b *Broker) NoteChanged(c Change) {
	if b.closing.Load() {
		return
	}
	select {
	case b.changes <- c:
	case <-b.done:
	}
}

// ServeHTTP streams events to one client until it disconnects.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "retry: 3000\n\n")
	flusher.Flush()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	ping := time.NewTicker(heartbeat)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case f, ok := <-sub.Frames():
			if !ok {
				return
			}
			_, _ = w.Write(f)
			flusher.Flush()
		}
	}
}
