// Package notes implements the read and write note capabilities.
//
// Both operations report through a Result whose Text is the only feedback a
// planner sees. The wording of those texts is a wire contract: it is parsed
// downstream and must not change.
package notes

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"unicode/utf8"

	"github.com/starford/quill/internal/storage"
)

// Status tells a Success result from a Failure.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
)

func (s Status) String() string {
	if s == StatusSuccess {
		return "success"
	}
	return "failure"
}

// Write records a completed write. It travels alongside the result text so
// callers never have to parse the text to learn what was written.
type Write struct {
	Filename string
	Chars    int
}

// Result is the outcome of a capability call.
type Result struct {
	Status  Status
	Text    string
	Written *Write // set only by a successful write
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

func (r Result) String() string {
	return r.Text
}

// WriteSuccessText renders the write success message.
func WriteSuccessText(chars int, filename string) string {
	return fmt.Sprintf("Successfully wrote %d characters to '%s'.", chars, filename)
}

// Notebook exposes the note capabilities over a store.
type Notebook struct {
	store  storage.Provider
	logger *slog.Logger
}

// NewNotebook creates a Notebook. A nil logger falls back to slog.Default().
func NewNotebook(store storage.Provider, logger *slog.Logger) *Notebook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notebook{store: store, logger: logger}
}

// ReadNote loads the full text of a note. It never returns an error: every
// failure is encoded in the result.
func (n *Notebook) ReadNote(_ context.Context, raw string) Result {
	name := n.store.Name(raw)
	data, err := n.store.Read(raw)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return failure(fmt.Sprintf("Error: Note '%s' not found.", name))
		}
		n.logger.Warn("read note failed", slog.String("filename", name), slog.String("error", err.Error()))
		return failure("Error reading note: " + err.Error())
	}
	return Result{
		Status: StatusSuccess,
		Text:   fmt.Sprintf("Contents of '%s':\n%s", name, data),
	}
}

// WriteNote creates or truncates a note with content. The reported count is
// in characters (runes), not bytes.
func (n *Notebook) WriteNote(_ context.Context, raw, content string) Result {
	name := n.store.Name(raw)
	if err := n.store.Write(raw, []byte(content)); err != nil {
		n.logger.Warn("write note failed", slog.String("filename", name), slog.String("error", err.Error()))
		return failure("Error writing note: " + err.Error())
	}
	chars := utf8.RuneCountInString(content)
	return Result{
		Status:  StatusSuccess,
		Text:    WriteSuccessText(chars, name),
		Written: &Write{Filename: name, Chars: chars},
	}
}

func failure(text string) Result {
	return Result{Status: StatusFailure, Text: text}
}
