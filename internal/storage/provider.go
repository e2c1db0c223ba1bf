// Package storage defines the flat notes-directory abstraction.
package storage

import (
	"io"

	"github.com/starford/quill/internal/models"
)

// Provider is the interface for note file operations. Every name is a raw,
// caller-supplied string; implementations reduce it to a basename first.
type Provider interface {
	// Name returns the basename a raw name resolves to.
	Name(raw string) string
	// Read returns the raw bytes of the note.
	Read(raw string) ([]byte, error)
	// Write atomically replaces the note with content.
	Write(raw string, content []byte) error
	// Stat returns metadata for the note, or apperr.ErrNotFound.
	Stat(raw string) (models.NoteInfo, error)
	// Open returns a reader for the note, or apperr.ErrNotFound.
	Open(raw string) (io.ReadSeekCloser, models.NoteInfo, error)
	// List returns metadata for every note, sorted by name.
	List() ([]models.NoteInfo, error)
}
