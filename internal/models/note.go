// Package models defines the domain types for Quill.
package models

import "time"

// NoteInfo describes a note file in the notes directory.
type NoteInfo struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
