// Package testutil provides shared test helpers for setting up notes directories.
package testutil

import (
	"testing"

	"github.com/starford/quill/internal/sandbox"
	"github.com/starford/quill/internal/storage"
)

// TestSandbox creates a temporary notes directory.
func TestSandbox(t *testing.T) *sandbox.Dir {
	t.Helper()
	dir, err := sandbox.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

// TestNotes creates a temporary notes directory with a storage.Provider and
// returns its absolute root.
func TestNotes(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := TestSandbox(t)
	return dir.Root(), storage.NewFS(dir)
}
