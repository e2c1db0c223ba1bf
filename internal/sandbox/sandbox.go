// Package sandbox confines note file access to a single flat directory.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FallbackName replaces caller-supplied names that have no usable basename
// (empty, ".", "..", or a bare separator).
const FallbackName = "untitled"

// Dir is the notes directory. Every name handed to Resolve lands directly
// inside it, never in a subdirectory and never outside.
type Dir struct {
	root string // absolute path
}

// New makes root absolute, creates it (with parents) if missing and returns
// a Dir rooted there.
func New(root string) (*Dir, error) {
	if root == "" {
		return nil, fmt.Errorf("sandbox: root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("sandbox: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("sandbox: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("sandbox: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox: root is not a directory: %s", abs)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute notes directory.
func (d *Dir) Root() string {
	return d.root
}

// Base strips every directory component from raw. Both '/' and '\' count as
// separators so Windows-style input cannot smuggle in a path either.
func Base(raw string) string {
	name := strings.TrimRight(raw, `/\`)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return FallbackName
	}
	return name
}

// Resolve maps any caller-supplied string to a path directly inside the notes
// directory. It never touches the file system.
func (d *Dir) Resolve(raw string) string {
	return filepath.Join(d.root, Base(raw))
}
