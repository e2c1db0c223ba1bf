package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/sandbox"
)

// TempPrefix marks in-flight atomic writes. Such files are never listed.
const TempPrefix = ".quill-tmp-"

// FS implements Provider on top of a sandboxed notes directory.
type FS struct {
	dir *sandbox.Dir
}

// NewFS creates a new FS provider over dir.
func NewFS(dir *sandbox.Dir) *FS {
	return &FS{dir: dir}
}

var _ Provider = (*FS)(nil)

// Name returns the sandboxed basename for raw.
func (f *FS) Name(raw string) string {
	return filepath.Base(f.dir.Resolve(raw))
}

// Read returns the raw bytes of a note. Missing notes yield an error
// matching fs.ErrNotExist.
func (f *FS) Read(raw string) ([]byte, error) {
	data, err := os.ReadFile(f.dir.Resolve(raw))
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", f.Name(raw), err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
// Concurrent writers to the same note race; the last rename wins.
func (f *FS) Write(raw string, content []byte) error {
	abs := f.dir.Resolve(raw)

	tmp, err := os.CreateTemp(f.dir.Root(), TempPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("storage: chmod: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Stat returns metadata for a note. Directories count as missing.
func (f *FS) Stat(raw string) (models.NoteInfo, error) {
	abs := f.dir.Resolve(raw)
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.NoteInfo{}, apperr.ErrNotFound
		}
		return models.NoteInfo{}, fmt.Errorf("storage: stat %s: %w", f.Name(raw), err)
	}
	if !info.Mode().IsRegular() {
		return models.NoteInfo{}, apperr.ErrNotFound
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return models.NoteInfo{}, fmt.Errorf("storage: read %s: %w", f.Name(raw), err)
	}
	return noteInfo(info, data), nil
}

// Open returns a seekable reader for a note along with its metadata.
func (f *FS) Open(raw string) (io.ReadSeekCloser, models.NoteInfo, error) {
	meta, err := f.Stat(raw)
	if err != nil {
		return nil, models.NoteInfo{}, err
	}
	file, err := os.Open(f.dir.Resolve(raw))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, models.NoteInfo{}, apperr.ErrNotFound
		}
		return nil, models.NoteInfo{}, fmt.Errorf("storage: open %s: %w", meta.Name, err)
	}
	return file, meta, nil
}

// List returns metadata for every regular file directly in the notes
// directory, skipping subdirectories and in-flight temp files.
func (f *FS) List() ([]models.NoteInfo, error) {
	entries, err := os.ReadDir(f.dir.Root())
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	out := make([]models.NoteInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), TempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // removed since ReadDir
			}
			return nil, fmt.Errorf("storage: list: %w", err)
		}
		data, err := os.ReadFile(filepath.Join(f.dir.Root(), e.Name()))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("storage: list: %w", err)
		}
		out = append(out, noteInfo(info, data))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func noteInfo(info fs.FileInfo, data []byte) models.NoteInfo {
	return models.NoteInfo{
		Name:      info.Name(),
		Size:      info.Size(),
		Checksum:  sum(data),
		UpdatedAt: info.ModTime(),
	}
}

func sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
