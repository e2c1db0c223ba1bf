package sandbox

import (
	"os"
	"path/filepath"
	"testing"
)

func tempDir(t *testing.T) *Dir {
	t.Helper()
	d, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestResolveStaysInRoot(t *testing.T) {
	d := tempDir(t)

	cases := []string{
		"note.txt",
		"../../etc/passwd",
		"../outside.txt",
		"/etc/shadow",
		"a/b/c.txt",
		`..\..\windows\system.ini`,
		"..",
		".",
		"",
		"/",
		"dir/",
		"./x/../y.txt",
	}
	for _, raw := range cases {
		got := d.Resolve(raw)
		if filepath.Dir(got) != d.Root() {
			t.Errorf("Resolve(%q) = %q, parent is not %q", raw, got, d.Root())
		}
	}
}

func TestBase(t *testing.T) {
	cases := map[string]string{
		"shopping.txt":          "shopping.txt",
		"../../etc/passwd":      "passwd",
		"/abs/path/todo.md":     "todo.md",
		`C:\notes\win.txt`:      "win.txt",
		"dir/":                  "dir",
		"":                      FallbackName,
		"..":                    FallbackName,
		"../..":                 FallbackName,
		"/":                     FallbackName,
		"notes with spaces.txt": "notes with spaces.txt",
	}
	for in, want := range cases {
		if got := Base(in); got != want {
			t.Errorf("Base(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveDoesNotCreate(t *testing.T) {
	d := tempDir(t)
	p := d.Resolve("ghost.txt")
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Errorf("Resolve created or found %q: %v", p, err)
	}
}

func TestNewCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b", "notes")
	d, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	info, err := os.Stat(d.Root())
	if err != nil || !info.IsDir() {
		t.Fatalf("root not created: %v", err)
	}
}

func TestNewRelativeRootIsAbsolute(t *testing.T) {
	t.Chdir(t.TempDir())
	d, err := New("notes")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !filepath.IsAbs(d.Root()) {
		t.Errorf("root %q is not absolute", d.Root())
	}
}

func TestNewFileNotDir(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "quill-test-*")
	if err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	if _, err := New(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestNewEmptyRoot(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty root")
	}
}
