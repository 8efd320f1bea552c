package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"testing"
)

func writeAll(t *testing.T, w io.WriteCloser, s string) {
	t.Helper()
	if _, err := w.Write([]byte(s)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestMemoryFileSystem_CreateTruncates(t *testing.T) {
	m := NewMemoryFileSystem()
	if err := m.WriteFile("/out/results.csv", []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := m.Create("/out/results.csv")
	if err != nil {
		t.Fatal(err)
	}
	writeAll(t, w, "new")

	got, err := m.ReadFile("/out/results.csv")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Errorf("got %q, want %q", got, "new")
	}
}

func TestMemoryFileSystem_OpenAppend(t *testing.T) {
	m := NewMemoryFileSystem()

	w, err := m.OpenAppend("/out/results.csv")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Exists("/out/results.csv") {
		t.Error("OpenAppend should create the file")
	}
	writeAll(t, w, "a\n")

	w, err = m.OpenAppend("/out/results.csv")
	if err != nil {
		t.Fatal(err)
	}
	writeAll(t, w, "b\n")

	got, _ := m.ReadFile("/out/results.csv")
	if string(got) != "a\nb\n" {
		t.Errorf("got %q, want %q", got, "a\nb\n")
	}
}

func TestMemoryFileSystem_WriteAfterClose(t *testing.T) {
	m := NewMemoryFileSystem()
	w, _ := m.Create("/x")
	writeAll(t, w, "x")

	if _, err := w.Write([]byte("y")); !errors.Is(err, fs.ErrClosed) {
		t.Errorf("expected fs.ErrClosed, got %v", err)
	}
}

func TestMemoryFileSystem_OpenNonExistent(t *testing.T) {
	m := NewMemoryFileSystem()
	if _, err := m.Open("/missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
	if _, err := m.Stat("/missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_StatAndDirs(t *testing.T) {
	m := NewMemoryFileSystem()
	_ = m.MkdirAll("/a/b/c", 0o755)
	_ = m.WriteFile("/a/b/c/file.txt", []byte("hello"), 0o600)

	for _, dir := range []string{"/a", "/a/b", "/a/b/c"} {
		info, err := m.Stat(dir)
		if err != nil {
			t.Fatalf("Stat(%s): %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s should be a directory", dir)
		}
	}

	info, err := m.Stat("/a/b/c/file.txt")
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 5 || info.Mode() != 0o600 {
		t.Errorf("unexpected info size=%d mode=%v", info.Size(), info.Mode())
	}
}

func TestMemoryFileSystem_OpenRead(t *testing.T) {
	m := NewMemoryFileSystem()
	_ = m.WriteFile("/r.txt", []byte("contents"), 0o644)

	f, err := m.Open("/r.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "contents" {
		t.Errorf("got %q", data)
	}
}

func TestMemoryFileSystem_List(t *testing.T) {
	m := NewMemoryFileSystem()
	_ = m.WriteFile("/blobs/b.png", nil, 0o644)
	_ = m.WriteFile("/blobs/a.csv", nil, 0o644)
	_ = m.WriteFile("/other/c.txt", nil, 0o644)

	got, err := m.List("/blobs")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"/blobs/a.csv", "/blobs/b.png"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("List = %v, want %v", got, want)
	}
}

func TestMemoryFileSystem_PathCleaning(t *testing.T) {
	m := NewMemoryFileSystem()
	_ = m.WriteFile("/a/../b/./file.txt", []byte("x"), 0o644)
	if !m.Exists("/b/file.txt") {
		t.Error("path should be cleaned")
	}
}

func TestOSFileSystem_AppendAndList(t *testing.T) {
	dir := t.TempDir()
	osfs := OSFileSystem{}
	path := filepath.Join(dir, "sub", "results.csv")

	if err := osfs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	w, err := osfs.OpenAppend(path)
	if err != nil {
		t.Fatal(err)
	}
	writeAll(t, w, "1\n")
	w, err = osfs.OpenAppend(path)
	if err != nil {
		t.Fatal(err)
	}
	writeAll(t, w, "2\n")

	data, err := osfs.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "1\n2\n" {
		t.Errorf("got %q", data)
	}

	files, err := osfs.List(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != path {
		t.Errorf("List = %v", files)
	}
	if !osfs.Exists(path) || osfs.Exists(filepath.Join(dir, "nope")) {
		t.Error("Exists mismatch")
	}
}
