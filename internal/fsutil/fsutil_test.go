package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/blobshard/blobshard/internal/metrics"
)

func newFS() (*FS, *metrics.Registry) {
	m := metrics.New()
	return New(m), m
}

func TestExists(t *testing.T) {
	fs, _ := newFS()
	dir := t.TempDir()
	file := filepath.Join(dir, "a")

	exists, err := fs.Exists(file)
	if err != nil || exists {
		t.Fatalf("Exists() = %v, %v, want false, nil", exists, err)
	}

	os.WriteFile(file, []byte("x"), 0o644)
	exists, err = fs.Exists(file)
	if err != nil || !exists {
		t.Fatalf("Exists() = %v, %v, want true, nil", exists, err)
	}
}

func TestEnsureDir(t *testing.T) {
	fs, m := newFS()
	dir := filepath.Join(t.TempDir(), "a", "b")

	if err := fs.EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	isDir, err := fs.IsDirectory(dir)
	if err != nil || !isDir {
		t.Fatalf("IsDirectory() = %v, %v, want true, nil", isDir, err)
	}
	if m.Get(metrics.OpCreateDir) != 1 {
		t.Errorf("OpCreateDir counter = %d, want 1", m.Get(metrics.OpCreateDir))
	}

	// Idempotent: calling again on an existing directory succeeds.
	if err := fs.EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir() second call error = %v", err)
	}
}

func TestEnsureDirRejectsFile(t *testing.T) {
	fs, _ := newFS()
	dir := t.TempDir()
	file := filepath.Join(dir, "notadir")
	os.WriteFile(file, []byte("x"), 0o644)

	if err := fs.EnsureDir(file); err == nil {
		t.Fatal("EnsureDir() on a file, want error")
	}
}

func TestAtomicMove(t *testing.T) {
	fs, m := newFS()
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	os.WriteFile(src, []byte("payload"), 0o644)

	if err := fs.AtomicMove(src, dst); err != nil {
		t.Fatalf("AtomicMove() error = %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source still exists after move")
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "payload" {
		t.Errorf("dst content = %q, %v, want %q, nil", data, err, "payload")
	}
	if m.Get(metrics.OpAtomicMove) != 1 {
		t.Errorf("OpAtomicMove counter = %d, want 1", m.Get(metrics.OpAtomicMove))
	}
}

func TestRemoveIfEmpty(t *testing.T) {
	fs, _ := newFS()
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	os.Mkdir(sub, 0o755)

	removed, err := fs.RemoveIfEmpty(sub)
	if err != nil || !removed {
		t.Fatalf("RemoveIfEmpty() = %v, %v, want true, nil", removed, err)
	}
	if _, err := os.Stat(sub); !os.IsNotExist(err) {
		t.Error("directory still exists after RemoveIfEmpty")
	}
}

func TestRemoveIfEmptyLeavesNonEmpty(t *testing.T) {
	fs, _ := newFS()
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	os.Mkdir(sub, 0o755)
	os.WriteFile(filepath.Join(sub, "file"), []byte("x"), 0o644)

	removed, err := fs.RemoveIfEmpty(sub)
	if err != nil || removed {
		t.Fatalf("RemoveIfEmpty() = %v, %v, want false, nil", removed, err)
	}
}

func TestRemoveAll(t *testing.T) {
	fs, _ := newFS()
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	os.MkdirAll(filepath.Join(sub, "nested"), 0o755)
	os.WriteFile(filepath.Join(sub, "nested", "f"), []byte("x"), 0o644)

	if err := fs.RemoveAll(sub); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}
	if _, err := os.Stat(sub); !os.IsNotExist(err) {
		t.Error("tree still exists after RemoveAll")
	}

	// Removing an already-absent tree is not an error.
	if err := fs.RemoveAll(sub); err != nil {
		t.Errorf("RemoveAll() on absent path error = %v, want nil", err)
	}
}
