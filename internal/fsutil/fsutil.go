// Package fsutil wraps the platform file operations the blob store engine
// needs — existence tests, directory creation and listing, atomic rename,
// recursive delete, and delete-if-empty — instrumenting each one through
// the Metrics Registry. The hierarchy and staging packages reach the
// filesystem only through it.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/blobshard/blobshard/internal/metrics"
)

// FS wraps filesystem operations, incrementing a named counter in the
// supplied Metrics Registry on every call.
type FS struct {
	metrics *metrics.Registry
}

// New returns an FS that reports through the given Metrics Registry.
func New(m *metrics.Registry) *FS {
	return &FS{metrics: m}
}

// Exists reports whether path exists (as any kind of file).
func (f *FS) Exists(path string) (bool, error) {
	f.metrics.Inc(metrics.OpExists)
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}

// IsDirectory reports whether path exists and is a directory. If path does
// not exist at all, it returns (false, nil) rather than an error.
func (f *FS) IsDirectory(path string) (bool, error) {
	f.metrics.Inc(metrics.OpIsDirectory)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.IsDir(), nil
}

// EnsureDir creates path (and any missing parents) as a directory if it
// does not already exist. It fails if path exists but is not a directory.
func (f *FS) EnsureDir(path string) error {
	f.metrics.Inc(metrics.OpCreateDir)
	isDir, err := f.IsDirectory(path)
	if err != nil {
		return err
	}
	if isDir {
		return nil
	}
	exists, err := f.Exists(path)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%s exists but is not a directory", path)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	return nil
}

// List returns the directory entries at path.
func (f *FS) List(path string) ([]os.DirEntry, error) {
	f.metrics.Inc(metrics.OpList)
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("listing directory %s: %w", path, err)
	}
	return entries, nil
}

// AtomicMove renames src to dst. Both paths must be on the same filesystem
// for the atomicity guarantee to hold; the store arranges this by keeping
// its staging directory inside the store root.
func (f *FS) AtomicMove(src, dst string) error {
	f.metrics.Inc(metrics.OpAtomicMove)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", src, dst, err)
	}
	return nil
}

// DeleteIfExists removes path if it exists, reporting whether anything was
// removed. It does not error if path is already absent.
func (f *FS) DeleteIfExists(path string) (bool, error) {
	f.metrics.Inc(metrics.OpDeleteIfExists)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("removing %s: %w", path, err)
	}
	return true, nil
}

// RemoveIfEmpty removes path if it is a directory with no entries. It
// reports whether the directory was removed.
func (f *FS) RemoveIfEmpty(path string) (bool, error) {
	entries, err := f.List(path)
	if err != nil {
		return false, err
	}
	if len(entries) != 0 {
		return false, nil
	}
	return f.DeleteIfExists(path)
}

// RemoveAll recursively deletes path and everything under it. It does not
// error if path does not exist.
func (f *FS) RemoveAll(path string) error {
	f.metrics.Inc(metrics.OpDeleteIfExists)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("removing tree %s: %w", path, err)
	}
	return nil
}

// Size returns the size in bytes of the regular file at path.
func (f *FS) Size(path string) (int64, error) {
	f.metrics.Inc(metrics.OpSize)
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// OpenNew creates path for writing, failing if it already exists. Used for
// deterministically-named staging files where the caller (not the OS) picks
// the unique name.
func (f *FS) OpenNew(path string) (*os.File, error) {
	f.metrics.Inc(metrics.OpOpenOutput)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return file, nil
}

// CopyBuffered copies src to dst using a 32 KiB buffer, matching the copy
// granularity spec.md mandates for the incoming-blob staging pipeline.
func CopyBuffered(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	// Hide io.WriterTo / io.ReaderFrom so io.CopyBuffer always uses buf.
	return io.CopyBuffer(struct{ io.Writer }{dst}, struct{ io.Reader }{src}, buf)
}

// JoinBlobName builds the on-disk filename for a blob file with the given
// hex identifier.
func JoinBlobName(dir, hexID string) string {
	return filepath.Join(dir, hexID+".blob")
}
