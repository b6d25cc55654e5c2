// Package incoming implements the Incoming Blob: a staged temp file written
// under the store's incoming/ directory while its digest is computed, then
// either adopted (moved into the hierarchy) or dropped.
package incoming

import (
	"fmt"
	"io"
	"path/filepath"
	"sync/atomic"

	"github.com/blobshard/blobshard/internal/digest"
	"github.com/blobshard/blobshard/internal/fsutil"
)

// Staging owns the incoming/ directory and hands out uniquely-named Blobs.
// Temp names are drawn from a per-instance monotonic counter, so names are
// disjoint across concurrent FromStream calls without any locking.
type Staging struct {
	dir     string
	fs      *fsutil.FS
	counter uint64
}

// NewStaging returns a Staging rooted at dir, which must already exist.
func NewStaging(dir string, fs *fsutil.FS) *Staging {
	return &Staging{dir: dir, fs: fs}
}

// Blob is a temp file holding freshly written bytes and the digest computed
// while writing them. It owns its temp file until MoveTo or Drop is called.
type Blob struct {
	fs      *fsutil.FS
	tmpPath string
	size    int64
	sum     []byte
	spent   bool
}

// FromStream copies src into a new temp file inside the staging directory,
// computing algo's digest as it goes, using a 32 KiB copy buffer. On any
// read/write error the temp file is deleted before the error is returned.
func (s *Staging) FromStream(src io.Reader, algo digest.Algorithm) (*Blob, error) {
	n := atomic.AddUint64(&s.counter, 1)
	tmpPath := filepath.Join(s.dir, fmt.Sprintf("incoming-%d.tmp", n))

	f, err := s.fs.OpenNew(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("staging incoming blob: %w", err)
	}

	h := algo.New()
	written, copyErr := fsutil.CopyBuffered(io.MultiWriter(f, h), src)
	closeErr := f.Close()

	if copyErr != nil || closeErr != nil {
		s.fs.DeleteIfExists(tmpPath)
		if copyErr != nil {
			return nil, fmt.Errorf("writing incoming blob: %w", copyErr)
		}
		return nil, fmt.Errorf("closing incoming blob: %w", closeErr)
	}

	return &Blob{
		fs:      s.fs,
		tmpPath: tmpPath,
		size:    written,
		sum:     h.Sum(nil),
	}, nil
}

// Size returns the number of bytes written to the staged file.
func (b *Blob) Size() int64 { return b.size }

// Digest returns the digest computed while writing the staged file.
func (b *Blob) Digest() []byte { return b.sum }

// MoveTo atomically renames the staged temp file to dest, creating dest's
// parent directory if needed. On success the Blob no longer owns a file and
// subsequent Drop calls are no-ops.
func (b *Blob) MoveTo(dest string) error {
	if b.spent {
		return fmt.Errorf("incoming blob already moved or dropped")
	}
	if err := b.fs.EnsureDir(filepath.Dir(dest)); err != nil {
		return fmt.Errorf("preparing destination directory: %w", err)
	}
	if err := b.fs.AtomicMove(b.tmpPath, dest); err != nil {
		return fmt.Errorf("adopting incoming blob: %w", err)
	}
	b.spent = true
	return nil
}

// Drop deletes the temp file if it still exists. It is a no-op if the blob
// was already adopted via MoveTo. Safe to call multiple times.
func (b *Blob) Drop() {
	if b.spent {
		return
	}
	b.spent = true
	b.fs.DeleteIfExists(b.tmpPath)
}
