// Package blobstore implements the top-level Blob Store: the public API
// that opens a store rooted at a directory, runs startup reconciliation,
// and serializes Add/Get/Delete through a single exclusive lock over the
// Blob Directory hierarchy.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/blobshard/blobshard/internal/blobdir"
	"github.com/blobshard/blobshard/internal/digest"
	"github.com/blobshard/blobshard/internal/fsutil"
	"github.com/blobshard/blobshard/internal/incoming"
	"github.com/blobshard/blobshard/internal/metrics"
	"github.com/blobshard/blobshard/internal/ref"
	"github.com/blobshard/blobshard/internal/storeerr"
	"github.com/blobshard/blobshard/internal/storelog"
)

// Logger is the structured-logging surface the store and its hierarchy
// report through. Both storelog.Logger and blobdir.Logger are satisfied by
// any type implementing this method set.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// nopLogger discards everything. Used when Open is called without one.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// loggerAdapter narrows Logger down to the single method blobdir.Dir needs,
// so blobdir does not have to depend on this package's wider interface.
type loggerAdapter struct{ l Logger }

func (a loggerAdapter) Warn(msg string, kv ...any) { a.l.Warn(msg, kv...) }

// Options configures Open. Algorithm and MaxPerDir are required; Logger
// defaults to a no-op sink when nil.
type Options struct {
	// Algorithm is the digest algorithm name, e.g. "sha256" (see the
	// digest package's Names for the full registry).
	Algorithm string
	// MaxPerDir is the maximum number of blobs a single directory may hold
	// before new arrivals are pushed one level deeper. Must be >= 1.
	MaxPerDir int
	// Logger receives diagnostic messages about conditions the store
	// repairs or tolerates rather than failing on.
	Logger Logger
}

// Store is an open content-addressable blob store rooted at a directory on
// local disk. A Store is safe for concurrent use by multiple goroutines;
// every operation is serialized behind a single exclusive lock, matching
// the on-disk layout's single-process design; the lock does not coordinate
// with other processes writing under the same root.
type Store struct {
	mu sync.Mutex

	root        string
	incomingDir string
	algo        digest.Algorithm
	fs          *fsutil.FS
	metrics     *metrics.Registry
	staging     *incoming.Staging
	tree        *blobdir.Dir
	logger      Logger
	ops         storelog.OpCounter

	closed        bool
	cancelSignals context.CancelFunc
}

// logOp logs msg through s.logger tagged with a fresh short correlation ID
// for this internal operation (see storelog.OpCounter), distinct from any
// per-invocation opID an outer caller's logger was constructed with.
func (s *Store) logOp(level func(msg string, kv ...any), msg string, kv ...any) {
	level(msg, append([]any{"op", s.ops.Next()}, kv...)...)
}

// Blob is a handle to a blob already known to exist in the store, returned
// by Add and Get.
type Blob struct {
	id   string
	size int64
	path string
}

// ID returns the blob's hex digest identifier.
func (b *Blob) ID() string { return b.id }

// Size returns the blob's size in bytes.
func (b *Blob) Size() int64 { return b.size }

// Open returns a reader over the blob's bytes. Callers must Close it.
func (b *Blob) Open() (io.ReadCloser, error) {
	f, err := os.Open(b.path)
	if err != nil {
		return nil, fmt.Errorf("opening blob %s: %w", b.id, err)
	}
	return f, nil
}

func fromHandle(h *blobdir.Handle) *Blob {
	if h == nil {
		return nil
	}
	return &Blob{id: h.ID(), size: h.Size(), path: h.Path()}
}

// Open opens (creating if necessary) a blob store rooted at path, runs
// startup reconciliation over its existing contents, and returns a ready
// Store. path must exist or be creatable as a directory. Open also
// registers a SIGINT/SIGTERM hook that calls Close once on the store's
// behalf if the process is asked to exit before the caller closes it
// explicitly; Close's own closed check keeps that call a no-op otherwise.
func Open(path string, opts Options) (*Store, error) {
	if opts.MaxPerDir < 1 {
		return nil, storeerr.New(storeerr.InvalidArgument, "blobstore.Open",
			fmt.Errorf("maxPerDir must be >= 1, got %d", opts.MaxPerDir))
	}
	algo, err := digest.ByName(opts.Algorithm)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	m := metrics.New()
	fs := fsutil.New(m)
	if err := fs.EnsureDir(path); err != nil {
		return nil, storeerr.New(storeerr.IoFailure, "blobstore.Open", err)
	}

	incDir := filepath.Join(path, "incoming")
	if err := fs.EnsureDir(incDir); err != nil {
		return nil, storeerr.New(storeerr.IoFailure, "blobstore.Open", err)
	}

	blobsDir := filepath.Join(path, "blobs")
	if err := fs.EnsureDir(blobsDir); err != nil {
		return nil, storeerr.New(storeerr.IoFailure, "blobstore.Open", err)
	}

	tree := blobdir.NewRoot(blobsDir, algo.Len(), opts.MaxPerDir, fs, m, loggerAdapter{logger})

	blobCount, byteCount, err := tree.DeepScanAndDedupe()
	if err != nil {
		return nil, storeerr.New(storeerr.IoFailure, "blobstore.Open", err)
	}
	m.Set(metrics.BlobCount, blobCount)
	m.Set(metrics.ByteCount, byteCount)

	s := &Store{
		root:        path,
		incomingDir: incDir,
		algo:        algo,
		fs:          fs,
		metrics:     m,
		staging:     incoming.NewStaging(incDir, fs),
		tree:        tree,
		logger:      logger,
	}
	s.logOp(logger.Info, "blob store opened", "root", path, "algorithm", algo.Name(), "maxPerDir", opts.MaxPerDir, "blobCount", blobCount, "byteCount", byteCount)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	s.cancelSignals = cancel
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	return s, nil
}

func (s *Store) checkOpen(op string) error {
	if s.closed {
		return storeerr.New(storeerr.StoreClosed, op, nil)
	}
	return nil
}

// Add stages src, computes its digest with the store's configured
// algorithm, and inserts it into the hierarchy. Adding bytes that already
// exist under the same digest is a no-op beyond returning the existing
// Blob (I1).
func (s *Store) Add(src io.Reader) (*Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("blobstore.Add"); err != nil {
		return nil, err
	}

	staged, err := s.staging.FromStream(src, s.algo)
	if err != nil {
		return nil, storeerr.New(storeerr.IoFailure, "blobstore.Add", err)
	}

	r, err := ref.FromBytes(staged.Digest(), s.algo.Len())
	if err != nil {
		staged.Drop()
		return nil, err
	}

	h, err := s.tree.Add(r, staged)
	if err != nil {
		return nil, storeerr.New(storeerr.IoFailure, "blobstore.Add", err)
	}
	return fromHandle(h), nil
}

// Get resolves id, a hex digest string, to a Blob. It returns (nil, nil) if
// no blob with that digest exists.
func (s *Store) Get(id string) (*Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("blobstore.Get"); err != nil {
		return nil, err
	}

	r, err := ref.FromHex(id, s.algo.Len())
	if err != nil {
		return nil, err
	}
	h, err := s.tree.Get(r)
	if err != nil {
		return nil, storeerr.New(storeerr.IoFailure, "blobstore.Get", err)
	}
	return fromHandle(h), nil
}

// Delete removes the blob identified by id, if present. It reports whether
// a blob was actually removed.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("blobstore.Delete"); err != nil {
		return false, err
	}

	r, err := ref.FromHex(id, s.algo.Len())
	if err != nil {
		return false, err
	}
	removed, err := s.tree.Delete(r)
	if err != nil {
		return removed, storeerr.New(storeerr.IoFailure, "blobstore.Delete", err)
	}
	return removed, nil
}

// BlobCount returns the number of blobs currently stored.
func (s *Store) BlobCount() int64 {
	return s.metrics.Get(metrics.BlobCount)
}

// ByteCount returns the total size in bytes of every blob currently stored.
func (s *Store) ByteCount() int64 {
	return s.metrics.Get(metrics.ByteCount)
}

// Metrics returns a snapshot of every counter the store has recorded,
// including filesystem operation counts.
func (s *Store) Metrics() map[string]int64 {
	return s.metrics.Snapshot()
}

// Close releases the store. It removes any leftover incoming/ staging
// files (partial uploads are not resumed across a close, per the store's
// crash-recovery Non-goals) and marks the store closed; every subsequent
// Add, Get or Delete returns a StoreClosed error, while BlobCount, ByteCount
// and Metrics do not check for a closed store and keep returning the last
// counter values. The store is
// marked closed even if that cleanup fails: the failure is surfaced to the
// caller, but every later operation still fails fast with StoreClosed
// rather than retrying the cleanup.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	err := s.fs.RemoveAll(s.incomingDir)
	s.closed = true
	if s.cancelSignals != nil {
		s.cancelSignals()
	}
	if err != nil {
		return storeerr.New(storeerr.IoFailure, "blobstore.Close", err)
	}
	s.logOp(s.logger.Info, "blob store closed", "root", s.root)
	return nil
}
