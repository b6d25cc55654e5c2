// Package manualstore implements the manual-reference mode: a degenerate,
// single-level sibling of the blob store's content-addressed hierarchy.
// Callers supply their own key — a hex string, not necessarily a computed
// digest — instead of relying on the store to compute one, sharding is a
// single fixed level instead of a self-balancing tree, and there is no
// deduplication — the key, not the bytes, identifies a blob.
package manualstore

import (
	"context"
	"fmt"
	"hash"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/blobshard/blobshard/internal/fsutil"
	"github.com/blobshard/blobshard/internal/incoming"
	"github.com/blobshard/blobshard/internal/metrics"
	"github.com/blobshard/blobshard/internal/ref"
	"github.com/blobshard/blobshard/internal/storeerr"
)

// Store is an open manual-reference store rooted at <root>/manual.
type Store struct {
	mu sync.Mutex

	dir     string
	incDir  string
	fs      *fsutil.FS
	metrics *metrics.Registry
	staging *incoming.Staging

	closed        bool
	cancelSignals context.CancelFunc
}

// Blob is a handle to a manually-keyed blob.
type Blob struct {
	key  string
	size int64
	path string
}

// Key returns the canonical lowercase-hex identifier the blob was stored
// under (see validateKey — this may differ in case from what the caller
// originally passed to Add, though never in value).
func (b *Blob) Key() string { return b.key }

// Size returns the blob's size in bytes.
func (b *Blob) Size() int64 { return b.size }

// Open returns a reader over the blob's bytes. Callers must Close it.
func (b *Blob) Open() (io.ReadCloser, error) {
	f, err := os.Open(b.path)
	if err != nil {
		return nil, fmt.Errorf("opening blob %s: %w", b.key, err)
	}
	return f, nil
}

// Open opens (creating if necessary) a manual-reference store rooted at
// <root>/manual. It also registers a SIGINT/SIGTERM hook that calls Close
// once on the store's behalf if the process exits before the caller closes
// it explicitly.
func Open(root string, fs *fsutil.FS, m *metrics.Registry) (*Store, error) {
	dir := filepath.Join(root, "manual")
	if err := fs.EnsureDir(dir); err != nil {
		return nil, storeerr.New(storeerr.IoFailure, "manualstore.Open", err)
	}
	incDir := filepath.Join(dir, "incoming")
	if err := fs.EnsureDir(incDir); err != nil {
		return nil, storeerr.New(storeerr.IoFailure, "manualstore.Open", err)
	}

	s := &Store{
		dir:     dir,
		incDir:  incDir,
		fs:      fs,
		metrics: m,
		staging: incoming.NewStaging(incDir, fs),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	s.cancelSignals = cancel
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	return s, nil
}

// shard splits a key into its single-level shard name and the remainder
// used as the blob's filename stem. The split is purely mechanical — the
// two halves concatenate back to the original key. Callers must have
// already validated key through validateKey, which guarantees at least
// four characters.
func shard(key string) (dirName, stem string) {
	return key[:2], key[2:]
}

// validateKey parses key as a Blob Reference: an even-length hex string of
// at least two bytes, the same rule the original manual "put" mode applied
// to caller-supplied keys (Ref's checkHex/checkLength). The returned Ref's
// ID is the canonical lowercase-hex form used for sharding and storage, so
// "AB12" and "ab12" resolve to the same blob.
func validateKey(key string) (ref.Ref, error) {
	if len(key) < 4 || len(key)%2 != 0 {
		return ref.Ref{}, storeerr.New(storeerr.BadIdentifier, "manualstore.validateKey",
			fmt.Errorf("key must be an even number of hex characters, at least 4, got %d", len(key)))
	}
	return ref.FromHex(key, len(key)/2)
}

func (s *Store) blobPath(key string) string {
	dirName, stem := shard(key)
	return filepath.Join(s.dir, dirName, stem+".blob")
}

func (s *Store) checkOpen(op string) error {
	if s.closed {
		return storeerr.New(storeerr.StoreClosed, op, nil)
	}
	return nil
}

// Add stores src under key, overwriting any existing blob with that key.
// There is no content-based deduplication: two keys with identical bytes
// produce two files.
func (s *Store) Add(key string, src io.Reader) (*Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("manualstore.Add"); err != nil {
		return nil, err
	}
	r, err := validateKey(key)
	if err != nil {
		return nil, err
	}
	key = r.ID()

	staged, err := s.staging.FromStream(src, nopAlgorithm{})
	if err != nil {
		return nil, storeerr.New(storeerr.IoFailure, "manualstore.Add", err)
	}

	dest := s.blobPath(key)
	if err := staged.MoveTo(dest); err != nil {
		return nil, storeerr.New(storeerr.IoFailure, "manualstore.Add", err)
	}
	size, err := s.fs.Size(dest)
	if err != nil {
		size = staged.Size()
	}
	return &Blob{key: key, size: size, path: dest}, nil
}

// Get resolves key to a Blob. It returns (nil, nil) if no blob with that
// key exists.
func (s *Store) Get(key string) (*Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("manualstore.Get"); err != nil {
		return nil, err
	}
	r, err := validateKey(key)
	if err != nil {
		return nil, err
	}
	key = r.ID()

	path := s.blobPath(key)
	exists, err := s.fs.Exists(path)
	if err != nil {
		return nil, storeerr.New(storeerr.IoFailure, "manualstore.Get", err)
	}
	if !exists {
		return nil, nil
	}
	size, err := s.fs.Size(path)
	if err != nil {
		return nil, storeerr.New(storeerr.IoFailure, "manualstore.Get", err)
	}
	return &Blob{key: key, size: size, path: path}, nil
}

// Delete removes the blob stored under key, if present, pruning its shard
// directory if that leaves it empty. It reports whether anything was
// removed.
func (s *Store) Delete(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("manualstore.Delete"); err != nil {
		return false, err
	}
	r, err := validateKey(key)
	if err != nil {
		return false, err
	}
	key = r.ID()

	path := s.blobPath(key)
	removed, err := s.fs.DeleteIfExists(path)
	if err != nil {
		return false, storeerr.New(storeerr.IoFailure, "manualstore.Delete", err)
	}
	if removed {
		dirName, _ := shard(key)
		s.fs.RemoveIfEmpty(filepath.Join(s.dir, dirName))
	}
	return removed, nil
}

// Close marks the store closed and removes any leftover incoming/ staging
// files. The store is marked closed even if that cleanup fails, per the
// store's error propagation policy: a caller learns about the failure but
// every subsequent operation still fails fast with StoreClosed rather than
// retrying the cleanup.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	err := s.fs.RemoveAll(s.incDir)
	s.closed = true
	if s.cancelSignals != nil {
		s.cancelSignals()
	}
	if err != nil {
		return storeerr.New(storeerr.IoFailure, "manualstore.Close", err)
	}
	return nil
}

// nopAlgorithm satisfies digest.Algorithm without computing anything —
// manual-reference mode keys blobs by caller-supplied identifier, not by
// content digest, so incoming.Staging's digest computation is discarded.
type nopAlgorithm struct{}

func (nopAlgorithm) Name() string   { return "none" }
func (nopAlgorithm) Len() int       { return 0 }
func (nopAlgorithm) New() hash.Hash { return nopHash{} }

type nopHash struct{}

func (nopHash) Write(p []byte) (int, error) { return len(p), nil }
func (nopHash) Sum(b []byte) []byte         { return b }
func (nopHash) Reset()                      {}
func (nopHash) Size() int                   { return 0 }
func (nopHash) BlockSize() int              { return 1 }
