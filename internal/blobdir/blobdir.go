// Package blobdir implements the self-balancing directory hierarchy that
// backs the blob store: a tree of directories keyed by successive hex bytes
// of a blob's digest, each holding at most a configured number of blobs
// before it pushes new arrivals one level deeper.
package blobdir

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blobshard/blobshard/internal/bhex"
	"github.com/blobshard/blobshard/internal/fsutil"
	"github.com/blobshard/blobshard/internal/incoming"
	"github.com/blobshard/blobshard/internal/metrics"
	"github.com/blobshard/blobshard/internal/ref"
)

// Logger is the minimal structured-logging surface Dir needs to report
// conditions it repairs or tolerates rather than fails on (spec.md §7's
// "log and continue" cases). A nil Logger is treated as a no-op sink.
type Logger interface {
	Warn(msg string, kv ...any)
}

// Dir is one node of the hierarchy: the directory at path, reached from the
// store root by prefix (the concatenation of the hex names of every
// ancestor directory). depth is len(prefix)/2, i.e. how many digest bytes
// have already been consumed to reach this node.
type Dir struct {
	path      string
	prefix    string
	depth     int
	digestLen int
	maxPerDir int
	fs        *fsutil.FS
	metrics   *metrics.Registry
	logger    Logger

	loaded  bool
	blobs   map[string]struct{} // basenames: "<full-hex-id>.blob"
	subdirs map[string]struct{} // two-hex subdirectory names
}

// NewRoot returns the Dir for a store's root directory. digestLen is the
// digest algorithm's output length in bytes; maxPerDir is the configured
// per-directory blob threshold.
func NewRoot(path string, digestLen, maxPerDir int, fs *fsutil.FS, m *metrics.Registry, logger Logger) *Dir {
	return newDir(path, "", 0, digestLen, maxPerDir, fs, m, logger)
}

func newDir(path, prefix string, depth, digestLen, maxPerDir int, fs *fsutil.FS, m *metrics.Registry, logger Logger) *Dir {
	return &Dir{
		path:      path,
		prefix:    prefix,
		depth:     depth,
		digestLen: digestLen,
		maxPerDir: maxPerDir,
		fs:        fs,
		metrics:   m,
		logger:    logger,
		blobs:     make(map[string]struct{}),
		subdirs:   make(map[string]struct{}),
	}
}

func (d *Dir) warn(msg string, kv ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, kv...)
	}
}

// Handle is a reference to a blob already resolved to an on-disk path.
type Handle struct {
	path string
	id   string
	size int64
}

// ID returns the blob's hex digest identifier.
func (h *Handle) ID() string { return h.id }

// Size returns the blob's size in bytes, as read when the handle was created.
func (h *Handle) Size() int64 { return h.size }

// Path returns the blob's absolute on-disk path.
func (h *Handle) Path() string { return h.path }

func (d *Dir) blobName(r ref.Ref) string {
	return r.ID() + ".blob"
}

func (d *Dir) isBlobName(name string) bool {
	hexLen := 2 * d.digestLen
	if len(name) != hexLen+len(".blob") {
		return false
	}
	if name[hexLen:] != ".blob" {
		return false
	}
	hexPart := name[:hexLen]
	if !isLowerHex(hexPart) {
		return false
	}
	return strings.HasPrefix(hexPart, d.prefix)
}

func isLowerHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// readDir lazily lists the directory contents, classifying entries into
// known blobs and known subdirectories. Anything else — misnamed files,
// symlinks, directories with the wrong name shape — is silently ignored
// per I3, not deleted.
func (d *Dir) readDir() error {
	if d.loaded {
		return nil
	}
	entries, err := d.fs.List(d.path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir():
			if bhex.ValidSubdirName(name) {
				d.subdirs[name] = struct{}{}
			}
		case e.Type().IsRegular():
			if d.isBlobName(name) {
				d.blobs[name] = struct{}{}
			}
		}
	}
	d.loaded = true
	return nil
}

// isFull reports whether this directory already holds maxPerDir blobs.
func (d *Dir) isFull() bool {
	return len(d.blobs) >= d.maxPerDir
}

// resolve reports whether ref's blob is directly present in this directory
// and, if so, a Handle for it. It does not descend.
func (d *Dir) resolve(r ref.Ref) (*Handle, bool) {
	basename := d.blobName(r)
	if _, ok := d.blobs[basename]; !ok {
		return nil, false
	}
	return &Handle{path: fsutil.JoinBlobName(d.path, r.ID()), id: r.ID()}, true
}

// openChild returns the Dir for the subdirectory keyed by the digest byte at
// this node's depth, if that subdirectory currently exists. It returns
// (nil, nil) if there is no such subdirectory yet.
func (d *Dir) openChild(r ref.Ref) (*Dir, error) {
	if d.depth >= d.digestLen {
		return nil, nil
	}
	name := fmt.Sprintf("%02x", r.ByteAt(d.depth))
	if _, ok := d.subdirs[name]; !ok {
		return nil, nil
	}
	return newDir(filepath.Join(d.path, name), d.prefix+name, d.depth+1, d.digestLen, d.maxPerDir, d.fs, d.metrics, d.logger), nil
}

// descendCreate returns the Dir for the subdirectory keyed by the digest
// byte at this node's depth, creating it on disk if it does not yet exist.
func (d *Dir) descendCreate(r ref.Ref) (*Dir, error) {
	if d.depth >= d.digestLen {
		return nil, fmt.Errorf("blobdir: directory at prefix %q already spans the full digest", d.prefix)
	}
	name := fmt.Sprintf("%02x", r.ByteAt(d.depth))
	childPath := filepath.Join(d.path, name)
	if err := d.fs.EnsureDir(childPath); err != nil {
		return nil, err
	}
	d.subdirs[name] = struct{}{}
	return newDir(childPath, d.prefix+name, d.depth+1, d.digestLen, d.maxPerDir, d.fs, d.metrics, d.logger), nil
}

// Get resolves ref to a Handle by searching this directory and, if
// necessary, descending toward the leaf implied by ref's digest. It returns
// (nil, nil) if no blob with this digest exists anywhere in the subtree
// rooted here.
func (d *Dir) Get(r ref.Ref) (*Handle, error) {
	if err := d.readDir(); err != nil {
		return nil, err
	}
	if h, ok := d.resolve(r); ok {
		size, err := d.fs.Size(h.path)
		if err != nil {
			return nil, err
		}
		h.size = size
		return h, nil
	}
	child, err := d.openChild(r)
	if err != nil || child == nil {
		return nil, err
	}
	return child.Get(r)
}

// Add places incoming's staged bytes at the shallowest available position
// for ref's digest, descending and creating subdirectories as needed once a
// directory is full. If ref's blob is already present in a directory visited
// on the way down, incoming is dropped and the existing Handle is returned
// (dedup, I1). A copy deeper than the first directory with room is not
// returned: the blob is placed at that directory and the deeper copy is
// deleted (promotion cleanup).
func (d *Dir) Add(r ref.Ref, inc *incoming.Blob) (*Handle, error) {
	if err := d.readDir(); err != nil {
		return nil, err
	}

	if h, ok := d.resolve(r); ok {
		inc.Drop()
		if size, err := d.fs.Size(h.path); err == nil {
			h.size = size
		} else {
			h.size = inc.Size()
		}
		return h, nil
	}

	if !d.isFull() {
		basename := d.blobName(r)
		dest := fsutil.JoinBlobName(d.path, r.ID())
		if err := inc.MoveTo(dest); err != nil {
			return nil, err
		}
		size, err := d.fs.Size(dest)
		if err != nil {
			d.warn("stat failed after placing blob; byteCount may drift", "path", dest, "error", err)
			size = inc.Size()
		}
		d.blobs[basename] = struct{}{}
		d.metrics.Inc(metrics.BlobCount)
		d.metrics.IncBy(metrics.ByteCount, size)

		// Promotion-induced cleanup (I2 healing): a duplicate may already
		// sit deeper in the subtree from before this directory had room.
		if child, err := d.openChild(r); err != nil {
			d.warn("promotion cleanup failed to open child directory", "prefix", d.prefix, "error", err)
		} else if child != nil {
			if _, err := child.Delete(r); err != nil {
				d.warn("promotion cleanup failed to remove deeper duplicate", "prefix", child.prefix, "error", err)
			}
		}

		return &Handle{path: dest, id: r.ID(), size: size}, nil
	}

	child, err := d.descendCreate(r)
	if err != nil {
		return nil, err
	}
	return child.Add(r, inc)
}

// Delete removes ref's blob from wherever it is found in this subtree,
// repairing any I2 duplicates it encounters along the way, and prunes this
// directory if deleting leaves it empty (I4; never at the store root). It
// reports whether any file was actually removed.
func (d *Dir) Delete(r ref.Ref) (bool, error) {
	if err := d.readDir(); err != nil {
		return false, err
	}

	removed := false
	basename := d.blobName(r)
	if _, ok := d.blobs[basename]; ok {
		full := fsutil.JoinBlobName(d.path, r.ID())
		size, statErr := d.fs.Size(full)
		if statErr != nil {
			d.warn("stat failed before delete; byteCount may drift", "path", full, "error", statErr)
			size = 0
		}
		if _, err := d.fs.DeleteIfExists(full); err != nil {
			return removed, err
		}
		delete(d.blobs, basename)
		d.metrics.Dec(metrics.BlobCount)
		d.metrics.DecBy(metrics.ByteCount, size)
		removed = true

		if d.depth > 0 {
			if _, err := d.fs.RemoveIfEmpty(d.path); err != nil {
				return removed, err
			}
		}
	}

	child, err := d.openChild(r)
	if err != nil {
		return removed, err
	}
	if child != nil {
		childRemoved, err := child.Delete(r)
		if err != nil {
			return removed || childRemoved, err
		}
		removed = removed || childRemoved
		// The child may have pruned its own directory; drop it from this
		// node's listing so later descents do not try to list it.
		if childRemoved {
			if isDir, err := d.fs.IsDirectory(child.path); err == nil && !isDir {
				delete(d.subdirs, filepath.Base(child.path))
			}
		}
	}
	return removed, nil
}

// scanTotals accumulates the blob and byte counts discovered by a scan
// across the whole subtree; scan takes it by pointer so every recursion
// level adds to the same totals.
type scanTotals struct {
	blobCount int64
	byteCount int64
}

// DeepScanAndDedupe walks the subtree rooted at d exactly once, using a
// chained ancestor set to detect I2 violations (the same digest present at
// more than one depth) in a single pass, deleting every occurrence but the
// shallowest, and pruning any directory left empty by that repair. It
// returns the reconciled blob and byte counts for the whole subtree.
func (d *Dir) DeepScanAndDedupe() (blobCount int64, byteCount int64, err error) {
	totals := &scanTotals{}
	err = d.scan(newAncestorSet(nil), totals)
	return totals.blobCount, totals.byteCount, err
}

func (d *Dir) scan(seen *ancestorSet, totals *scanTotals) error {
	if err := d.readDir(); err != nil {
		return err
	}
	hexLen := 2 * d.digestLen

	for basename := range d.blobs {
		id := basename[:hexLen]
		full := fsutil.JoinBlobName(d.path, id)
		if seen.contains(id) {
			if _, err := d.fs.DeleteIfExists(full); err != nil {
				d.warn("failed to remove deeper duplicate during scan", "path", full, "error", err)
				continue
			}
			delete(d.blobs, basename)
			d.warn("removed deeper duplicate blob found during startup scan", "path", full, "id", id)
			continue
		}
		seen.insert(id)
		totals.blobCount++
		size, err := d.fs.Size(full)
		if err != nil {
			d.warn("stat failed during startup scan; byteCount may drift", "path", full, "error", err)
			continue
		}
		totals.byteCount += size
	}

	names := make([]string, 0, len(d.subdirs))
	for name := range d.subdirs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		child := newDir(filepath.Join(d.path, name), d.prefix+name, d.depth+1, d.digestLen, d.maxPerDir, d.fs, d.metrics, d.logger)
		if err := child.scan(newAncestorSet(seen), totals); err != nil {
			return err
		}
	}

	if d.depth > 0 {
		if _, err := d.fs.RemoveIfEmpty(d.path); err != nil {
			return err
		}
	}
	return nil
}
