package manualstore

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/blobshard/blobshard/internal/fsutil"
	"github.com/blobshard/blobshard/internal/metrics"
	"github.com/blobshard/blobshard/internal/storeerr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	m := metrics.New()
	fs := fsutil.New(m)
	s, err := Open(root, fs, m)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddGetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	blob, err := s.Add("abcdef", bytes.NewReader([]byte("payload")))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if blob.Size() != 7 {
		t.Errorf("Size() = %d, want 7", blob.Size())
	}

	got, err := s.Get("abcdef")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() = nil, want a Blob")
	}
	r, _ := got.Open()
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "payload" {
		t.Errorf("contents = %q, want %q", data, "payload")
	}
}

func TestKeyShardsOnFirstTwoCharacters(t *testing.T) {
	s := newTestStore(t)
	blob, err := s.Add("ab1234", bytes.NewReader([]byte("x")))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	wantPath := filepath.Join(s.dir, "ab", "1234.blob")
	if blob.path != wantPath {
		t.Errorf("blob path = %s, want %s", blob.path, wantPath)
	}
}

func TestMinimumLengthKeyShards(t *testing.T) {
	s := newTestStore(t)
	blob, err := s.Add("ab12", bytes.NewReader([]byte("x")))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	wantPath := filepath.Join(s.dir, "ab", "12.blob")
	if blob.path != wantPath {
		t.Errorf("blob path = %s, want %s", blob.path, wantPath)
	}
}

func TestUppercaseKeyNormalizedToLowercase(t *testing.T) {
	s := newTestStore(t)
	blob, err := s.Add("ABCDEF", bytes.NewReader([]byte("x")))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if blob.Key() != "abcdef" {
		t.Errorf("Key() = %q, want %q", blob.Key(), "abcdef")
	}
	got, err := s.Get("abcdef")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() = nil, want the blob added under the uppercase key")
	}
}

func TestNoDeduplicationTwoKeysSameBytes(t *testing.T) {
	s := newTestStore(t)
	b1, _ := s.Add("aaaaaa", bytes.NewReader([]byte("same")))
	b2, _ := s.Add("bbbbbb", bytes.NewReader([]byte("same")))
	if b1.path == b2.path {
		t.Error("distinct keys with identical bytes must produce distinct files")
	}
	if _, err := os.Stat(b1.path); err != nil {
		t.Errorf("first blob missing: %v", err)
	}
	if _, err := os.Stat(b2.path); err != nil {
		t.Errorf("second blob missing: %v", err)
	}
}

func TestAddOverwritesExistingKey(t *testing.T) {
	s := newTestStore(t)
	s.Add("aabb", bytes.NewReader([]byte("first")))
	blob, err := s.Add("aabb", bytes.NewReader([]byte("second")))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	r, _ := blob.Open()
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "second" {
		t.Errorf("contents = %q, want %q", data, "second")
	}
}

func TestGetMissingReturnsNilNoError(t *testing.T) {
	s := newTestStore(t)
	b, err := s.Get("1234abcd")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if b != nil {
		t.Errorf("Get() = %+v, want nil", b)
	}
}

func TestDeletePrunesShardDirectory(t *testing.T) {
	s := newTestStore(t)
	s.Add("ab9999", bytes.NewReader([]byte("x")))
	shardDir := filepath.Join(s.dir, "ab")

	removed, err := s.Delete("ab9999")
	if err != nil || !removed {
		t.Fatalf("Delete() = %v, %v, want true, nil", removed, err)
	}
	if _, err := os.Stat(shardDir); !os.IsNotExist(err) {
		t.Errorf("shard directory %s should be pruned once empty", shardDir)
	}
}

func TestKeyPathTraversalRejected(t *testing.T) {
	s := newTestStore(t)
	for _, key := range []string{"../escape", "a/b", "..", "", "a\\b"} {
		_, err := s.Add(key, bytes.NewReader([]byte("x")))
		var se *storeerr.Error
		if !errors.As(err, &se) || se.Kind != storeerr.BadIdentifier {
			t.Errorf("Add(%q) error = %v, want BadIdentifier", key, err)
		}
	}
}

func TestOddLengthKeyRejected(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Add("abc", bytes.NewReader([]byte("x")))
	var se *storeerr.Error
	if !errors.As(err, &se) || se.Kind != storeerr.BadIdentifier {
		t.Errorf("Add() error = %v, want BadIdentifier", err)
	}
}

func TestTooShortKeyRejected(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Add("ab", bytes.NewReader([]byte("x")))
	var se *storeerr.Error
	if !errors.As(err, &se) || se.Kind != storeerr.BadIdentifier {
		t.Errorf("Add() error = %v, want BadIdentifier", err)
	}
}

func TestNonHexKeyRejected(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Add("zzzz", bytes.NewReader([]byte("x")))
	var se *storeerr.Error
	if !errors.As(err, &se) || se.Kind != storeerr.BadIdentifier {
		t.Errorf("Add() error = %v, want BadIdentifier", err)
	}
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	root := t.TempDir()
	m := metrics.New()
	fs := fsutil.New(m)
	s, err := Open(root, fs, m)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	_, err = s.Add("aabb", bytes.NewReader([]byte("x")))
	var se *storeerr.Error
	if !errors.As(err, &se) || se.Kind != storeerr.StoreClosed {
		t.Errorf("Add() after Close() error = %v, want StoreClosed", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
