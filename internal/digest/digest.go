// Package digest provides the pluggable digest algorithm registry used to
// configure a blob store. Algorithms are treated as black-box streaming
// hashes: the store only needs a name, an output length, and a factory for
// a fresh hash.Hash.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"

	"github.com/blobshard/blobshard/internal/storeerr"
	"github.com/zeebo/blake3"
)

// Algorithm describes a digest algorithm available to the store.
type Algorithm interface {
	// Name is the canonical, lowercase name used in configuration.
	Name() string
	// Len is the digest output length in bytes (D in spec terms).
	Len() int
	// New returns a fresh streaming hash.Hash instance.
	New() hash.Hash
}

type algorithm struct {
	name string
	size int
	new  func() hash.Hash
}

func (a algorithm) Name() string   { return a.name }
func (a algorithm) Len() int       { return a.size }
func (a algorithm) New() hash.Hash { return a.new() }

var registry = map[string]algorithm{
	"md5":    {name: "md5", size: md5.Size, new: md5.New},
	"sha1":   {name: "sha1", size: sha1.Size, new: sha1.New},
	"sha256": {name: "sha256", size: sha256.Size, new: sha256.New},
	"blake3": {name: "blake3", size: 32, new: func() hash.Hash { return blake3.New() }},
}

// ByName resolves a digest algorithm by its configuration name. It returns
// an UnknownAlgorithm error for anything not registered.
func ByName(name string) (Algorithm, error) {
	a, ok := registry[name]
	if !ok {
		return nil, storeerr.New(storeerr.UnknownAlgorithm, "digest.ByName",
			fmt.Errorf("unknown digest algorithm: %q", name))
	}
	return a, nil
}

// Names returns the sorted list of registered algorithm names, useful for
// error messages and CLI help text.
func Names() []string {
	return []string{"blake3", "md5", "sha1", "sha256"}
}
