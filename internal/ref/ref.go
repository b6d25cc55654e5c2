// Package ref implements the Blob Reference: a validated fixed-length
// digest identifier with byte and lowercase-hex representations.
package ref

import (
	"bytes"
	"fmt"

	"github.com/blobshard/blobshard/internal/bhex"
	"github.com/blobshard/blobshard/internal/storeerr"
)

// Ref is a validated blob reference of a fixed byte length. The zero value
// is not valid; construct one with FromHex or FromBytes.
type Ref struct {
	digest []byte
}

// FromHex parses s as a lowercase-or-uppercase hex string of exactly 2*length
// characters and returns the corresponding Ref. length is the store's digest
// length in bytes (D in spec terms).
func FromHex(s string, length int) (Ref, error) {
	b, err := bhex.Decode(s, length)
	if err != nil {
		return Ref{}, storeerr.New(storeerr.BadIdentifier, "ref.FromHex", err)
	}
	return Ref{digest: b}, nil
}

// FromBytes wraps b as a Ref, requiring it be exactly length bytes long.
// The returned Ref holds a private copy of b.
func FromBytes(b []byte, length int) (Ref, error) {
	if len(b) != length {
		return Ref{}, storeerr.New(storeerr.BadIdentifier, "ref.FromBytes",
			fmt.Errorf("digest has %d bytes, want %d", len(b), length))
	}
	cp := make([]byte, length)
	copy(cp, b)
	return Ref{digest: cp}, nil
}

// ID returns the lowercase hex string form of the reference.
func (r Ref) ID() string {
	return bhex.Encode(r.digest)
}

// Digest returns an immutable copy of the reference's raw bytes.
func (r Ref) Digest() []byte {
	cp := make([]byte, len(r.digest))
	copy(cp, r.digest)
	return cp
}

// Len returns the byte length of the reference (D).
func (r Ref) Len() int {
	return len(r.digest)
}

// IsZero reports whether r is the unconstructed zero value.
func (r Ref) IsZero() bool {
	return r.digest == nil
}

// Equal reports whether r and other reference the same digest bytes.
func (r Ref) Equal(other Ref) bool {
	return bytes.Equal(r.digest, other.digest)
}

// ByteAt returns the byte of the digest at the given index, used by the
// hierarchy to compute descent path elements. Panics if index is out of
// range, matching slice indexing semantics.
func (r Ref) ByteAt(index int) byte {
	return r.digest[index]
}
