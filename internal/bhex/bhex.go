// Package bhex implements strict lowercase hex encoding and decoding for
// blob identifiers. Decoding accepts uppercase input and normalizes it;
// encoding always produces lowercase.
package bhex

import (
	"encoding/hex"
	"fmt"
)

// Encode returns the lowercase hex encoding of b.
func Encode(b []byte) string {
	return hex.EncodeToString(b)
}

// Decode parses s as a hex string of exactly wantLen decoded bytes.
// It rejects wrong length, whitespace, and any character outside
// [0-9a-fA-F]; uppercase input is accepted and decodes normally.
func Decode(s string, wantLen int) ([]byte, error) {
	if len(s) != wantLen*2 {
		return nil, fmt.Errorf("hex string has length %d, want %d", len(s), wantLen*2)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string: %w", err)
	}
	return b, nil
}

// ValidSubdirName reports whether name is exactly two lowercase hex digits,
// the naming rule for a hierarchy subdirectory.
func ValidSubdirName(name string) bool {
	if len(name) != 2 {
		return false
	}
	return isLowerHexDigit(name[0]) && isLowerHexDigit(name[1])
}

func isLowerHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
}
