// Package objdb implements the content-addressed, version-controlled
// object database: blobs, trees, commits and references layered over a
// sharded on-disk blob store and a bbolt-backed reference index.
package objdb

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// ID is the content address of an object: the BLAKE3-256 digest of its
// canonical encoding.
type ID [32]byte

// Sum returns the ID of data.
func Sum(data []byte) ID {
	return ID(blake3.Sum256(data))
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the zero value (no object).
func (id ID) IsZero() bool {
	return id == ID{}
}

// ParseID parses a hex-encoded object id.
func ParseID(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("objdb: invalid id %q: %w", s, err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("objdb: invalid id length %q", s)
	}
	copy(id[:], b)
	return id, nil
}
