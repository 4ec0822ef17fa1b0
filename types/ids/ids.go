package ids

import (
	"crypto/sha256"
	"encoding/hex"
)

// ID is a 32-byte array.
type ID [32]byte

// Empty is the zero-value ID (all zeros). For block references it denotes
// "before genesis / none".
var Empty ID

// NewID generates a new ID by hashing input bytes
func NewID(data []byte) ID {
	hash := sha256.Sum256(data)
	return ID(hash)
}

// FromString parses a hex string into an ID
func FromString(s string) (ID, error) {
	var id ID
	bytes, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	copy(id[:], bytes)
	return id, nil
}

// String converts an ID back to a hex string
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the ID is the empty value.
func (id ID) IsZero() bool {
	return id == Empty
}
