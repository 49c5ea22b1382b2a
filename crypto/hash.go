// Package crypto provides the hashing, key, and signature primitives the
// engine uses for operation authentication and deterministic ids.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the SHA-256 hash of data as a lowercase hex string.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashBytes returns the raw SHA-256 bytes of data.
func HashBytes(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// ShortAddress derives a 40-char hex address from arbitrary seed bytes by
// taking the first 20 bytes of SHA-256(seed). Used for module custody
// accounts, which live in the same account namespace as user keys but are
// distinguishable by length.
func ShortAddress(seed []byte) string {
	h := sha256.Sum256(seed)
	return hex.EncodeToString(h[:20])
}
