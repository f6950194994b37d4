// Package checksum provides content hashing for processed files and records.
//
// SHA-256 is used for the structural summary's content checksum, where the
// value identifies the file across uploads. xxHash is used where speed matters
// and collisions are tolerable, such as duplicate detection over column values.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Content returns the hex-encoded SHA-256 digest of raw file bytes.
func Content(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// Record returns a fast, non-cryptographic hash of a record's fields.
func Record(fields []string) uint64 {
	return xxhash.Sum64String(strings.Join(fields, "\x1f"))
}

// Value returns a fast hash of a single cell value.
func Value(v string) uint64 {
	return xxhash.Sum64String(v)
}
