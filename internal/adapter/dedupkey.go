package adapter

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DedupKey derives the cross-source dedup key from the fields that
// identify the same real-world notice regardless of which portal
// published it: the buyer's CNPJ, the procurement code, and the
// publication date (§3). crypto/sha256 is used directly (no pack library
// wraps deterministic hashing of arbitrary identifying fields); the
// components are joined with a separator byte that cannot appear in a
// CNPJ or procurement code to avoid boundary collisions.
func DedupKey(cnpj, procurementCode, publicationDate string) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(cnpj)))
	h.Write([]byte{0x1f})
	h.Write([]byte(strings.TrimSpace(procurementCode)))
	h.Write([]byte{0x1f})
	h.Write([]byte(strings.TrimSpace(publicationDate)))
	return hex.EncodeToString(h.Sum(nil))
}
