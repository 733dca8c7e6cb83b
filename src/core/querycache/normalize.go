package querycache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeQuery trims, lower-cases and collapses whitespace runs to a
// single space. The result is only used as hashing input.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// HashQuery returns the hex SHA-256 digest of the normalized query.
func HashQuery(query string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}
