package hashing

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HashCode hashes a short-lived one-time code. These codes are high-entropy
// relative to their lifetime and attempt limits, so a fast hash is used
// instead of argon2 to keep verification off the slow path.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// HashBackupCode normalizes case before hashing so backup codes match
// case-insensitively.
func HashBackupCode(code string) string {
	return HashCode(strings.ToUpper(strings.TrimSpace(code)))
}

// CompareCodeHash compares two hex digests in constant time.
func CompareCodeHash(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
