// Package tokens generates opaque single-use tokens and the digests that are
// persisted in their place.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// RawSize is the number of random bytes behind every recovery and
// confirmation token.
const RawSize = 32

var ErrMalformed = errors.New("malformed token")

// New returns a hex encoded token of RawSize random bytes.
func New() (string, error) {
	var raw [RawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// Hash returns the hex SHA-256 digest of raw. Only this value is stored.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Normalize trims surrounding whitespace and rejects values that cannot have
// been produced by New.
func Normalize(raw string) (string, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if len(raw) != RawSize*2 {
		return "", ErrMalformed
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", ErrMalformed
	}
	return raw, nil
}

// Equal compares two digests in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
