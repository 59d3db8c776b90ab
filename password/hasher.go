package password

import (
	"errors"
	"strings"
)

var (
	// ErrUnsupportedHash is returned when an encoded hash matches no known algorithm.
	ErrUnsupportedHash = errors.New("unsupported password hash")
	// ErrEmptyPassword is returned by Hash for an empty plaintext.
	ErrEmptyPassword = errors.New("password must not be empty")
)

// Hasher produces and checks encoded password hashes.
//
// Verify reports false with a nil error for a wrong password; errors are
// reserved for malformed hashes.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encoded string) (bool, error)
	NeedsUpgrade(encoded string) (bool, error)
}

// Algorithm names a supported hashing scheme.
type Algorithm string

const (
	AlgorithmBcrypt Algorithm = "bcrypt"
	AlgorithmArgon2 Algorithm = "argon2id"
)

// Multi hashes with Primary and verifies with whichever known algorithm
// produced the stored hash.
type Multi struct {
	Primary Hasher
	Bcrypt  *Bcrypt
	Argon2  *Argon2
}

// Hash delegates to the primary hasher.
func (m *Multi) Hash(plaintext string) (string, error) {
	return m.Primary.Hash(plaintext)
}

// Verify selects the algorithm from the encoded prefix.
func (m *Multi) Verify(plaintext, encoded string) (bool, error) {
	h, err := m.pick(encoded)
	if err != nil {
		return false, err
	}
	return h.Verify(plaintext, encoded)
}

// NeedsUpgrade reports true for hashes produced by a non-primary algorithm
// or with weaker parameters than the primary is configured for.
func (m *Multi) NeedsUpgrade(encoded string) (bool, error) {
	h, err := m.pick(encoded)
	if err != nil {
		return false, err
	}
	if h != m.Primary {
		return true, nil
	}
	return h.NeedsUpgrade(encoded)
}

func (m *Multi) pick(encoded string) (Hasher, error) {
	switch DetectAlgorithm(encoded) {
	case AlgorithmBcrypt:
		if m.Bcrypt != nil {
			return m.Bcrypt, nil
		}
	case AlgorithmArgon2:
		if m.Argon2 != nil {
			return m.Argon2, nil
		}
	}
	return nil, ErrUnsupportedHash
}

// DetectAlgorithm inspects the encoded prefix.
func DetectAlgorithm(encoded string) Algorithm {
	switch {
	case strings.HasPrefix(encoded, "$2a$"),
		strings.HasPrefix(encoded, "$2b$"),
		strings.HasPrefix(encoded, "$2y$"):
		return AlgorithmBcrypt
	case strings.HasPrefix(encoded, "$argon2id$"):
		return AlgorithmArgon2
	default:
		return ""
	}
}
