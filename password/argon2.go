package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrMalformedHash wraps every PHC parse failure.
var ErrMalformedHash = errors.New("malformed argon2id hash")

// Lower bounds for accepted parameters, both in config and in stored hashes.
const (
	argon2MinMemory = 8 * 1024
	argon2MinSalt   = 16
	argon2MinKey    = 16
)

var phcEncoding = base64.RawStdEncoding

// Argon2Config holds Argon2id cost parameters. Memory is in KiB.
type Argon2Config struct {
	Memory      uint32 `yaml:"memory"`
	Time        uint32 `yaml:"time"`
	Parallelism uint8  `yaml:"parallelism"`
	SaltLength  uint32 `yaml:"salt_length"`
	KeyLength   uint32 `yaml:"key_length"`
}

// DefaultArgon2Config returns parameters suitable for interactive logins.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{Memory: 64 * 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < argon2MinMemory:
		return fmt.Errorf("argon2 memory %d KiB is below %d", c.Memory, argon2MinMemory)
	case c.Time == 0:
		return errors.New("argon2 time must be at least 1")
	case c.Parallelism == 0:
		return errors.New("argon2 parallelism must be at least 1")
	case c.SaltLength < argon2MinSalt:
		return fmt.Errorf("argon2 salt length %d is below %d", c.SaltLength, argon2MinSalt)
	case c.KeyLength < argon2MinKey:
		return fmt.Errorf("argon2 key length %d is below %d", c.KeyLength, argon2MinKey)
	}
	return nil
}

// Argon2 implements Hasher with Argon2id.
type Argon2 struct {
	cfg Argon2Config
}

// NewArgon2 rejects parameters below the accepted minimums.
func NewArgon2(cfg Argon2Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{cfg: cfg}, nil
}

// phc is a decoded "$argon2id$v=..$m=..,t=..,p=..$salt$key" string.
type phc struct {
	Argon2Config
	salt []byte
	key  []byte
}

func (p phc) derive(plaintext string) []byte {
	return argon2.IDKey([]byte(plaintext), p.salt, p.Time, p.Memory, p.Parallelism, p.KeyLength)
}

func (p phc) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Parallelism,
		phcEncoding.EncodeToString(p.salt), phcEncoding.EncodeToString(p.key))
}

// Hash encodes plaintext under a fresh random salt. The bytes are hashed as
// given, without Unicode normalization.
func (a *Argon2) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	p := phc{Argon2Config: a.cfg, salt: make([]byte, a.cfg.SaltLength)}
	if _, err := rand.Read(p.salt); err != nil {
		return "", fmt.Errorf("argon2 salt: %w", err)
	}
	p.key = p.derive(plaintext)
	return p.String(), nil
}

// Verify re-derives the key with the stored parameters and compares in
// constant time.
func (a *Argon2) Verify(plaintext, encoded string) (bool, error) {
	p, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(p.derive(plaintext), p.key) == 1, nil
}

// NeedsUpgrade reports whether encoded is cheaper than the configured cost
// or carries a different key length.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	p, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	weaker := p.Memory < a.cfg.Memory || p.Time < a.cfg.Time || p.Parallelism < a.cfg.Parallelism
	return weaker || p.KeyLength != a.cfg.KeyLength, nil
}

func decodePHC(encoded string) (phc, error) {
	var p phc
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return p, fmt.Errorf("%w: not an argon2id PHC string", ErrMalformedHash)
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return p, fmt.Errorf("%w: version field %q", ErrMalformedHash, fields[2])
	}
	if version != argon2.Version {
		return p, fmt.Errorf("%w: unsupported version %d", ErrMalformedHash, version)
	}

	var parallelism uint32
	if n, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &parallelism); err != nil || n != 3 {
		return p, fmt.Errorf("%w: parameter field %q", ErrMalformedHash, fields[3])
	}
	if p.Memory < argon2MinMemory || p.Time == 0 || parallelism == 0 || parallelism > 255 {
		return p, fmt.Errorf("%w: parameters out of range", ErrMalformedHash)
	}
	p.Parallelism = uint8(parallelism)

	var err error
	if p.salt, err = phcEncoding.DecodeString(fields[4]); err != nil || len(p.salt) < argon2MinSalt {
		return p, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if p.key, err = phcEncoding.DecodeString(fields[5]); err != nil || len(p.key) == 0 {
		return p, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	p.SaltLength = uint32(len(p.salt))
	p.KeyLength = uint32(len(p.key))
	return p, nil
}
