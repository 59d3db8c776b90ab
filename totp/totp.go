package totp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	DefaultPeriod     = 30
	DefaultDigits     = 6
	DefaultWindow     = 2
	DefaultSecretSize = 20
)

var (
	ErrInvalidConfig = errors.New("invalid totp configuration")
	ErrEmptySecret   = errors.New("totp secret is empty")
)

// Config tunes code generation. Zero fields take the package defaults.
type Config struct {
	Issuer     string
	Period     uint
	Digits     int
	Window     uint
	SecretSize uint
}

// Key is a freshly generated shared secret and its otpauth:// URI.
type Key struct {
	Secret string
	URI    string
}

// Generator is safe for concurrent use.
type Generator struct {
	cfg Config
}

// New applies defaults and validates cfg.
func New(cfg Config) (*Generator, error) {
	if cfg.Period == 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Digits == 0 {
		cfg.Digits = DefaultDigits
	}
	if cfg.SecretSize == 0 {
		cfg.SecretSize = DefaultSecretSize
	}
	if cfg.Digits != 6 && cfg.Digits != 8 {
		return nil, fmt.Errorf("%w: digits must be 6 or 8", ErrInvalidConfig)
	}
	if cfg.Window > 10 {
		return nil, fmt.Errorf("%w: window must be <= 10", ErrInvalidConfig)
	}
	if cfg.SecretSize < 10 {
		return nil, fmt.Errorf("%w: secret size must be >= 10 bytes", ErrInvalidConfig)
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("%w: issuer required", ErrInvalidConfig)
	}
	return &Generator{cfg: cfg}, nil
}

// Window returns the configured tolerance in steps.
func (g *Generator) Window() uint { return g.cfg.Window }

// GenerateSecret creates a base32 secret bound to accountName.
func (g *Generator) GenerateSecret(accountName string) (Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      g.cfg.Issuer,
		AccountName: accountName,
		Period:      g.cfg.Period,
		SecretSize:  g.cfg.SecretSize,
		Digits:      g.digits(),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Key{}, err
	}
	return Key{Secret: key.Secret(), URI: key.URL()}, nil
}

// Code returns the code for the step containing at.
func (g *Generator) Code(secret string, at time.Time) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	return totp.GenerateCodeCustom(secret, at, g.opts())
}

// Validate checks code against secret at time at using the configured window.
// On success it returns the step the code was generated in.
func (g *Generator) Validate(secret, code string, at time.Time) (int64, bool) {
	return g.ValidateWindow(secret, code, at, g.cfg.Window)
}

// ValidateWindow is Validate with an explicit window.
func (g *Generator) ValidateWindow(secret, code string, at time.Time, window uint) (int64, bool) {
	code = strings.TrimSpace(code)
	if secret == "" || len(code) != g.cfg.Digits {
		return 0, false
	}

	period := time.Duration(g.cfg.Period) * time.Second
	current := Step(at, g.cfg.Period)
	opts := g.opts()

	// Past codes get one extra step: their own step has to elapse before
	// drift tolerance starts counting.
	for offset := -int64(window) - 1; offset <= int64(window); offset++ {
		probe := at.Add(time.Duration(offset) * period)
		ok, err := totp.ValidateCustom(code, secret, probe, opts)
		if err != nil {
			return 0, false
		}
		if ok {
			return current + offset, true
		}
	}
	return 0, false
}

// StepAt returns the counter for at under the configured period.
func (g *Generator) StepAt(at time.Time) int64 { return Step(at, g.cfg.Period) }

// Step returns the RFC 6238 counter for at.
func Step(at time.Time, period uint) int64 {
	if period == 0 {
		period = DefaultPeriod
	}
	return at.Unix() / int64(period)
}

func (g *Generator) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    g.cfg.Period,
		Skew:      0,
		Digits:    g.digits(),
		Algorithm: otp.AlgorithmSHA1,
	}
}

func (g *Generator) digits() otp.Digits {
	if g.cfg.Digits == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}
