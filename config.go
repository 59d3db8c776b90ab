package rbacAuth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/rbacAuth/jwt"
	"github.com/MrEthical07/rbacAuth/notify"
	"github.com/MrEthical07/rbacAuth/password"
)

// Config is the complete engine configuration. It is copied by the Builder
// and treated as immutable afterwards.
type Config struct {
	Session  SessionConfig  `yaml:"session"`
	Cookie   CookieConfig   `yaml:"cookie"`
	Password PasswordConfig `yaml:"password"`
	TOTP     TOTPConfig     `yaml:"totp"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Device   DeviceConfig   `yaml:"device"`
	Lockout  LockoutConfig  `yaml:"lockout"`
	Notify   NotifyConfig   `yaml:"notify"`
	Metrics  MetricsConfig  `yaml:"metrics"`

	// FrontendBaseURL prefixes the links embedded in emails.
	FrontendBaseURL string `yaml:"frontend_base_url"`
	// ProductionMode forces secure cookies and stricter key checks.
	ProductionMode bool `yaml:"production"`
}

// SessionConfig controls session token signing.
type SessionConfig struct {
	// SigningMethod is "hs256" (default) or "ed25519".
	SigningMethod string        `yaml:"signing_method"`
	Secret        string        `yaml:"secret"`
	PrivateKeyPEM string        `yaml:"private_key_pem"`
	PublicKeyPEM  string        `yaml:"public_key_pem"`
	KeyID         string        `yaml:"key_id"`
	TTL           time.Duration `yaml:"ttl"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	Leeway        time.Duration `yaml:"leeway"`
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string `yaml:"name"`
	Path   string `yaml:"path"`
	Domain string `yaml:"domain"`
	// Secure is always on in production.
	Secure bool `yaml:"secure"`
}

// PasswordConfig selects the hashing algorithm and policy.
type PasswordConfig struct {
	// Algorithm is "bcrypt" (default) or "argon2id".
	Algorithm  string                `yaml:"algorithm"`
	BcryptCost int                   `yaml:"bcrypt_cost"`
	Argon2     password.Argon2Config `yaml:"argon2"`
	MinLength  int                   `yaml:"min_length"`
	MaxLength  int                   `yaml:"max_length"`
	// UpgradeOnLogin rehashes passwords stored with weaker parameters.
	UpgradeOnLogin bool `yaml:"upgrade_on_login"`
}

// TOTPConfig controls the second factor.
type TOTPConfig struct {
	Issuer string `yaml:"issuer"`
	Digits int    `yaml:"digits"`
	Period uint   `yaml:"period"`
	// Window is the drift tolerance in steps.
	Window uint `yaml:"window"`
}

// RecoveryConfig controls password reset and emailed OTP challenges.
type RecoveryConfig struct {
	ResetTTL time.Duration `yaml:"reset_ttl"`
	OTPTTL   time.Duration `yaml:"otp_ttl"`
	// RevealUnknownEmail makes RequestPasswordReset return ErrNotFound for
	// unknown addresses instead of succeeding silently.
	RevealUnknownEmail bool   `yaml:"reveal_unknown_email"`
	ResetPath          string `yaml:"reset_path"`
}

// DeviceConfig controls fingerprint recognition.
type DeviceConfig struct {
	Enabled bool `yaml:"enabled"`
	// TrustFirstDevice records the first fingerprint seen on a channel
	// without asking for confirmation. Off by default: every new device,
	// including the first, must be confirmed by email.
	TrustFirstDevice bool          `yaml:"trust_first_device"`
	ConfirmationTTL  time.Duration `yaml:"confirmation_ttl"`
	ConfirmPath      string        `yaml:"confirm_path"`
	MaxPerChannel    int           `yaml:"max_per_channel"`
}

// LockoutConfig controls the Redis failed-login limiter.
type LockoutConfig struct {
	Enabled          bool          `yaml:"enabled"`
	MaxAttempts      int           `yaml:"max_attempts"`
	Window           time.Duration `yaml:"window"`
	EnableIPThrottle bool          `yaml:"ip_throttle"`
}

// NotifyConfig controls best-effort notice delivery.
type NotifyConfig struct {
	BufferSize int                `yaml:"buffer_size"`
	DropIfFull bool               `yaml:"drop_if_full"`
	Workers    int                `yaml:"workers"`
	Retry      notify.RetryConfig `yaml:"retry"`
	// SendTimeout bounds each synchronous send.
	SendTimeout time.Duration `yaml:"send_timeout"`
	// EnqueueWait bounds the wait for buffer space when DropIfFull is off.
	EnqueueWait time.Duration `yaml:"enqueue_wait"`
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"latency_histograms"`
}

// DefaultConfig returns a development configuration. Session.Secret must
// still be set.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			SigningMethod: string(jwt.MethodHS256),
			TTL:           time.Hour,
			Issuer:        "rbacauth",
		},
		Cookie: CookieConfig{
			Name: "accessToken",
			Path: "/",
		},
		Password: PasswordConfig{
			Algorithm:      string(password.AlgorithmBcrypt),
			BcryptCost:     password.DefaultBcryptCost,
			Argon2:         password.DefaultArgon2Config(),
			MinLength:      8,
			MaxLength:      72,
			UpgradeOnLogin: true,
		},
		TOTP: TOTPConfig{
			Issuer: "rbacAuth",
			Digits: 6,
			Period: 30,
			Window: 2,
		},
		Recovery: RecoveryConfig{
			ResetTTL:  time.Hour,
			OTPTTL:    5 * time.Minute,
			ResetPath: "/reset-password/",
		},
		Device: DeviceConfig{
			Enabled:          true,
			TrustFirstDevice: false,
			ConfirmationTTL:  15 * time.Minute,
			ConfirmPath:      "/confirm-login?token=",
			MaxPerChannel:    10,
		},
		Lockout: LockoutConfig{
			Enabled:          false,
			MaxAttempts:      5,
			Window:           15 * time.Minute,
			EnableIPThrottle: true,
		},
		Notify: NotifyConfig{
			BufferSize:  256,
			DropIfFull:  true,
			EnqueueWait: 100 * time.Millisecond,
			Workers:     2,
			Retry:       notify.DefaultRetryConfig(),
			SendTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		FrontendBaseURL: "http://localhost:3000",
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	switch jwt.SigningMethod(c.Session.SigningMethod) {
	case jwt.MethodHS256:
		if len(c.Session.Secret) < jwt.MinHMACKeyBytes {
			return fmt.Errorf("Session Secret must be at least %d bytes", jwt.MinHMACKeyBytes)
		}
		if c.ProductionMode && isWeakSecret(c.Session.Secret) {
			return errors.New("Session Secret looks like a placeholder")
		}
	case jwt.MethodEd25519:
		if c.Session.PrivateKeyPEM == "" || c.Session.PublicKeyPEM == "" {
			return errors.New("ed25519 requires PrivateKeyPEM and PublicKeyPEM")
		}
	default:
		return errors.New("unsupported Session SigningMethod")
	}
	if c.Session.Leeway < 0 || c.Session.Leeway > 2*time.Minute {
		return errors.New("Session Leeway must be within [0,2m]")
	}

	// Cookie
	if strings.TrimSpace(c.Cookie.Name) == "" {
		return errors.New("Cookie Name must be set")
	}

	// Password
	switch password.Algorithm(c.Password.Algorithm) {
	case password.AlgorithmBcrypt, password.AlgorithmArgon2:
	default:
		return errors.New("unsupported Password Algorithm")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	if password.Algorithm(c.Password.Algorithm) == password.AlgorithmBcrypt && c.Password.MaxLength > 72 {
		return errors.New("Password MaxLength must be <= 72 for bcrypt")
	}

	// TOTP
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period == 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Window > 10 {
		return errors.New("TOTP Window must be <= 10")
	}

	// Recovery
	if c.Recovery.ResetTTL <= 0 || c.Recovery.OTPTTL <= 0 {
		return errors.New("Recovery TTLs must be > 0")
	}

	// Device
	if c.Device.Enabled && c.Device.ConfirmationTTL <= 0 {
		return errors.New("Device ConfirmationTTL must be > 0")
	}

	// Lockout
	if c.Lockout.Enabled {
		if c.Lockout.MaxAttempts <= 0 {
			return errors.New("Lockout MaxAttempts must be > 0")
		}
		if c.Lockout.Window <= 0 {
			return errors.New("Lockout Window must be > 0")
		}
	}

	// Links
	u, err := url.Parse(c.FrontendBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("FrontendBaseURL must be an absolute URL")
	}
	if c.ProductionMode && u.Scheme != "https" {
		return errors.New("FrontendBaseURL must use https in production")
	}

	return nil
}

// CookieSecure reports whether the session cookie carries the Secure flag.
func (c *Config) CookieSecure() bool {
	return c.ProductionMode || c.Cookie.Secure
}

func (c *Config) link(path, token string) string {
	return strings.TrimRight(c.FrontendBaseURL, "/") + path + token
}

func isWeakSecret(s string) bool {
	lower := strings.ToLower(s)
	for _, marker := range []string{"changeme", "change-me", "secret-secret", "example"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
