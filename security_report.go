package rbacAuth

import (
	"strings"
	"time"

	"github.com/MrEthical07/rbacAuth/password"
)

// SecurityReport summarizes the security-relevant settings of a built
// Engine. Warnings lists settings that are acceptable in development but
// weak in production.
type SecurityReport struct {
	ProductionMode    bool
	SigningMethod     string
	SessionTTL        time.Duration
	CookieSecure      bool
	PasswordAlgorithm string
	BcryptCost        int
	Argon2            password.Argon2Config
	TOTPWindow        uint
	LockoutActive     bool
	IPThrottleActive  bool
	DeviceTracking    bool
	TrustFirstDevice  bool
	RevealUnknownMail bool
	ResetTTL          time.Duration
	OTPTTL            time.Duration
	ConfirmationTTL   time.Duration
	Warnings          []string
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	c := e.config

	algorithm := c.Password.Algorithm
	if algorithm == "" {
		algorithm = string(password.AlgorithmBcrypt)
	}

	r := SecurityReport{
		ProductionMode:    c.ProductionMode,
		SigningMethod:     c.Session.SigningMethod,
		SessionTTL:        c.Session.TTL,
		CookieSecure:      c.CookieSecure(),
		PasswordAlgorithm: algorithm,
		TOTPWindow:        c.TOTP.Window,
		LockoutActive:     e.limiter != nil,
		IPThrottleActive:  e.limiter != nil && c.Lockout.EnableIPThrottle,
		DeviceTracking:    c.Device.Enabled,
		TrustFirstDevice:  c.Device.Enabled && c.Device.TrustFirstDevice,
		RevealUnknownMail: c.Recovery.RevealUnknownEmail,
		ResetTTL:          c.Recovery.ResetTTL,
		OTPTTL:            c.Recovery.OTPTTL,
		ConfirmationTTL:   c.Device.ConfirmationTTL,
	}
	if e.hasher != nil && e.hasher.Bcrypt != nil {
		r.BcryptCost = e.hasher.Bcrypt.Cost()
	}
	if algorithm == string(password.AlgorithmArgon2) {
		r.Argon2 = c.Password.Argon2
	}

	if !r.CookieSecure {
		r.Warnings = append(r.Warnings, "session cookie is sent without the Secure flag")
	}
	if !r.LockoutActive {
		r.Warnings = append(r.Warnings, "failed-login lockout is disabled")
	}
	if r.RevealUnknownMail {
		r.Warnings = append(r.Warnings, "password reset reveals unknown email addresses")
	}
	if r.SessionTTL > 24*time.Hour {
		r.Warnings = append(r.Warnings, "session lifetime exceeds 24 hours")
	}
	if !strings.HasPrefix(c.FrontendBaseURL, "https://") {
		r.Warnings = append(r.Warnings, "frontend links are not https")
	}
	return r
}
