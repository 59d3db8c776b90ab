package rbacAuth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/rbacAuth/internal/rate"
)

// Login runs the full sign-in sequence: failed-login budget, credentials,
// the TOTP challenge when MFA is enabled, device recognition and finally
// session issuance.
//
// Without an OTP, an MFA account receives an emailed code and the result
// is OutcomeOTPSent. An unrecognized device receives a confirmation link
// and the result is OutcomeConfirmationRequired. Only
// OutcomeAuthenticated carries a token.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer e.observe(MetricLoginLatency, start)

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, ErrValidation
	}
	ip := ClientIPFromContext(ctx)
	fp := resolveFingerprint(req.Fingerprint, ip)
	if e.config.Device.Enabled && fp.IsZero() && e.config.ProductionMode {
		// Without a client address there is nothing to recognize.
		return nil, ErrValidation
	}

	if err := e.checkLoginBudget(ctx, email, ip); err != nil {
		return nil, err
	}

	acct, err := e.VerifyCredentials(ctx, email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			e.metricInc(MetricLoginFailure)
			return nil, e.recordLoginFailure(ctx, email, ip, err)
		}
		return nil, err
	}

	if acct.MFAEnabled {
		if strings.TrimSpace(req.OTP) == "" {
			if err := e.sendOTPChallenge(ctx, acct); err != nil {
				return nil, err
			}
			return &LoginResult{Outcome: OutcomeOTPSent, Account: acct}, nil
		}
		if err := e.consumeOTP(ctx, acct, req.OTP); err != nil {
			if errors.Is(err, ErrInvalidOTP) {
				e.metricInc(MetricLoginFailure)
				return nil, e.recordLoginFailure(ctx, email, ip, err)
			}
			return nil, err
		}
	}

	if e.config.Device.Enabled && !fp.IsZero() && !acct.HasDevice(fp) {
		if e.config.Device.TrustFirstDevice && !e.hasChannel(acct, fp.Channel) {
			if err := e.trustDevice(ctx, acct, fp); err != nil {
				return nil, err
			}
		} else {
			if _, err := e.RecordPendingConfirmation(ctx, acct, fp); err != nil {
				return nil, err
			}
			e.logger.Info("login from unrecognized device",
				"account_id", acct.ID, "channel", fp.Channel, "user_agent", userAgentFromContext(ctx))
			return &LoginResult{Outcome: OutcomeConfirmationRequired, Account: acct}, nil
		}
	}

	e.upgradeHash(ctx, acct, req.Password)
	e.clearLoginFailures(ctx, email)

	return e.authenticated(acct)
}

// ConfirmLogin redeems a device confirmation token and signs the account
// in from the confirmed device.
func (e *Engine) ConfirmLogin(ctx context.Context, raw string) (*LoginResult, error) {
	acct, err := e.ConfirmDevice(ctx, raw)
	if err != nil {
		return nil, err
	}
	return e.authenticated(acct)
}

func (e *Engine) authenticated(acct *Account) (*LoginResult, error) {
	token, expiresAt, err := e.IssueSession(acct)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricLoginSuccess)
	return &LoginResult{
		Outcome:   OutcomeAuthenticated,
		Token:     token,
		ExpiresAt: expiresAt,
		Account:   acct,
	}, nil
}

// resolveFingerprint defaults the web fingerprint to the client IP.
func resolveFingerprint(fp Fingerprint, ip string) Fingerprint {
	if fp.Channel == "" {
		fp.Channel = ChannelWeb
	}
	fp.Value = strings.TrimSpace(fp.Value)
	if fp.Value == "" && fp.Channel == ChannelWeb {
		fp.Value = ip
	}
	return fp
}

func (e *Engine) checkLoginBudget(ctx context.Context, email, ip string) error {
	if e.limiter == nil {
		return nil
	}
	err := e.limiter.Check(ctx, email, ip)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.metricInc(MetricLoginRateLimited)
		return ErrLoginRateLimited
	default:
		e.logger.Warn("login limiter unavailable", "err", err)
		return nil
	}
}

// recordLoginFailure counts a failed attempt and returns cause. The
// attempt that spends the budget still reports cause; the next one is
// refused by checkLoginBudget.
func (e *Engine) recordLoginFailure(ctx context.Context, email, ip string, cause error) error {
	if e.limiter == nil {
		return cause
	}
	err := e.limiter.RecordFailure(ctx, email, ip)
	switch {
	case err == nil:
		return cause
	case errors.Is(err, rate.ErrRateLimited):
		e.logger.Info("login budget exhausted", "ip", ip)
		return cause
	default:
		e.logger.Warn("login limiter unavailable", "err", err)
		return cause
	}
}

func (e *Engine) clearLoginFailures(ctx context.Context, email string) {
	if e.limiter == nil {
		return
	}
	if err := e.limiter.Reset(ctx, email); err != nil {
		e.logger.Warn("login limiter reset failed", "err", err)
	}
}
