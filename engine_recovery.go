package rbacAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/rbacAuth/internal/tokens"
)

// IssueRecoveryToken stores the hash of a new recovery token on acct,
// replacing any earlier one, and returns the raw token.
func (e *Engine) IssueRecoveryToken(ctx context.Context, acct *Account) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	raw, err := tokens.New()
	if err != nil {
		return "", err
	}

	pending := &PendingToken{
		Hash:      tokens.Hash(raw),
		ExpiresAt: e.now().Add(e.config.Recovery.ResetTTL),
	}
	if err := e.store.Update(ctx, acct.ID, AccountPatch{Recovery: pending}); err != nil {
		return "", e.storageError("store recovery token", err)
	}
	acct.Recovery = pending
	return raw, nil
}

// RequestPasswordReset emails a reset link to the account registered under
// email. Unknown and inactive addresses succeed without sending anything
// unless Recovery.RevealUnknownEmail is set. If the email cannot be sent
// the token is withdrawn and ErrDelivery is returned.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	email = normalizeEmail(email)
	if email == "" {
		return ErrValidation
	}

	e.metricInc(MetricPasswordResetRequest)

	acct, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			if e.config.Recovery.RevealUnknownEmail {
				return ErrNotFound
			}
			return nil
		}
		return e.storageError("find account by email", err)
	}
	if !acct.Active() {
		if e.config.Recovery.RevealUnknownEmail {
			return ErrAccountInactive
		}
		return nil
	}

	raw, err := e.IssueRecoveryToken(ctx, acct)
	if err != nil {
		return err
	}

	link := e.config.link(e.config.Recovery.ResetPath, raw)
	if err := e.sendRequired(ctx, resetMessage(acct, link, humanDuration(e.config.Recovery.ResetTTL))); err != nil {
		if clearErr := e.store.Update(ctx, acct.ID, AccountPatch{ClearRecovery: true}); clearErr != nil {
			e.logger.Warn("recovery token not withdrawn", "account_id", acct.ID, "err", clearErr)
		}
		return err
	}
	return nil
}

// ConsumeRecovery redeems raw and sets newPassword in the same update that
// clears the token. A token that is unknown, expired or already used
// returns ErrTokenInvalidOrExpired.
func (e *Engine) ConsumeRecovery(ctx context.Context, raw, newPassword string) (*Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return nil, err
	}

	normalized, err := tokens.Normalize(raw)
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		return nil, ErrTokenInvalidOrExpired
	}
	hash := tokens.Hash(normalized)
	now := e.now()

	acct, err := e.store.FindByToken(ctx, TokenRecovery, hash, now)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricPasswordResetFailure)
			return nil, ErrTokenInvalidOrExpired
		}
		return nil, e.storageError("find recovery token", err)
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}

	patch := AccountPatch{PasswordHash: &newHash, ClearRecovery: true}
	n, err := e.store.UpdateWhere(ctx,
		AccountFilter{ID: acct.ID, Field: TokenRecovery, Hash: hash, ValidAt: now},
		patch)
	if err != nil {
		return nil, e.storageError("consume recovery token", err)
	}
	if n == 0 {
		e.metricInc(MetricPasswordResetFailure)
		return nil, ErrTokenInvalidOrExpired
	}
	patch.Apply(acct, now)

	if e.limiter != nil {
		if err := e.limiter.Reset(ctx, acct.Email); err != nil {
			e.logger.Warn("login limiter reset failed", "err", err)
		}
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.notice(ctx, acct, "Your password was changed",
		"The password for your account was just changed. If this was not you, contact an administrator.\n")
	return acct, nil
}

// ResetPassword checks that both entries agree before consuming raw.
func (e *Engine) ResetPassword(ctx context.Context, raw, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	_, err := e.ConsumeRecovery(ctx, raw, newPassword)
	return err
}

// RequestOTPChallenge stores the hash of the current TOTP code as the
// account's pending OTP and returns the code for delivery. The emailed code
// stays valid for Recovery.OTPTTL, independently of the TOTP window.
func (e *Engine) RequestOTPChallenge(ctx context.Context, acct *Account) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	if acct == nil || !acct.MFAEnabled || acct.MFASecret == "" {
		return "", ErrMFANotEnabled
	}

	now := e.now()
	code, err := e.totp.Code(acct.MFASecret, now)
	if err != nil {
		return "", err
	}

	pending := &PendingToken{
		Hash:      tokens.Hash(code),
		ExpiresAt: now.Add(e.config.Recovery.OTPTTL),
	}
	if err := e.store.Update(ctx, acct.ID, AccountPatch{OTP: pending}); err != nil {
		return "", e.storageError("store otp challenge", err)
	}
	acct.OTP = pending
	return code, nil
}

// SendOTP emails a login code to the account registered under email.
// Unknown addresses and accounts without MFA both return ErrMFANotEnabled.
func (e *Engine) SendOTP(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	email = normalizeEmail(email)
	if email == "" {
		return ErrValidation
	}

	acct, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrMFANotEnabled
		}
		return e.storageError("find account by email", err)
	}
	if !acct.MFAEnabled {
		return ErrMFANotEnabled
	}
	return e.sendOTPChallenge(ctx, acct)
}

func (e *Engine) sendOTPChallenge(ctx context.Context, acct *Account) error {
	code, err := e.RequestOTPChallenge(ctx, acct)
	if err != nil {
		return err
	}
	if err := e.sendRequired(ctx, otpMessage(acct, code, humanDuration(e.config.Recovery.OTPTTL))); err != nil {
		return err
	}
	e.metricInc(MetricOTPChallengeSent)
	return nil
}
