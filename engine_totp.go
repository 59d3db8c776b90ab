package rbacAuth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/rbacAuth/internal/tokens"
)

// EnableMFA generates a TOTP secret for the account and turns MFA on in
// one update. The secret is returned once for enrollment. Enabling an
// account that already has MFA returns ErrMFAAlreadyEnabled and leaves the
// existing secret in place.
func (e *Engine) EnableMFA(ctx context.Context, accountID string) (*MFASetup, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	acct, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrNotFound
		}
		return nil, e.storageError("find account by id", err)
	}
	if acct.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	key, err := e.totp.GenerateSecret(acct.Email)
	if err != nil {
		return nil, err
	}

	off := false
	zero := int64(0)
	n, err := e.store.UpdateWhere(ctx,
		AccountFilter{ID: acct.ID, MFAEnabled: &off},
		AccountPatch{
			MFA:         &MFAState{Enabled: true, Secret: key.Secret},
			LastOTPStep: &zero,
			ClearOTP:    true,
		})
	if err != nil {
		return nil, e.storageError("enable mfa", err)
	}
	if n == 0 {
		return nil, ErrMFAAlreadyEnabled
	}

	e.metricInc(MetricMFAEnabled)
	e.notice(ctx, acct, "Two-factor authentication enabled",
		"Two-factor authentication is now enabled on your account.\n")

	return &MFASetup{Secret: key.Secret, ProvisioningURI: key.URI}, nil
}

// DisableMFA clears the secret and the enabled flag together. Disabling an
// account without MFA is a no-op.
func (e *Engine) DisableMFA(ctx context.Context, accountID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	acct, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrNotFound
		}
		return e.storageError("find account by id", err)
	}
	if !acct.MFAEnabled {
		return nil
	}

	if err := e.store.Update(ctx, acct.ID, AccountPatch{
		MFA:      &MFAState{Enabled: false},
		ClearOTP: true,
	}); err != nil {
		return e.storageError("disable mfa", err)
	}

	e.metricInc(MetricMFADisabled)
	e.notice(ctx, acct, "Two-factor authentication disabled",
		"Two-factor authentication was turned off for your account. If this was not you, reset your password.\n")
	return nil
}

// CurrentCode returns the code for secret at the engine clock.
func (e *Engine) CurrentCode(secret string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	return e.totp.Code(secret, e.now())
}

// VerifyTOTP reports whether code is valid for secret within the
// configured window. It does not record the step; Login does.
func (e *Engine) VerifyTOTP(secret, code string) bool {
	if e == nil || e.totp == nil {
		return false
	}
	_, ok := e.totp.Validate(secret, strings.TrimSpace(code), e.now())
	return ok
}

// consumeOTP accepts either the pending emailed code, until its own
// expiry, or an authenticator code within the TOTP window. Either way the
// step is claimed so the same code cannot be used twice, and the pending
// emailed OTP is cleared in the same update.
func (e *Engine) consumeOTP(ctx context.Context, acct *Account, code string) error {
	if !acct.MFAEnabled || acct.MFASecret == "" {
		return ErrMFANotEnabled
	}
	code = strings.TrimSpace(code)
	now := e.now()

	if acct.OTP != nil && tokens.Equal(acct.OTP.Hash, tokens.Hash(code)) {
		return e.consumeEmailedOTP(ctx, acct, now)
	}

	step, ok := e.totp.Validate(acct.MFASecret, code, now)
	if !ok {
		e.metricInc(MetricOTPFailure)
		return ErrInvalidOTP
	}

	n, err := e.store.UpdateWhere(ctx,
		AccountFilter{ID: acct.ID, OTPStepBelow: step},
		AccountPatch{LastOTPStep: &step, ClearOTP: true})
	if err != nil {
		return e.storageError("claim otp step", err)
	}
	if n == 0 {
		e.metricInc(MetricOTPFailure)
		return ErrInvalidOTP
	}

	acct.LastOTPStep = step
	acct.OTP = nil
	e.metricInc(MetricOTPSuccess)
	return nil
}

// consumeEmailedOTP redeems the pending emailed code. An expired code is
// rejected even when the TOTP window would still accept it.
func (e *Engine) consumeEmailedOTP(ctx context.Context, acct *Account, now time.Time) error {
	if !acct.OTP.Valid(now) {
		e.metricInc(MetricOTPFailure)
		return ErrInvalidOTP
	}

	step := max(acct.LastOTPStep, e.totp.StepAt(now))
	n, err := e.store.UpdateWhere(ctx,
		AccountFilter{
			ID:           acct.ID,
			Field:        TokenOTP,
			Hash:         acct.OTP.Hash,
			ValidAt:      now,
			OTPStepBelow: step + 1,
		},
		AccountPatch{LastOTPStep: &step, ClearOTP: true})
	if err != nil {
		return e.storageError("consume emailed otp", err)
	}
	if n == 0 {
		e.metricInc(MetricOTPFailure)
		return ErrInvalidOTP
	}

	acct.LastOTPStep = step
	acct.OTP = nil
	e.metricInc(MetricOTPSuccess)
	return nil
}
