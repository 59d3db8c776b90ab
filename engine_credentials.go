package rbacAuth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// VerifyCredentials checks email and plaintext against the stored hash.
// An unknown email and a wrong password both return ErrInvalidCredentials,
// and an unknown email still pays for one hash comparison. Deactivated
// accounts return ErrAccountInactive only after the password matched.
//
// VerifyCredentials does not modify the account.
func (e *Engine) VerifyCredentials(ctx context.Context, email, plaintext string) (*Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email = normalizeEmail(email)
	if email == "" || plaintext == "" {
		return nil, ErrValidation
	}

	acct, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			_, _ = e.hasher.Verify(plaintext, e.dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, e.storageError("find account by email", err)
	}

	ok, err := e.hasher.Verify(plaintext, acct.PasswordHash)
	if err != nil {
		e.logger.Error("stored password hash unreadable", "account_id", acct.ID, "err", err)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if !acct.Active() {
		return nil, ErrAccountInactive
	}

	return acct, nil
}

// upgradeHash rehashes plaintext with the primary algorithm when the stored
// hash uses weaker parameters. Failures are logged and never fail a login.
func (e *Engine) upgradeHash(ctx context.Context, acct *Account, plaintext string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.hasher.NeedsUpgrade(acct.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		e.logger.Warn("password rehash failed", "account_id", acct.ID, "err", err)
		return
	}
	if err := e.store.Update(ctx, acct.ID, AccountPatch{PasswordHash: &hash}); err != nil {
		e.logger.Warn("password rehash not stored", "account_id", acct.ID, "err", err)
		return
	}
	acct.PasswordHash = hash
	e.metricInc(MetricPasswordRehashed)
}

func (e *Engine) checkPasswordPolicy(plaintext string) error {
	n := len(plaintext)
	if n < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}
	if e.config.Password.MaxLength > 0 && n > e.config.Password.MaxLength {
		return ErrPasswordPolicy
	}
	return nil
}

func (e *Engine) storageError(op string, err error) error {
	e.logger.Error("account store failure", "op", op, "err", err)
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
