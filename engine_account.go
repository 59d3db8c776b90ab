package rbacAuth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
)

// UpdateAccountRequest changes profile fields of an account. Nil fields
// are left unchanged.
type UpdateAccountRequest struct {
	DisplayName *string
	Role        *Role
	Status      *AccountStatus
}

// CreateAccount registers an active account. Role defaults to RoleUser and
// DisplayName to the local part of the email.
func (e *Engine) CreateAccount(ctx context.Context, req CreateAccountRequest) (*Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email, err := validateEmail(req.Email)
	if err != nil {
		return nil, err
	}
	role := req.Role
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if err := e.checkPasswordPolicy(req.Password); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	acct, err := e.store.Create(ctx, NewAccount{
		Email:        email,
		DisplayName:  name,
		Role:         role,
		PasswordHash: hash,
		Status:       StatusActive,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, e.storageError("create account", err)
	}

	e.metricInc(MetricAccountCreated)
	e.logger.Info("account created", "account_id", acct.ID, "role", acct.Role)
	return acct, nil
}

// Account returns the account with id, or ErrNotFound.
func (e *Engine) Account(ctx context.Context, id string) (*Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	acct, err := e.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrNotFound
		}
		return nil, e.storageError("find account by id", err)
	}
	return acct, nil
}

// ListAccounts returns every account, oldest first.
func (e *Engine) ListAccounts(ctx context.Context) ([]*Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	accounts, err := e.store.List(ctx)
	if err != nil {
		return nil, e.storageError("list accounts", err)
	}
	return accounts, nil
}

// UpdateAccount applies req and returns the updated account. A role or
// status change is enforced by Authorize on the account's next request.
func (e *Engine) UpdateAccount(ctx context.Context, id string, req UpdateAccountRequest) (*Account, error) {
	acct, err := e.Account(ctx, id)
	if err != nil {
		return nil, err
	}

	var patch AccountPatch
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" {
			return nil, ErrValidation
		}
		patch.DisplayName = &name
	}
	if req.Role != nil {
		if !req.Role.Valid() {
			return nil, ErrInvalidRole
		}
		patch.Role = req.Role
	}
	if req.Status != nil {
		if *req.Status != StatusActive && *req.Status != StatusInactive {
			return nil, ErrValidation
		}
		patch.Status = req.Status
	}

	if err := e.store.Update(ctx, acct.ID, patch); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrNotFound
		}
		return nil, e.storageError("update account", err)
	}
	patch.Apply(acct, e.now())
	return acct, nil
}

// DeactivateAccount flips the account to inactive. Existing sessions stop
// passing Authorize immediately.
func (e *Engine) DeactivateAccount(ctx context.Context, id string) error {
	inactive := StatusInactive
	if _, err := e.UpdateAccount(ctx, id, UpdateAccountRequest{Status: &inactive}); err != nil {
		return err
	}
	e.metricInc(MetricAccountDeactivated)
	e.logger.Info("account deactivated", "account_id", id)
	return nil
}

func validateEmail(raw string) (string, error) {
	email := normalizeEmail(raw)
	if email == "" {
		return "", ErrValidation
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrValidation
	}
	return email, nil
}
