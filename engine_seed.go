package rbacAuth

import (
	"context"
	"errors"
)

// SeedSuperadmin creates the bootstrap superadmin unless an account with
// the same email already exists. It reports whether an account was created.
func (e *Engine) SeedSuperadmin(ctx context.Context, req SeedRequest) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}

	email, err := validateEmail(req.Email)
	if err != nil {
		return false, err
	}

	existing, err := e.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role != RoleSuperadmin {
			e.logger.Warn("seed email belongs to a non-superadmin account", "account_id", existing.ID, "role", existing.Role)
		}
		return false, nil
	case !errors.Is(err, ErrAccountNotFound):
		return false, e.storageError("find account by email", err)
	}

	_, err = e.CreateAccount(ctx, CreateAccountRequest{
		Email:       email,
		DisplayName: req.DisplayName,
		Password:    req.Password,
		Role:        RoleSuperadmin,
	})
	if errors.Is(err, ErrEmailTaken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
