package rbacAuth

import (
	"context"
	"errors"
	"slices"
	"time"
)

// Authorize resolves raw to its account and checks the account's current
// role against allowed. With no allowed roles any active account passes.
//
// The role is read from storage on every call, so a demotion takes effect
// on the next request even though the token still carries the old role.
func (e *Engine) Authorize(ctx context.Context, raw string, allowed ...Role) (*Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer e.observe(MetricAuthorizeLatency, start)

	id, err := e.ResolveSession(raw)
	if err != nil {
		return nil, err
	}

	acct, err := e.store.FindByID(ctx, id.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, e.storageError("find account by id", err)
	}

	if !acct.Active() {
		e.metricInc(MetricAuthorizeForbidden)
		return nil, ErrAccountInactive
	}
	if len(allowed) > 0 && !slices.Contains(allowed, acct.Role) {
		e.metricInc(MetricAuthorizeForbidden)
		return nil, ErrForbidden
	}

	e.metricInc(MetricAuthorizeSuccess)
	return acct, nil
}
