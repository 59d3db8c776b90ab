package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	rbacAuth "github.com/MrEthical07/rbacAuth"
)

type accountContextKey struct{}

// ErrorHandler writes the response for a rejected request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// AccountFromContext returns the account stored by Authorize.
func AccountFromContext(ctx context.Context) (*rbacAuth.Account, bool) {
	acct, ok := ctx.Value(accountContextKey{}).(*rbacAuth.Account)
	return acct, ok
}

// WithAccount stores acct in ctx.
func WithAccount(ctx context.Context, acct *rbacAuth.Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, acct)
}

// Authorize admits requests whose session resolves to an active account
// holding one of roles. With no roles any active account is admitted.
// Rejections are written as a JSON error envelope.
func Authorize(engine *rbacAuth.Engine, roles ...rbacAuth.Role) func(http.Handler) http.Handler {
	return AuthorizeWith(engine, WriteError, roles...)
}

// AuthorizeWith is Authorize with a custom rejection writer.
func AuthorizeWith(engine *rbacAuth.Engine, onError ErrorHandler, roles ...rbacAuth.Role) func(http.Handler) http.Handler {
	if onError == nil {
		onError = WriteError
	}
	allowed := append([]rbacAuth.Role(nil), roles...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				onError(w, r, rbacAuth.ErrEngineNotReady)
				return
			}

			token := engine.SessionTokenFromRequest(r)
			if token == "" {
				onError(w, r, rbacAuth.ErrMissingToken)
				return
			}

			acct, err := engine.Authorize(r.Context(), token, allowed...)
			if err != nil {
				onError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), acct)))
		})
	}
}

type errorBody struct {
	Success    bool     `json:"success"`
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Errors     []string `json:"errors"`
}

// WriteError writes err as {"success":false,"statusCode":..,"message":..,"errors":[]}
// using the status and public message from rbacAuth.
func WriteError(w http.ResponseWriter, _ *http.Request, err error) {
	status := rbacAuth.HTTPStatus(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		StatusCode: status,
		Message:    rbacAuth.PublicMessage(err),
		Errors:     []string{},
	})
}
