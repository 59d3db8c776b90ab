package rbacAuth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/rbacAuth/jwt"
)

// IssueSession signs a session token for acct. The role carried in the
// token is informational; Authorize always re-reads the stored role.
func (e *Engine) IssueSession(acct *Account) (string, time.Time, error) {
	if err := e.ready(); err != nil {
		return "", time.Time{}, err
	}
	if acct == nil || acct.ID == "" {
		return "", time.Time{}, ErrValidation
	}

	token, expiresAt, err := e.jwtManager.Issue(acct.ID, acct.DisplayName, string(acct.Role))
	if err != nil {
		e.logger.Error("session token signing failed", "account_id", acct.ID, "err", err)
		return "", time.Time{}, err
	}
	e.metricInc(MetricSessionIssued)
	return token, expiresAt, nil
}

// ResolveSession verifies raw and returns its claims. Expired tokens return
// ErrTokenExpired, every other failure ErrInvalidToken.
func (e *Engine) ResolveSession(raw string) (*SessionIdentity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingToken
	}

	claims, err := e.jwtManager.Parse(raw)
	if err != nil {
		e.metricInc(MetricSessionRejected)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		e.metricInc(MetricSessionRejected)
		return nil, ErrInvalidToken
	}

	id := &SessionIdentity{
		AccountID:   claims.Subject,
		DisplayName: claims.Name,
		Role:        role,
	}
	if claims.IssuedAt != nil {
		id.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// AttachSessionCookie sets the session cookie: HttpOnly, SameSite=Strict,
// and Secure in production.
func (e *Engine) AttachSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(e.now()).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, e.sessionCookie(token, expiresAt, maxAge))
}

// ClearSessionCookie expires the session cookie. No server-side state is
// revoked.
func (e *Engine) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, e.sessionCookie("", time.Unix(0, 0), -1))
}

func (e *Engine) sessionCookie(value string, expires time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     e.config.Cookie.Name,
		Value:    value,
		Path:     e.config.Cookie.Path,
		Domain:   e.config.Cookie.Domain,
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   e.config.CookieSecure(),
		SameSite: http.SameSiteStrictMode,
	}
}

// SessionTokenFromRequest returns the session token from the cookie, or
// from an "Authorization: Bearer" header when the cookie is absent.
func (e *Engine) SessionTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if c, err := r.Cookie(e.config.Cookie.Name); err == nil && c.Value != "" {
		return c.Value
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
