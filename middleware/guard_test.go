package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	rbacAuth "github.com/MrEthical07/rbacAuth"
	"github.com/MrEthical07/rbacAuth/notify"
	"github.com/MrEthical07/rbacAuth/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	engine *rbacAuth.Engine
	store  *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := rbacAuth.DefaultConfig()
	cfg.Session.Secret = "middleware-test-secret-0123456789abcdef"
	cfg.Password.BcryptCost = bcrypt.MinCost
	cfg.Device.Enabled = false

	store := memory.New()
	engine, err := rbacAuth.New().
		WithConfig(cfg).
		WithAccountStore(store).
		WithNotifier(&notify.Recorder{}).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return &fixture{engine: engine, store: store}
}

func (f *fixture) tokenFor(t *testing.T, role rbacAuth.Role) (string, *rbacAuth.Account) {
	t.Helper()
	acct, err := f.engine.CreateAccount(context.Background(), rbacAuth.CreateAccountRequest{
		Email:    string(role) + "@example.com",
		Password: "correct horse battery",
		Role:     role,
	})
	require.NoError(t, err)
	token, _, err := f.engine.IssueSession(acct)
	require.NoError(t, err)
	return token, acct
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct, ok := AccountFromContext(r.Context())
		if !ok {
			t.Error("account missing from context")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(acct.ID))
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAuthorizeMissingToken(t *testing.T) {
	f := newFixture(t)
	h := Authorize(f.engine)(okHandler(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeError(t, rec)
	assert.False(t, body.Success)
	assert.Equal(t, http.StatusUnauthorized, body.StatusCode)
	assert.Equal(t, "Access token is required", body.Message)
	assert.NotNil(t, body.Errors)
}

func TestAuthorizeBearerAndCookie(t *testing.T) {
	f := newFixture(t)
	token, acct := f.tokenFor(t, rbacAuth.RoleManager)
	h := Authorize(f.engine, rbacAuth.RoleManager, rbacAuth.RoleSuperadmin)(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, acct.ID, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "accessToken", Value: token})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthorizeWrongRole(t *testing.T) {
	f := newFixture(t)
	token, _ := f.tokenFor(t, rbacAuth.RoleUser)
	h := Authorize(f.engine, rbacAuth.RoleSuperadmin)(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Forbidden", decodeError(t, rec).Message)
}

func TestAuthorizeUsesCurrentRole(t *testing.T) {
	f := newFixture(t)
	token, acct := f.tokenFor(t, rbacAuth.RoleSuperadmin)
	h := Authorize(f.engine, rbacAuth.RoleSuperadmin)(okHandler(t))

	demoted := rbacAuth.RoleUser
	_, err := f.engine.UpdateAccount(context.Background(), acct.ID, rbacAuth.UpdateAccountRequest{Role: &demoted})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthorizeTamperedToken(t *testing.T) {
	f := newFixture(t)
	token, _ := f.tokenFor(t, rbacAuth.RoleUser)
	h := Authorize(f.engine)(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token+"x")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired token", decodeError(t, rec).Message)
}

func TestAuthorizeWithCustomErrorHandler(t *testing.T) {
	f := newFixture(t)
	var got error
	h := AuthorizeWith(f.engine, func(w http.ResponseWriter, _ *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusTeapot)
	})(okHandler(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.ErrorIs(t, got, rbacAuth.ErrMissingToken)
}

func TestAuthorizeNilEngine(t *testing.T) {
	h := Authorize(nil)(okHandler(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
