package api

import (
	"net/http"
	"strings"
	"time"

	rbacAuth "github.com/MrEthical07/rbacAuth"
	"github.com/MrEthical07/rbacAuth/middleware"
	"github.com/go-chi/chi/v5"
)

// accountView is the public projection of an account. Secrets, hashes and
// pending tokens never leave the server.
type accountView struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	Status      string    `json:"status"`
	MFAEnabled  bool      `json:"mfaEnabled"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newAccountView(acct *rbacAuth.Account) accountView {
	if acct == nil {
		return accountView{}
	}
	return accountView{
		ID:          acct.ID,
		Email:       acct.Email,
		DisplayName: acct.DisplayName,
		Role:        string(acct.Role),
		Status:      string(acct.Status),
		MFAEnabled:  acct.MFAEnabled,
		CreatedAt:   acct.CreatedAt,
	}
}

type mfaSetupResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioningUri"`
}

type createAccountRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

type deactivateRequest struct {
	ID string `json:"id"`
}

// updateAccountRequest leaves absent fields unchanged.
type updateAccountRequest struct {
	DisplayName *string `json:"displayName"`
	Role        *string `json:"role"`
	Status      *string `json:"status"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	acct, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		s.respondError(w, r, rbacAuth.ErrMissingToken)
		return
	}
	writeData(w, http.StatusOK, newAccountView(acct), "OK")
}

func (s *Server) handleEnableMFA(w http.ResponseWriter, r *http.Request) {
	acct, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		s.respondError(w, r, rbacAuth.ErrMissingToken)
		return
	}
	setup, err := s.engine.EnableMFA(r.Context(), acct.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, mfaSetupResponse{
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
	}, "MFA enabled")
}

func (s *Server) handleDisableMFA(w http.ResponseWriter, r *http.Request) {
	acct, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		s.respondError(w, r, rbacAuth.ErrMissingToken)
		return
	}
	if err := s.engine.DisableMFA(r.Context(), acct.ID); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil, "MFA disabled")
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, err.Error())
		return
	}
	var role rbacAuth.Role
	if strings.TrimSpace(req.Role) != "" {
		parsed, err := rbacAuth.ParseRole(req.Role)
		if err != nil {
			writeValidation(w, "Invalid role", "role must be user, manager or superadmin")
			return
		}
		role = parsed
	}

	acct, err := s.engine.CreateAccount(r.Context(), rbacAuth.CreateAccountRequest{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Password:    req.Password,
		Role:        role,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, newAccountView(acct), "User created")
}

func (s *Server) handleDeactivateAccount(w http.ResponseWriter, r *http.Request) {
	var req deactivateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, err.Error())
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeValidation(w, "User ID is required")
		return
	}
	if err := s.engine.DeactivateAccount(r.Context(), req.ID); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil, "User deactivated")
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.engine.Account(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newAccountView(acct), "OK")
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.engine.ListAccounts(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	views := make([]accountView, 0, len(accounts))
	for _, acct := range accounts {
		views = append(views, newAccountView(acct))
	}
	writeData(w, http.StatusOK, views, "OK")
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var body updateAccountRequest
	if err := decodeJSON(r, &body); err != nil {
		writeValidation(w, err.Error())
		return
	}
	if body.DisplayName == nil && body.Role == nil && body.Status == nil {
		writeValidation(w, "Nothing to update")
		return
	}

	req := rbacAuth.UpdateAccountRequest{DisplayName: body.DisplayName}
	if body.Role != nil {
		role, err := rbacAuth.ParseRole(*body.Role)
		if err != nil {
			writeValidation(w, "Invalid role", "role must be user, manager or superadmin")
			return
		}
		req.Role = &role
	}
	if body.Status != nil {
		status := rbacAuth.AccountStatus(strings.ToLower(strings.TrimSpace(*body.Status)))
		if status != rbacAuth.StatusActive && status != rbacAuth.StatusInactive {
			writeValidation(w, "Invalid status", "status must be active or inactive")
			return
		}
		req.Status = &status
	}

	acct, err := s.engine.UpdateAccount(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newAccountView(acct), "User updated")
}
