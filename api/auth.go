package api

import (
	"net/http"
	"strings"
	"time"

	rbacAuth "github.com/MrEthical07/rbacAuth"
)

// loginRequest is the body of POST /api/login. Channel defaults to web;
// mobile clients send their device identifier as DeviceID.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OTP      string `json:"otp"`
	Channel  string `json:"channel"`
	DeviceID string `json:"deviceId"`
}

type sessionResponse struct {
	AccessToken string      `json:"accessToken"`
	ExpiresAt   time.Time   `json:"expiresAt"`
	User        accountView `json:"user"`
}

type challengeResponse struct {
	Outcome rbacAuth.LoginOutcome `json:"outcome"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type resetPasswordRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeValidation(w, "Email and password are required")
		return
	}
	channel, err := rbacAuth.ParseChannel(req.Channel)
	if err != nil {
		writeValidation(w, "Invalid channel", "channel must be web, ios or android")
		return
	}
	if channel != rbacAuth.ChannelWeb && strings.TrimSpace(req.DeviceID) == "" {
		writeValidation(w, "Device ID is required", "deviceId is required for mobile channels")
		return
	}

	res, err := s.engine.Login(r.Context(), rbacAuth.LoginRequest{
		Email:       req.Email,
		Password:    req.Password,
		OTP:         req.OTP,
		Fingerprint: rbacAuth.Fingerprint{Channel: channel, Value: req.DeviceID},
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeLoginResult(w, res)
}

// writeLoginResult answers a completed login with the session and both
// challenge outcomes with 401 and no token.
func (s *Server) writeLoginResult(w http.ResponseWriter, res *rbacAuth.LoginResult) {
	switch res.Outcome {
	case rbacAuth.OutcomeAuthenticated:
		s.engine.AttachSessionCookie(w, res.Token, res.ExpiresAt)
		writeData(w, http.StatusOK, sessionResponse{
			AccessToken: res.Token,
			ExpiresAt:   res.ExpiresAt,
			User:        newAccountView(res.Account),
		}, "Login successful")
	case rbacAuth.OutcomeOTPSent:
		writeData(w, http.StatusUnauthorized, challengeResponse{Outcome: res.Outcome},
			"OTP sent to your email")
	case rbacAuth.OutcomeConfirmationRequired:
		writeData(w, http.StatusUnauthorized, challengeResponse{Outcome: res.Outcome},
			"New device detected. Check your email to confirm this login")
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.engine.ClearSessionCookie(w)
	writeData(w, http.StatusOK, nil, "Logged out")
}

// handleConfirmLogin accepts the token as a query parameter (the emailed
// link) or in a JSON body.
func (s *Server) handleConfirmLogin(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" && r.Method == http.MethodPost {
		var req tokenRequest
		if err := decodeJSON(r, &req); err != nil {
			writeValidation(w, err.Error())
			return
		}
		token = req.Token
	}
	if strings.TrimSpace(token) == "" {
		writeValidation(w, "Token is required")
		return
	}

	res, err := s.engine.ConfirmLogin(r.Context(), token)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeLoginResult(w, res)
}

func (s *Server) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeValidation(w, "Email is required")
		return
	}
	if err := s.engine.SendOTP(r.Context(), req.Email); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil, "OTP sent to your email")
}

func (s *Server) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeValidation(w, "Email is required")
		return
	}
	if err := s.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil, "If the account exists, a reset link has been sent")
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, err.Error())
		return
	}
	if req.Token == "" || req.NewPassword == "" || req.ConfirmPassword == "" {
		writeValidation(w, "Token, new password and confirmation are required")
		return
	}
	if err := s.engine.ResetPassword(r.Context(), req.Token, req.NewPassword, req.ConfirmPassword); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil, "Password reset successful")
}
