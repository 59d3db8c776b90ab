package api

import (
	"net/http"

	rbacAuth "github.com/MrEthical07/rbacAuth"
	"github.com/MrEthical07/rbacAuth/middleware"
	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(s.clientMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, r, rbacAuth.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{
			StatusCode: http.StatusMethodNotAllowed,
			Message:    "Method not allowed",
			Errors:     []string{},
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Public auth routes
		r.Group(func(r chi.Router) {
			r.Use(s.throttleMiddleware)

			r.Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)
			r.Post("/confirm-login", s.handleConfirmLogin)
			r.Get("/confirm-login", s.handleConfirmLogin)
			r.Post("/send-otp", s.handleSendOTP)
			r.Post("/request-password-reset", s.handleRequestPasswordReset)
			r.Post("/reset-password", s.handleResetPassword)
		})

		// Any signed-in account
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthorizeWith(s.engine, s.respondError))

			r.Get("/me", s.handleMe)
			r.Post("/mfa/enable", s.handleEnableMFA)
			r.Post("/mfa/disable", s.handleDisableMFA)
		})

		// Administration
		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.AuthorizeWith(s.engine, s.respondError, rbacAuth.RoleSuperadmin))

			r.Get("/", s.handleListAccounts)
			r.Post("/", s.handleCreateAccount)
			r.Patch("/deactivate", s.handleDeactivateAccount)
			r.Get("/{id}", s.handleGetAccount)
			r.Patch("/{id}", s.handleUpdateAccount)
		})
	})

	return r
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, s.logger, err)
}
