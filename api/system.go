package api

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// handleHealth reports 503 when the Ready probe fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			status["status"] = "degraded"
			writeData(w, http.StatusServiceUnavailable, status, "Service unavailable")
			return
		}
	}
	status["noticesDropped"] = s.engine.NoticesDropped()
	writeData(w, http.StatusOK, status, "OK")
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{
			StatusCode: http.StatusNotFound,
			Message:    "Metrics disabled",
			Errors:     []string{},
		})
		return
	}
	s.metrics.ServeHTTP(w, r)
}
