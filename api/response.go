package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	rbacAuth "github.com/MrEthical07/rbacAuth"
)

type dataResponse struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
}

type errorResponse struct {
	Success    bool     `json:"success"`
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Errors     []string `json:"errors"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // best-effort write; the client may be gone
		json.NewEncoder(w).Encode(v)
	}
}

func writeData(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, dataResponse{StatusCode: status, Data: data, Message: message})
}

// writeError translates err into the error envelope. Internal errors are
// logged with their cause; the client only sees the public message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := rbacAuth.HTTPStatus(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", requestIDFrom(r.Context()),
		)
	}
	writeJSON(w, status, errorResponse{
		StatusCode: status,
		Message:    rbacAuth.PublicMessage(err),
		Errors:     []string{},
	})
}

// writeValidation reports a malformed request with field-level details.
func writeValidation(w http.ResponseWriter, message string, details ...string) {
	if details == nil {
		details = []string{}
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Errors:     details,
	})
}

// decodeJSON reads a single JSON object into dst and rejects unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("request body too large")
		}
		return errors.New("invalid JSON body")
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
