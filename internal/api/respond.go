package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/assignment-webapp/internal/domain"
	"github.com/JakeFAU/assignment-webapp/internal/logging"
)

// statusFor maps domain sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrPolicyRejected):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusNotImplemented
	}
}

// writeServiceError logs and renders err. Unclassified causes are not echoed
// to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := logging.FromContext(r.Context(), zap.NewNop())
	msg := err.Error()
	switch status {
	case http.StatusNotImplemented:
		logger.Error("unhandled service error", zap.Error(err))
		msg = "internal error"
	case http.StatusServiceUnavailable:
		logger.Warn("backend unavailable", zap.Error(err))
		msg = "service unavailable"
	default:
		logger.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, msg)
}

// decodeJSON strictly decodes a single JSON object into dst.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("request body is required: %w", domain.ErrValidation)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is required: %w", domain.ErrValidation)
		}
		return fmt.Errorf("invalid JSON: %s: %w", strings.TrimPrefix(err.Error(), "json: "), domain.ErrValidation)
	}
	if dec.More() {
		return fmt.Errorf("invalid JSON: trailing data: %w", domain.ErrValidation)
	}
	return nil
}

// hasBody reports whether the request carries any payload bytes.
func hasBody(r *http.Request) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return false
	}
	if r.ContentLength > 0 {
		return true
	}
	var one [1]byte
	n, _ := r.Body.Read(one[:])
	return n > 0
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
