package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/report"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/session"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/store"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/validate"
)

// BadRequest - body could not be decoded or a required field is missing
var ErrBadRequest = errors.New("httpapi: bad request")

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, report.ErrSessionNotFinal),
		errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, session.ErrInvalidReason),
		errors.Is(err, validate.ErrInvalidPayload),
		errors.Is(err, validate.ErrInvalidCandidate):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
