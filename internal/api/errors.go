package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/k-boateng/satellite-pass-predictionv2/internal/propagation"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/tle"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/tracking"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/transform"
)

const requestIDHeader = "X-Request-ID"

type contextKey string

const requestIDKey contextKey = "request_id"

// requestIDMiddleware tags each request with the caller's X-Request-ID when it
// is a UUID, or a fresh one otherwise, and echoes it in the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, kind, msg string) {
	writeJSON(w, status, ErrorResponse{Error: kind, Message: msg, RequestID: requestID(r.Context())})
}

// classify maps a service error to its HTTP status and error kind.
func classify(err error) (int, string) {
	var pe *paramError
	switch {
	case errors.As(err, &pe),
		errors.Is(err, tracking.ErrInvalidStep),
		errors.Is(err, tracking.ErrWindowTooLarge),
		errors.Is(err, transform.ErrInvalidSite):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, tracking.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, propagation.ErrPropagation):
		return http.StatusInternalServerError, "propagation_error"
	case errors.Is(err, tle.ErrNoCatalog):
		return http.StatusServiceUnavailable, "no_catalog"
	case errors.Is(err, tle.ErrFetchFailure), errors.Is(err, tle.ErrEmptyCatalog):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	msg := err.Error()
	if kind == "internal_error" {
		s.logger.Error("request failed",
			"request_id", requestID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		msg = "internal error"
	}
	writeError(w, r, status, kind, msg)
}
