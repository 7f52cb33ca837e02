package api

import (
	"errors"
	"net/http"

	"github.com/resumind/resumind/internal/core"
)

// httpStatusForDomainError maps a domain error category to an HTTP
// status.
func httpStatusForDomainError(err error) (int, bool) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		return 0, false
	}

	switch domErr.Category {
	case core.ErrCatValidation:
		return http.StatusBadRequest, true
	case core.ErrCatNotFound:
		return http.StatusNotFound, true
	case core.ErrCatConflict:
		return http.StatusConflict, true
	case core.ErrCatAuth:
		return http.StatusUnauthorized, true
	case core.ErrCatRateLimit:
		return http.StatusTooManyRequests, true
	default:
		return http.StatusInternalServerError, true
	}
}

// respondDomainError writes err in the error envelope. Messages reach
// the client only for 4xx statuses; anything mapping to 5xx is logged
// and replaced by a generic message.
func (s *Server) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, ok := httpStatusForDomainError(err)
	if !ok {
		status = http.StatusInternalServerError
	}
	message := "Internal server error"
	var domErr *core.DomainError
	if status < http.StatusInternalServerError && errors.As(err, &domErr) {
		message = domErr.Message
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
	}
	respondError(w, status, message)
}
