package httpapi

import (
	customerrors "agent-attendance/errors"
	"agent-attendance/store"
	"errors"
	"net/http"
)

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	var parseErr *customerrors.ParseError
	switch {
	case errors.Is(err, customerrors.ErrInvalidDate),
		errors.Is(err, customerrors.ErrInvalidRange),
		errors.Is(err, customerrors.ErrInvalidOverrideType),
		errors.Is(err, customerrors.ErrMissingColumn),
		errors.Is(err, customerrors.ErrEmptyInput),
		errors.Is(err, errMissingParam),
		errors.As(err, &parseErr):
		return http.StatusBadRequest
	case errors.Is(err, customerrors.ErrUnknownAgent),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrVersionExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

var errMissingParam = errors.New("missing required parameter")

// writeError writes err as {"error": "..."}. Internal errors are logged and
// their details withheld from the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	writeJSON(w, code, map[string]string{"error": msg})
}
