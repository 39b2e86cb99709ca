package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"campus-server/utils/errors"
)

// ErrorMiddleware turns panics into a 500 JSON response.
func ErrorMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					LoggerFromContext(r.Context()).WithField("panic", rec).Error("Panic recovered")
					WriteError(w, r, errors.ErrInternal)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// WriteError writes err as a JSON APIError. Errors that are not APIErrors
// become 500s and their text stays in the log.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *errors.APIError
	if !errors.As(err, &apiErr) {
		LoggerFromContext(r.Context()).WithError(err).Error("Unhandled error")
		apiErr = errors.ErrInternal
	}

	entry := LoggerFromContext(r.Context()).WithFields(logrus.Fields{
		"code":    apiErr.Code,
		"status":  apiErr.Status,
		"details": apiErr.Details,
	})
	switch {
	case apiErr.Status >= 500:
		entry.Error("Server error")
	case errors.IsConflict(apiErr):
		entry.Info("Request conflicted with current state")
	case errors.IsValidation(apiErr):
		entry.Debug("Request failed validation")
	default:
		entry.Debug("Request rejected")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	json.NewEncoder(w).Encode(apiErr)
}
