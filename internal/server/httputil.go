package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bdlm/log"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"

	"github.com/matthewbaird/bindery/internal/element"
	"github.com/matthewbaird/bindery/internal/keypath"
	"github.com/matthewbaird/bindery/internal/schemestore"
	"github.com/matthewbaird/bindery/internal/scheme"
	"github.com/matthewbaird/bindery/internal/screen"
	"github.com/matthewbaird/bindery/internal/session"
)

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("server: encode response: %v", err)
	}
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// errorToHTTP maps package errors to HTTP responses.
func errorToHTTP(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schemestore.ErrNotFound), errors.Is(err, screen.ErrNoElement):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, keypath.ErrUnknownKey), errors.Is(err, keypath.ErrReadOnly), errors.Is(err, element.ErrNoAction):
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	case errors.Is(err, scheme.ErrInvalid):
		writeError(w, http.StatusUnprocessableEntity, "INVALID_SCHEME", err.Error())
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusGone, "SESSION_CLOSED", err.Error())
	default:
		log.WithFields(log.Fields{"err": err}).Error("server: internal error")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// logging logs one line per request.
func logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"bytes":    ww.BytesWritten(),
			"duration": time.Since(start).String(),
		}).Debug("server: request")
	})
}
