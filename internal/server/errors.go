package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
)

// httpError is an error with a status code and a message safe to show
// to clients.
type httpError struct {
	Code    int
	Message string
	cause   error
}

func (e *httpError) Error() string { return e.Message }

func (e *httpError) Unwrap() error { return e.cause }

func errBadRequest(msg string) error {
	return &httpError{Code: http.StatusBadRequest, Message: msg}
}

func errConflict(msg string, cause error) error {
	return &httpError{Code: http.StatusConflict, Message: msg, cause: cause}
}

func errInternal(msg string, cause error) error {
	return &httpError{Code: http.StatusInternalServerError, Message: msg, cause: cause}
}

func errUnavailable(msg string, cause error) error {
	return &httpError{Code: http.StatusServiceUnavailable, Message: msg, cause: cause}
}

// appHandler is a handler that returns its failure instead of writing it.
type appHandler func(w http.ResponseWriter, r *http.Request) error

// makeHandler turns an appHandler into an http.HandlerFunc that writes
// returned errors as JSON.
func makeHandler(logger *log.Logger, h appHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}

		code := http.StatusInternalServerError
		msg := "internal server error"

		var he *httpError
		if errors.As(err, &he) {
			code = he.Code
			msg = he.Message
		}

		if code >= http.StatusInternalServerError {
			logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		} else {
			logger.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "code", code, "err", err)
		}

		respondJSON(w, code, map[string]string{"error": msg})
	}
}

// respondJSON writes v as the JSON response body.
func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
