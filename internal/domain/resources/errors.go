package resources

import (
	"errors"
	"net/http"

	"clinic-appointments/internal/platform/logger"
	"clinic-appointments/internal/ports/documents"
)

// HTTPError lleva un status y mensaje explícitos (p.ej. desde un hook).
type HTTPError struct {
	Status int
	Msg    string
}

func (e *HTTPError) Error() string { return e.Msg }

func Forbidden(msg string) error  { return &HTTPError{Status: http.StatusForbidden, Msg: msg} }
func BadRequest(msg string) error { return &HTTPError{Status: http.StatusBadRequest, Msg: msg} }

// StatusOf traduce un error del store (o de un hook) a status HTTP.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	switch documents.KindOf(err) {
	case documents.KindNotFound:
		return http.StatusNotFound
	case documents.KindDuplicate, documents.KindConflict:
		return http.StatusConflict
	case documents.KindInvalidKey:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError responde el error traducido. Lo inesperado se loguea y sale como 500 genérico.
func WriteError(w http.ResponseWriter, log logger.Logger, err error) {
	var he *HTTPError
	if errors.As(err, &he) {
		http.Error(w, he.Msg, he.Status)
		return
	}

	switch documents.KindOf(err) {
	case documents.KindNotFound:
		http.Error(w, "not found", http.StatusNotFound)
	case documents.KindDuplicate:
		http.Error(w, "duplicate", http.StatusConflict)
	case documents.KindConflict:
		http.Error(w, "conflict", http.StatusConflict)
	case documents.KindInvalidKey:
		http.Error(w, "invalid key", http.StatusBadRequest)
	default:
		if log != nil {
			log.Error("unexpected storage error", map[string]any{"err": err})
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
