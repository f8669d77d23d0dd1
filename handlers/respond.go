package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"workportal/importer"
	"workportal/models"
	"workportal/roster"

	"github.com/golang/glog"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Warningf("write response: %v", err)
	}
}

// readJSON decodes the request body into v. An empty body leaves v zero.
func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	var (
		privErr     *models.PrivilegeError
		conflictErr *models.ConflictError
		connErr     *models.ConnectionError
		importErr   *importer.ValidationError
	)
	switch {
	case errors.As(err, &privErr):
		return http.StatusForbidden
	case errors.As(err, &conflictErr), errors.Is(err, models.ErrSessionActive),
		errors.Is(err, models.ErrNothingToUndo), errors.Is(err, models.ErrNothingToRedo):
		return http.StatusConflict
	case errors.As(err, &connErr), errors.Is(err, models.ErrDisconnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrRowNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidValue), errors.Is(err, models.ErrUnknownColumn),
		errors.As(err, &importErr), errors.Is(err, models.ErrNotConfirmed):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrSessionClosed), errors.Is(err, models.ErrCleanedUp),
		errors.Is(err, roster.ErrInvalidCredentials), errors.Is(err, roster.ErrUnknownRole):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		glog.Errorf("request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
