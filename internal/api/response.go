package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/yegors/telegate/internal/domain"
)

const maxBodyBytes = 1 << 20

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorResponse struct {
	Success   bool        `json:"success"`
	Error     string      `json:"error"`
	ErrorKind domain.Kind `json:"error_kind"`
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// WriteData wraps data in the success envelope
func WriteData(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, successResponse{Success: true, Data: data})
}

// WriteError writes the failure envelope with the status for err's kind.
// Unclassified errors never leak their text.
func WriteError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	message := err.Error()
	var derr *domain.Error
	if !errors.As(err, &derr) && kind == domain.KindInternal {
		message = "internal error"
	}
	WriteJSON(w, StatusFor(kind), errorResponse{Error: message, ErrorKind: kind})
}

// StatusFor maps an error kind to an HTTP status
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation, domain.KindInvalidPageToken:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConnection, domain.KindAuth:
		return http.StatusServiceUnavailable
	case domain.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads a JSON request body into v
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var derr *domain.Error
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &derr):
			return err
		case errors.Is(err, io.EOF):
			return domain.ValidationError("request body is required")
		case errors.As(err, &tooLarge):
			return domain.ValidationError("request body exceeds %d bytes", tooLarge.Limit)
		default:
			return domain.ValidationError("invalid JSON body: %v", err)
		}
	}
	return nil
}

// queryInt reads an optional integer query parameter
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.ValidationError("%s must be an integer, got %q", name, raw)
	}
	return n, nil
}

// queryBool reads an optional boolean query parameter
func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, domain.ValidationError("%s must be a boolean, got %q", name, raw)
	}
	return b, nil
}
