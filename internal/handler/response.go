package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pawpantry/pawpantry-go/internal/apperr"
	"github.com/pawpantry/pawpantry-go/internal/model"
)

const maxBodyBytes = 1 << 20 // 1MB

var errBodyTooLarge = errors.New("request body too large")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError is the only place a service error becomes an HTTP response.
// Internal errors are logged and hidden unless devMode is set.
func writeError(w http.ResponseWriter, r *http.Request, err error, devMode bool) {
	if errors.Is(err, errBodyTooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, model.ErrorResponse{
			Error: err.Error(),
			Code:  "PAYLOAD_TOO_LARGE",
		})
		return
	}

	kind := apperr.KindOf(err)
	body := model.ErrorResponse{
		Error: apperr.MessageOf(err),
		Code:  kind.Code(),
	}
	if kind == apperr.KindInternal {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		if devMode {
			body.Detail = err.Error()
		}
	}

	writeJSON(w, kind.Status(), body)
}

// decodeJSON reads a single JSON object of at most 1MB into dst. Unknown
// fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return apperr.Wrap(apperr.KindValidation, "invalid request body", err)
	}
	if dec.More() {
		return apperr.New(apperr.KindValidation, "invalid request body")
	}
	return nil
}
