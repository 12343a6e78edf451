package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/menta2k/zone-annotator/internal/events"
	"github.com/menta2k/zone-annotator/internal/store"
	"github.com/menta2k/zone-annotator/pkg/capture"
	"github.com/menta2k/zone-annotator/pkg/editor"
	"github.com/menta2k/zone-annotator/pkg/media"
)

// maxJSONBody bounds request bodies for JSON endpoints.
const maxJSONBody = 1 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string      `json:"error"`
	Rule  editor.Rule `json:"rule,omitempty"`
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}

// writeSSE writes one server-sent event. An empty event name sends a
// default "message" event.
func writeSSE(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var verr *editor.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, editor.ErrSessionClosed),
		errors.Is(err, editor.ErrDrawingDisabled),
		errors.Is(err, capture.ErrNoMedia),
		errors.Is(err, media.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, media.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, media.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, capture.ErrNoDecoder):
		return http.StatusNotImplemented
	case errors.Is(err, store.ErrInvalid),
		errors.Is(err, events.ErrMalformed),
		errors.Is(err, editor.ErrPointIndex):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err with the status from statusFor. Validation errors
// carry the violated rule so clients can tell them apart.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeErrorWithStatus(w, err, statusFor(err))
}

func (h *Handler) writeErrorWithStatus(w http.ResponseWriter, err error, status int) {
	body := errorBody{Error: err.Error()}
	var verr *editor.ValidationError
	if errors.As(err, &verr) {
		body.Rule = verr.Rule
		h.metrics.ValidationFailed(string(verr.Rule))
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "error", err.Error(), "status", status)
	}
	writeJSONWithStatus(w, body, status)
}
