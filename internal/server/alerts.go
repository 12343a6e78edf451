package server

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/menta2k/zone-annotator/internal/events"
	"github.com/menta2k/zone-annotator/internal/store"
)

// changeBuffer is how many state changes a slow stream client may lag behind.
const changeBuffer = 32

// ListAlerts handles GET /api/alerts.
// Query: type, severity, cameraId, unacknowledged=true.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.AlertFilter{
		Type:     store.AlertType(q.Get("type")),
		Severity: store.Severity(q.Get("severity")),
		CameraID: q.Get("cameraId"),
	}
	if v := q.Get("unacknowledged"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.writeErrorWithStatus(w, fmt.Errorf("invalid unacknowledged value %q", v), http.StatusBadRequest)
			return
		}
		f.Unacknowledged = b
	}
	if f.Severity != "" && !f.Severity.Valid() {
		h.writeErrorWithStatus(w, fmt.Errorf("unknown severity %q", f.Severity), http.StatusBadRequest)
		return
	}
	writeJSON(w, h.state.Alerts(f))
}

// ClearAlerts handles DELETE /api/alerts.
func (h *Handler) ClearAlerts(w http.ResponseWriter, r *http.Request) {
	h.state.ClearAlerts()
	w.WriteHeader(http.StatusNoContent)
}

// AlertStats handles GET /api/alerts/stats.
func (h *Handler) AlertStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.state.Stats())
}

// AcknowledgeAlert handles POST /api/alerts/{alert_id}/ack.
func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	a, err := h.state.AcknowledgeAlert(chi.URLParam(r, "alert_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, a)
}

// IngestAlert handles POST /api/alerts/ingest: an alert produced by an
// external detector, in the same schema the stream emits.
func (h *Handler) IngestAlert(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		h.writeErrorWithStatus(w, err, http.StatusBadRequest)
		return
	}
	m, err := events.DecodeMessage(body)
	if err != nil {
		h.log.Debug("rejected alert message", slog.String("error", err.Error()))
		h.writeError(w, err)
		return
	}
	h.bus.Publish(m)
	writeJSONWithStatus(w, m, http.StatusAccepted)
}

// StreamAlerts handles GET /api/alerts/stream as server-sent events. Each
// alert is sent as an "alert" event until the client disconnects.
func (h *Handler) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, ch := h.bus.Subscribe()
	defer func() {
		h.bus.Unsubscribe(id)
		h.metrics.SetStreamSubscribers(h.bus.Subscribers())
	}()
	h.metrics.SetStreamSubscribers(h.bus.Subscribers())

	startSSE(w)
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSSE(w, "alert", m); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// StreamChanges handles GET /api/changes as server-sent events carrying
// every state mutation, so dashboards can refetch what changed.
func (h *Handler) StreamChanges(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := make(chan store.Change, changeBuffer)
	unsubscribe := h.state.Subscribe(func(c store.Change) {
		select {
		case ch <- c:
		default:
			h.log.Warn("change stream lagging, change dropped", slog.String("kind", string(c.Kind)))
		}
	})
	defer unsubscribe()

	startSSE(w)
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case c := <-ch:
			if err := writeSSE(w, "change", c); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func startSSE(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ": connected\n\n")
}
