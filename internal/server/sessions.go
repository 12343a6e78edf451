package server

import (
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/menta2k/zone-annotator/internal/store"
	"github.com/menta2k/zone-annotator/internal/utils"
	"github.com/menta2k/zone-annotator/pkg/editor"
	"github.com/menta2k/zone-annotator/pkg/media"
	"github.com/menta2k/zone-annotator/pkg/types"
)

// multipartOverhead is the room left for form fields and boundaries on top
// of the upload limit.
const multipartOverhead = 1 << 20

// maxSeekSeconds is the largest seek position a time.Duration can hold.
const maxSeekSeconds = float64(math.MaxInt64 / int64(time.Second))

type openSessionRequest struct {
	Source          string            `json:"source"`
	Mode            types.Mode        `json:"mode"`
	InitialZone     []types.ZonePoint `json:"initialZone"`
	ConfigurationID string            `json:"configurationId"`
}

type sessionResponse struct {
	ID              string          `json:"id"`
	ConfigurationID string          `json:"configurationId,omitempty"`
	Session         editor.View     `json:"session"`
	Changed         *bool           `json:"changed,omitempty"`
	Zone            *types.Zone     `json:"zone,omitempty"`
	Notices         []editor.Notice `json:"notices"`
}

type sessionErrorBody struct {
	errorBody
	Notices []editor.Notice `json:"notices,omitempty"`
}

type clickRequest struct {
	X      float64           `json:"x"`
	Y      float64           `json:"y"`
	Target types.ClickTarget `json:"target,omitempty"`
}

type dragRequest struct {
	Index int     `json:"index"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

type selectRequest struct {
	Index int `json:"index"`
}

type playerRequest struct {
	Action string `json:"action"`
	// Position is the seek target in seconds.
	Position float64 `json:"position,omitempty"`
}

// OpenSession handles POST /api/sessions.
// Body: { "source": "...", "mode": "polygon", "initialZone": [...] } or
// { "configurationId": "..." } to edit a stored configuration's zone.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeErrorWithStatus(w, err, http.StatusBadRequest)
		return
	}

	if req.ConfigurationID != "" {
		if err := h.fillFromConfiguration(&req); err != nil {
			h.writeError(w, err)
			return
		}
	}
	mode, err := types.ParseMode(string(req.Mode))
	if err != nil {
		h.writeErrorWithStatus(w, err, http.StatusBadRequest)
		return
	}

	e := h.sessions.newEntry(req.ConfigurationID)
	shell, err := editor.Open(r.Context(), editor.Options{
		Mode:         mode,
		Source:       req.Source,
		InitialZone:  req.InitialZone,
		OnSave:       h.onSave(e, mode),
		Notifier:     e,
		Loader:       h.opts.Loader,
		Capture:      h.opts.Capture,
		Decoder:      h.opts.Decoder,
		UploadLimits: h.opts.UploadLimits,
		HitRadius:    h.opts.HitRadius,
		Logger:       h.log.With(slog.String("session_id", e.ID)),
	})
	if err != nil {
		h.writeErrorWithStatus(w, err, http.StatusBadRequest)
		return
	}
	e.Shell = shell
	h.sessions.add(e)
	h.metrics.SessionOpened()

	view := shell.View()
	if req.Source != "" && view.Media == media.KindNone {
		h.metrics.MediaError("load")
	}
	h.log.Info("editor session opened",
		slog.String("session_id", e.ID),
		slog.String("mode", string(mode)),
		slog.String("media", view.Media.String()),
		slog.String("configuration_id", req.ConfigurationID))
	writeJSONWithStatus(w, sessionResponse{
		ID:              e.ID,
		ConfigurationID: e.ConfigurationID,
		Session:         view,
		Notices:         e.drain(),
	}, http.StatusCreated)
}

// fillFromConfiguration defaults the mode, zone and source from a stored
// configuration and its camera.
func (h *Handler) fillFromConfiguration(req *openSessionRequest) error {
	cfg, err := h.state.Configuration(req.ConfigurationID)
	if err != nil {
		return err
	}
	mode, err := cfg.Type.Mode()
	if err != nil {
		return err
	}
	if req.Mode != "" && req.Mode != mode {
		return fmt.Errorf("%w: configuration %s edits %s zones, not %s", store.ErrInvalid, cfg.ID, mode, req.Mode)
	}
	req.Mode = mode
	if req.InitialZone == nil {
		req.InitialZone = cfg.Zone
	}
	if req.Source == "" {
		if cam, _, err := h.state.Camera(cfg.CameraID); err == nil {
			req.Source = cam.StreamURL
		}
	}
	return nil
}

func (h *Handler) onSave(e *entry, mode types.Mode) func([]types.ZonePoint, string) {
	return func(points []types.ZonePoint, snapshotURL string) {
		h.metrics.ZoneSaved(string(mode))
		if e.ConfigurationID == "" {
			return
		}
		if _, err := h.state.UpdateZone(e.ConfigurationID, points, snapshotURL); err != nil {
			h.log.Error("failed to store saved zone",
				slog.String("session_id", e.ID),
				slog.String("configuration_id", e.ConfigurationID),
				slog.String("error", err.Error()))
		}
	}
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*entry, bool) {
	id := chi.URLParam(r, "session_id")
	e, ok := h.sessions.get(id)
	if !ok {
		writeJSONWithStatus(w, errorBody{Error: "session not found"}, http.StatusNotFound)
		return nil, false
	}
	return e, true
}

func (h *Handler) respondSession(w http.ResponseWriter, e *entry, changed *bool) {
	writeJSON(w, sessionResponse{
		ID:              e.ID,
		ConfigurationID: e.ConfigurationID,
		Session:         e.Shell.View(),
		Changed:         changed,
		Notices:         e.drain(),
	})
}

// writeSessionError writes err along with the notices the editor raised.
func (h *Handler) writeSessionError(w http.ResponseWriter, e *entry, err error, status int) {
	body := sessionErrorBody{errorBody: errorBody{Error: err.Error()}, Notices: e.drain()}
	var verr *editor.ValidationError
	if errors.As(err, &verr) {
		body.Rule = verr.Rule
		h.metrics.ValidationFailed(string(verr.Rule))
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("session request failed", slog.String("session_id", e.ID), slog.String("error", err.Error()))
	}
	writeJSONWithStatus(w, body, status)
}

// GetSession handles GET /api/sessions/{session_id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.respondSession(w, e, nil)
}

// Click handles POST /api/sessions/{session_id}/click.
// Body: { "x": 100, "y": 50 } in render pixels. Without a target the click
// is hit-tested against the markers first.
func (h *Handler) Click(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req clickRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeErrorWithStatus(w, err, http.StatusBadRequest)
		return
	}

	pos := types.PixelPoint{X: req.X, Y: req.Y}
	var added bool
	var err error
	if req.Target == "" {
		added, err = e.Shell.Click(pos)
	} else {
		added, err = e.Shell.AddPoint(pos, req.Target)
	}
	if err != nil {
		h.writeSessionError(w, e, err, statusFor(err))
		return
	}
	h.respondSession(w, e, &added)
}

// DoubleClick handles POST /api/sessions/{session_id}/dblclick.
func (h *Handler) DoubleClick(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	closed, err := e.Shell.DoubleClick()
	if err != nil {
		h.writeSessionError(w, e, err, statusFor(err))
		return
	}
	h.respondSession(w, e, &closed)
}

// Drag handles POST /api/sessions/{session_id}/drag.
// Body: { "index": 1, "x": 300, "y": 225 }.
func (h *Handler) Drag(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req dragRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeErrorWithStatus(w, err, http.StatusBadRequest)
		return
	}
	if err := e.Shell.DragPoint(req.Index, types.PixelPoint{X: req.X, Y: req.Y}); err != nil {
		h.writeSessionError(w, e, err, statusFor(err))
		return
	}
	h.respondSession(w, e, nil)
}

// Undo handles POST /api/sessions/{session_id}/undo.
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	removed, err := e.Shell.Undo()
	if err != nil {
		h.writeSessionError(w, e, err, statusFor(err))
		return
	}
	h.respondSession(w, e, &removed)
}

// Clear handles POST /api/sessions/{session_id}/clear.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := e.Shell.Clear(); err != nil {
		h.writeSessionError(w, e, err, statusFor(err))
		return
	}
	h.respondSession(w, e, nil)
}

// Enable handles POST /api/sessions/{session_id}/enable.
func (h *Handler) Enable(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := e.Shell.EnableDrawing(); err != nil {
		h.writeSessionError(w, e, err, statusFor(err))
		return
	}
	h.respondSession(w, e, nil)
}

// Select handles POST /api/sessions/{session_id}/select.
// Body: { "index": 2 }; -1 clears the selection.
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req selectRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeErrorWithStatus(w, err, http.StatusBadRequest)
		return
	}
	if err := e.Shell.Select(req.Index); err != nil {
		h.writeSessionError(w, e, err, statusFor(err))
		return
	}
	h.respondSession(w, e, nil)
}

// Snapshot handles POST /api/sessions/{session_id}/snapshot.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if _, err := e.Shell.CaptureSnapshot(); err != nil {
		h.writeSessionError(w, e, err, statusFor(err))
		return
	}
	h.metrics.SnapshotCaptured()
	h.respondSession(w, e, nil)
}

// Save handles POST /api/sessions/{session_id}/save. An invalid zone is
// rejected with 422 and the rule it broke; the session stays open.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if e.ConfigurationID != "" {
		if _, err := h.state.Configuration(e.ConfigurationID); err != nil {
			h.writeSessionError(w, e, err, statusFor(err))
			return
		}
	}

	zone, err := e.Shell.Save()
	if err != nil {
		h.writeSessionError(w, e, err, statusFor(err))
		return
	}
	h.log.Info("zone saved",
		slog.String("session_id", e.ID),
		slog.String("mode", string(zone.Mode)),
		slog.Int("points", len(zone.Points)),
		slog.Bool("snapshot", zone.SnapshotURL != ""))
	writeJSON(w, sessionResponse{
		ID:              e.ID,
		ConfigurationID: e.ConfigurationID,
		Session:         e.Shell.View(),
		Zone:            &zone,
		Notices:         e.drain(),
	})
}

// CancelSession handles DELETE /api/sessions/{session_id}.
func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := e.Shell.Cancel(); err != nil {
		h.writeSessionError(w, e, err, statusFor(err))
		return
	}
	h.log.Info("editor session cancelled", slog.String("session_id", e.ID))
	w.WriteHeader(http.StatusNoContent)
}

// ReplaceMedia handles POST /api/sessions/{session_id}/media with a
// multipart "file" field. Rejected files leave the current media in place.
func (h *Handler) ReplaceMedia(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	limit := h.opts.UploadLimits.MaxBytes
	if limit <= 0 {
		limit = media.MaxUploadBytes
	}

	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.metrics.MediaError("too_large")
			h.writeError(w, fmt.Errorf("%w: upload exceeds the %s limit", media.ErrFileTooLarge, utils.FormatFileSize(limit)))
			return
		}
		h.writeErrorWithStatus(w, fmt.Errorf("invalid multipart form: %w", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeErrorWithStatus(w, fmt.Errorf("missing file field: %w", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Oversized files are rejected on their declared size without reading them.
	var data []byte
	if header.Size <= limit {
		if data, err = io.ReadAll(file); err != nil {
			h.writeErrorWithStatus(w, fmt.Errorf("failed to read upload: %w", err), http.StatusBadRequest)
			return
		}
	}
	info := media.FileInfo{
		Name:        utils.SanitizeFilename(header.Filename),
		Size:        header.Size,
		ContentType: media.DetectContentType(header.Header.Get("Content-Type"), header.Filename, data),
	}

	if err := e.Shell.ReplaceMedia(info, data); err != nil {
		h.metrics.MediaError(mediaErrorReason(err))
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusUnprocessableEntity
		}
		h.writeSessionError(w, e, err, status)
		return
	}
	h.log.Info("media replaced",
		slog.String("session_id", e.ID),
		slog.String("file", info.Name),
		slog.String("content_type", info.ContentType),
		slog.String("size", utils.FormatFileSize(info.Size)))
	h.respondSession(w, e, nil)
}

func mediaErrorReason(err error) string {
	switch {
	case errors.Is(err, media.ErrFileTooLarge):
		return "too_large"
	case errors.Is(err, media.ErrUnsupportedType):
		return "unsupported_type"
	case errors.Is(err, media.ErrSuperseded):
		return "superseded"
	default:
		return "decode"
	}
}

// Player handles POST /api/sessions/{session_id}/player.
// Body: { "action": "play" | "pause" | "seek", "position": 4.5 }.
func (h *Handler) Player(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req playerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeErrorWithStatus(w, err, http.StatusBadRequest)
		return
	}

	var err error
	switch req.Action {
	case "play":
		err = e.Shell.Play()
	case "pause":
		err = e.Shell.Pause()
	case "seek":
		if math.IsNaN(req.Position) || math.Abs(req.Position) > maxSeekSeconds {
			h.writeErrorWithStatus(w, fmt.Errorf("invalid seek position %v", req.Position), http.StatusBadRequest)
			return
		}
		_, err = e.Shell.Seek(time.Duration(req.Position * float64(time.Second)))
	default:
		h.writeErrorWithStatus(w, fmt.Errorf("unknown player action %q", req.Action), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeSessionError(w, e, err, statusFor(err))
		return
	}
	h.respondSession(w, e, nil)
}

// Frame handles GET /api/sessions/{session_id}/frame.png: the media with
// the zone drawn over it.
func (h *Handler) Frame(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	img, err := e.Shell.Render()
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(w, img); err != nil {
		h.log.Debug("frame write failed", slog.String("session_id", e.ID), slog.String("error", err.Error()))
	}
}
