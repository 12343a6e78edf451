package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/menta2k/zone-annotator/internal/store"
	"github.com/menta2k/zone-annotator/pkg/types"
)

type zoneRequest struct {
	Zone        []types.ZonePoint `json:"zone"`
	SnapshotURL string            `json:"snapshotUrl,omitempty"`
}

// ListSites handles GET /api/sites.
func (h *Handler) ListSites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.state.Sites())
}

// CreateSite handles POST /api/sites.
// Body: { "name": "Downtown Mall", "address": "123 Main St" }.
func (h *Handler) CreateSite(w http.ResponseWriter, r *http.Request) {
	var in store.SiteInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeErrorWithStatus(w, err, http.StatusBadRequest)
		return
	}
	site, err := h.state.AddSite(in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.log.Info("site created", slog.String("site_id", site.ID), slog.String("name", site.Name))
	writeJSONWithStatus(w, site, http.StatusCreated)
}

// GetSite handles GET /api/sites/{site_id}.
func (h *Handler) GetSite(w http.ResponseWriter, r *http.Request) {
	site, err := h.state.Site(chi.URLParam(r, "site_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, site)
}

// UpdateSite handles PATCH /api/sites/{site_id}.
func (h *Handler) UpdateSite(w http.ResponseWriter, r *http.Request) {
	var p store.SitePatch
	if err := decodeJSON(r, &p); err != nil {
		h.writeErrorWithStatus(w, err, http.StatusBadRequest)
		return
	}
	site, err := h.state.UpdateSite(chi.URLParam(r, "site_id"), p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, site)
}

// DeleteSite handles DELETE /api/sites/{site_id}.
func (h *Handler) DeleteSite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "site_id")
	if err := h.state.DeleteSite(id); err != nil {
		h.writeError(w, err)
		return
	}
	h.log.Info("site deleted", slog.String("site_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// ListCameras handles GET /api/sites/{site_id}/cameras.
func (h *Handler) ListCameras(w http.ResponseWriter, r *http.Request) {
	site, err := h.state.Site(chi.URLParam(r, "site_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, site.Cameras)
}

// CreateCamera handles POST /api/sites/{site_id}/cameras.
// Body: { "cameraId": "CAM-010", "name": "Dock", "streamUrl": "..." }.
func (h *Handler) CreateCamera(w http.ResponseWriter, r *http.Request) {
	var in store.CameraInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeErrorWithStatus(w, err, http.StatusBadRequest)
		return
	}
	cam, err := h.state.AddCamera(chi.URLParam(r, "site_id"), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.log.Info("camera added", slog.String("site_id", cam.SiteID), slog.String("camera_id", cam.ID))
	writeJSONWithStatus(w, cam, http.StatusCreated)
}

// UpdateCamera handles PATCH /api/sites/{site_id}/cameras/{camera_id}.
func (h *Handler) UpdateCamera(w http.ResponseWriter, r *http.Request) {
	var p store.CameraPatch
	if err := decodeJSON(r, &p); err != nil {
		h.writeErrorWithStatus(w, err, http.StatusBadRequest)
		return
	}
	cam, err := h.state.UpdateCamera(chi.URLParam(r, "site_id"), chi.URLParam(r, "camera_id"), p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, cam)
}

// DeleteCamera handles DELETE /api/sites/{site_id}/cameras/{camera_id}.
func (h *Handler) DeleteCamera(w http.ResponseWriter, r *http.Request) {
	if err := h.state.DeleteCamera(chi.URLParam(r, "site_id"), chi.URLParam(r, "camera_id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListConfigurations handles GET /api/configurations.
func (h *Handler) ListConfigurations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.state.Configurations())
}

// CreateConfiguration handles POST /api/configurations.
// Body: { "type": "crowd_detection", "cameraId": "cam-001", "threshold": 50 }.
func (h *Handler) CreateConfiguration(w http.ResponseWriter, r *http.Request) {
	var in store.ConfigurationInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeErrorWithStatus(w, err, http.StatusBadRequest)
		return
	}
	cfg, err := h.state.AddConfiguration(in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.log.Info("configuration created",
		slog.String("configuration_id", cfg.ID),
		slog.String("type", string(cfg.Type)),
		slog.String("camera_id", cfg.CameraID))
	writeJSONWithStatus(w, cfg, http.StatusCreated)
}

// GetConfiguration handles GET /api/configurations/{config_id}.
func (h *Handler) GetConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.state.Configuration(chi.URLParam(r, "config_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, cfg)
}

// UpdateZone handles PUT /api/configurations/{config_id}/zone for clients
// that draw zones themselves. The zone must satisfy the same rules as an
// editor save.
func (h *Handler) UpdateZone(w http.ResponseWriter, r *http.Request) {
	var req zoneRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeErrorWithStatus(w, err, http.StatusBadRequest)
		return
	}
	cfg, err := h.state.UpdateZone(chi.URLParam(r, "config_id"), req.Zone, req.SnapshotURL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, cfg)
}

// DeleteConfiguration handles DELETE /api/configurations/{config_id}.
func (h *Handler) DeleteConfiguration(w http.ResponseWriter, r *http.Request) {
	if err := h.state.DeleteConfiguration(chi.URLParam(r, "config_id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
