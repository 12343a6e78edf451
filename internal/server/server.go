// Package server exposes the zone editor, the site registry and the alert
// feed over HTTP using go-chi.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/menta2k/zone-annotator/internal/events"
	"github.com/menta2k/zone-annotator/internal/logger"
	"github.com/menta2k/zone-annotator/internal/metrics"
	"github.com/menta2k/zone-annotator/internal/store"
	"github.com/menta2k/zone-annotator/pkg/capture"
	"github.com/menta2k/zone-annotator/pkg/editor"
	"github.com/menta2k/zone-annotator/pkg/media"
)

// heartbeatInterval keeps idle event streams open through proxies.
const heartbeatInterval = 15 * time.Second

// Options configure the editors the server opens.
type Options struct {
	Loader       media.Config
	Capture      capture.Config
	UploadLimits media.UploadLimits
	Decoder      capture.VideoDecoder
	HitRadius    float64
	SessionTTL   time.Duration
	MaxSessions  int
}

// Handler exposes the HTTP endpoints.
type Handler struct {
	opts     Options
	state    *store.State
	bus      *events.Bus
	sessions *registry
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewHandler returns a Handler over the given state and alert bus.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(opts Options, st *store.State, bus *events.Bus, log *slog.Logger, m *metrics.Metrics) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	if opts.HitRadius <= 0 {
		opts.HitRadius = editor.DefaultHitRadius
	}
	return &Handler{
		opts:     opts,
		state:    st,
		bus:      bus,
		sessions: newRegistry(opts.MaxSessions, opts.SessionTTL, log),
		log:      log,
		metrics:  m,
	}
}

// Router builds the chi router with logging and metrics middleware.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(h.log))
	r.Use(metrics.RequestMiddleware(h.metrics))

	if h.metrics != nil {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			h.metrics.Handler(h.updateGauges).ServeHTTP(w, r)
		})
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.OpenSession)
			r.Route("/{session_id}", func(r chi.Router) {
				r.Get("/", h.GetSession)
				r.Delete("/", h.CancelSession)
				r.Post("/click", h.Click)
				r.Post("/dblclick", h.DoubleClick)
				r.Post("/drag", h.Drag)
				r.Post("/undo", h.Undo)
				r.Post("/clear", h.Clear)
				r.Post("/enable", h.Enable)
				r.Post("/select", h.Select)
				r.Post("/snapshot", h.Snapshot)
				r.Post("/save", h.Save)
				r.Post("/media", h.ReplaceMedia)
				r.Post("/player", h.Player)
				r.Get("/frame.png", h.Frame)
			})
		})

		r.Route("/sites", func(r chi.Router) {
			r.Get("/", h.ListSites)
			r.Post("/", h.CreateSite)
			r.Route("/{site_id}", func(r chi.Router) {
				r.Get("/", h.GetSite)
				r.Patch("/", h.UpdateSite)
				r.Delete("/", h.DeleteSite)
				r.Get("/cameras", h.ListCameras)
				r.Post("/cameras", h.CreateCamera)
				r.Patch("/cameras/{camera_id}", h.UpdateCamera)
				r.Delete("/cameras/{camera_id}", h.DeleteCamera)
			})
		})

		r.Route("/configurations", func(r chi.Router) {
			r.Get("/", h.ListConfigurations)
			r.Post("/", h.CreateConfiguration)
			r.Get("/{config_id}", h.GetConfiguration)
			r.Put("/{config_id}/zone", h.UpdateZone)
			r.Delete("/{config_id}", h.DeleteConfiguration)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.ListAlerts)
			r.Delete("/", h.ClearAlerts)
			r.Get("/stats", h.AlertStats)
			r.Get("/stream", h.StreamAlerts)
			r.Post("/ingest", h.IngestAlert)
			r.Post("/{alert_id}/ack", h.AcknowledgeAlert)
		})

		r.Get("/changes", h.StreamChanges)
	})
	return r
}

func (h *Handler) updateGauges() {
	h.metrics.SetActiveSessions(h.sessions.len())
	if h.bus != nil {
		h.metrics.SetStreamSubscribers(h.bus.Subscribers())
	}
}

// RecordAlerts stores every alert published on the bus until ctx is done.
func (h *Handler) RecordAlerts(ctx context.Context) {
	events.Record(ctx, h.bus, h.state, func(m events.Message) {
		h.metrics.AlertReceived(string(m.Type))
		h.log.Debug("alert recorded",
			slog.String("type", string(m.Type)),
			slog.String("camera_id", m.Data.CameraID),
			slog.String("severity", string(m.Data.Severity)))
	})
}

// Close cancels every open editor.
func (h *Handler) Close() {
	h.sessions.purge()
}
