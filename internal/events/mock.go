package events

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/menta2k/zone-annotator/internal/store"
)

type mockCamera struct {
	id, name string
}

var mockCameras = []mockCamera{
	{"cam-001", "Camera 1 - Main Entrance"},
	{"cam-002", "Camera 2 - Office Floor"},
	{"cam-003", "Camera 3 - Reception"},
	{"cam-004", "Camera 4 - Pantry"},
}

// MockConfig configures a MockSource.
type MockConfig struct {
	MinInterval time.Duration
	MaxInterval time.Duration
	SnapshotURL string
	Now         func() time.Time
	// Rand overrides the random source; tests use a seeded one.
	Rand *rand.Rand
}

// MockSource simulates a detection backend by publishing random alerts at
// random intervals.
type MockSource struct {
	cfg MockConfig
	bus *Bus
	log *slog.Logger
	rnd *rand.Rand
}

// NewMockSource creates a source that publishes to bus.
func NewMockSource(cfg MockConfig, bus *Bus, log *slog.Logger) *MockSource {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 10 * time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	if cfg.MaxInterval < cfg.MinInterval {
		cfg.MaxInterval = cfg.MinInterval
	}
	if cfg.SnapshotURL == "" {
		cfg.SnapshotURL = "/placeholder.svg"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &MockSource{cfg: cfg, bus: bus, log: log, rnd: rnd}
}

// Run publishes until ctx is cancelled.
func (s *MockSource) Run(ctx context.Context) {
	s.log.Info("mock event source started",
		slog.Duration("min_interval", s.cfg.MinInterval),
		slog.Duration("max_interval", s.cfg.MaxInterval))
	defer s.log.Info("mock event source stopped")

	for {
		timer := time.NewTimer(s.nextDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			m := s.Next()
			s.bus.Publish(m)
			s.log.Debug("mock event published", slog.String("type", string(m.Type)), slog.String("camera", m.Data.CameraID))
		}
	}
}

func (s *MockSource) nextDelay() time.Duration {
	span := s.cfg.MaxInterval - s.cfg.MinInterval
	if span <= 0 {
		return s.cfg.MinInterval
	}
	return s.cfg.MinInterval + time.Duration(s.rnd.Int64N(int64(span)))
}

// Next builds one random, schema-valid message.
func (s *MockSource) Next() Message {
	types := []store.AlertType{store.AlertCrowd, store.AlertIntrusion}
	typ := types[s.rnd.IntN(len(types))]
	cam := mockCameras[s.rnd.IntN(len(mockCameras))]

	m := Message{
		Type: typ,
		Data: AlertData{
			CameraID:    cam.id,
			CameraName:  cam.name,
			ZoneID:      fmt.Sprintf("zone-%08x", s.rnd.Uint32()),
			ZoneName:    fmt.Sprintf("Zone %d", s.rnd.IntN(5)+1),
			Severity:    store.Severities[s.rnd.IntN(len(store.Severities))],
			SnapshotURL: s.cfg.SnapshotURL,
			Timestamp:   s.cfg.Now().UTC(),
		},
	}
	if typ == store.AlertCrowd {
		n := s.rnd.IntN(50) + 10
		m.Data.Count = &n
	}
	return m
}

// Record subscribes to bus and stores every message as an alert until ctx
// is cancelled. onAlert, if set, runs after each stored alert.
func Record(ctx context.Context, bus *Bus, st *store.State, onAlert func(Message)) {
	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			st.AddAlert(m.AlertInput())
			if onAlert != nil {
				onAlert(m)
			}
		}
	}
}
