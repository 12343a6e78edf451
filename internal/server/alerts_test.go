package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/menta2k/zone-annotator/internal/store"
)

func alertMessage(cameraID string) map[string]any {
	return map[string]any{
		"type": "crowd_detection",
		"data": map[string]any{
			"cameraId":    cameraID,
			"cameraName":  "Main Entrance",
			"zoneId":      "zone-1",
			"zoneName":    "Lobby",
			"count":       42,
			"severity":    "High",
			"snapshotUrl": "/placeholder.svg",
			"timestamp":   "2026-10-15T09:30:00Z",
		},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestIngestAndRecordAlerts(t *testing.T) {
	h, st, bus := newTestHandler(t, nil)
	r := h.Router()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.RecordAlerts(ctx)
	waitFor(t, func() bool { return bus.Subscribers() == 1 })

	if rec := do(t, r, http.MethodPost, "/api/alerts/ingest", alertMessage("cam-001")); rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	waitFor(t, func() bool { return len(st.Alerts(store.AlertFilter{})) == 1 })

	rec := do(t, r, http.MethodGet, "/api/alerts?severity=High&unacknowledged=true", nil)
	var alerts []store.Alert
	if err := json.NewDecoder(rec.Body).Decode(&alerts); err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 1 || alerts[0].Count == nil || *alerts[0].Count != 42 {
		t.Fatalf("Expected the ingested alert, got %+v", alerts)
	}

	if rec := do(t, r, http.MethodPost, "/api/alerts/"+alerts[0].ID+"/ack", nil); rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for ack, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPost, "/api/alerts/missing/ack", nil); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown alert, got %d", rec.Code)
	}

	rec = do(t, r, http.MethodGet, "/api/alerts/stats", nil)
	var stats store.AlertStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Total != 1 || stats.Unacknowledged != 0 || stats.ByType[store.AlertCrowd] != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	if rec := do(t, r, http.MethodDelete, "/api/alerts", nil); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for clear, got %d", rec.Code)
	}
	if got := st.Alerts(store.AlertFilter{}); len(got) != 0 {
		t.Errorf("Expected no alerts after clear, got %d", len(got))
	}
}

func TestIngestRejectsMalformed(t *testing.T) {
	r, _ := newTestRouter(t)

	bad := alertMessage("cam-001")
	delete(bad["data"].(map[string]any), "count")
	if rec := do(t, r, http.MethodPost, "/api/alerts/ingest", bad); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for crowd alert without count, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPost, "/api/alerts/ingest", map[string]any{"type": "fire"}); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown type, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/api/alerts?severity=Extreme", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown severity filter, got %d", rec.Code)
	}
}

// readEvent reads lines until a data line and returns the preceding event
// name with the data.
func readEvent(t *testing.T, lines <-chan string) (event, data string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed")
			}
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				return event, strings.TrimPrefix(line, "data: ")
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

func openStream(t *testing.T, srv *httptest.Server, path string) <-chan string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Expected text/event-stream, got %s", ct)
	}

	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

func TestStreamAlerts(t *testing.T) {
	h, _, bus := newTestHandler(t, nil)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	lines := openStream(t, srv, "/api/alerts/stream")
	waitFor(t, func() bool { return bus.Subscribers() == 1 })

	resp, err := http.Post(srv.URL+"/api/alerts/ingest", "application/json",
		strings.NewReader(`{"type":"intrusion_alert","data":{"cameraId":"cam-002","cameraName":"Lobby Area","zoneId":"zone-9","zoneName":"Back door","severity":"Critical","snapshotUrl":"","timestamp":"2026-10-15T10:00:00Z"}}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	event, data := readEvent(t, lines)
	if event != "alert" {
		t.Errorf("Expected alert event, got %q", event)
	}
	var m struct {
		Type string `json:"type"`
		Data struct {
			CameraID string `json:"cameraId"`
			Severity string `json:"severity"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if m.Type != "intrusion_alert" || m.Data.CameraID != "cam-002" || m.Data.Severity != "Critical" {
		t.Errorf("Unexpected event %+v", m)
	}
}

func TestStreamChanges(t *testing.T) {
	h, st, _ := newTestHandler(t, nil)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	lines := openStream(t, srv, "/api/changes")

	// The subscription is registered before the first byte is flushed.
	site, err := st.AddSite(store.SiteInput{Name: "Warehouse"})
	if err != nil {
		t.Fatal(err)
	}

	event, data := readEvent(t, lines)
	if event != "change" {
		t.Errorf("Expected change event, got %q", event)
	}
	var c store.Change
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		t.Fatal(err)
	}
	if c.Kind != store.ChangeSite || c.Op != store.OpCreated || c.ID != site.ID {
		t.Errorf("Unexpected change %+v", c)
	}
}
