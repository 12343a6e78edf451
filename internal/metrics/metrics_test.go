package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.IncRequests()
	m.ZoneSaved("polygon")
	m.ValidationFailed("line_exact_points")
	m.SetActiveSessions(3)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.ZoneSaved("polygon")
	m.ValidationFailed("polygon_min_points")
	m.SnapshotCaptured()

	called := false
	rec := httptest.NewRecorder()
	m.Handler(func() { called = true; m.SetActiveSessions(2) }).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	out := string(body)
	if !called {
		t.Error("Expected updateGauges to run before scrape")
	}
	for _, want := range []string{
		`zone_saved_total{mode="polygon"} 1`,
		`zone_validation_failures_total{rule="polygon_min_points"} 1`,
		`zone_snapshots_total 1`,
		`zone_sessions_active 2`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in metrics output", want)
		}
	}
}

func TestRequestMiddlewareCountsErrors(t *testing.T) {
	m := New()
	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))

	rec := httptest.NewRecorder()
	m.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	out := rec.Body.String()
	if !strings.Contains(out, "zone_requests_total 2") || !strings.Contains(out, "zone_errors_total 1") {
		t.Errorf("Unexpected metrics output:\n%s", out)
	}
}
