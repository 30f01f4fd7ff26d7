package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.SurfaceOps.WithLabelValues("create").Inc()
	m.SurfaceOps.WithLabelValues("create").Inc()

	if got := testutil.ToFloat64(m.SurfaceOps.WithLabelValues("create")); got != 2 {
		t.Errorf("create ops = %v, want 2", got)
	}
	// A second registry must accept a second set of metrics.
	NewMetrics(prometheus.NewRegistry())
}

func TestHealth_UnhealthyWithoutSources(t *testing.T) {
	h := NewHealthStatus()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", rec.Code)
	}

	h.SetBackendOK(true)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded (no redis)", body.Status)
	}
}
