package usecase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"FiscalScanner/internal/config"
)

func TestProbeChecksReachabilityAndMarkers(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><table id="budget"><tr><td>1</td></tr></table></html>`))
	}))
	defer healthy.Close()

	restructured := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><div>we moved everything</div></html>`))
	}))
	defer restructured.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	sources := []config.SourceConfig{{
		Domain: "treasury",
		Targets: []config.TargetConfig{
			{Name: "ok", URL: healthy.URL, Marker: "table#budget"},
			{Name: "changed", URL: restructured.URL, Marker: "table#budget"},
			{Name: "down", URL: broken.URL, Marker: "table#budget"},
		},
	}}

	results := NewProber(healthy.Client(), nil).Check(context.Background(), sources)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	byName := map[string]ProbeResult{}
	for _, r := range results {
		byName[r.Target] = r
	}

	if r := byName["ok"]; !r.Reachable || !r.MarkerFound || r.Latency <= 0 {
		t.Fatalf("healthy target misreported: %+v", r)
	}
	if r := byName["changed"]; !r.Reachable || r.MarkerFound {
		t.Fatalf("restructured page should be reachable with a missing marker: %+v", r)
	}
	if r := byName["down"]; r.Reachable || r.Error == "" {
		t.Fatalf("broken target should be unreachable with an error: %+v", r)
	}
}
