package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"dedisp/pkg/dedisp"
)

// gathered returns the value of the first sample of each family, keyed by
// family name and, for vectors, the first label value.
func gathered(t *testing.T, m *Metrics) map[string]float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			key := mf.GetName()
			if labels := metric.GetLabel(); len(labels) > 0 {
				key += "/" + labels[0].GetValue()
			}
			switch {
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[key] = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				out[key] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestObserve(t *testing.T) {
	m := New()
	grid := &dedisp.SignificanceGrid{DMs: []float64{0, 10, 20}, Times: []float64{0, 1}}
	res := &dedisp.SearchResult{
		Grid: grid,
		Metrics: &dedisp.SearchMetrics{
			Cells: 6, Computed: 4, Skipped: 2, EmptyTracks: 1, TrackPairs: 17, Elapsed: 30 * time.Millisecond,
		},
	}
	det := &dedisp.Detection{Std: 0.25, Peaks: []dedisp.Peak{{Significance: 9.5}, {Significance: 6}}}
	m.Observe(res, det)
	m.Observe(res, &dedisp.Detection{Peaks: []dedisp.Peak{{Significance: 7}}})
	m.Observe(res, nil)
	m.ObserveFailure("peaks")

	got := gathered(t, m)
	want := map[string]float64{
		"dedisp_windows_total":           3,
		"dedisp_cells_total/computed":    12,
		"dedisp_cells_total/skipped":     6,
		"dedisp_empty_tracks_total":      3,
		"dedisp_track_pairs_total":       51,
		"dedisp_search_duration_seconds": 3,
		"dedisp_dm_trials":               3,
		"dedisp_peaks_total":             3,
		"dedisp_last_window_peaks":       1,
		"dedisp_max_significance_sigma":  9.5,
		"dedisp_failures_total/peaks":    1,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %g, want %g", k, got[k], v)
		}
	}
}

func TestObserveNilResult(t *testing.T) {
	m := New()
	m.Observe(nil, nil)
	if got := gathered(t, m)["dedisp_windows_total"]; got != 0 {
		t.Fatalf("nil result counted as a window: %g", got)
	}
}

func TestPush(t *testing.T) {
	var mu sync.Mutex
	var method, path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	m.WindowsTotal.Inc()
	if err := m.Push(context.Background(), srv.URL, "dedisp", map[string]string{"source": "B0329"}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Errorf("push used %s, want PUT", method)
	}
	if !strings.HasPrefix(path, "/metrics/job/dedisp") || !strings.Contains(path, "source/B0329") {
		t.Errorf("push path %q", path)
	}
	if len(body) == 0 {
		t.Errorf("empty push body")
	}
}

func TestPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := New().Push(context.Background(), srv.URL, "dedisp", nil); err == nil {
		t.Fatalf("expected an error from a failing gateway")
	}
}
