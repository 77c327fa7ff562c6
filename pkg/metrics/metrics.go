// Package metrics defines the Prometheus collectors for dedispersion runs
// and pushes them to a Prometheus push gateway.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"dedisp/pkg/dedisp"
)

// Metrics holds the collectors of one process on a private registry, so a
// batch run pushes only its own series.
type Metrics struct {
	Registry *prometheus.Registry

	WindowsTotal     prometheus.Counter
	CellsTotal       *prometheus.CounterVec
	EmptyTracksTotal prometheus.Counter
	TrackPairsTotal  prometheus.Counter
	SearchDuration   prometheus.Histogram
	DMTrials         prometheus.Gauge
	PeaksTotal       prometheus.Counter
	LastPeaks        prometheus.Gauge
	MaxSignificance  prometheus.Gauge
	GridStd          prometheus.Gauge
	FailuresTotal    *prometheus.CounterVec

	maxSignificance float64
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		WindowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dedisp_windows_total",
			Help: "Number of buffer windows searched.",
		}),
		CellsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dedisp_cells_total",
				Help: "DM-time cells by outcome (computed, skipped).",
			},
			[]string{"outcome"},
		),
		EmptyTracksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dedisp_empty_tracks_total",
			Help: "Trials whose dispersion track covered no sample.",
		}),
		TrackPairsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dedisp_track_pairs_total",
			Help: "Time-channel pairs visited while building tracks.",
		}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dedisp_search_duration_seconds",
			Help:    "Wall time of one dedispersion search.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		DMTrials: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dedisp_dm_trials",
			Help: "DM trials in the last searched grid.",
		}),
		PeaksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dedisp_peaks_total",
			Help: "Peaks above the significance threshold.",
		}),
		LastPeaks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dedisp_last_window_peaks",
			Help: "Peaks found in the last searched window.",
		}),
		MaxSignificance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dedisp_max_significance_sigma",
			Help: "Highest significance seen so far.",
		}),
		GridStd: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dedisp_grid_std",
			Help: "Clipped standard deviation of the last significance grid.",
		}),
		FailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dedisp_failures_total",
				Help: "Failed windows by stage (search, peaks).",
			},
			[]string{"stage"},
		),
	}

	m.Registry.MustRegister(
		m.WindowsTotal,
		m.CellsTotal,
		m.EmptyTracksTotal,
		m.TrackPairsTotal,
		m.SearchDuration,
		m.DMTrials,
		m.PeaksTotal,
		m.LastPeaks,
		m.MaxSignificance,
		m.GridStd,
		m.FailuresTotal,
	)
	return m
}

// Observe records one searched window. det may be nil when peak detection
// was not run or failed. Observe is called from one goroutine.
func (m *Metrics) Observe(res *dedisp.SearchResult, det *dedisp.Detection) {
	if res == nil {
		return
	}
	m.WindowsTotal.Inc()
	if s := res.Metrics; s != nil {
		m.CellsTotal.WithLabelValues("computed").Add(float64(s.Computed))
		m.CellsTotal.WithLabelValues("skipped").Add(float64(s.Skipped))
		m.EmptyTracksTotal.Add(float64(s.EmptyTracks))
		m.TrackPairsTotal.Add(float64(s.TrackPairs))
		m.SearchDuration.Observe(s.Elapsed.Seconds())
	}
	if res.Grid != nil {
		m.DMTrials.Set(float64(res.Grid.Rows()))
	}
	if det == nil {
		return
	}
	m.PeaksTotal.Add(float64(len(det.Peaks)))
	m.LastPeaks.Set(float64(len(det.Peaks)))
	m.GridStd.Set(det.Std)
	if len(det.Peaks) > 0 {
		m.maxSignificance = max(m.maxSignificance, det.Peaks[0].Significance)
		m.MaxSignificance.Set(m.maxSignificance)
	}
}

// ObserveFailure counts a window that failed at stage.
func (m *Metrics) ObserveFailure(stage string) {
	m.FailuresTotal.WithLabelValues(stage).Inc()
}

// Push sends the registry to the push gateway at url under job, replacing
// any series previously pushed for the same grouping.
func (m *Metrics) Push(ctx context.Context, url, job string, grouping map[string]string) error {
	pusher := push.New(url, job).Gatherer(m.Registry)
	for name, value := range grouping {
		pusher = pusher.Grouping(name, value)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push to gateway: %w", err)
	}
	return nil
}
