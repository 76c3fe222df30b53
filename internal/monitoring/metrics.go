package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics holds the counters of one synchronization run. Each run gets
// its own registry so the textfile reflects that run only.
type RunMetrics struct {
	Registry *prometheus.Registry

	Observations prometheus.Counter
	Gaps         prometheus.Counter
	Segments     *prometheus.GaugeVec
	SegmentTime  prometheus.Histogram
	StageTime    *prometheus.GaugeVec
	Masked       prometheus.Counter
}

// NewRunMetrics registers a fresh set of run metrics.
func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{
		Registry: prometheus.NewRegistry(),
		Observations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vsync_observations_total",
			Help: "Observations ingested.",
		}),
		Gaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vsync_gaps_total",
			Help: "Observations flagged as cadence gaps.",
		}),
		Segments: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vsync_segments",
			Help: "Segments by outcome.",
		}, []string{"state"}),
		SegmentTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vsync_segment_processing_seconds",
			Help:    "Time to resample, merge and write one segment.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		StageTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vsync_stage_seconds",
			Help: "Wall time spent reaching each pipeline stage.",
		}, []string{"stage"}),
		Masked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vsync_masked_cells_total",
			Help: "Cells replaced with NaN by validity rules.",
		}),
	}
	m.Registry.MustRegister(m.Observations, m.Gaps, m.Segments, m.SegmentTime, m.StageTime, m.Masked)
	return m
}

// ObserveStage records how long a stage took.
func (m *RunMetrics) ObserveStage(stage string, d time.Duration) {
	m.StageTime.WithLabelValues(stage).Set(d.Seconds())
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (m *RunMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
