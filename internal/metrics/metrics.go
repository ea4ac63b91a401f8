package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"dedupe-go/internal/dedup"
)

const namespace = "dedupe"

// Recorder collects scan and reconcile counters in a private registry so
// that a run can dump them as a node-exporter textfile when it exits.
// Safe for concurrent use.
type Recorder struct {
	registry *prometheus.Registry

	FilesIndexedTotal  prometheus.Counter
	FilesHashedTotal   *prometheus.CounterVec
	BytesHashedTotal   *prometheus.CounterVec
	DuplicateClusters  prometheus.Gauge
	WastedBytes        prometheus.Gauge
	DecisionsTotal     *prometheus.CounterVec
	DecisionBytesTotal *prometheus.CounterVec
	LastRunTimestamp   prometheus.Gauge
}

// NewRecorder creates a Recorder with every metric registered.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		FilesIndexedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_indexed_total",
			Help:      "Files at or above the minimum size that entered the size index",
		}),
		FilesHashedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_hashed_total",
			Help:      "Fingerprints computed by tier",
		}, []string{"tier"}),
		BytesHashedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_hashed_total",
			Help:      "Bytes read while fingerprinting, by tier",
		}, []string{"tier"}),
		DuplicateClusters: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "duplicate_clusters",
			Help:      "Duplicate clusters found by the last scan",
		}),
		WastedBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wasted_bytes",
			Help:      "Bytes held by redundant copies in the last scan",
		}),
		DecisionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Reconcile decisions recorded, by outcome",
		}, []string{"outcome"}),
		DecisionBytesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_bytes_total",
			Help:      "Size of files covered by reconcile decisions, by outcome",
		}, []string{"outcome"}),
		LastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
}

func (r *Recorder) FilesIndexed(n int) {
	r.FilesIndexedTotal.Add(float64(n))
}

func (r *Recorder) FileHashed(tier dedup.Tier, bytes int64) {
	r.FilesHashedTotal.WithLabelValues(string(tier)).Inc()
	r.BytesHashedTotal.WithLabelValues(string(tier)).Add(float64(bytes))
}

func (r *Recorder) ScanCompleted(clusters int, wastedBytes int64) {
	r.DuplicateClusters.Set(float64(clusters))
	r.WastedBytes.Set(float64(wastedBytes))
}

func (r *Recorder) DecisionRecorded(outcome dedup.Outcome, bytes int64) {
	r.DecisionsTotal.WithLabelValues(string(outcome)).Inc()
	r.DecisionBytesTotal.WithLabelValues(string(outcome)).Add(float64(bytes))
}

// Gatherer exposes the private registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile stamps the finish time and writes every metric to path in
// the text exposition format.
func (r *Recorder) WriteTextfile(path string, finished float64) error {
	r.LastRunTimestamp.Set(finished)
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

var _ dedup.Metrics = (*Recorder)(nil)
