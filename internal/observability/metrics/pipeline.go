package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains Prometheus metrics for the detection pipeline.
type PipelineMetrics struct {
	StageDuration   *prometheus.HistogramVec
	StageErrors     *prometheus.CounterVec
	Templates       prometheus.Gauge
	Clusters        *prometheus.GaugeVec // by station
	Detectors       *prometheus.GaugeVec // by kind
	Exclusions      *prometheus.CounterVec
	WindowsScanned  *prometheus.CounterVec // by station
	WindowsSkipped  *prometheus.CounterVec // by station
	Triggers        *prometheus.CounterVec // by station and kind
	ScanTasks       *prometheus.CounterVec // by status
	Detections      prometheus.Counter
	DiscardedGroups prometheus.Counter
	FalsePositives  prometheus.Counter
	Verified        prometheus.Counter
	ProviderFetches *prometheus.CounterVec // by status
	registry        *prometheus.Registry
}

// NewPipelineMetrics creates and registers pipeline metrics.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "seisnet_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount15),
	}, []string{"stage"})

	m.StageErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seisnet_stage_errors_total",
		Help: "Total number of failed pipeline stages",
	}, []string{"stage"})

	m.Templates = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "seisnet_templates",
		Help: "Number of templates with usable waveforms in the last run",
	})

	m.Clusters = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "seisnet_clusters",
		Help: "Number of template clusters per station in the last run",
	}, []string{"station"})

	m.Detectors = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "seisnet_detectors",
		Help: "Number of detectors built in the last run",
	}, []string{"kind"})

	m.Exclusions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seisnet_exclusions_total",
		Help: "Total number of templates or detectors excluded from a run",
	}, []string{"reason"})

	m.WindowsScanned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seisnet_windows_scanned_total",
		Help: "Total number of data windows evaluated",
	}, []string{"station"})

	m.WindowsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seisnet_windows_skipped_total",
		Help: "Total number of data windows skipped because of gaps",
	}, []string{"station"})

	m.Triggers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seisnet_triggers_total",
		Help: "Total number of detector triggers",
	}, []string{"station", "kind"})

	m.ScanTasks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seisnet_scan_tasks_total",
		Help: "Total number of scan tasks by outcome",
	}, []string{"status"})

	m.Detections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seisnet_detections_total",
		Help: "Total number of associated detections",
	})

	m.DiscardedGroups = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seisnet_discarded_groups_total",
		Help: "Total number of trigger groups below the required station count",
	})

	m.FalsePositives = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seisnet_false_positives_total",
		Help: "Total number of detections removed by the confidence filter",
	})

	m.Verified = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seisnet_verified_detections_total",
		Help: "Total number of detections matched to a reference event",
	})

	m.ProviderFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seisnet_provider_fetches_total",
		Help: "Total number of waveform fetches by outcome",
	}, []string{"status"})
}

// ObserveStage records the duration of a stage and counts it as failed when
// err is non-nil.
func (m *PipelineMetrics) ObserveStage(stage string, started time.Time, err error) {
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
	if err != nil {
		m.StageErrors.WithLabelValues(stage).Inc()
	}
}

// RecordScan records the outcome of one scan.
func (m *PipelineMetrics) RecordScan(station, kind string, windows, skipped, triggers int) {
	m.WindowsScanned.WithLabelValues(station).Add(float64(windows))
	m.WindowsSkipped.WithLabelValues(station).Add(float64(skipped))
	m.Triggers.WithLabelValues(station, kind).Add(float64(triggers))
}

// RecordTask counts a finished scan task.
func (m *PipelineMetrics) RecordTask(err error) {
	m.ScanTasks.WithLabelValues(status(err)).Inc()
}

// RecordFetch counts a waveform fetch.
func (m *PipelineMetrics) RecordFetch(err error) {
	m.ProviderFetches.WithLabelValues(status(err)).Inc()
}

// RecordAssociation records association counts.
func (m *PipelineMetrics) RecordAssociation(detections, discarded, falsePositives, verified int) {
	m.Detections.Add(float64(detections))
	m.DiscardedGroups.Add(float64(discarded))
	m.FalsePositives.Add(float64(falsePositives))
	m.Verified.Add(float64(verified))
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

func (m *PipelineMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.StageDuration, m.StageErrors, m.Templates, m.Clusters, m.Detectors,
		m.Exclusions, m.WindowsScanned, m.WindowsSkipped, m.Triggers, m.ScanTasks,
		m.Detections, m.DiscardedGroups, m.FalsePositives, m.Verified, m.ProviderFetches,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}
