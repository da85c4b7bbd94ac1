package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ethanolivertroy/depaudit/internal/models"
)

// Metrics collects the counters of a single scan on its own registry
type Metrics struct {
	registry *prometheus.Registry

	PackagesScanned    *prometheus.CounterVec
	EnrichmentRequests *prometheus.CounterVec
	VulnerablePackages *prometheus.GaugeVec
	Advisories         prometheus.Counter
	ScanDuration       prometheus.Gauge
	LastScan           prometheus.Gauge
}

// NewMetrics creates and registers the scan metrics
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.PackagesScanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depaudit_packages_scanned_total",
			Help: "Packages enriched, by dependency type",
		},
		[]string{"dependency_type"},
	)

	m.EnrichmentRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depaudit_enrichment_requests_total",
			Help: "Enrichment sub-queries, by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	m.VulnerablePackages = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "depaudit_vulnerable_packages",
			Help: "Packages with at least one advisory, by dependency type",
		},
		[]string{"dependency_type"},
	)

	m.Advisories = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "depaudit_advisories_total",
			Help: "Advisories found across all packages",
		},
	)

	m.ScanDuration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "depaudit_scan_duration_seconds",
			Help: "Wall time of the last scan",
		},
	)

	m.LastScan = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "depaudit_last_scan_timestamp_seconds",
			Help: "Unix time the last scan finished",
		},
	)

	m.registry.MustRegister(
		m.PackagesScanned,
		m.EnrichmentRequests,
		m.VulnerablePackages,
		m.Advisories,
		m.ScanDuration,
		m.LastScan,
	)

	return m
}

// Outcome labels for EnrichmentRequests
const (
	OutcomeOK          = "ok"
	OutcomeNotFound    = "not_found"
	OutcomeUnavailable = "unavailable"
)

// ObserveRequest counts one enrichment sub-query. A nil Metrics is a no-op.
func (m *Metrics) ObserveRequest(operation, outcome string) {
	if m == nil {
		return
	}
	m.EnrichmentRequests.WithLabelValues(operation, outcome).Inc()
}

// ObservePackage counts one finished package record
func (m *Metrics) ObservePackage(record models.ScanRecord) {
	if m == nil {
		return
	}
	m.PackagesScanned.WithLabelValues(string(record.DependencyType)).Inc()
	m.Advisories.Add(float64(record.VulnerabilityCount))
}

// ObserveReport records the summary of a finished scan
func (m *Metrics) ObserveReport(report models.ScanReport, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.VulnerablePackages.WithLabelValues(string(models.Direct)).Set(float64(report.Summary.VulnerableDirect))
	m.VulnerablePackages.WithLabelValues(string(models.Transitive)).Set(float64(report.Summary.VulnerableTransitive))
	m.ScanDuration.Set(elapsed.Seconds())
	m.LastScan.Set(float64(report.ScanDate.Unix()))
}

// Gatherer exposes the registry
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// WriteTextfile writes the metrics in the node exporter textfile format
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
