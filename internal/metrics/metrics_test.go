package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethanolivertroy/depaudit/internal/models"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	assert.NotNil(t, m.PackagesScanned)
	assert.NotNil(t, m.EnrichmentRequests)
	assert.NotNil(t, m.VulnerablePackages)
	assert.NotNil(t, m.Advisories)
	assert.NotNil(t, m.ScanDuration)
	assert.NotNil(t, m.LastScan)

	// Two scans in one process must not collide on registration
	assert.NotPanics(t, func() { NewMetrics() })
}

func TestObserve(t *testing.T) {
	m := NewMetrics()

	m.ObserveRequest("metadata", OutcomeOK)
	m.ObserveRequest("metadata", OutcomeOK)
	m.ObserveRequest("advisories", OutcomeUnavailable)

	m.ObservePackage(models.ScanRecord{DependencyType: models.Direct, VulnerabilityCount: 2})
	m.ObservePackage(models.ScanRecord{DependencyType: models.Transitive})

	report := models.ScanReport{
		ScanDate: time.Unix(1700000000, 0),
		Summary:  models.Summary{VulnerableDirect: 1},
	}
	m.ObserveReport(report, 1500*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EnrichmentRequests.WithLabelValues("metadata", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrichmentRequests.WithLabelValues("advisories", OutcomeUnavailable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PackagesScanned.WithLabelValues("direct")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Advisories))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VulnerablePackages.WithLabelValues("direct")))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.ScanDuration))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.LastScan))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("metadata", OutcomeOK)
		m.ObservePackage(models.ScanRecord{})
		m.ObserveReport(models.ScanReport{}, time.Second)
	})
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.ObservePackage(models.ScanRecord{DependencyType: models.Direct})

	path := filepath.Join(t.TempDir(), "depaudit.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `depaudit_packages_scanned_total{dependency_type="direct"} 1`)
}
