package reporter

import (
	"github.com/ethanolivertroy/depaudit/internal/models"
	"github.com/ethanolivertroy/depaudit/internal/report"
)

// JSONReporter prints the report document exactly as it is persisted
type JSONReporter struct{}

// Report generates JSON output for the given report
func (r *JSONReporter) Report(rep models.ScanReport) ([]byte, error) {
	return report.Encode(rep, report.FormatJSON)
}
