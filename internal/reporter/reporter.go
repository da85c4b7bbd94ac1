package reporter

import "github.com/ethanolivertroy/depaudit/internal/models"

// Reporter is the interface for console output formatters
type Reporter interface {
	// Report renders the given scan report
	Report(r models.ScanReport) ([]byte, error)
}

// Options tune the console renderings
type Options struct {
	// Oldest is the number of rows in the oldest dependencies table
	Oldest int
	// Source is the file findings are attributed to (lock file or manifest)
	Source string
}

// Formats lists the accepted format names
var Formats = []string{"terminal", "json", "sarif"}

// Get returns a reporter for the specified format
func Get(format string, opts Options) Reporter {
	switch format {
	case "json":
		return &JSONReporter{}
	case "sarif":
		return &SARIFReporter{Source: opts.Source}
	default:
		return &TerminalReporter{Oldest: opts.Oldest}
	}
}
