package models

import "time"

// Config holds configuration for the scanner
type Config struct {
	// Input files
	ManifestPath string
	LockfilePath string // Defaults to package-lock.json next to the manifest

	// Scan behavior
	Mode        ScanMode
	Delay       time.Duration // Minimum spacing between package enrichments
	Concurrency int

	// Output settings
	OutputFormat string // "terminal", "json", "sarif"
	ReportPath   string // Persisted report (.json or .toml)
	OldestCount  int
	FailOnVuln   bool

	// Registry settings
	DepsDevURL     string
	OSVURL         string
	KEVURL         string
	EPSSURL        string
	Timeout        time.Duration
	Retries        int
	AdvisorySource string // "depsdev" or "osv"
	KEV            bool
	EPSS           bool

	// Cache settings
	CacheDir string
	CacheTTL time.Duration
	NoCache  bool

	// Optional sinks
	HistoryDB   string
	MetricsFile string

	LogLevel string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ManifestPath:   "package.json",
		Mode:           ModeTransitive,
		Delay:          100 * time.Millisecond,
		Concurrency:    1,
		OutputFormat:   "terminal",
		ReportPath:     "dependency-report.json",
		OldestCount:    5,
		DepsDevURL:     "https://api.deps.dev/v3",
		OSVURL:         "https://api.osv.dev/v1",
		KEVURL:         "https://raw.githubusercontent.com/cisagov/kev-data/main/known_exploited_vulnerabilities.json",
		EPSSURL:        "https://api.first.org/data/v1/epss",
		Timeout:        30 * time.Second,
		Retries:        2,
		AdvisorySource: "depsdev",
		CacheTTL:       24 * time.Hour,
		LogLevel:       "info",
	}
}
