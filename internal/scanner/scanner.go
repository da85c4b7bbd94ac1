package scanner

import (
	"context"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ethanolivertroy/depaudit/internal/metrics"
	"github.com/ethanolivertroy/depaudit/internal/models"
	"github.com/ethanolivertroy/depaudit/internal/parsers"
	"github.com/ethanolivertroy/depaudit/internal/report"
)

// LockfileName is the lock file looked up next to the manifest
const LockfileName = "package-lock.json"

// Scanner resolves the classified package set of a project and enriches it
// into a ScanReport.
type Scanner struct {
	config   *models.Config
	enricher Enricher
	logger   *log.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates a new Scanner. m may be nil to skip metrics.
func New(config *models.Config, enricher Enricher, logger *log.Logger, m *metrics.Metrics) *Scanner {
	return &Scanner{
		config:   config,
		enricher: enricher,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// LockfilePath returns the configured lock file or the one next to the manifest
func (s *Scanner) LockfilePath() string {
	if s.config.LockfilePath != "" {
		return s.config.LockfilePath
	}
	return filepath.Join(filepath.Dir(s.config.ManifestPath), LockfileName)
}

// Resolution is the classified package set and where it came from
type Resolution struct {
	Packages []models.ClassifiedPackage
	// Source is the file the packages were read from
	Source string
	// Degraded is set when a transitive scan fell back to the manifest
	Degraded bool
}

// Resolve reads the manifest and, for transitive scans, the lock file.
// An unreadable manifest is fatal. An unreadable or empty lock file degrades
// the scan to the declared dependencies, all classified direct.
func (s *Scanner) Resolve() (*Resolution, error) {
	declared, err := parsers.ReadManifest(s.config.ManifestPath)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Read manifest", "path", s.config.ManifestPath, "declared", declared.Len())

	direct := func(degraded bool) *Resolution {
		return &Resolution{
			Packages: Classify(directPackages(declared), declared),
			Source:   s.config.ManifestPath,
			Degraded: degraded,
		}
	}

	if s.config.Mode == models.ModeDirect {
		return direct(false), nil
	}

	path := s.LockfilePath()
	idx, err := parsers.ReadLockfile(path)
	if err != nil {
		s.logger.Warn("Lock file unreadable, scanning direct dependencies only", "path", path, "err", err)
		return direct(true), nil
	}
	if idx.Len() == 0 {
		s.logger.Warn("Lock file has no packages, scanning direct dependencies only", "path", path)
		return direct(true), nil
	}

	for _, c := range idx.Conflicts {
		logConflict := s.logger.Debug
		if c.ShadowsNewer() {
			logConflict = s.logger.Warn
		}
		logConflict("Package installed at several paths, keeping last",
			"package", c.Name,
			"kept", c.KeptPath+"@"+c.KeptVersion,
			"dropped", c.DroppedPath+"@"+c.DroppedVersion)
	}

	return &Resolution{
		Packages: Classify(idx.Packages, declared),
		Source:   path,
	}, nil
}

// Scan resolves, enriches and aggregates. The only errors it returns are an
// unreadable manifest and context cancellation.
func (s *Scanner) Scan(ctx context.Context) (*models.ScanReport, *Resolution, error) {
	start := s.now()

	res, err := s.Resolve()
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("Scanning packages", "count", len(res.Packages), "mode", s.config.Mode, "source", res.Source)

	orch := NewOrchestrator(s.enricher, s.config.Delay, s.config.Concurrency, s.logger, s.metrics)
	records, err := orch.Run(ctx, res.Packages)
	if err != nil {
		return nil, nil, err
	}

	finished := s.now()
	rep := report.Aggregate(records, finished)
	s.metrics.ObserveReport(rep, finished.Sub(start))
	s.logger.Info("Scan complete",
		"packages", rep.Summary.TotalPackages,
		"vulnerable", rep.Summary.VulnerablePackages,
		"elapsed", finished.Sub(start).Round(time.Millisecond))

	return &rep, res, nil
}
