package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ethanolivertroy/depaudit/internal/errors"
	"github.com/ethanolivertroy/depaudit/internal/metrics"
	"github.com/ethanolivertroy/depaudit/internal/models"
	"github.com/ethanolivertroy/depaudit/internal/parsers"
)

// Enricher is the remote data source queried for every package.
// FetchVersionMetadata returns nil metadata when the registry does not know
// the version; any error is treated as the data being unavailable.
type Enricher interface {
	FetchVersionMetadata(ctx context.Context, name, version string) (*models.VersionMetadata, error)
	FetchAdvisories(ctx context.Context, name, version string) ([]models.Advisory, error)
}

// Annotator is implemented by enrichers that add exploitation data to
// advisories after they are fetched.
type Annotator interface {
	Annotate(ctx context.Context, advisories []models.Advisory) error
}

// Orchestrator enriches classified packages with a minimum spacing between
// the start of successive packages and a bounded number in flight.
type Orchestrator struct {
	enricher    Enricher
	delay       time.Duration
	concurrency int
	logger      *log.Logger
	metrics     *metrics.Metrics

	annotateWarn sync.Once
}

// NewOrchestrator creates an orchestrator. A concurrency below one is treated
// as one, which processes packages strictly one at a time. m may be nil.
func NewOrchestrator(enricher Enricher, delay time.Duration, concurrency int, logger *log.Logger, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		enricher:    enricher,
		delay:       delay,
		concurrency: max(concurrency, 1),
		logger:      logger,
		metrics:     m,
	}
}

// Run returns one record per package, in input order. Enrichment failures
// never fail the run; only context cancellation does.
func (o *Orchestrator) Run(ctx context.Context, pkgs []models.ClassifiedPackage) ([]models.ScanRecord, error) {
	limit := rate.Inf
	if o.delay > 0 {
		limit = rate.Every(o.delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	records := make([]models.ScanRecord, len(pkgs))

	var g errgroup.Group
	g.SetLimit(o.concurrency)

	for i, pkg := range pkgs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			records[i] = o.enrich(ctx, pkg, i+1, len(pkgs))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// enrich builds the record for one package. Both sub-queries finish before
// the record exists, and a failure in one leaves the other intact.
func (o *Orchestrator) enrich(ctx context.Context, pkg models.ClassifiedPackage, n, total int) models.ScanRecord {
	version, exact := parsers.ExactVersion(pkg.Version)
	o.logger.Debug("Enriching", "package", pkg.Name, "version", version, "type", pkg.Classification, "progress", n, "total", total)
	if !exact {
		o.logger.Debug("Version is not exact semver", "package", pkg.Name, "version", pkg.Version)
	}

	res := models.EnrichmentResult{PublishedAt: models.Unknown()}

	meta, err := o.enricher.FetchVersionMetadata(ctx, pkg.Name, version)
	switch {
	case err != nil:
		o.unavailable("metadata", pkg, version, err)
	case meta == nil:
		o.metrics.ObserveRequest("metadata", metrics.OutcomeNotFound)
	default:
		o.metrics.ObserveRequest("metadata", metrics.OutcomeOK)
		res.PublishedAt = meta.PublishedAt
		res.IsLatest = meta.IsLatest
	}

	advisories, err := o.enricher.FetchAdvisories(ctx, pkg.Name, version)
	if err != nil {
		o.unavailable("advisories", pkg, version, err)
		advisories = nil
	} else {
		o.metrics.ObserveRequest("advisories", metrics.OutcomeOK)
	}

	if a, ok := o.enricher.(Annotator); ok && len(advisories) > 0 {
		if err := a.Annotate(ctx, advisories); err != nil {
			o.annotateWarn.Do(func() {
				o.logger.Warn("Advisory annotation incomplete", "err", err)
			})
		}
	}
	res.Advisories = advisories

	record := models.NewScanRecord(pkg, res)
	o.metrics.ObservePackage(record)
	return record
}

func (o *Orchestrator) unavailable(operation string, pkg models.ClassifiedPackage, version string, cause error) {
	o.metrics.ObserveRequest(operation, metrics.OutcomeUnavailable)
	err := errors.Wrap(errors.ErrCodeEnrichmentUnavailable, cause, "%s for %s@%s", operation, pkg.Name, version)
	o.logger.Warn("Enrichment unavailable", "package", pkg.Name, "version", version, "operation", operation, "err", errors.UserMessage(err))
}
