package clients

import (
	"context"
	"fmt"

	"github.com/ethanolivertroy/depaudit/internal/cache"
	"github.com/ethanolivertroy/depaudit/internal/models"
)

// AdvisorySource lists advisories for an exact package version
type AdvisorySource interface {
	FetchAdvisories(ctx context.Context, name, version string) ([]models.Advisory, error)
}

// Registry is the enrichment client used by the scanner: version metadata
// comes from deps.dev, advisories from the configured source.
type Registry struct {
	DepsDev    *DepsDevClient
	Advisories AdvisorySource
	KEV        *KEVClient  // nil unless KEV annotation is enabled
	EPSS       *EPSSClient // nil unless EPSS annotation is enabled

	kev kevCatalog
}

// NewRegistry wires the registry clients from config. c may be nil to
// disable response caching.
func NewRegistry(config *models.Config, c *cache.Cache) (*Registry, error) {
	ns := func(prefix string) *cache.Cache {
		if c == nil {
			return nil
		}
		return c.Namespace(prefix)
	}
	client := func(prefix string) *Client {
		return NewClient(config.Timeout, ns(prefix), config.Retries)
	}

	r := &Registry{
		DepsDev: NewDepsDevClient(client("depsdev:"), config.DepsDevURL),
	}

	switch config.AdvisorySource {
	case "", "depsdev":
		r.Advisories = r.DepsDev
	case "osv":
		r.Advisories = NewOSVClient(client("osv:"), config.OSVURL)
	default:
		return nil, fmt.Errorf("unknown advisory source %q", config.AdvisorySource)
	}

	if config.KEV {
		r.KEV = NewKEVClient(client("kev:"), config.KEVURL)
	}
	if config.EPSS {
		r.EPSS = NewEPSSClient(client("epss:"), config.EPSSURL)
	}
	return r, nil
}

// FetchVersionMetadata returns publication data for name@version, or nil
// when the registry does not know it.
func (r *Registry) FetchVersionMetadata(ctx context.Context, name, version string) (*models.VersionMetadata, error) {
	return r.DepsDev.FetchVersionMetadata(ctx, name, version)
}

// FetchAdvisories lists advisories for name@version
func (r *Registry) FetchAdvisories(ctx context.Context, name, version string) ([]models.Advisory, error) {
	return r.Advisories.FetchAdvisories(ctx, name, version)
}
