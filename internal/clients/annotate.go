package clients

import (
	"context"
	"errors"
	"sync"

	"github.com/ethanolivertroy/depaudit/internal/models"
)

// kevCatalog loads the KEV catalog once per Registry
type kevCatalog struct {
	once    sync.Once
	entries map[string]KEVEntry
	err     error
}

// Annotate marks advisories whose CVE aliases are known to be exploited and
// records their EPSS probability. It updates advisories in place and returns
// the combined error of any lookup that failed; annotations that succeeded
// are kept.
func (r *Registry) Annotate(ctx context.Context, advisories []models.Advisory) error {
	if len(advisories) == 0 || (r.KEV == nil && r.EPSS == nil) {
		return nil
	}

	var errs []error

	if r.KEV != nil {
		r.kev.once.Do(func() {
			r.kev.entries, r.kev.err = r.KEV.FetchCatalog(ctx)
		})
		if r.kev.err != nil {
			errs = append(errs, r.kev.err)
		} else {
			for i := range advisories {
				for _, cve := range advisories[i].CVEs() {
					if _, ok := r.kev.entries[cve]; ok {
						advisories[i].KnownExploited = true
					}
				}
			}
		}
	}

	if r.EPSS != nil {
		var cves []string
		for _, a := range advisories {
			cves = append(cves, a.CVEs()...)
		}
		if len(cves) > 0 {
			scores, err := r.EPSS.FetchScores(ctx, cves)
			if err != nil {
				errs = append(errs, err)
			} else {
				for i := range advisories {
					for _, cve := range advisories[i].CVEs() {
						if s, ok := scores[cve]; ok && (advisories[i].EPSS == nil || s > *advisories[i].EPSS) {
							advisories[i].EPSS = &s
						}
					}
				}
			}
		}
	}

	return errors.Join(errs...)
}
