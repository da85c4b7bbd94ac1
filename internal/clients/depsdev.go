package clients

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethanolivertroy/depaudit/internal/models"
)

// DepsDevClient queries the deps.dev v3 API for version metadata and
// advisories.
type DepsDevClient struct {
	*Client
	baseURL string
}

// NewDepsDevClient creates a client for the deps.dev API rooted at baseURL
func NewDepsDevClient(c *Client, baseURL string) *DepsDevClient {
	return &DepsDevClient{Client: c, baseURL: strings.TrimRight(baseURL, "/")}
}

type depsDevVersion struct {
	PublishedAt  string `json:"publishedAt"`
	IsDefault    bool   `json:"isDefault"`
	AdvisoryKeys []struct {
		ID string `json:"id"`
	} `json:"advisoryKeys"`
}

type depsDevAdvisory struct {
	AdvisoryKey struct {
		ID string `json:"id"`
	} `json:"advisoryKey"`
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Aliases    []string `json:"aliases"`
	CVSS3Score *float64 `json:"cvss3Score"`
}

// FetchVersionMetadata returns publication data for name@version, or nil
// when deps.dev does not know the version.
func (c *DepsDevClient) FetchVersionMetadata(ctx context.Context, name, version string) (*models.VersionMetadata, error) {
	endpoint := fmt.Sprintf("%s/systems/%s/packages/%s/versions/%s",
		c.baseURL, models.Ecosystem, url.PathEscape(name), url.PathEscape(version))

	var data depsDevVersion
	err := c.Cached(ctx, "version:"+name+"@"+version, &data, func() error {
		return c.Get(ctx, endpoint, &data)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	meta := &models.VersionMetadata{
		PublishedAt: models.Unknown(),
		IsLatest:    data.IsDefault,
	}
	if data.PublishedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, data.PublishedAt); err == nil {
			meta.PublishedAt = models.Published(t)
		}
	}
	for _, k := range data.AdvisoryKeys {
		meta.AdvisoryIDs = append(meta.AdvisoryIDs, k.ID)
	}
	return meta, nil
}

// FetchAdvisory resolves one advisory key
func (c *DepsDevClient) FetchAdvisory(ctx context.Context, id string) (models.Advisory, error) {
	endpoint := fmt.Sprintf("%s/advisories/%s", c.baseURL, url.PathEscape(id))

	var data depsDevAdvisory
	err := c.Cached(ctx, "advisory:"+id, &data, func() error {
		return c.Get(ctx, endpoint, &data)
	})
	if err != nil {
		return models.Advisory{}, err
	}

	adv := models.Advisory{
		ID:    id,
		Title: data.Title,
		Score: data.CVSS3Score,
	}
	if len(data.Aliases) > 0 {
		adv.Aliases = data.Aliases
	}
	if adv.Title == "" {
		adv.Title = id
	}
	if data.CVSS3Score != nil {
		sev := SeverityFromScore(*data.CVSS3Score)
		adv.Severity = &sev
	}
	return adv, nil
}

// FetchAdvisories lists the advisories deps.dev reports for name@version.
// An unknown version has no advisories.
func (c *DepsDevClient) FetchAdvisories(ctx context.Context, name, version string) ([]models.Advisory, error) {
	meta, err := c.FetchVersionMetadata(ctx, name, version)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return []models.Advisory{}, nil
	}

	advisories := make([]models.Advisory, 0, len(meta.AdvisoryIDs))
	for _, id := range meta.AdvisoryIDs {
		adv, err := c.FetchAdvisory(ctx, id)
		if errors.Is(err, ErrNotFound) {
			adv = models.Advisory{ID: id, Title: id}
		} else if err != nil {
			return nil, fmt.Errorf("advisory %s: %w", id, err)
		}
		advisories = append(advisories, adv)
	}
	return advisories, nil
}

// SeverityFromScore maps a CVSS v3 base score to its qualitative rating
func SeverityFromScore(score float64) string {
	switch {
	case score >= 9.0:
		return "CRITICAL"
	case score >= 7.0:
		return "HIGH"
	case score >= 4.0:
		return "MEDIUM"
	case score > 0:
		return "LOW"
	default:
		return "NONE"
	}
}
