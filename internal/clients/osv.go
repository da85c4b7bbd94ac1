package clients

import (
	"context"
	"errors"
	"strings"

	"github.com/ethanolivertroy/depaudit/internal/models"
)

// OSVClient handles requests to the OSV vulnerability database
type OSVClient struct {
	*Client
	baseURL string
}

// NewOSVClient creates a client for the OSV API rooted at baseURL
func NewOSVClient(c *Client, baseURL string) *OSVClient {
	return &OSVClient{Client: c, baseURL: strings.TrimRight(baseURL, "/")}
}

type osvQuery struct {
	Package struct {
		Name      string `json:"name"`
		Ecosystem string `json:"ecosystem"`
	} `json:"package"`
	Version string `json:"version"`
}

type osvVulnerability struct {
	ID               string   `json:"id"`
	Aliases          []string `json:"aliases"`
	Summary          string   `json:"summary"`
	Details          string   `json:"details"`
	DatabaseSpecific struct {
		Severity string `json:"severity"`
	} `json:"database_specific"`
}

type osvQueryResponse struct {
	Vulns []osvVulnerability `json:"vulns"`
}

// FetchAdvisories queries OSV for vulnerabilities affecting name@version
func (c *OSVClient) FetchAdvisories(ctx context.Context, name, version string) ([]models.Advisory, error) {
	var q osvQuery
	q.Package.Name = name
	q.Package.Ecosystem = models.Ecosystem
	q.Version = version

	var resp osvQueryResponse
	err := c.Cached(ctx, "query:"+name+"@"+version, &resp, func() error {
		return c.Post(ctx, c.baseURL+"/query", q, &resp)
	})
	if errors.Is(err, ErrNotFound) {
		return []models.Advisory{}, nil
	}
	if err != nil {
		return nil, err
	}

	advisories := make([]models.Advisory, 0, len(resp.Vulns))
	for _, v := range resp.Vulns {
		adv := models.Advisory{ID: v.ID, Title: v.Summary}
		if adv.Title == "" {
			adv.Title = v.ID
		}
		if v.Details != "" {
			details := v.Details
			adv.Summary = &details
		}
		if v.DatabaseSpecific.Severity != "" {
			sev := strings.ToUpper(v.DatabaseSpecific.Severity)
			adv.Severity = &sev
		}
		if len(v.Aliases) > 0 {
			adv.Aliases = v.Aliases
		}
		advisories = append(advisories, adv)
	}
	return advisories, nil
}
