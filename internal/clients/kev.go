package clients

import (
	"context"
	"fmt"
	"time"
)

// KEVClient handles requests to the CISA Known Exploited Vulnerabilities catalog
type KEVClient struct {
	*Client
	url string
}

// NewKEVClient creates a KEV client for the catalog at url
func NewKEVClient(c *Client, url string) *KEVClient {
	return &KEVClient{Client: c, url: url}
}

// KEVEntry is the part of a catalog entry depaudit keeps
type KEVEntry struct {
	VulnerabilityName string
	DateAdded         time.Time
	RansomwareUse     bool
}

type kevResponse struct {
	CatalogVersion  string `json:"catalogVersion"`
	Vulnerabilities []struct {
		CVEID                      string `json:"cveID"`
		VulnerabilityName          string `json:"vulnerabilityName"`
		DateAdded                  string `json:"dateAdded"`
		KnownRansomwareCampaignUse string `json:"knownRansomwareCampaignUse"`
	} `json:"vulnerabilities"`
}

// FetchCatalog fetches the KEV catalog and returns a map of CVE ID -> entry
func (c *KEVClient) FetchCatalog(ctx context.Context) (map[string]KEVEntry, error) {
	var data kevResponse
	err := c.Cached(ctx, "catalog", &data, func() error {
		return c.Get(ctx, c.url, &data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch KEV catalog: %w", err)
	}

	catalog := make(map[string]KEVEntry, len(data.Vulnerabilities))
	for _, v := range data.Vulnerabilities {
		entry := KEVEntry{
			VulnerabilityName: v.VulnerabilityName,
			RansomwareUse:     v.KnownRansomwareCampaignUse == "Known",
		}
		entry.DateAdded, _ = time.Parse("2006-01-02", v.DateAdded)
		catalog[v.CVEID] = entry
	}
	return catalog, nil
}
