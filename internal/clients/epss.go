package clients

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// EPSSClient handles requests to the FIRST EPSS API
type EPSSClient struct {
	*Client
	baseURL string
}

// NewEPSSClient creates an EPSS client rooted at baseURL
func NewEPSSClient(c *Client, baseURL string) *EPSSClient {
	return &EPSSClient{Client: c, baseURL: baseURL}
}

type epssResponse struct {
	Data []struct {
		CVE        string `json:"cve"`
		EPSS       string `json:"epss"`
		Percentile string `json:"percentile"`
	} `json:"data"`
}

// FetchScores returns the exploit probability for each CVE the API knows
func (c *EPSSClient) FetchScores(ctx context.Context, cveIDs []string) (map[string]float64, error) {
	scores := make(map[string]float64)

	// The API takes comma separated batches; chunk to avoid URL length issues
	const chunkSize = 100
	for i := 0; i < len(cveIDs); i += chunkSize {
		chunk := cveIDs[i:min(i+chunkSize, len(cveIDs))]
		joined := strings.Join(chunk, ",")
		endpoint := fmt.Sprintf("%s?cve=%s", c.baseURL, url.QueryEscape(joined))

		var data epssResponse
		err := c.Cached(ctx, "scores:"+joined, &data, func() error {
			return c.Get(ctx, endpoint, &data)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch EPSS scores: %w", err)
		}

		for _, d := range data.Data {
			score, err := strconv.ParseFloat(d.EPSS, 64)
			if err != nil {
				continue
			}
			scores[d.CVE] = score
		}
	}

	return scores, nil
}
