package models

import (
	"strings"
	"time"
)

// unknownDate is the serialized form of a missing publication date
const unknownDate = "unknown"

// PublishedAt is a publication timestamp that may be unknown.
// It serializes as an RFC 3339 string or the literal "unknown".
type PublishedAt struct {
	t     time.Time
	known bool
}

// Published returns a known publication date
func Published(t time.Time) PublishedAt {
	return PublishedAt{t: t.UTC(), known: true}
}

// Unknown returns an unknown publication date
func Unknown() PublishedAt { return PublishedAt{} }

// Known reports whether the date is known
func (p PublishedAt) Known() bool { return p.known }

// Time returns the date; zero when unknown
func (p PublishedAt) Time() time.Time { return p.t }

func (p PublishedAt) String() string {
	if !p.known {
		return unknownDate
	}
	return p.t.Format(time.RFC3339Nano)
}

// MarshalText implements encoding.TextMarshaler
func (p PublishedAt) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *PublishedAt) UnmarshalText(b []byte) error {
	s := string(b)
	if s == "" || s == unknownDate {
		*p = Unknown()
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	*p = Published(t)
	return nil
}

// Advisory is a published vulnerability record affecting a package version
type Advisory struct {
	ID       string   `json:"id" toml:"id"`
	Title    string   `json:"title" toml:"title"`
	Severity *string  `json:"severity,omitempty" toml:"severity,omitempty"`
	Score    *float64 `json:"score,omitempty" toml:"score,omitempty"`
	Summary  *string  `json:"summary,omitempty" toml:"summary,omitempty"`
	Aliases  []string `json:"aliases,omitempty" toml:"aliases,omitempty"`

	// Populated by the optional KEV / EPSS annotation pass
	KnownExploited bool     `json:"knownExploited,omitempty" toml:"knownExploited,omitempty"`
	EPSS           *float64 `json:"epss,omitempty" toml:"epss,omitempty"`
}

// CVEs returns the CVE identifiers among the advisory id and aliases
func (a Advisory) CVEs() []string {
	seen := make(map[string]bool)
	var cves []string
	for _, id := range append([]string{a.ID}, a.Aliases...) {
		if strings.HasPrefix(id, "CVE-") && !seen[id] {
			seen[id] = true
			cves = append(cves, id)
		}
	}
	return cves
}

// VersionMetadata is the registry's publication data for one version
type VersionMetadata struct {
	PublishedAt PublishedAt
	IsLatest    bool
	// AdvisoryIDs lists advisory keys the registry reports for the version
	AdvisoryIDs []string
}

// EnrichmentResult is what the registry knows about one installed package
type EnrichmentResult struct {
	PublishedAt PublishedAt
	IsLatest    bool
	Advisories  []Advisory
}

// ScanRecord joins a classified package with its enrichment result
type ScanRecord struct {
	Package            string         `json:"package" toml:"package"`
	CurrentVersion     string         `json:"currentVersion" toml:"currentVersion"`
	DependencyType     Classification `json:"dependencyType" toml:"dependencyType"`
	PublishedAt        PublishedAt    `json:"publishedAt" toml:"publishedAt"`
	IsDefault          bool           `json:"isDefault" toml:"isDefault"`
	Vulnerabilities    []Advisory     `json:"vulnerabilities" toml:"vulnerabilities"`
	VulnerabilityCount int            `json:"vulnerabilityCount" toml:"vulnerabilityCount"`
}

// NewScanRecord builds the record for pkg; advisories are never nil
func NewScanRecord(pkg ClassifiedPackage, res EnrichmentResult) ScanRecord {
	advisories := res.Advisories
	if advisories == nil {
		advisories = []Advisory{}
	}
	return ScanRecord{
		Package:            pkg.Name,
		CurrentVersion:     pkg.Version,
		DependencyType:     pkg.Classification,
		PublishedAt:        res.PublishedAt,
		IsDefault:          res.IsLatest,
		Vulnerabilities:    advisories,
		VulnerabilityCount: len(advisories),
	}
}

// Vulnerable reports whether the record has any advisory
func (r ScanRecord) Vulnerable() bool { return r.VulnerabilityCount > 0 }

// Summary holds the aggregate counts of a scan
type Summary struct {
	TotalPackages        int `json:"totalPackages" toml:"totalPackages"`
	DirectCount          int `json:"directDependencies" toml:"directDependencies"`
	TransitiveCount      int `json:"transitiveDependencies" toml:"transitiveDependencies"`
	VulnerablePackages   int `json:"vulnerablePackages" toml:"vulnerablePackages"`
	VulnerableDirect     int `json:"vulnerableDirect" toml:"vulnerableDirect"`
	VulnerableTransitive int `json:"vulnerableTransitive" toml:"vulnerableTransitive"`
}

// ScanReport is the result of one scan invocation
type ScanReport struct {
	ScanDate time.Time    `json:"scanDate" toml:"scanDate"`
	Summary  Summary      `json:"summary" toml:"summary"`
	Results  []ScanRecord `json:"results" toml:"results"`
}
