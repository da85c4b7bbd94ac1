package reporter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethanolivertroy/depaudit/internal/models"
)

// SARIFReporter outputs findings in SARIF format for GitHub Code Scanning
type SARIFReporter struct {
	// Source is the artifact every result points at
	Source string
}

// SARIF structures
type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	ShortDescription sarifText       `json:"shortDescription"`
	FullDescription  sarifText       `json:"fullDescription"`
	HelpURI          string          `json:"helpUri"`
	DefaultConfig    sarifRuleConfig `json:"defaultConfiguration"`
	Properties       sarifProperties `json:"properties"`
}

type sarifText struct {
	Text string `json:"text"`
}

type sarifRuleConfig struct {
	Level string `json:"level"`
}

type sarifProperties struct {
	Tags             []string `json:"tags"`
	SecuritySeverity string   `json:"security-severity,omitempty"`
}

type sarifResult struct {
	RuleID              string            `json:"ruleId"`
	RuleIndex           int               `json:"ruleIndex"`
	Level               string            `json:"level"`
	Message             sarifText         `json:"message"`
	Locations           []sarifLocation   `json:"locations"`
	PartialFingerprints map[string]string `json:"partialFingerprints"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifact `json:"artifactLocation"`
}

type sarifArtifact struct {
	URI string `json:"uri"`
}

// Report generates SARIF output for the given report
func (r *SARIFReporter) Report(rep models.ScanReport) ([]byte, error) {
	rules, ruleIndex := r.buildRules(rep.Results)

	out := sarifReport{
		Schema:  "https://json.schemastore.org/sarif-2.1.0.json",
		Version: "2.1.0",
		Runs: []sarifRun{{
			Tool: sarifTool{
				Driver: sarifDriver{
					Name:           "depaudit",
					Version:        "1.0.0",
					InformationURI: "https://github.com/ethanolivertroy/depaudit",
					Rules:          rules,
				},
			},
			Results: r.buildResults(rep.Results, ruleIndex),
		}},
	}

	return json.MarshalIndent(out, "", "  ")
}

// buildRules emits one rule per distinct advisory in first-seen order
func (r *SARIFReporter) buildRules(records []models.ScanRecord) ([]sarifRule, map[string]int) {
	rules := []sarifRule{}
	ruleIndex := make(map[string]int)

	for _, rec := range records {
		for _, adv := range rec.Vulnerabilities {
			if _, exists := ruleIndex[adv.ID]; exists {
				continue
			}

			tags := []string{"security", "vulnerability", models.Ecosystem}
			if adv.KnownExploited {
				tags = append(tags, "kev")
			}

			props := sarifProperties{Tags: tags}
			if adv.Score != nil {
				props.SecuritySeverity = strconv.FormatFloat(*adv.Score, 'f', 1, 64)
			}

			full := adv.Title
			if adv.Summary != nil {
				full = *adv.Summary
			}

			ruleIndex[adv.ID] = len(rules)
			rules = append(rules, sarifRule{
				ID:               adv.ID,
				Name:             adv.Title,
				ShortDescription: sarifText{Text: adv.Title},
				FullDescription:  sarifText{Text: full},
				HelpURI:          advisoryURL(adv),
				DefaultConfig:    sarifRuleConfig{Level: level(adv)},
				Properties:       props,
			})
		}
	}

	return rules, ruleIndex
}

func (r *SARIFReporter) buildResults(records []models.ScanRecord, ruleIndex map[string]int) []sarifResult {
	results := []sarifResult{}

	for _, rec := range records {
		for _, adv := range rec.Vulnerabilities {
			msg := fmt.Sprintf("%s dependency %s@%s is affected by %s: %s",
				rec.DependencyType, rec.Package, rec.CurrentVersion, adv.ID, adv.Title)
			if adv.EPSS != nil {
				msg += fmt.Sprintf(" (EPSS: %.1f%%)", *adv.EPSS*100)
			}
			if adv.KnownExploited {
				msg += " [Known exploited]"
			}

			results = append(results, sarifResult{
				RuleID:    adv.ID,
				RuleIndex: ruleIndex[adv.ID],
				Level:     level(adv),
				Message:   sarifText{Text: msg},
				Locations: []sarifLocation{{
					PhysicalLocation: sarifPhysicalLocation{
						ArtifactLocation: sarifArtifact{URI: r.Source},
					},
				}},
				PartialFingerprints: map[string]string{
					"primaryLocationLineHash": fmt.Sprintf("%s:%s:%s", rec.Package, rec.CurrentVersion, adv.ID),
				},
			})
		}
	}

	return results
}

func level(adv models.Advisory) string {
	if adv.KnownExploited {
		return "error"
	}
	if adv.Severity == nil {
		return "warning"
	}
	switch *adv.Severity {
	case "CRITICAL", "HIGH":
		return "error"
	case "MEDIUM", "MODERATE":
		return "warning"
	default:
		return "note"
	}
}

func advisoryURL(adv models.Advisory) string {
	if strings.HasPrefix(adv.ID, "GHSA-") {
		return "https://github.com/advisories/" + adv.ID
	}
	return "https://osv.dev/vulnerability/" + adv.ID
}
