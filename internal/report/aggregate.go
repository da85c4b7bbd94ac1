// Package report aggregates scan records into a ScanReport and persists it.
package report

import (
	"slices"
	"time"

	"github.com/ethanolivertroy/depaudit/internal/models"
)

// DefaultOldest is the length of the oldest dependencies view
const DefaultOldest = 5

// Aggregate builds the report for records scanned at scanDate.
// The records are kept in scan order.
func Aggregate(records []models.ScanRecord, scanDate time.Time) models.ScanReport {
	if records == nil {
		records = []models.ScanRecord{}
	}
	return models.ScanReport{
		ScanDate: scanDate.UTC(),
		Summary:  Summarize(records),
		Results:  records,
	}
}

// Summarize counts records by classification and by vulnerability
func Summarize(records []models.ScanRecord) models.Summary {
	var s models.Summary
	for _, r := range records {
		s.TotalPackages++
		direct := r.DependencyType == models.Direct
		if direct {
			s.DirectCount++
		} else {
			s.TransitiveCount++
		}

		if !r.Vulnerable() {
			continue
		}
		s.VulnerablePackages++
		if direct {
			s.VulnerableDirect++
		} else {
			s.VulnerableTransitive++
		}
	}
	return s
}

// Oldest returns up to n records with a known publication date, oldest
// first. Records published at the same instant keep their scan order.
func Oldest(records []models.ScanRecord, n int) []models.ScanRecord {
	dated := make([]models.ScanRecord, 0, len(records))
	for _, r := range records {
		if r.PublishedAt.Known() {
			dated = append(dated, r)
		}
	}

	slices.SortStableFunc(dated, func(a, b models.ScanRecord) int {
		return a.PublishedAt.Time().Compare(b.PublishedAt.Time())
	})

	if n >= 0 && len(dated) > n {
		dated = dated[:n]
	}
	return dated
}

// Vulnerable returns the records with at least one advisory, in scan order
func Vulnerable(records []models.ScanRecord) []models.ScanRecord {
	var out []models.ScanRecord
	for _, r := range records {
		if r.Vulnerable() {
			out = append(out, r)
		}
	}
	return out
}
