package reporter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ethanolivertroy/depaudit/internal/models"
	"github.com/ethanolivertroy/depaudit/internal/report"
)

var (
	colorCyan   = lipgloss.Color("36")
	colorGreen  = lipgloss.Color("35")
	colorYellow = lipgloss.Color("220")
	colorRed    = lipgloss.Color("167")
	colorGray   = lipgloss.Color("245")
	colorDim    = lipgloss.Color("240")

	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	styleNumber  = lipgloss.NewStyle().Foreground(colorCyan)
	styleSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleError   = lipgloss.NewStyle().Foreground(colorRed)
	styleDim     = lipgloss.NewStyle().Foreground(colorDim)
	styleHeader  = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
)

// TerminalReporter renders a human-readable summary of a scan
type TerminalReporter struct {
	Oldest int
}

// Report generates terminal output for the given report
func (r *TerminalReporter) Report(rep models.ScanReport) ([]byte, error) {
	var sb strings.Builder
	s := rep.Summary

	sb.WriteString(styleTitle.Render("Dependency scan") + " " +
		styleDim.Render(rep.ScanDate.Format("2006-01-02 15:04:05 MST")) + "\n\n")

	fmt.Fprintf(&sb, "  Total packages:  %s\n", styleNumber.Render(strconv.Itoa(s.TotalPackages)))
	fmt.Fprintf(&sb, "  Direct:          %s\n", styleNumber.Render(strconv.Itoa(s.DirectCount)))
	fmt.Fprintf(&sb, "  Transitive:      %s\n", styleNumber.Render(strconv.Itoa(s.TransitiveCount)))

	vulnStyle := styleSuccess
	if s.VulnerablePackages > 0 {
		vulnStyle = styleError
	}
	fmt.Fprintf(&sb, "  Vulnerable:      %s %s\n\n",
		vulnStyle.Render(strconv.Itoa(s.VulnerablePackages)),
		styleDim.Render(fmt.Sprintf("(%d direct, %d transitive)", s.VulnerableDirect, s.VulnerableTransitive)))

	vulnerable := report.Vulnerable(rep.Results)
	if len(vulnerable) == 0 {
		sb.WriteString(styleSuccess.Render("✓ No known vulnerabilities found") + "\n")
	} else {
		sb.WriteString(styleWarning.Render("! Vulnerable packages") + "\n")
		for _, rec := range vulnerable {
			fmt.Fprintf(&sb, "\n  %s@%s %s\n", rec.Package, rec.CurrentVersion,
				styleDim.Render(fmt.Sprintf("(%s, %d advisories)", rec.DependencyType, rec.VulnerabilityCount)))
			for _, adv := range rec.Vulnerabilities {
				sb.WriteString("    " + formatAdvisory(adv) + "\n")
			}
		}
	}

	n := r.Oldest
	if n == 0 {
		n = report.DefaultOldest
	}
	oldest := report.Oldest(rep.Results, n)
	if len(oldest) > 0 {
		sb.WriteString("\n" + styleTitle.Render(fmt.Sprintf("Oldest dependencies (%d)", len(oldest))) + "\n")
		sb.WriteString(oldestTable(oldest) + "\n")
	}

	return []byte(sb.String()), nil
}

func formatAdvisory(adv models.Advisory) string {
	var b strings.Builder
	sev := "UNKNOWN"
	if adv.Severity != nil {
		sev = *adv.Severity
	}
	b.WriteString(severityStyle(sev).Render(fmt.Sprintf("%-8s", sev)) + " " + adv.ID)
	if adv.Title != "" && adv.Title != adv.ID {
		b.WriteString(" " + adv.Title)
	}
	if adv.Score != nil {
		b.WriteString(styleDim.Render(fmt.Sprintf(" [CVSS %.1f]", *adv.Score)))
	}
	if adv.EPSS != nil {
		b.WriteString(styleDim.Render(fmt.Sprintf(" [EPSS %.1f%%]", *adv.EPSS*100)))
	}
	if adv.KnownExploited {
		b.WriteString(" " + styleError.Render("known exploited"))
	}
	return b.String()
}

func severityStyle(sev string) lipgloss.Style {
	switch sev {
	case "CRITICAL", "HIGH":
		return styleError
	case "MEDIUM", "MODERATE":
		return styleWarning
	default:
		return styleDim
	}
}

func oldestTable(records []models.ScanRecord) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		latest := "no"
		if rec.IsDefault {
			latest = "yes"
		}
		rows = append(rows, []string{
			rec.Package,
			rec.CurrentVersion,
			string(rec.DependencyType),
			rec.PublishedAt.Time().Format("2006-01-02"),
			latest,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styleDim).
		Headers("Package", "Version", "Type", "Published", "Latest").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	return t.Render()
}
