package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	derrors "github.com/ethanolivertroy/depaudit/internal/errors"
	"github.com/ethanolivertroy/depaudit/internal/history"
	"github.com/ethanolivertroy/depaudit/internal/reporter"
)

// newHistoryCmd creates the "history" command listing recorded scans
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "List recorded scans, or show one",
		Long: `history reads the SQLite database written by --history.

Without an id it lists the most recent scans. With an id it renders that
scan's report in the selected format.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}

	cmd.Flags().Int("limit", 10, "Number of scans to list")
	cmd.Flags().StringP("format", "f", "terminal", "Output format: terminal, json, sarif")
	cmd.Flags().Int("oldest", 5, "Rows in the oldest dependencies table")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup(cmd)
	if err != nil {
		return err
	}
	if cfg.HistoryDB == "" {
		return derrors.New(derrors.ErrCodeInvalidConfig, "no history database, pass --history")
	}

	store, err := history.NewSQLiteStore(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid scan id %q", args[0])
		}
		rep, err := store.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("scan %d: %w", id, err)
		}
		data, err := reporter.Get(cfg.OutputFormat, reporter.Options{Oldest: cfg.OldestCount}).Report(*rep)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	entries, err := store.List(ctx, limit)
	if err != nil {
		return err
	}

	if cfg.OutputFormat == "json" {
		if entries == nil {
			entries = []history.Entry{}
		}
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No scans recorded")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.ScanDate.Local().Format("2006-01-02 15:04"),
			e.Manifest,
			strconv.Itoa(e.Summary.TotalPackages),
			strconv.Itoa(e.Summary.DirectCount),
			strconv.Itoa(e.Summary.TransitiveCount),
			strconv.Itoa(e.Summary.VulnerablePackages),
		})
	}

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("ID", "Date", "Manifest", "Packages", "Direct", "Transitive", "Vulnerable").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(out, t.Render())
	return nil
}
