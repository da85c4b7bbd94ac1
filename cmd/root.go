package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ethanolivertroy/depaudit/internal/cache"
	"github.com/ethanolivertroy/depaudit/internal/clients"
	"github.com/ethanolivertroy/depaudit/internal/config"
	derrors "github.com/ethanolivertroy/depaudit/internal/errors"
	"github.com/ethanolivertroy/depaudit/internal/history"
	"github.com/ethanolivertroy/depaudit/internal/logging"
	"github.com/ethanolivertroy/depaudit/internal/metrics"
	"github.com/ethanolivertroy/depaudit/internal/models"
	"github.com/ethanolivertroy/depaudit/internal/report"
	"github.com/ethanolivertroy/depaudit/internal/reporter"
	"github.com/ethanolivertroy/depaudit/internal/scanner"
)

var version = "dev"

// errVulnerable signals --fail-on-vuln; Execute maps it to exit code 1
var errVulnerable = errors.New("vulnerable packages found")

// rootCmd represents the base command
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	d := models.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "depaudit [package.json]",
		Short: "Audit npm dependencies for age and known vulnerabilities",
		Long: `depaudit reads a project's package.json and package-lock.json, classifies
every installed package as a direct or transitive dependency, and looks up
its publication date and known advisories on deps.dev (or OSV).

When the lock file is missing or unreadable the scan falls back to the
dependencies declared in package.json.

Examples:
  # Scan ./package.json and its lock file
  depaudit

  # Only the declared dependencies
  depaudit app/package.json --mode direct

  # JSON on stdout, TOML report on disk
  depaudit --format json --output report.toml

  # SARIF for GitHub Code Scanning, failing the build on findings
  depaudit --format sarif --fail-on-vuln > results.sarif

  # Flag known exploited CVEs and record the scan
  depaudit --kev --epss --history scans.db`,
		Args:          cobra.MaximumNArgs(1),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runScan,
	}

	pf := cmd.PersistentFlags()
	pf.String("config", "", "Config file (default: ./.depaudit.yaml)")
	pf.BoolP("verbose", "v", false, "Debug logging")
	pf.String("log-level", d.LogLevel, "Log level: debug, info, warn, error")
	pf.Bool("no-cache", false, "Disable the registry response cache")
	pf.String("cache-dir", "", "Cache directory (default: ~/.cache/depaudit)")
	pf.String("history", "", "SQLite database recording every scan")

	f := cmd.Flags()
	f.String("mode", string(d.Mode), "Scan mode: direct, transitive")
	f.String("lockfile", "", "Lock file path (default: package-lock.json next to the manifest)")
	f.StringP("output", "o", d.ReportPath, "Report file (.json or .toml)")
	f.StringP("format", "f", d.OutputFormat, "Console format: terminal, json, sarif")
	f.Int("oldest", d.OldestCount, "Rows in the oldest dependencies table")
	f.Duration("delay", d.Delay, "Minimum delay between package lookups")
	f.Int("concurrency", d.Concurrency, "Packages looked up in parallel")
	f.Duration("timeout", d.Timeout, "HTTP request timeout")
	f.Int("retries", d.Retries, "Retries for transient registry errors")
	f.String("advisories", d.AdvisorySource, "Advisory source: depsdev, osv")
	f.Bool("kev", false, "Mark advisories listed in the CISA KEV catalog")
	f.Bool("epss", false, "Add FIRST EPSS exploit probabilities")
	f.String("depsdev-url", d.DepsDevURL, "deps.dev API base URL")
	f.String("osv-url", d.OSVURL, "OSV API base URL")
	f.String("metrics-file", "", "Write Prometheus metrics to this textfile")
	f.Bool("fail-on-vuln", false, "Exit 1 when any package has advisories")

	cmd.AddCommand(newHistoryCmd(), newCacheCmd())
	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	switch {
	case err == nil:
	case errors.Is(err, errVulnerable):
		stop()
		os.Exit(1)
	default:
		fmt.Fprintln(os.Stderr, "Error:", derrors.UserMessage(err))
		stop()
		os.Exit(2)
	}
}

// setup loads the configuration and attaches a logger to the command context
func setup(cmd *cobra.Command) (*models.Config, *log.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	level, err := logging.ParseLevel(cfg.LogLevel, verbose)
	if err != nil {
		return nil, nil, derrors.Wrap(derrors.ErrCodeInvalidConfig, err, "log level")
	}
	logger := logging.New(cmd.ErrOrStderr(), level)
	cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
	return cfg, logger, nil
}

func openCache(cfg *models.Config, logger *log.Logger) *cache.Cache {
	if cfg.NoCache {
		return nil
	}
	c, err := cache.New(cfg.CacheDir, cfg.CacheTTL)
	if err != nil {
		logger.Warn("Cache unavailable, continuing without it", "dir", cfg.CacheDir, "err", err)
		return nil
	}
	return c
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.ManifestPath = args[0]
	}
	ctx := cmd.Context()

	registry, err := clients.NewRegistry(cfg, openCache(cfg, logger))
	if err != nil {
		return derrors.Wrap(derrors.ErrCodeInvalidConfig, err, "registry")
	}

	m := metrics.NewMetrics()
	s := scanner.New(cfg, registry, logger, m)

	prog := logging.NewProgress(logger)
	rep, res, err := s.Scan(ctx)
	if err != nil {
		return err
	}
	prog.Done(fmt.Sprintf("Scanned %d packages", rep.Summary.TotalPackages))

	if err := report.Save(cfg.ReportPath, *rep); err != nil {
		return err
	}
	logger.Info("Report written", "path", cfg.ReportPath)

	out, err := reporter.Get(cfg.OutputFormat, reporter.Options{
		Oldest: cfg.OldestCount,
		Source: res.Source,
	}).Report(*rep)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	cmd.OutOrStdout().Write(out)

	if cfg.HistoryDB != "" {
		recordHistory(ctx, cfg, *rep, logger)
	}

	if cfg.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("Failed to write metrics", "path", cfg.MetricsFile, "err", err)
		}
	}

	if cfg.FailOnVuln && rep.Summary.VulnerablePackages > 0 {
		return errVulnerable
	}
	return nil
}

func recordHistory(ctx context.Context, cfg *models.Config, rep models.ScanReport, logger *log.Logger) {
	store, err := history.NewSQLiteStore(cfg.HistoryDB)
	if err != nil {
		logger.Warn("History unavailable", "db", cfg.HistoryDB, "err", err)
		return
	}
	defer store.Close()

	id, err := store.Save(ctx, cfg.ManifestPath, rep)
	if err != nil {
		logger.Warn("Failed to record scan", "db", cfg.HistoryDB, "err", err)
		return
	}
	logger.Debug("Recorded scan", "db", cfg.HistoryDB, "id", id)
}
