// Package config loads depaudit settings from defaults, an optional config
// file, the environment and command line flags.
package config

import (
	"errors"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ethanolivertroy/depaudit/internal/cache"
	derrors "github.com/ethanolivertroy/depaudit/internal/errors"
	"github.com/ethanolivertroy/depaudit/internal/models"
	"github.com/ethanolivertroy/depaudit/internal/reporter"
)

// EnvPrefix prefixes every environment variable, e.g. DEPAUDIT_SCAN_DELAY
const EnvPrefix = "DEPAUDIT"

// FileName is the config file looked up in the working directory
const FileName = ".depaudit"

// flagKeys maps command line flags to configuration keys
var flagKeys = map[string]string{
	"mode":         "scan.mode",
	"delay":        "scan.delay",
	"concurrency":  "scan.concurrency",
	"lockfile":     "lockfile",
	"depsdev-url":  "registry.depsdev_url",
	"osv-url":      "registry.osv_url",
	"timeout":      "registry.timeout",
	"retries":      "registry.retries",
	"advisories":   "advisories.source",
	"kev":          "advisories.kev",
	"epss":         "advisories.epss",
	"no-cache":     "cache.disabled",
	"cache-dir":    "cache.dir",
	"output":       "output.report",
	"format":       "output.format",
	"oldest":       "output.oldest",
	"history":      "history.db",
	"metrics-file": "metrics.file",
	"fail-on-vuln": "fail_on_vuln",
	"log-level":    "log.level",
}

func setDefaults(v *viper.Viper) {
	d := models.DefaultConfig()

	v.SetDefault("scan.mode", string(d.Mode))
	v.SetDefault("scan.delay", d.Delay)
	v.SetDefault("scan.concurrency", d.Concurrency)
	v.SetDefault("lockfile", "")

	v.SetDefault("registry.depsdev_url", d.DepsDevURL)
	v.SetDefault("registry.osv_url", d.OSVURL)
	v.SetDefault("registry.kev_url", d.KEVURL)
	v.SetDefault("registry.epss_url", d.EPSSURL)
	v.SetDefault("registry.timeout", d.Timeout)
	v.SetDefault("registry.retries", d.Retries)

	v.SetDefault("advisories.source", d.AdvisorySource)
	v.SetDefault("advisories.kev", false)
	v.SetDefault("advisories.epss", false)

	v.SetDefault("cache.disabled", false)
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.ttl", d.CacheTTL)

	v.SetDefault("output.report", d.ReportPath)
	v.SetDefault("output.format", d.OutputFormat)
	v.SetDefault("output.oldest", d.OldestCount)

	v.SetDefault("history.db", "")
	v.SetDefault("metrics.file", "")
	v.SetDefault("fail_on_vuln", false)
	v.SetDefault("log.level", d.LogLevel)
}

// Load builds the configuration. cfgFile names an explicit config file;
// otherwise .depaudit.{yaml,json,toml} in the working directory is used when
// present. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*models.Config, error) {
	return load(cfgFile, ".", flags)
}

func load(cfgFile, searchDir string, flags *pflag.FlagSet) (*models.Config, error) {
	// A missing .env is fine
	_ = godotenv.Load(filepath.Join(searchDir, ".env"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, derrors.Wrap(derrors.ErrCodeInvalidConfig, err, "bind flag --%s", name)
				}
			}
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, derrors.Wrap(derrors.ErrCodeInvalidConfig, err, "read config file %s", cfgFile)
		}
	} else {
		v.AddConfigPath(searchDir)
		v.SetConfigName(FileName)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, derrors.Wrap(derrors.ErrCodeInvalidConfig, err, "read config file")
			}
		}
	}

	return build(v)
}

func build(v *viper.Viper) (*models.Config, error) {
	mode, err := models.ParseScanMode(v.GetString("scan.mode"))
	if err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeInvalidConfig, err, "scan.mode")
	}

	config := models.DefaultConfig()
	config.Mode = mode
	config.Delay = v.GetDuration("scan.delay")
	config.Concurrency = v.GetInt("scan.concurrency")
	config.LockfilePath = v.GetString("lockfile")

	config.DepsDevURL = v.GetString("registry.depsdev_url")
	config.OSVURL = v.GetString("registry.osv_url")
	config.KEVURL = v.GetString("registry.kev_url")
	config.EPSSURL = v.GetString("registry.epss_url")
	config.Timeout = v.GetDuration("registry.timeout")
	config.Retries = v.GetInt("registry.retries")

	config.AdvisorySource = strings.ToLower(v.GetString("advisories.source"))
	config.KEV = v.GetBool("advisories.kev")
	config.EPSS = v.GetBool("advisories.epss")

	config.NoCache = v.GetBool("cache.disabled")
	config.CacheDir = v.GetString("cache.dir")
	config.CacheTTL = v.GetDuration("cache.ttl")
	if config.CacheDir == "" && !config.NoCache {
		if dir, err := cache.DefaultDir("depaudit"); err == nil {
			config.CacheDir = dir
		} else {
			config.NoCache = true
		}
	}

	config.ReportPath = v.GetString("output.report")
	config.OutputFormat = strings.ToLower(v.GetString("output.format"))
	config.OldestCount = v.GetInt("output.oldest")

	config.HistoryDB = v.GetString("history.db")
	config.MetricsFile = v.GetString("metrics.file")
	config.FailOnVuln = v.GetBool("fail_on_vuln")
	config.LogLevel = v.GetString("log.level")

	if err := Validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the values that cannot be corrected later
func Validate(c *models.Config) error {
	var problems []string

	if c.Delay < 0 {
		problems = append(problems, "scan.delay must not be negative")
	}
	if c.Concurrency < 1 {
		problems = append(problems, "scan.concurrency must be at least 1")
	}
	if c.Timeout <= 0 {
		problems = append(problems, "registry.timeout must be positive")
	}
	if c.Retries < 0 {
		problems = append(problems, "registry.retries must not be negative")
	}
	if c.AdvisorySource != "depsdev" && c.AdvisorySource != "osv" {
		problems = append(problems, "advisories.source must be depsdev or osv, got "+c.AdvisorySource)
	}
	if !slices.Contains(reporter.Formats, c.OutputFormat) {
		problems = append(problems, "output.format must be one of "+strings.Join(reporter.Formats, ", ")+", got "+c.OutputFormat)
	}
	if c.OldestCount < 0 {
		problems = append(problems, "output.oldest must not be negative")
	}
	if c.ReportPath == "" {
		problems = append(problems, "output.report must be set")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, "log.level: "+err.Error())
	}

	if len(problems) > 0 {
		return derrors.New(derrors.ErrCodeInvalidConfig, "invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
