package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv  = "WPHUNTER_CONFIG"
	databaseDSNEnv = "DATABASE_DSN"
	logLevelEnv    = "WPHUNTER_LOG_LEVEL"

	// SortNew, SortUpdated and SortPopular are the browse orders the
	// directory API understands.
	SortNew     = "new"
	SortUpdated = "updated"
	SortPopular = "popular"
)

// ValidationError reports an invalid option combination. It aborts a run
// before any network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config holds high-level settings required across the application.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Directory DirectoryConfig `yaml:"directory"`
	Scan      ScanConfig      `yaml:"scan"`
	Report    ReportConfig    `yaml:"report"`
}

// DatabaseConfig describes Postgres connection details. An empty DSN
// disables persistence.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// LoggingConfig controls slog verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DirectoryConfig tunes the directory API client.
type DirectoryConfig struct {
	PluginsURL     string `yaml:"pluginsUrl"`
	ThemesURL      string `yaml:"themesUrl"`
	PerPage        int    `yaml:"perPage"`
	MaxRetries     int    `yaml:"maxRetries"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// ReportConfig selects where and how results are written.
type ReportConfig struct {
	Output string `yaml:"output"`
	Format string `yaml:"format"`
}

// ScanConfig is the option surface the pipeline honors. Zero maxima mean
// unbounded.
type ScanConfig struct {
	Pages              int    `yaml:"pages"`
	Limit              int    `yaml:"limit"`
	MinInstalls        int    `yaml:"minInstalls"`
	MaxInstalls        int    `yaml:"maxInstalls"`
	MinDays            int    `yaml:"minDays"`
	MaxDays            int    `yaml:"maxDays"`
	Sort               string `yaml:"sort"`
	Smart              bool   `yaml:"smart"`
	Abandoned          bool   `yaml:"abandoned"`
	DeepAnalysis       bool   `yaml:"deepAnalysis"`
	DangerousFunctions bool   `yaml:"dangerousFunctions"`
	AjaxScan           bool   `yaml:"ajaxScan"`
	Themes             bool   `yaml:"themes"`
	FetchWorkers       int    `yaml:"fetchWorkers"`
	DeepWorkers        int    `yaml:"deepWorkers"`
	MaxArchiveBytes    int64  `yaml:"maxArchiveBytes"`
}

// Validate rejects option combinations the pipeline cannot honor.
func (s ScanConfig) Validate() error {
	if s.Pages < 1 {
		return &ValidationError{Field: "pages", Reason: "must be at least 1"}
	}
	if s.Limit < 0 {
		return &ValidationError{Field: "limit", Reason: "must not be negative"}
	}
	if s.MinInstalls < 0 || s.MaxInstalls < 0 {
		return &ValidationError{Field: "installs", Reason: "bounds must not be negative"}
	}
	if s.MaxInstalls > 0 && s.MaxInstalls < s.MinInstalls {
		return &ValidationError{Field: "installs", Reason: "max is below min"}
	}
	if s.MinDays < 0 || s.MaxDays < 0 {
		return &ValidationError{Field: "days", Reason: "bounds must not be negative"}
	}
	if s.MaxDays > 0 && s.MaxDays < s.MinDays {
		return &ValidationError{Field: "days", Reason: "max is below min"}
	}
	switch s.Sort {
	case SortNew, SortUpdated, SortPopular:
	default:
		return &ValidationError{Field: "sort", Reason: fmt.Sprintf("unknown order %q", s.Sort)}
	}
	return nil
}

// Normalize applies the abandoned-mode ergonomics: an updated-sorted listing
// cannot surface stale entries, so switch to popular and dig deeper. Values
// the caller set explicitly are never touched, even when they equal a
// default.
func (s ScanConfig) Normalize(sortSet, pagesSet bool) ScanConfig {
	if !s.Abandoned {
		return s
	}
	if !sortSet && s.Sort == SortUpdated {
		s.Sort = SortPopular
		if !pagesSet {
			s.Pages = 100
		}
	}
	return s
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Database.DSN != "" {
		base.Database = override.Database
	}
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	if override.Directory.PluginsURL != "" {
		base.Directory.PluginsURL = override.Directory.PluginsURL
	}
	if override.Directory.ThemesURL != "" {
		base.Directory.ThemesURL = override.Directory.ThemesURL
	}
	if override.Directory.PerPage > 0 {
		base.Directory.PerPage = override.Directory.PerPage
	}
	if override.Directory.MaxRetries > 0 {
		base.Directory.MaxRetries = override.Directory.MaxRetries
	}
	if override.Directory.TimeoutSeconds > 0 {
		base.Directory.TimeoutSeconds = override.Directory.TimeoutSeconds
	}

	if override.Report.Output != "" {
		base.Report.Output = override.Report.Output
	}
	if override.Report.Format != "" {
		base.Report.Format = override.Report.Format
	}

	if override.Scan.Pages > 0 {
		base.Scan.Pages = override.Scan.Pages
	}
	if override.Scan.Sort != "" {
		base.Scan.Sort = override.Scan.Sort
	}
	if override.Scan.Limit > 0 {
		base.Scan.Limit = override.Scan.Limit
	}
	if override.Scan.MinInstalls > 0 {
		base.Scan.MinInstalls = override.Scan.MinInstalls
	}
	if override.Scan.MaxInstalls > 0 {
		base.Scan.MaxInstalls = override.Scan.MaxInstalls
	}
	if override.Scan.MinDays > 0 {
		base.Scan.MinDays = override.Scan.MinDays
	}
	if override.Scan.MaxDays > 0 {
		base.Scan.MaxDays = override.Scan.MaxDays
	}
	if override.Scan.FetchWorkers > 0 {
		base.Scan.FetchWorkers = override.Scan.FetchWorkers
	}
	if override.Scan.DeepWorkers > 0 {
		base.Scan.DeepWorkers = override.Scan.DeepWorkers
	}
	if override.Scan.MaxArchiveBytes > 0 {
		base.Scan.MaxArchiveBytes = override.Scan.MaxArchiveBytes
	}
	base.Scan.Smart = base.Scan.Smart || override.Scan.Smart
	base.Scan.Abandoned = base.Scan.Abandoned || override.Scan.Abandoned
	base.Scan.DeepAnalysis = base.Scan.DeepAnalysis || override.Scan.DeepAnalysis
	base.Scan.DangerousFunctions = base.Scan.DangerousFunctions || override.Scan.DangerousFunctions
	base.Scan.AjaxScan = base.Scan.AjaxScan || override.Scan.AjaxScan
	base.Scan.Themes = base.Scan.Themes || override.Scan.Themes

	return base
}

func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{DSN: ""},
		Logging:  LoggingConfig{Level: "info"},
		Directory: DirectoryConfig{
			PluginsURL:     "https://api.wordpress.org/plugins/info/1.2/",
			ThemesURL:      "https://api.wordpress.org/themes/info/1.2/",
			PerPage:        100,
			MaxRetries:     3,
			TimeoutSeconds: 30,
		},
		Report: ReportConfig{Format: "json"},
		Scan: ScanConfig{
			Pages:           5,
			Limit:           0,
			MinInstalls:     1000,
			MaxInstalls:     0,
			Sort:            SortUpdated,
			FetchWorkers:    8,
			DeepWorkers:     2,
			MaxArchiveBytes: 25 << 20,
		},
	}
}
