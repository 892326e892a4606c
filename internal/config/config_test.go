package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func validScan() ScanConfig {
	return ScanConfig{
		Pages:       5,
		Limit:       20,
		MinInstalls: 1000,
		Sort:        SortUpdated,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	if err := defaultConfig().Scan.Validate(); err != nil {
		t.Fatalf("default scan config must validate: %v", err)
	}
}

func TestValidateRejectsBadOptions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*ScanConfig)
		field  string
	}{
		{"zero pages", func(s *ScanConfig) { s.Pages = 0 }, "pages"},
		{"negative limit", func(s *ScanConfig) { s.Limit = -1 }, "limit"},
		{"install bounds inverted", func(s *ScanConfig) { s.MinInstalls = 500; s.MaxInstalls = 100 }, "installs"},
		{"negative installs", func(s *ScanConfig) { s.MinInstalls = -5 }, "installs"},
		{"day bounds inverted", func(s *ScanConfig) { s.MinDays = 90; s.MaxDays = 30 }, "days"},
		{"unknown sort", func(s *ScanConfig) { s.Sort = "trending" }, "sort"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validScan()
			tc.mutate(&cfg)

			err := cfg.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("field = %s, want %s", verr.Field, tc.field)
			}
		})
	}
}

func TestNormalizeAbandonedSwitchesSort(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig().Scan
	cfg.Abandoned = true

	got := cfg.Normalize(false, false)
	if got.Sort != SortPopular {
		t.Fatalf("sort = %s, want popular", got.Sort)
	}
	if got.Pages != 100 {
		t.Fatalf("pages = %d, want 100", got.Pages)
	}
}

func TestNormalizeKeepsExplicitChoices(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig().Scan
	cfg.Abandoned = true
	cfg.Sort = SortNew
	cfg.Pages = 12

	got := cfg.Normalize(true, true)
	if got.Sort != SortNew || got.Pages != 12 {
		t.Fatalf("normalize overrode explicit choices: %+v", got)
	}
}

func TestNormalizeKeepsExplicitDefaultValues(t *testing.T) {
	t.Parallel()

	// Explicitly choosing the default page count must survive abandoned
	// mode; only the untouched default gets deepened.
	cfg := defaultConfig().Scan
	cfg.Abandoned = true

	got := cfg.Normalize(false, true)
	if got.Sort != SortPopular {
		t.Fatalf("sort = %s, want popular", got.Sort)
	}
	if got.Pages != defaultConfig().Scan.Pages {
		t.Fatalf("pages = %d, want explicit default kept", got.Pages)
	}

	got = cfg.Normalize(true, false)
	if got.Sort != SortUpdated || got.Pages != defaultConfig().Scan.Pages {
		t.Fatalf("explicit sort must disable the switch entirely: %+v", got)
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte(`
database:
  dsn: postgres://file/db
scan:
  pages: 9
  smart: true
report:
  format: csv
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WPHUNTER_CONFIG", path)
	t.Setenv("DATABASE_DSN", "postgres://env/db")

	cfg := Load()
	if cfg.Scan.Pages != 9 || !cfg.Scan.Smart {
		t.Fatalf("file values not applied: %+v", cfg.Scan)
	}
	if cfg.Report.Format != "csv" {
		t.Fatalf("format = %s, want csv", cfg.Report.Format)
	}
	if cfg.Database.DSN != "postgres://env/db" {
		t.Fatalf("env override lost: %s", cfg.Database.DSN)
	}
	if cfg.Directory.PerPage != 100 {
		t.Fatalf("defaults lost: perPage = %d", cfg.Directory.PerPage)
	}
}
