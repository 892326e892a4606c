package analysis

import (
	"time"

	"wphunter/internal/domain"
)

// ScopeConfig bounds the install count and update recency of records worth
// scoring. Zero maxima mean unbounded; all bounds are inclusive.
type ScopeConfig struct {
	MinInstalls int
	MaxInstalls int
	MinDays     int
	MaxDays     int
}

// InScope reports whether a record falls inside the configured install and
// update-age windows. Pure and deterministic given (record, config, now).
func InScope(rec domain.ListingRecord, cfg ScopeConfig, now time.Time) bool {
	installs := rec.ActiveInstalls
	if installs < 0 {
		installs = 0
	}
	if installs < cfg.MinInstalls {
		return false
	}
	if cfg.MaxInstalls > 0 && installs > cfg.MaxInstalls {
		return false
	}

	days := rec.DaysSinceUpdate(now)
	if days < cfg.MinDays {
		return false
	}
	if cfg.MaxDays > 0 && days > cfg.MaxDays {
		return false
	}
	return true
}
