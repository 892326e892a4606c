package domain

import "time"

// ListingRecord is the raw metadata returned by the directory API for a
// single plugin or theme.
type ListingRecord struct {
	Slug             string
	Name             string
	Author           string
	ActiveInstalls   int
	LastUpdated      time.Time
	Tags             []string
	ShortDescription string
	Changelog        string
	Tested           string
	DownloadURL      string
}

// DaysSinceUpdate reports whole days between the last published update and now.
// Records without a usable timestamp are treated as never updated.
func (r ListingRecord) DaysSinceUpdate(now time.Time) int {
	if r.LastUpdated.IsZero() {
		return int(now.Sub(time.Time{}).Hours() / 24)
	}
	days := int(now.Sub(r.LastUpdated).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Category is the fixed risk category assigned by the classifier.
type Category string

const (
	CategoryECommercePayments    Category = "e-commerce_payments"
	CategoryFormsInput           Category = "forms_input"
	CategoryMediaManagement      Category = "media_management"
	CategoryAuthUserMgmt         Category = "auth_user_mgmt"
	CategoryDatabaseAPIConnector Category = "database_api_connector"
	CategoryUncategorized        Category = "uncategorized"
)

// Severity buckets a VPS into a triage band.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// SeverityFor maps a clamped VPS to its band. Thresholds are fixed:
// 0-49 LOW, 50-79 HIGH, 80-100 CRITICAL.
func SeverityFor(vps int) Severity {
	switch {
	case vps >= 80:
		return SeverityCritical
	case vps >= 50:
		return SeverityHigh
	default:
		return SeverityLow
	}
}

// DeepAnalysisResult holds findings from static inspection of a candidate's
// distribution archive. Owned exclusively by its candidate.
type DeepAnalysisResult struct {
	DangerousFunctions int
	AjaxHandlers       int
	ArchiveUnreadable  bool
}

// Candidate is a listing record that survived scope filtering, annotated by
// the analysis stages. It is mutated additively during the pipeline and
// immutable once the run completes.
type Candidate struct {
	Record          ListingRecord
	Category        Category
	ChangelogSignal int
	Abandoned       bool
	TrustedAuthor   bool
	Compatible      bool
	VPS             int
	Severity        Severity
	Deep            *DeepAnalysisResult
}

// RunStatus enumerates orchestrator states for a scan run.
type RunStatus string

const (
	StatusFetching     RunStatus = "fetching"
	StatusFiltering    RunStatus = "filtering"
	StatusScoring      RunStatus = "scoring"
	StatusDeepAnalysis RunStatus = "deep_analysis"
	StatusDone         RunStatus = "done"
	StatusAborted      RunStatus = "aborted"
)

// RunResult is the outcome handed to reporters: the ranked candidate list
// plus counts for anything skipped along the way.
type RunResult struct {
	Candidates         []Candidate
	PagesFailed        int
	ArchivesUnreadable int
	Status             RunStatus
}
