package analysis

import (
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"wphunter/internal/domain"
)

// ScoreWeights is the full weight table behind the Vulnerability Probability
// Score. It is explicit configuration, not hidden constants: the same table
// on the same candidate always yields the same score.
type ScoreWeights struct {
	CategoryPoints map[domain.Category]int

	ChangelogPointsPerHit int
	ChangelogCap          int

	AbandonedAfterDays int
	AbandonedBonus     int

	// IncompatibleBonus applies when tested-up-to falls below BaselineVersion;
	// lagging compatibility correlates with neglect.
	BaselineVersion   string
	IncompatibleBonus int

	TrustedAuthors  []string
	TrustedDiscount int

	// Deep-analysis contributions. The per-finding caps keep the combined
	// adjustment small enough that deep findings alone can never lift a LOW
	// candidate into CRITICAL.
	DangerousPointsPerHit int
	DangerousCap          int
	AjaxPointsPerHit      int
	AjaxCap               int
}

// DefaultWeights returns the documented stable weight table.
func DefaultWeights() ScoreWeights {
	return ScoreWeights{
		CategoryPoints: map[domain.Category]int{
			domain.CategoryECommercePayments:    30,
			domain.CategoryAuthUserMgmt:         28,
			domain.CategoryDatabaseAPIConnector: 22,
			domain.CategoryFormsInput:           20,
			domain.CategoryMediaManagement:      18,
			domain.CategoryUncategorized:        5,
		},
		ChangelogPointsPerHit: 6,
		ChangelogCap:          24,
		AbandonedAfterDays:    730,
		AbandonedBonus:        20,
		BaselineVersion:       "6.4",
		IncompatibleBonus:     10,
		TrustedAuthors: []string{
			"automattic",
			"wordpress.org",
			"yoast",
			"wpmu dev",
			"awesome motive",
			"woocommerce",
		},
		TrustedDiscount:       15,
		DangerousPointsPerHit: 4,
		DangerousCap:          16,
		AjaxPointsPerHit:      3,
		AjaxCap:               9,
	}
}

// Scorer computes the VPS and its derived flags for a candidate.
type Scorer struct {
	weights  ScoreWeights
	baseline *semver.Version
}

// NewScorer builds a scorer from an explicit weight table. An unparsable
// baseline disables the compatibility bonus.
func NewScorer(weights ScoreWeights) *Scorer {
	s := &Scorer{weights: weights}
	if v, err := semver.NewVersion(weights.BaselineVersion); err == nil {
		s.baseline = v
	}
	return s
}

// Apply derives the abandonment, trust and compatibility flags and sets the
// candidate's VPS and severity band. It is safe to call again after a deep
// analysis result is attached; the score is a pure function of the
// candidate's own data.
func (s *Scorer) Apply(c *domain.Candidate, now time.Time) {
	// A record the wire layer could not date is missing input, not stale.
	c.Abandoned = !c.Record.LastUpdated.IsZero() &&
		c.Record.DaysSinceUpdate(now) > s.weights.AbandonedAfterDays
	c.TrustedAuthor = s.trusted(c.Record.Author)
	c.Compatible = s.compatible(c.Record.Tested)
	c.VPS = s.score(c)
	c.Severity = domain.SeverityFor(c.VPS)
}

func (s *Scorer) score(c *domain.Candidate) int {
	total := s.weights.CategoryPoints[c.Category]

	changelog := c.ChangelogSignal * s.weights.ChangelogPointsPerHit
	if changelog > s.weights.ChangelogCap {
		changelog = s.weights.ChangelogCap
	}
	total += changelog

	if c.Abandoned {
		total += s.weights.AbandonedBonus
	}
	if !c.Compatible {
		total += s.weights.IncompatibleBonus
	}
	if c.TrustedAuthor {
		total -= s.weights.TrustedDiscount
	}

	if c.Deep != nil && !c.Deep.ArchiveUnreadable {
		dangerous := c.Deep.DangerousFunctions * s.weights.DangerousPointsPerHit
		if dangerous > s.weights.DangerousCap {
			dangerous = s.weights.DangerousCap
		}
		ajax := c.Deep.AjaxHandlers * s.weights.AjaxPointsPerHit
		if ajax > s.weights.AjaxCap {
			ajax = s.weights.AjaxCap
		}
		total += dangerous + ajax
	}

	if total < 0 {
		return 0
	}
	if total > 100 {
		return 100
	}
	return total
}

func (s *Scorer) trusted(author string) bool {
	name := strings.ToLower(strings.TrimSpace(author))
	if name == "" {
		return false
	}
	for _, entry := range s.weights.TrustedAuthors {
		if strings.Contains(name, entry) {
			return true
		}
	}
	return false
}

// compatible treats missing or unparsable version strings as compatible,
// the least-risky default.
func (s *Scorer) compatible(tested string) bool {
	if s.baseline == nil || strings.TrimSpace(tested) == "" {
		return true
	}
	v, err := semver.NewVersion(strings.TrimSpace(tested))
	if err != nil {
		return true
	}
	return !v.LessThan(s.baseline)
}
