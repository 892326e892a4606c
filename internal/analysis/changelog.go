package analysis

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultSignalKeywords is the fixed list of security-relevant changelog
// keywords. Entries use stems where safe (sanitiz covers sanitize and
// sanitization). The bare word "vulnerability" is deliberately absent:
// phrases like "CSRF vulnerability fix" should count as one distinct
// signal (csrf), not two.
func DefaultSignalKeywords() []string {
	return []string{
		"xss",
		"cross-site scripting",
		"sql injection",
		"csrf",
		"security fix",
		"security patch",
		"security update",
		"sanitiz",
		"escap",
		"nonce",
		"remote code execution",
		"privilege escalation",
		"path traversal",
		"authorization bypass",
	}
}

// ChangelogAnalyzer mines changelog excerpts for security-relevant signal.
type ChangelogAnalyzer struct {
	keywords []string
}

// NewChangelogAnalyzer builds an analyzer from an explicit keyword list.
func NewChangelogAnalyzer(keywords []string) *ChangelogAnalyzer {
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	return &ChangelogAnalyzer{keywords: lowered}
}

// Signal counts distinct keyword hits in the changelog excerpt,
// case-insensitive. Repeated occurrences of the same keyword count once.
// A missing excerpt yields zero, never an error.
func (a *ChangelogAnalyzer) Signal(changelog string) int {
	if strings.TrimSpace(changelog) == "" {
		return 0
	}

	text := strings.ToLower(StripHTML(changelog))
	hits := 0
	for _, kw := range a.keywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	return hits
}

// StripHTML flattens markup to its text content. Directory APIs deliver
// changelog sections as HTML fragments; keyword matching wants plain text.
func StripHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<>") {
		return fragment
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return doc.Text()
}
