package analysis

import (
	"strings"

	"wphunter/internal/domain"
)

// CategoryRule binds a risk category to its match keywords. Rules are
// evaluated in slice order and the first match wins, so classification is
// deterministic even when a description matches several categories.
type CategoryRule struct {
	Category domain.Category
	Keywords []string
}

// DefaultCategoryRules returns the fixed rule table in priority order:
// payments before forms before media before auth before connectors.
func DefaultCategoryRules() []CategoryRule {
	return []CategoryRule{
		{
			Category: domain.CategoryECommercePayments,
			Keywords: []string{
				"woocommerce", "payment", "checkout", "e-commerce", "ecommerce",
				"shop", "cart", "stripe", "paypal", "invoice", "donation",
			},
		},
		{
			Category: domain.CategoryFormsInput,
			Keywords: []string{
				"form", "contact", "survey", "newsletter", "subscription",
				"registration", "upload", "feedback",
			},
		},
		{
			Category: domain.CategoryMediaManagement,
			Keywords: []string{
				"gallery", "media", "image", "slider", "video",
				"file manager", "download manager", "attachment",
			},
		},
		{
			Category: domain.CategoryAuthUserMgmt,
			Keywords: []string{
				"login", "user", "membership", "authentication", "password",
				"profile", "two-factor", "2fa", "role",
			},
		},
		{
			Category: domain.CategoryDatabaseAPIConnector,
			Keywords: []string{
				"database", "api", "rest", "import", "export", "migration",
				"backup", "sync", "webhook", "integration",
			},
		},
	}
}

// Classifier assigns each record exactly one risk category.
type Classifier struct {
	rules []CategoryRule
}

// NewClassifier builds a classifier from an explicit rule table.
func NewClassifier(rules []CategoryRule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify matches tags and description against the rule table,
// case-insensitive. Records matching no rule are uncategorized.
func (c *Classifier) Classify(rec domain.ListingRecord) domain.Category {
	haystack := strings.ToLower(rec.ShortDescription)
	tags := make([]string, len(rec.Tags))
	for i, tag := range rec.Tags {
		tags[i] = strings.ToLower(tag)
	}

	for _, rule := range c.rules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(haystack, keyword) {
				return rule.Category
			}
			for _, tag := range tags {
				if strings.Contains(tag, keyword) {
					return rule.Category
				}
			}
		}
	}
	return domain.CategoryUncategorized
}

// Risky reports whether a category belongs to the restricted set the smart
// filter keeps. Everything classified is risky; only uncategorized is not.
func Risky(cat domain.Category) bool {
	return cat != domain.CategoryUncategorized
}
