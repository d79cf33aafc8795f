package ingestion

import (
	"net/url"
	"strings"
)

// Content categories attached to ingested chunks. Categories are stored in
// the chunk payload so operational queries (and future per-category filters)
// can slice the corpus.
const (
	CategoryGeneral  = "general"
	CategoryFAQ      = "faq"
	CategoryLegal    = "legal"
	CategoryProduct  = "product"
	CategoryAbout    = "about"
	CategoryPricing  = "pricing"
	CategorySecurity = "security"
)

// categoryRules maps URL path keywords to categories. First match wins, so
// more specific keywords come before catch-alls.
var categoryRules = []struct {
	keyword  string
	category string
}{
	{"faq", CategoryFAQ},
	{"help", CategoryFAQ},
	{"support", CategoryFAQ},
	{"pricing", CategoryPricing},
	{"plans", CategoryPricing},
	{"billing", CategoryPricing},
	{"legal", CategoryLegal},
	{"terms", CategoryLegal},
	{"privacy", CategoryLegal},
	{"policy", CategoryLegal},
	{"security", CategorySecurity},
	{"trust", CategorySecurity},
	{"compliance", CategorySecurity},
	{"product", CategoryProduct},
	{"features", CategoryProduct},
	{"docs", CategoryProduct},
	{"about", CategoryAbout},
	{"company", CategoryAbout},
	{"team", CategoryAbout},
	{"careers", CategoryAbout},
}

// InferCategory classifies a page by its URL path. An explicit Source
// category always takes precedence — this is the best-effort fallback when
// the operator doesn't specify one.
func InferCategory(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return CategoryGeneral
	}

	path := strings.ToLower(parsed.Path)
	for _, segment := range strings.Split(strings.Trim(path, "/"), "/") {
		for _, rule := range categoryRules {
			if strings.Contains(segment, rule.keyword) {
				return rule.category
			}
		}
	}
	return CategoryGeneral
}
