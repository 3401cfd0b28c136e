// Package parser turns free-text IT-documentation questions into a
// models.ParsedQuery. Parsing is pure and deterministic.
package parser

import (
	"strings"

	"itdocs-query/internal/models"
)

// Parser holds no state; the zero value is ready to use.
type Parser struct{}

func New() *Parser {
	return &Parser{}
}

// Parse never fails. Blank input yields IntentUnknown.
func (p *Parser) Parse(text string) *models.ParsedQuery {
	lower := strings.ToLower(text)
	return &models.ParsedQuery{
		OriginalQuery: text,
		Intent:        extractIntent(lower),
		EntityType:    extractEntityType(lower),
		Company:       extractCompany(text),
		Attributes:    extractAttributes(lower),
		Filters:       extractFilters(lower),
		Keywords:      extractKeywords(lower),
	}
}

func extractIntent(lower string) models.Intent {
	if strings.TrimSpace(lower) == "" {
		return models.IntentUnknown
	}
	for _, rule := range intentRules {
		for _, re := range rule.patterns {
			if re.MatchString(lower) {
				return rule.intent
			}
		}
	}
	if strings.Contains(lower, "?") && whWord.MatchString(lower) {
		return models.IntentGetAttribute
	}
	return models.IntentSearch
}

func extractEntityType(lower string) string {
	for _, entry := range entityTypeTable {
		for _, re := range entry.synonyms {
			if re.MatchString(lower) {
				return entry.canonical
			}
		}
	}
	return ""
}

func extractCompany(text string) string {
	for _, re := range companyPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if name := cleanCompany(m[1]); name != "" {
				return name
			}
		}
	}
	return ""
}

func cleanCompany(raw string) string {
	name := trailingPunct.ReplaceAllString(strings.TrimSpace(raw), "")
	name = corporateSuffix.ReplaceAllString(name, "")
	name = strings.TrimRight(strings.TrimSpace(name), ".,")
	if name == "" {
		return ""
	}
	first := strings.ToLower(strings.Fields(name)[0])
	if nonCompanyWords[first] {
		return ""
	}
	return name
}

func extractAttributes(lower string) []string {
	var attrs []string
	for _, entry := range attributeTable {
		for _, re := range entry.synonyms {
			if re.MatchString(lower) {
				attrs = append(attrs, entry.canonical)
				break
			}
		}
	}
	return attrs
}

func extractKeywords(lower string) []string {
	var keywords []string
	for _, tok := range tokenPattern.FindAllString(lower, -1) {
		if len(tok) <= 2 || stopWords[tok] {
			continue
		}
		keywords = append(keywords, tok)
	}
	return keywords
}

func extractFilters(lower string) map[string]interface{} {
	filters := make(map[string]interface{})

	switch {
	case strings.Contains(lower, "inactive"), strings.Contains(lower, "disabled"):
		filters["status"] = "inactive"
	case strings.Contains(lower, "active"):
		filters["status"] = "active"
	}

	switch {
	case strings.Contains(lower, "recent"), strings.Contains(lower, "latest"), strings.Contains(lower, "newest"):
		filters["sort"] = "updated_desc"
	case strings.Contains(lower, "oldest"):
		filters["sort"] = "updated_asc"
	}

	switch {
	case strings.Contains(lower, "windows"):
		filters["os"] = "windows"
	case strings.Contains(lower, "linux"):
		filters["os"] = "linux"
	case strings.Contains(lower, "macos"), strings.Contains(lower, "mac os"), strings.Contains(lower, "osx"):
		filters["os"] = "macos"
	}

	if len(filters) == 0 {
		return nil
	}
	return filters
}

// EnhanceWithContext fills company and entity type from conversation context
// when the question itself did not name them, and merges context filters
// into the parsed ones. Values parsed from the question take precedence.
func EnhanceWithContext(parsed *models.ParsedQuery, context map[string]interface{}) *models.ParsedQuery {
	if parsed == nil || len(context) == 0 {
		return parsed
	}
	if parsed.Company == "" {
		if company, ok := context["company"].(string); ok && company != "" {
			parsed.Company = company
		}
	}
	if parsed.EntityType == "" {
		if entityType, ok := context["entity_type"].(string); ok && entityType != "" {
			parsed.EntityType = entityType
		}
	}
	if ctxFilters, ok := context["filters"].(map[string]interface{}); ok && len(ctxFilters) > 0 {
		if parsed.Filters == nil {
			parsed.Filters = make(map[string]interface{}, len(ctxFilters))
		}
		deepMerge(parsed.Filters, ctxFilters)
	}
	return parsed
}

// deepMerge copies src into dst without overwriting existing scalar values.
func deepMerge(dst, src map[string]interface{}) {
	for k, sv := range src {
		dv, exists := dst[k]
		if !exists {
			if nested, ok := sv.(map[string]interface{}); ok {
				copied := make(map[string]interface{}, len(nested))
				deepMerge(copied, nested)
				dst[k] = copied
				continue
			}
			dst[k] = sv
			continue
		}
		dNested, dOK := dv.(map[string]interface{})
		sNested, sOK := sv.(map[string]interface{})
		if dOK && sOK {
			deepMerge(dNested, sNested)
		}
	}
}
