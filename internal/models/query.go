// internal/models/query.go
package models

import "fmt"

// Intent is the classified purpose of a free-text question.
type Intent string

const (
	IntentGetAttribute Intent = "GET_ATTRIBUTE"
	IntentListEntities Intent = "LIST_ENTITIES"
	IntentSearch       Intent = "SEARCH"
	IntentCompare      Intent = "COMPARE"
	IntentAggregate    Intent = "AGGREGATE"
	IntentHelp         Intent = "HELP"
	IntentUnknown      Intent = "UNKNOWN"
)

// ParseIntent maps a stored intent name back to an Intent. Unrecognized
// names map to IntentUnknown.
func ParseIntent(s string) Intent {
	switch Intent(s) {
	case IntentGetAttribute, IntentListEntities, IntentSearch, IntentCompare,
		IntentAggregate, IntentHelp:
		return Intent(s)
	}
	return IntentUnknown
}

// ParsedQuery is the structured form of a question. Empty strings and nil
// slices/maps mean "absent".
type ParsedQuery struct {
	OriginalQuery string                 `json:"original_query"`
	Intent        Intent                 `json:"intent"`
	EntityType    string                 `json:"entity_type,omitempty"`
	Company       string                 `json:"company,omitempty"`
	CompanyName   string                 `json:"company_name,omitempty"`
	Attributes    []string               `json:"attributes,omitempty"`
	Filters       map[string]interface{} `json:"filters,omitempty"`
	Keywords      []string               `json:"keywords,omitempty"`
}

// ToMap returns the dictionary representation. Absent fields are present as
// nil values so the key set is stable.
func (p *ParsedQuery) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"original_query": p.OriginalQuery,
		"intent":         string(p.Intent),
		"entity_type":    nil,
		"company":        nil,
		"company_name":   nil,
		"attributes":     nil,
		"filters":        nil,
		"keywords":       nil,
	}
	if p.EntityType != "" {
		m["entity_type"] = p.EntityType
	}
	if p.Company != "" {
		m["company"] = p.Company
	}
	if p.CompanyName != "" {
		m["company_name"] = p.CompanyName
	}
	if p.Attributes != nil {
		m["attributes"] = append([]string(nil), p.Attributes...)
	}
	if p.Filters != nil {
		m["filters"] = copyMap(p.Filters)
	}
	if p.Keywords != nil {
		m["keywords"] = append([]string(nil), p.Keywords...)
	}
	return m
}

// ParsedQueryFromMap rebuilds a ParsedQuery from ToMap output or from its
// decoded JSON form.
func ParsedQueryFromMap(m map[string]interface{}) (*ParsedQuery, error) {
	p := &ParsedQuery{}
	p.OriginalQuery, _ = m["original_query"].(string)
	intent, _ := m["intent"].(string)
	p.Intent = ParseIntent(intent)
	p.EntityType, _ = m["entity_type"].(string)
	p.Company, _ = m["company"].(string)
	p.CompanyName, _ = m["company_name"].(string)

	var err error
	if p.Attributes, err = toStringSlice(m["attributes"]); err != nil {
		return nil, fmt.Errorf("attributes: %w", err)
	}
	if p.Keywords, err = toStringSlice(m["keywords"]); err != nil {
		return nil, fmt.Errorf("keywords: %w", err)
	}
	switch f := m["filters"].(type) {
	case nil:
	case map[string]interface{}:
		p.Filters = copyMap(f)
	default:
		return nil, fmt.Errorf("filters: unexpected type %T", f)
	}
	return p, nil
}

func toStringSlice(v interface{}) ([]string, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), s...), nil
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected element type %T", item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected type %T", v)
	}
}

func copyMap(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		if nested, ok := v.(map[string]interface{}); ok {
			dst[k] = copyMap(nested)
			continue
		}
		dst[k] = v
	}
	return dst
}
