// internal/models/entity.go
package models

// Entity is the canonical record for an ingested IT-documentation item.
type Entity struct {
	ID             string                 `json:"id"`
	ITGlueID       string                 `json:"itglue_id"`
	OrganizationID string                 `json:"organization_id"`
	EntityType     string                 `json:"entity_type"`
	Name           string                 `json:"name"`
	Attributes     map[string]interface{} `json:"attributes"`
	SearchText     string                 `json:"search_text"`
}

// SearchResult is one ranked candidate from the retrieval gateway.
type SearchResult struct {
	EntityID string  `json:"entity_id"`
	Score    float64 `json:"score"`
}

// SearchRequest describes a retrieval call. An empty CompanyID or
// EntityType means unfiltered.
type SearchRequest struct {
	Query      string
	CompanyID  string
	EntityType string
	Limit      int
	MinScore   float64
}
