// internal/models/response.go
package models

import "time"

// ValidationResult is the outcome of checking a draft response against its
// sources.
type ValidationResult struct {
	Valid           bool                   `json:"valid"`
	Confidence      float64                `json:"confidence"`
	Message         string                 `json:"message,omitempty"`
	Code            string                 `json:"code,omitempty"`
	Response        map[string]interface{} `json:"response,omitempty"`
	SourceIDs       []string               `json:"source_ids"`
	SourceDocuments []Entity               `json:"source_documents"`
}

// ResponseEnvelope is the only shape returned to callers of the engine.
type ResponseEnvelope struct {
	Success        bool        `json:"success"`
	Query          string      `json:"query"`
	Intent         Intent      `json:"intent,omitempty"`
	Data           interface{} `json:"data"`
	Confidence     float64     `json:"confidence"`
	SourceIDs      []string    `json:"source_ids"`
	Timestamp      time.Time   `json:"timestamp"`
	Error          string      `json:"error,omitempty"`
	Message        string      `json:"message,omitempty"`
	ResponseTimeMS int64       `json:"response_time_ms,omitempty"`
	Cached         bool        `json:"cached,omitempty"`
}

// AuditEntry is one row in the query audit log.
type AuditEntry struct {
	ID             string            `json:"id"`
	Query          string            `json:"query"`
	Company        string            `json:"company,omitempty"`
	Intent         Intent            `json:"intent,omitempty"`
	Success        bool              `json:"success"`
	Response       *ResponseEnvelope `json:"response"`
	Confidence     float64           `json:"confidence"`
	SourceIDs      []string          `json:"source_ids"`
	ResponseTimeMS int64             `json:"response_time_ms"`
	CreatedAt      time.Time         `json:"created_at"`
}
