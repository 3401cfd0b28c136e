// internal/workers/query/process-query/models.go
package processquery

import "itdocs-query/internal/models"

type Input struct {
	Query   string                 `json:"query"`
	Company string                 `json:"company,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Output is merged into the process instance variables.
type Output struct {
	Response   *models.ResponseEnvelope `json:"queryResponse"`
	Success    bool                     `json:"querySuccess"`
	Confidence float64                  `json:"queryConfidence"`
	Intent     string                   `json:"queryIntent,omitempty"`
}
