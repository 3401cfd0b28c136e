package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateQueryRequest(t *testing.T) {
	tests := []struct {
		name      string
		input     map[string]interface{}
		wantValid bool
		badField  string
	}{
		{
			name:      "query only",
			input:     map[string]interface{}{"query": "List all servers"},
			wantValid: true,
		},
		{
			name: "full request",
			input: map[string]interface{}{
				"query":   "What's the router IP?",
				"company": "Acme Corp",
				"context": map[string]interface{}{"entity_type": "router", "filters": map[string]interface{}{"status": "active"}},
			},
			wantValid: true,
		},
		{
			name:      "null company",
			input:     map[string]interface{}{"query": "help", "company": nil},
			wantValid: true,
		},
		{
			name:     "missing query",
			input:    map[string]interface{}{"company": "Acme"},
			badField: "query",
		},
		{
			name:     "blank query",
			input:    map[string]interface{}{"query": "   "},
			badField: "query",
		},
		{
			name:     "query too long",
			input:    map[string]interface{}{"query": strings.Repeat("a", 1001)},
			badField: "query",
		},
		{
			name:     "company wrong type",
			input:    map[string]interface{}{"query": "help", "company": 42},
			badField: "company",
		},
		{
			name:     "context filters wrong type",
			input:    map[string]interface{}{"query": "help", "context": map[string]interface{}{"filters": "active"}},
			badField: "context",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateQueryRequest(tt.input)
			require.NoError(t, err)

			assert.Equal(t, tt.wantValid, result.Valid, result.GetErrorMessages())
			if tt.badField != "" {
				assert.True(t, result.HasErrors(tt.badField), result.GetErrorMessages())
			}
		})
	}
}

func TestValidateInput_BadSchema(t *testing.T) {
	_, err := ValidateInput(map[string]interface{}{}, `{"type": 12}`)

	assert.Error(t, err)
}
