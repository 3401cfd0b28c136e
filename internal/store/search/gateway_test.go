package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itdocs-query/internal/common/logger"
	"itdocs-query/internal/models"
)

type fakeES struct {
	mu       sync.Mutex
	status   int
	response string
	lastPath string
	lastBody map[string]interface{}
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	if !strings.HasSuffix(r.URL.Path, "/_search") {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPath = r.URL.Path
	raw, _ := io.ReadAll(r.Body)
	f.lastBody = nil
	_ = json.Unmarshal(raw, &f.lastBody)

	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(f.response))
}

func newTestGateway(t *testing.T, fake *fakeES) *Gateway {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewGateway(client, "itdocs-entities", logger.NewTestLogger(t))
}

const threeHits = `{
	"took": 3,
	"hits": {
		"max_score": 8.0,
		"hits": [
			{"_id": "doc-1", "_score": 8.0, "_source": {"id": "e-1", "name": "edge-router", "search_text": "edge router wan 10.0.0.1"}},
			{"_id": "doc-2", "_score": 4.0, "_source": {"id": "e-2", "name": "core-switch", "search_text": "core switch behind the edge router"}},
			{"_id": "doc-3", "_score": 1.0, "_source": {"name": "printer", "search_text": "lobby printer"}}
		]
	}
}`

func TestGateway_Search_RanksAndFilters(t *testing.T) {
	fake := &fakeES{response: threeHits}
	g := newTestGateway(t, fake)

	results, err := g.Search(context.Background(), models.SearchRequest{
		Query:    "edge router",
		Limit:    10,
		MinScore: 0.3,
	})

	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "e-1", results[0].EntityID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)

	// 0.5*(4/8) + 0.5*1; the printer scores 0.0625 and is cut
	assert.Equal(t, "e-2", results[1].EntityID)
	assert.InDelta(t, 0.75, results[1].Score, 1e-9)

	assert.Equal(t, "/itdocs-entities/_search", fake.lastPath)
}

func TestGateway_Search_FallsBackToDocumentID(t *testing.T) {
	fake := &fakeES{response: threeHits}
	g := newTestGateway(t, fake)

	results, err := g.Search(context.Background(), models.SearchRequest{Query: "lobby printer", Limit: 10})

	require.NoError(t, err)
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.EntityID
	}
	assert.Contains(t, ids, "doc-3")
}

func TestGateway_Search_RespectsLimit(t *testing.T) {
	fake := &fakeES{response: threeHits}
	g := newTestGateway(t, fake)

	results, err := g.Search(context.Background(), models.SearchRequest{Query: "router", Limit: 1})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "e-1", results[0].EntityID)
	assert.EqualValues(t, 3, fake.lastBody["size"])
}

func TestGateway_Search_QueryShape(t *testing.T) {
	fake := &fakeES{response: `{"hits":{"max_score":null,"hits":[]}}`}
	g := newTestGateway(t, fake)

	results, err := g.Search(context.Background(), models.SearchRequest{
		Query:      "wan ip",
		CompanyID:  "42",
		EntityType: "router",
		Limit:      5,
	})
	require.NoError(t, err)
	assert.Empty(t, results)

	boolQuery := fake.lastBody["query"].(map[string]interface{})["bool"].(map[string]interface{})

	filter := boolQuery["filter"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "42", filter["term"].(map[string]interface{})["organization_id"])

	should := boolQuery["should"].([]interface{})[0].(map[string]interface{})
	term := should["term"].(map[string]interface{})["entity_type"].(map[string]interface{})
	assert.Equal(t, "router", term["value"])

	must := boolQuery["must"].([]interface{})[0].(map[string]interface{})
	assert.Contains(t, must, "multi_match")
}

func TestGateway_Search_BlankQueryMatchesAll(t *testing.T) {
	fake := &fakeES{response: `{"hits":{"max_score":null,"hits":[]}}`}
	g := newTestGateway(t, fake)

	_, err := g.Search(context.Background(), models.SearchRequest{Limit: 5})
	require.NoError(t, err)

	boolQuery := fake.lastBody["query"].(map[string]interface{})["bool"].(map[string]interface{})
	must := boolQuery["must"].([]interface{})[0].(map[string]interface{})
	assert.Contains(t, must, "match_all")
	assert.NotContains(t, boolQuery, "filter")
}

func TestGateway_Search_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"missing index", http.StatusNotFound, `{"error":{"type":"index_not_found_exception"}}`, ErrIndexNotFound},
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, ErrSearchQueryFailed},
		{"bad payload", http.StatusOK, `{"hits": [`, ErrSearchQueryFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t, &fakeES{status: tt.status, response: tt.body})

			_, err := g.Search(context.Background(), models.SearchRequest{Query: "x", Limit: 1})

			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHybridScore(t *testing.T) {
	tests := []struct {
		name            string
		score, max, cov float64
		want            float64
	}{
		{"top hit full coverage", 8, 8, 1, 1.0},
		{"half relevance no coverage", 4, 8, 0, 0.25},
		{"no max score", 3, 0, 0.5, 0.25},
		{"clamped", 10, 8, 2, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, HybridScore(tt.score, tt.max, tt.cov), 1e-9)
		})
	}
}

func TestQueryTerms(t *testing.T) {
	assert.Equal(t, []string{"edge", "router"}, queryTerms("Edge router, edge IP"))
	assert.Empty(t, queryTerms("ip of"))
}
