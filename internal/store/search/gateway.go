// Package search is the retrieval gateway over the Elasticsearch entity
// index. It ranks candidates by a hybrid of BM25 relevance and query-term
// coverage.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"itdocs-query/internal/common/logger"
	"itdocs-query/internal/models"
)

var (
	ErrSearchQueryFailed = errors.New("SEARCH_QUERY_FAILED")
	ErrIndexNotFound     = errors.New("INDEX_NOT_FOUND")
)

const (
	lexicalWeight  = 0.5
	coverageWeight = 0.5
	typeBoost      = 2.0
	// overfetch compensates for candidates dropped by the min-score cut.
	overfetch = 3
)

type Gateway struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewGateway(client *elasticsearch.Client, index string, log logger.Logger) *Gateway {
	return &Gateway{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "retrieval-gateway", "index": index}),
	}
}

// Search returns candidates ordered by descending hybrid score, all at or
// above req.MinScore and at most req.Limit of them. CompanyID filters;
// EntityType only boosts.
func (g *Gateway) Search(ctx context.Context, req models.SearchRequest) ([]models.SearchResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	body, err := json.Marshal(buildQuery(req, limit*overfetch))
	if err != nil {
		return nil, fmt.Errorf("%w: encode query: %v", ErrSearchQueryFailed, err)
	}

	esReq := esapi.SearchRequest{
		Index: []string{g.index},
		Body:  bytes.NewReader(body),
	}
	res, err := esReq.Do(ctx, g.client)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchQueryFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		if res.StatusCode == 404 {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, g.index)
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrSearchQueryFailed, res.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSearchQueryFailed, err)
	}

	results := rank(req.Query, parsed.Hits, req.MinScore)
	if len(results) > limit {
		results = results[:limit]
	}

	g.logger.Debug("search completed", map[string]interface{}{
		"query":   req.Query,
		"hits":    len(parsed.Hits.Hits),
		"results": len(results),
		"tookMs":  parsed.Took,
	})
	return results, nil
}

func buildQuery(req models.SearchRequest, size int) map[string]interface{} {
	boolQuery := map[string]interface{}{}

	if q := strings.TrimSpace(req.Query); q != "" {
		boolQuery["must"] = []interface{}{
			map[string]interface{}{
				"multi_match": map[string]interface{}{
					"query":  q,
					"fields": []string{"name^3", "search_text"},
					"type":   "best_fields",
				},
			},
		}
	} else {
		boolQuery["must"] = []interface{}{
			map[string]interface{}{"match_all": map[string]interface{}{}},
		}
	}

	if req.CompanyID != "" {
		boolQuery["filter"] = []interface{}{
			map[string]interface{}{"term": map[string]interface{}{"organization_id": req.CompanyID}},
		}
	}
	if req.EntityType != "" {
		boolQuery["should"] = []interface{}{
			map[string]interface{}{
				"term": map[string]interface{}{
					"entity_type": map[string]interface{}{"value": req.EntityType, "boost": typeBoost},
				},
			},
		}
	}

	return map[string]interface{}{
		"size":    size,
		"query":   map[string]interface{}{"bool": boolQuery},
		"_source": []string{"id", "name", "entity_type", "organization_id", "search_text"},
	}
}

type searchResponse struct {
	Took int64   `json:"took"`
	Hits hitList `json:"hits"`
}

type hitList struct {
	MaxScore *float64 `json:"max_score"`
	Hits     []hit    `json:"hits"`
}

type hit struct {
	ID     string  `json:"_id"`
	Score  float64 `json:"_score"`
	Source struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		SearchText string `json:"search_text"`
	} `json:"_source"`
}

func rank(query string, hits hitList, minScore float64) []models.SearchResult {
	maxScore := 0.0
	if hits.MaxScore != nil {
		maxScore = *hits.MaxScore
	}
	terms := queryTerms(query)

	results := make([]models.SearchResult, 0, len(hits.Hits))
	for _, h := range hits.Hits {
		id := h.Source.ID
		if id == "" {
			id = h.ID
		}
		score := HybridScore(h.Score, maxScore, coverage(terms, h.Source.Name+" "+h.Source.SearchText))
		if score < minScore {
			continue
		}
		results = append(results, models.SearchResult{EntityID: id, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

// HybridScore blends normalized lexical relevance with term coverage. Both
// inputs are clamped so the result stays within [0, 1].
func HybridScore(score, maxScore, termCoverage float64) float64 {
	lexical := 0.0
	if maxScore > 0 {
		lexical = clamp(score / maxScore)
	}
	return lexicalWeight*lexical + coverageWeight*clamp(termCoverage)
}

func queryTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, t := range strings.Fields(strings.ToLower(query)) {
		t = strings.Trim(t, `.,;:!?"'()`)
		if len(t) <= 2 || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	return terms
}

func coverage(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	found := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			found++
		}
	}
	return float64(found) / float64(len(terms))
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
