package engine

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	apperrors "itdocs-query/internal/common/errors"
	"itdocs-query/internal/models"
	"itdocs-query/internal/query/validator"
)

const (
	msgNoMatch         = "No matching documentation found."
	msgNoAttributes    = "The matching record does not document the requested attributes."
	msgHelp            = "Ask about devices, documents, contacts, passwords or domains documented for a company."
	ellipsis           = "..."
	attributeDataField = "attributes"
)

var helpExamples = []string{
	"What's the router IP for Acme Corp?",
	"List all servers for Globex",
	"How many printers does Initech have?",
	"Find the VPN runbook",
}

// handleGetAttribute answers from the single best-ranked entity.
func (e *Engine) handleGetAttribute(ctx context.Context, parsed *models.ParsedQuery) (*models.ResponseEnvelope, error) {
	results, err := e.gateway.Search(ctx, models.SearchRequest{
		Query:      e.searchText(parsed),
		CompanyID:  companyID(parsed),
		EntityType: parsed.EntityType,
		Limit:      1,
		MinScore:   e.config.MinScore,
	})
	if err != nil {
		return nil, apperrors.NewSearchQueryFailedError("search", err)
	}
	if len(results) == 0 {
		return e.noMatch(parsed, msgNoMatch), nil
	}

	top := results[0]
	entity, err := e.entities.GetByID(ctx, top.EntityID)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get_by_id", err)
	}
	if entity == nil {
		return e.noMatch(parsed, msgNoMatch), nil
	}

	attrs := projectAttributes(entity.Attributes, parsed.Attributes)
	if len(attrs) == 0 && len(parsed.Attributes) > 0 {
		return e.noMatch(parsed, msgNoAttributes), nil
	}

	vr, err := e.check(ctx, attrs, []string{entity.ID}, []float64{top.Score})
	if err != nil {
		return nil, err
	}
	if !vr.Valid {
		return e.rejected(parsed, vr), nil
	}

	data := map[string]interface{}{
		"entity_id":        entity.ID,
		"entity_name":      entity.Name,
		"entity_type":      entity.EntityType,
		attributeDataField: attrs,
	}
	return e.success(parsed, data, vr.Confidence, vr.SourceIDs), nil
}

// handleListEntities is a structural listing and skips the validator. It
// returns every match, reading the store page by page.
func (e *Engine) handleListEntities(ctx context.Context, parsed *models.ParsedQuery) (*models.ResponseEnvelope, error) {
	entities, err := e.collect(ctx, parsed)
	if err != nil {
		return nil, err
	}
	entities = filterEntities(entities, parsed.Filters)
	if len(entities) == 0 {
		return e.noMatch(parsed, msgNoMatch), nil
	}

	items := make([]map[string]interface{}, 0, len(entities))
	ids := make([]string, 0, len(entities))
	for _, ent := range entities {
		items = append(items, summarize(ent))
		ids = append(ids, ent.ID)
	}
	return e.success(parsed, items, 1.0, ids), nil
}

// handleSearch runs hybrid retrieval and validates every returned entity.
func (e *Engine) handleSearch(ctx context.Context, parsed *models.ParsedQuery) (*models.ResponseEnvelope, error) {
	results, err := e.gateway.Search(ctx, models.SearchRequest{
		Query:      e.searchText(parsed),
		CompanyID:  companyID(parsed),
		EntityType: parsed.EntityType,
		Limit:      e.config.SearchLimit,
		MinScore:   e.config.MinScore,
	})
	if err != nil {
		return nil, apperrors.NewSearchQueryFailedError("search", err)
	}
	if len(results) == 0 {
		return e.noMatch(parsed, msgNoMatch), nil
	}

	scores := make(map[string]float64, len(results))
	ids := make([]string, 0, len(results))
	for _, r := range results {
		scores[r.EntityID] = r.Score
		ids = append(ids, r.EntityID)
	}

	entities, err := e.entities.GetByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get_by_ids", err)
	}
	entities = filterByCompany(entities, parsed)
	entities = filterEntities(entities, parsed.Filters)
	if len(entities) == 0 {
		return e.noMatch(parsed, msgNoMatch), nil
	}

	terms := parsed.Keywords
	if len(terms) == 0 {
		terms = strings.Fields(strings.ToLower(parsed.OriginalQuery))
	}

	items := make([]interface{}, 0, len(entities))
	kept := make([]string, 0, len(entities))
	keptScores := make([]float64, 0, len(entities))
	for _, ent := range entities {
		item := summarize(ent)
		item["score"] = scores[ent.ID]
		if snippets := buildSnippets(ent.SearchText, terms, e.config.MaxSnippets, e.config.SnippetRadius); len(snippets) > 0 {
			item["snippets"] = snippets
		}
		items = append(items, item)
		kept = append(kept, ent.ID)
		keptScores = append(keptScores, scores[ent.ID])
	}

	vr, err := e.check(ctx, items, kept, keptScores)
	if err != nil {
		return nil, err
	}
	if !vr.Valid {
		return e.rejected(parsed, vr), nil
	}
	return e.success(parsed, items, vr.Confidence, vr.SourceIDs), nil
}

// handleAggregate counts entities. Without attribute filters the store
// counts; with them every candidate is read and counted here. Only a sample
// of ids is reported as sources.
func (e *Engine) handleAggregate(ctx context.Context, parsed *models.ParsedQuery) (*models.ResponseEnvelope, error) {
	var (
		counts map[string]int
		sample []string
	)
	if hasEntityFilters(parsed.Filters) {
		entities, err := e.collect(ctx, parsed)
		if err != nil {
			return nil, err
		}
		entities = filterEntities(entities, parsed.Filters)
		counts = make(map[string]int)
		for _, ent := range entities {
			counts[ent.EntityType]++
		}
		sample = sampleIDs(entities, e.config.AggregateSampleSize)
	} else {
		var err error
		counts, err = e.entities.CountByType(ctx, companyID(parsed), parsed.EntityType)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("count_by_type", err)
		}
		if total(counts) > 0 {
			page, err := e.page(ctx, parsed, e.config.AggregateSampleSize, 0)
			if err != nil {
				return nil, err
			}
			sample = sampleIDs(page, e.config.AggregateSampleSize)
		}
	}

	count := total(counts)
	if count == 0 {
		return e.noMatch(parsed, msgNoMatch), nil
	}

	data := map[string]interface{}{"count": count}
	if parsed.EntityType != "" {
		data["entity_type"] = parsed.EntityType
	} else {
		data["by_type"] = counts
	}
	return e.success(parsed, data, 1.0, sample), nil
}

func total(counts map[string]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

func sampleIDs(entities []models.Entity, size int) []string {
	if len(entities) < size {
		size = len(entities)
	}
	ids := make([]string, 0, size)
	for _, ent := range entities[:size] {
		ids = append(ids, ent.ID)
	}
	return ids
}

func (e *Engine) handleHelp(_ context.Context, parsed *models.ParsedQuery) (*models.ResponseEnvelope, error) {
	data := map[string]interface{}{
		"message":  msgHelp,
		"examples": helpExamples,
		"intents": []string{
			string(models.IntentGetAttribute),
			string(models.IntentListEntities),
			string(models.IntentSearch),
			string(models.IntentAggregate),
		},
	}
	return e.success(parsed, data, 1.0, []string{}), nil
}

// collect reads every page of the listing for LIST and AGGREGATE. Only a
// resolved company narrows the listing.
func (e *Engine) collect(ctx context.Context, parsed *models.ParsedQuery) ([]models.Entity, error) {
	var all []models.Entity
	for offset := 0; ; offset += e.config.PageSize {
		page, err := e.page(ctx, parsed, e.config.PageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < e.config.PageSize {
			return all, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("list", err)
		}
	}
}

func (e *Engine) page(ctx context.Context, parsed *models.ParsedQuery, limit, offset int) ([]models.Entity, error) {
	if id := companyID(parsed); id != "" {
		entities, err := e.entities.GetByOrganization(ctx, id, parsed.EntityType, limit, offset)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("get_by_organization", err)
		}
		return entities, nil
	}
	entities, err := e.entities.Search(ctx, "", parsed.EntityType, limit, offset)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("search", err)
	}
	return entities, nil
}

func (e *Engine) check(ctx context.Context, data interface{}, ids []string, scores []float64) (*models.ValidationResult, error) {
	vr, err := e.validate.Validate(ctx, validator.Input{
		Response:      map[string]interface{}{"data": data},
		SourceIDs:     ids,
		Scores:        scores,
		RequireSource: e.config.RequireSource,
		Threshold:     e.config.ConfidenceThreshold,
	})
	if err != nil {
		return nil, err
	}
	if !vr.Valid {
		e.observer.ValidationRejected(vr.Code)
	}
	return vr, nil
}

// searchText drops the company name from the keywords so it does not skew
// relevance; the raw question is the fallback.
func (e *Engine) searchText(parsed *models.ParsedQuery) string {
	skip := make(map[string]bool)
	for _, name := range []string{parsed.CompanyName, parsed.Company} {
		for _, tok := range strings.Fields(strings.ToLower(name)) {
			skip[tok] = true
		}
	}

	var terms []string
	for _, kw := range parsed.Keywords {
		if !skip[kw] {
			terms = append(terms, kw)
		}
	}
	if len(terms) == 0 {
		return parsed.OriginalQuery
	}
	return strings.Join(terms, " ")
}

func (e *Engine) success(parsed *models.ParsedQuery, data interface{}, confidence float64, ids []string) *models.ResponseEnvelope {
	if ids == nil {
		ids = []string{}
	}
	return &models.ResponseEnvelope{
		Success:    true,
		Query:      parsed.OriginalQuery,
		Intent:     parsed.Intent,
		Data:       data,
		Confidence: confidence,
		SourceIDs:  ids,
		Timestamp:  e.now().UTC(),
	}
}

func (e *Engine) noMatch(parsed *models.ParsedQuery, message string) *models.ResponseEnvelope {
	env := validator.CreateSafeResponse(parsed.OriginalQuery, string(apperrors.ErrCodeNoMatchFound))
	env.Intent = parsed.Intent
	env.Message = message
	return env
}

func (e *Engine) rejected(parsed *models.ParsedQuery, vr *models.ValidationResult) *models.ResponseEnvelope {
	env := validator.CreateSafeResponse(parsed.OriginalQuery, vr.Code)
	env.Intent = parsed.Intent
	env.Message = vr.Message
	env.Confidence = vr.Confidence
	return env
}

// companyID returns the organization id when the company was resolved.
func companyID(parsed *models.ParsedQuery) string {
	if isNumeric(parsed.Company) {
		return parsed.Company
	}
	return ""
}

// projectAttributes keeps the requested attributes, matching stored keys by
// whole underscore-separated token so "ip" finds "primary_ip" but not
// "description". No request means every attribute.
func projectAttributes(attrs map[string]interface{}, requested []string) map[string]interface{} {
	out := make(map[string]interface{})
	if len(requested) == 0 {
		for k, v := range attrs {
			out[k] = v
		}
		return out
	}
	for _, want := range requested {
		if v, ok := attrs[want]; ok {
			out[want] = v
			continue
		}
		for k, v := range attrs {
			if keyHasToken(k, want) {
				out[k] = v
			}
		}
	}
	return out
}

func keyHasToken(key, want string) bool {
	key = strings.ToLower(key)
	if strings.Contains(want, "_") {
		return strings.Contains(key, want)
	}
	for _, tok := range strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' || r == ' ' }) {
		if tok == want {
			return true
		}
	}
	return false
}

func summarize(ent models.Entity) map[string]interface{} {
	return map[string]interface{}{
		"id":              ent.ID,
		"name":            ent.Name,
		"entity_type":     ent.EntityType,
		"organization_id": ent.OrganizationID,
	}
}

// filterByCompany applies the company to search hits in process: by id when
// resolved, otherwise by name substring against the entity's attributes.
func filterByCompany(entities []models.Entity, parsed *models.ParsedQuery) []models.Entity {
	if parsed.Company == "" {
		return entities
	}
	id := companyID(parsed)
	needle := strings.ToLower(parsed.Company)

	out := entities[:0:0]
	for _, ent := range entities {
		if id != "" {
			if ent.OrganizationID == id {
				out = append(out, ent)
			}
			continue
		}
		if mentionsCompany(ent, needle) {
			out = append(out, ent)
		}
	}
	return out
}

func mentionsCompany(ent models.Entity, needle string) bool {
	for _, key := range []string{"organization_name", "organization", "company", "company_name"} {
		if s, ok := ent.Attributes[key].(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

// filterEntities applies status and os filters. Entities that do not carry
// the attribute are kept.
func filterEntities(entities []models.Entity, filters map[string]interface{}) []models.Entity {
	if !hasEntityFilters(filters) {
		return entities
	}
	out := entities[:0:0]
	for _, ent := range entities {
		if matchesFilter(ent, filters["status"], "status") &&
			matchesFilter(ent, filters["os"], "os", "operating_system") {
			out = append(out, ent)
		}
	}
	return out
}

func hasEntityFilters(filters map[string]interface{}) bool {
	for _, key := range []string{"status", "os"} {
		if v, ok := filters[key].(string); ok && v != "" {
			return true
		}
	}
	return false
}

func matchesFilter(ent models.Entity, want interface{}, keys ...string) bool {
	w, ok := want.(string)
	if !ok || w == "" {
		return true
	}
	for _, k := range keys {
		if s, ok := ent.Attributes[k].(string); ok {
			return strings.Contains(strings.ToLower(s), w)
		}
	}
	return true
}

// buildSnippets returns up to max excerpts, one per term, around each term's
// first occurrence. Excerpts cut mid-text are bounded by an ellipsis.
func buildSnippets(text string, terms []string, max, radius int) []string {
	if text == "" || max <= 0 {
		return nil
	}
	runes := []rune(text)
	lower := strings.ToLower(text)

	type hit struct{ start, end int }
	var hits []hit
	seen := make(map[string]bool)
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" || seen[term] {
			continue
		}
		seen[term] = true
		idx := strings.Index(lower, term)
		if idx < 0 {
			continue
		}
		start := utf8.RuneCountInString(lower[:idx])
		hits = append(hits, hit{start: start, end: start + utf8.RuneCountInString(term)})
		if len(hits) == max {
			break
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].start < hits[j].start })

	snippets := make([]string, 0, len(hits))
	for _, h := range hits {
		from := h.start - radius
		if from < 0 {
			from = 0
		}
		to := h.end + radius
		if to > len(runes) {
			to = len(runes)
		}
		s := strings.TrimSpace(string(runes[from:to]))
		if from > 0 {
			s = ellipsis + s
		}
		if to < len(runes) {
			s += ellipsis
		}
		snippets = append(snippets, s)
	}
	return snippets
}
