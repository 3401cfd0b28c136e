// Package validator is the zero-hallucination gate: a draft response only
// passes when it is backed by source documents that exist in the entity store,
// the retrieval confidence clears the threshold, and every claim in the
// response can be traced to one of those documents.
package validator

import (
	"context"
	"fmt"
	"reflect"
	"time"

	apperrors "itdocs-query/internal/common/errors"
	"itdocs-query/internal/common/logger"
	"itdocs-query/internal/models"
)

const (
	MsgNoSources          = "no source documents"
	MsgLowConfidence      = "confidence below threshold"
	MsgUnsupportedContent = "response content not supported by sources"
	MsgSafeResponse       = "I could not find verified information to answer that question."
)

// SourceStore fetches the documents a response claims to be based on.
type SourceStore interface {
	GetByIDs(ctx context.Context, ids []string) ([]models.Entity, error)
}

type Config struct {
	// StrictClaims rejects claims that are neither attribute nor entity
	// claims instead of accepting them.
	StrictClaims bool
}

// Input is a draft response plus the retrieval evidence behind it.
type Input struct {
	Response      map[string]interface{}
	SourceIDs     []string
	Scores        []float64
	RequireSource bool
	Threshold     float64
}

type Validator struct {
	store  SourceStore
	config Config
	logger logger.Logger
}

func New(store SourceStore, config Config, log logger.Logger) *Validator {
	return &Validator{
		store:  store,
		config: config,
		logger: log.WithFields(map[string]interface{}{"component": "response-validator"}),
	}
}

// Validate runs the checks in order and stops at the first failure. The
// returned error is reserved for entity-store failures; every rejection is
// reported through ValidationResult.
func (v *Validator) Validate(ctx context.Context, in Input) (*models.ValidationResult, error) {
	if in.RequireSource && len(in.SourceIDs) == 0 {
		return reject(0, MsgNoSources, apperrors.ErrCodeMissingSources), nil
	}

	confidence := mean(in.Scores)
	if confidence < in.Threshold {
		return reject(confidence, MsgLowConfidence, apperrors.ErrCodeLowConfidence), nil
	}

	var docs []models.Entity
	if len(in.SourceIDs) > 0 {
		var err error
		docs, err = v.store.GetByIDs(ctx, in.SourceIDs)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("get_by_ids", err)
		}
	}
	if in.RequireSource && len(docs) != len(in.SourceIDs) {
		missing := len(in.SourceIDs) - len(docs)
		return reject(confidence, fmt.Sprintf("%d source documents not found", missing), apperrors.ErrCodeMissingSources), nil
	}

	for _, c := range extractClaims(in.Response) {
		if !v.verify(c, docs) {
			v.logger.Info("claim not supported by sources", map[string]interface{}{
				"claimKind": c.kind.String(),
				"claimKey":  c.key,
				"sources":   len(docs),
			})
			return reject(confidence, MsgUnsupportedContent, apperrors.ErrCodeUnsupportedContent), nil
		}
	}

	return &models.ValidationResult{
		Valid:           true,
		Confidence:      confidence,
		Response:        in.Response,
		SourceIDs:       in.SourceIDs,
		SourceDocuments: docs,
	}, nil
}

func reject(confidence float64, message string, code apperrors.ErrorCode) *models.ValidationResult {
	return &models.ValidationResult{
		Valid:      false,
		Confidence: confidence,
		Message:    message,
		Code:       string(code),
		SourceIDs:  []string{},
	}
}

func mean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

type claimKind int

const (
	claimOpaque claimKind = iota
	claimAttribute
	claimEntity
)

func (k claimKind) String() string {
	switch k {
	case claimAttribute:
		return "attribute"
	case claimEntity:
		return "entity"
	default:
		return "opaque"
	}
}

type claim struct {
	kind     claimKind
	key      string
	value    interface{}
	entityID string
}

// extractClaims splits the response's "data" into atomic claims: one per
// top-level pair of a map, one per element of a list. Other shapes carry no
// claims.
func extractClaims(response map[string]interface{}) []claim {
	switch data := response["data"].(type) {
	case map[string]interface{}:
		claims := make([]claim, 0, len(data))
		for k, val := range data {
			claims = append(claims, classify(k, val))
		}
		return claims
	case []interface{}:
		claims := make([]claim, 0, len(data))
		for _, val := range data {
			claims = append(claims, classify("", val))
		}
		return claims
	case []map[string]interface{}:
		claims := make([]claim, 0, len(data))
		for _, val := range data {
			claims = append(claims, classify("", val))
		}
		return claims
	default:
		return nil
	}
}

func classify(key string, val interface{}) claim {
	if m, ok := val.(map[string]interface{}); ok {
		if id := entityID(m); id != "" {
			return claim{kind: claimEntity, key: key, entityID: id}
		}
		return claim{kind: claimOpaque, key: key}
	}
	if key != "" && isScalar(val) {
		return claim{kind: claimAttribute, key: key, value: val}
	}
	return claim{kind: claimOpaque, key: key}
}

func entityID(m map[string]interface{}) string {
	for _, k := range []string{"id", "entity_id"} {
		switch id := m[k].(type) {
		case string:
			if id != "" {
				return id
			}
		case fmt.Stringer:
			return id.String()
		case int, int64, float64:
			return fmt.Sprint(id)
		}
	}
	return ""
}

func isScalar(val interface{}) bool {
	switch val.(type) {
	case nil, string, bool, int, int32, int64, float32, float64, time.Time:
		return true
	}
	return false
}

func (v *Validator) verify(c claim, docs []models.Entity) bool {
	switch c.kind {
	case claimAttribute:
		for _, d := range docs {
			if sv, ok := d.Attributes[c.key]; ok && sameValue(sv, c.value) {
				return true
			}
		}
		return false
	case claimEntity:
		for _, d := range docs {
			if d.ID == c.entityID {
				return true
			}
		}
		return false
	default:
		return !v.config.StrictClaims
	}
}

// sameValue compares numbers by value so an int claim matches a float64
// decoded from JSONB.
func sameValue(a, b interface{}) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// CreateSafeResponse is the canonical failure envelope.
func CreateSafeResponse(query, reason string) *models.ResponseEnvelope {
	return &models.ResponseEnvelope{
		Success:    false,
		Query:      query,
		Data:       nil,
		Confidence: 0,
		SourceIDs:  []string{},
		Timestamp:  time.Now().UTC(),
		Error:      reason,
		Message:    MsgSafeResponse,
	}
}
