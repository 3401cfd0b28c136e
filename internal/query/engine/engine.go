// Package engine turns a free-text question into a verified ResponseEnvelope.
// It parses the question, resolves the company, routes by intent to a
// retrieval handler and gates the draft answer through the validator. Every
// outcome, including internal failures, comes back as an envelope.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"itdocs-query/internal/common/config"
	apperrors "itdocs-query/internal/common/errors"
	"itdocs-query/internal/common/logger"
	"itdocs-query/internal/models"
	"itdocs-query/internal/query/parser"
	"itdocs-query/internal/query/validator"
)

var ErrHandlerPanic = errors.New("HANDLER_PANIC")

// RetrievalGateway ranks entities for a text query.
type RetrievalGateway interface {
	Search(ctx context.Context, req models.SearchRequest) ([]models.SearchResult, error)
}

// EntityStore reads canonical entity records. GetByID returns (nil, nil)
// for an unknown id. Listings are paged by limit and offset in a stable
// order; CountByType treats blank arguments as "any".
type EntityStore interface {
	GetByID(ctx context.Context, id string) (*models.Entity, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Entity, error)
	GetByOrganization(ctx context.Context, orgID, entityType string, limit, offset int) ([]models.Entity, error)
	Search(ctx context.Context, text, entityType string, limit, offset int) ([]models.Entity, error)
	CountByType(ctx context.Context, orgID, entityType string) (map[string]int, error)
}

// Cache returns (nil, nil) on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*models.ResponseEnvelope, error)
	Set(ctx context.Context, key string, env *models.ResponseEnvelope, ttl time.Duration) error
}

type AuditLog interface {
	LogQuery(ctx context.Context, entry models.AuditEntry) error
}

type CompanyResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

type ResponseValidator interface {
	Validate(ctx context.Context, in validator.Input) (*models.ValidationResult, error)
}

// Observer receives pipeline events for metrics.
type Observer interface {
	QueryProcessed(intent models.Intent, outcome string, elapsed time.Duration)
	CacheEvent(event string)
	ValidationRejected(code string)
}

type Config struct {
	ConfidenceThreshold float64
	RequireSource       bool
	CacheTTL            time.Duration
	CacheKeyPrefix      string
	SearchLimit         int
	PageSize            int
	AggregateSampleSize int
	MinScore            float64
	MaxSnippets         int
	SnippetRadius       int
}

func ConfigFrom(q config.QueryConfig) Config {
	return Config{
		ConfidenceThreshold: q.Threshold(),
		RequireSource:       q.SourceRequired(),
		CacheTTL:            config.GetDuration(q.CacheTTL),
		CacheKeyPrefix:      q.CacheKeyPrefix,
		SearchLimit:         q.SearchLimit,
		PageSize:            q.PageSize,
		AggregateSampleSize: q.AggregateSampleSize,
		MinScore:            q.MinScore,
		MaxSnippets:         q.MaxSnippets,
		SnippetRadius:       q.SnippetRadius,
	}
}

// Deps are the engine's collaborators. Cache, Audit, Resolver, Observer and
// Tracer are optional.
type Deps struct {
	Gateway   RetrievalGateway
	Entities  EntityStore
	Validator ResponseValidator
	Resolver  CompanyResolver
	Cache     Cache
	Audit     AuditLog
	Observer  Observer
	Tracer    trace.Tracer
}

type Engine struct {
	config   Config
	parser   *parser.Parser
	gateway  RetrievalGateway
	entities EntityStore
	validate ResponseValidator
	resolver CompanyResolver
	cache    Cache
	audit    AuditLog
	observer Observer
	tracer   trace.Tracer
	logger   logger.Logger
	now      func() time.Time
}

type handlerFunc func(ctx context.Context, parsed *models.ParsedQuery) (*models.ResponseEnvelope, error)

func New(cfg Config, deps Deps, log logger.Logger) *Engine {
	if cfg.CacheKeyPrefix == "" {
		cfg.CacheKeyPrefix = "itdocs:query:"
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 10
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.AggregateSampleSize <= 0 {
		cfg.AggregateSampleSize = 10
	}
	if cfg.MaxSnippets <= 0 {
		cfg.MaxSnippets = 3
	}
	if cfg.SnippetRadius <= 0 {
		cfg.SnippetRadius = 30
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer("itdocs-query/engine")
	}

	return &Engine{
		config:   cfg,
		parser:   parser.New(),
		gateway:  deps.Gateway,
		entities: deps.Entities,
		validate: deps.Validator,
		resolver: deps.Resolver,
		cache:    deps.Cache,
		audit:    deps.Audit,
		observer: observer,
		tracer:   tracer,
		logger:   log.WithFields(map[string]interface{}{"component": "query-engine"}),
		now:      time.Now,
	}
}

// ProcessQuery answers query for the optional company, using qctx as
// conversation context. It never returns nil and never panics.
func (e *Engine) ProcessQuery(ctx context.Context, query, company string, qctx map[string]interface{}) *models.ResponseEnvelope {
	ctx, span := e.tracer.Start(ctx, "engine.ProcessQuery")
	defer span.End()

	start := e.now()
	key := e.cacheKey(query, company, qctx)

	if cached := e.lookupCache(ctx, key); cached != nil {
		cached.Cached = true
		cached.Query = query
		cached.ResponseTimeMS = e.now().Sub(start).Milliseconds()
		annotate(span, cached)
		e.observer.QueryProcessed(cached.Intent, "cached", e.now().Sub(start))
		return cached
	}

	env, parsed, err := e.run(ctx, query, company, qctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query processing failed")
		env = e.failure(query, parsed, err)
	}

	elapsed := e.now().Sub(start)
	env.ResponseTimeMS = elapsed.Milliseconds()

	if env.Success {
		e.storeCache(ctx, key, env)
	}
	e.writeAudit(ctx, company, parsed, env)

	annotate(span, env)
	e.observer.QueryProcessed(env.Intent, outcome(env), elapsed)
	return env
}

func annotate(span trace.Span, env *models.ResponseEnvelope) {
	span.SetAttributes(
		attribute.String("itdocs.intent", string(env.Intent)),
		attribute.Bool("itdocs.success", env.Success),
		attribute.Bool("itdocs.cached", env.Cached),
		attribute.Float64("itdocs.confidence", env.Confidence),
		attribute.Int("itdocs.sources", len(env.SourceIDs)),
	)
	if env.Error != "" {
		span.SetAttributes(attribute.String("itdocs.error", env.Error))
	}
}

// run covers parsing through dispatch. Panics become ErrHandlerPanic.
func (e *Engine) run(ctx context.Context, query, company string, qctx map[string]interface{}) (env *models.ResponseEnvelope, parsed *models.ParsedQuery, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("query pipeline panicked", map[string]interface{}{
				"query": query,
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			})
			env = nil
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	parsed = e.parser.Parse(query)
	if len(qctx) > 0 {
		parser.EnhanceWithContext(parsed, qctx)
	}

	name := strings.TrimSpace(company)
	if name == "" {
		name = parsed.Company
	}
	if name != "" {
		e.resolveCompany(ctx, parsed, name)
	}

	env, err = e.handlerFor(parsed.Intent)(ctx, parsed)
	if err != nil {
		return nil, parsed, err
	}
	if env == nil {
		return nil, parsed, apperrors.NewInternalError(errors.New("handler returned no response"))
	}
	env.Intent = parsed.Intent
	return env, parsed, nil
}

func (e *Engine) handlerFor(intent models.Intent) handlerFunc {
	switch intent {
	case models.IntentGetAttribute:
		return e.handleGetAttribute
	case models.IntentListEntities:
		return e.handleListEntities
	case models.IntentAggregate:
		return e.handleAggregate
	case models.IntentHelp:
		return e.handleHelp
	default:
		return e.handleSearch
	}
}

// resolveCompany stores the resolved id in parsed.Company and the original
// text in parsed.CompanyName. Unresolved names stay in parsed.Company and are
// only ever used as a name filter.
func (e *Engine) resolveCompany(ctx context.Context, parsed *models.ParsedQuery, name string) {
	parsed.Company = name
	if e.resolver == nil {
		return
	}

	id, err := e.resolver.Resolve(ctx, name)
	if err != nil {
		e.logger.Info("company not resolved", map[string]interface{}{
			"company": name,
			"error":   err.Error(),
		})
		return
	}
	parsed.Company = id
	if !isNumeric(name) {
		parsed.CompanyName = name
	}
}

func (e *Engine) failure(query string, parsed *models.ParsedQuery, err error) *models.ResponseEnvelope {
	code := string(apperrors.ErrCodeInternal)
	if stdErr, ok := apperrors.AsStandardError(err); ok {
		code = string(stdErr.Code)
	}
	e.logger.Error("query processing failed", map[string]interface{}{
		"query": query,
		"code":  code,
		"error": err.Error(),
	})

	env := validator.CreateSafeResponse(query, code)
	if parsed != nil {
		env.Intent = parsed.Intent
	}
	return env
}

// cacheKey keeps the case of the question and company: the parser reads
// capitalisation, so differently cased questions can mean different things.
func (e *Engine) cacheKey(query, company string, qctx map[string]interface{}) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(query)))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.TrimSpace(company)))
	if len(qctx) > 0 {
		// map keys marshal in sorted order
		if raw, err := json.Marshal(qctx); err == nil {
			h.Write([]byte{'|'})
			h.Write(raw)
		}
	}
	return e.config.CacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (e *Engine) lookupCache(ctx context.Context, key string) (env *models.ResponseEnvelope) {
	if e.cache == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("cache lookup panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
			e.observer.CacheEvent("error")
			env = nil
		}
	}()

	env, err := e.cache.Get(ctx, key)
	switch {
	case err != nil:
		e.logger.Warn("cache lookup failed", map[string]interface{}{"error": err.Error()})
		e.observer.CacheEvent("error")
		return nil
	case env == nil:
		e.observer.CacheEvent("miss")
		return nil
	default:
		e.observer.CacheEvent("hit")
		return env
	}
}

func (e *Engine) storeCache(ctx context.Context, key string, env *models.ResponseEnvelope) {
	if e.cache == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("cache store panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
		}
	}()

	if err := e.cache.Set(ctx, key, env, e.config.CacheTTL); err != nil {
		e.logger.Warn("cache store failed", map[string]interface{}{"error": err.Error()})
	}
}

func (e *Engine) writeAudit(ctx context.Context, company string, parsed *models.ParsedQuery, env *models.ResponseEnvelope) {
	if e.audit == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("audit log panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
		}
	}()

	if parsed != nil && parsed.Company != "" {
		company = parsed.Company
	}
	entry := models.AuditEntry{
		Query:          env.Query,
		Company:        company,
		Intent:         env.Intent,
		Success:        env.Success,
		Response:       env,
		Confidence:     env.Confidence,
		SourceIDs:      env.SourceIDs,
		ResponseTimeMS: env.ResponseTimeMS,
	}
	if err := e.audit.LogQuery(ctx, entry); err != nil {
		e.logger.Warn("audit log failed", map[string]interface{}{"error": err.Error()})
	}
}

func outcome(env *models.ResponseEnvelope) string {
	if env.Success {
		return "success"
	}
	if env.Error == "" {
		return "failure"
	}
	return strings.ToLower(env.Error)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type nopObserver struct{}

func (nopObserver) QueryProcessed(models.Intent, string, time.Duration) {}
func (nopObserver) CacheEvent(string) {}
func (nopObserver) ValidationRejected(string) {}
