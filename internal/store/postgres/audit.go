package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"itdocs-query/internal/models"
)

const insertAuditSQL = `
	INSERT INTO query_audit_log
		(id, query, company, intent, success, response, confidence, source_ids, response_time_ms, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// LogQuery appends one audit row. ID and CreatedAt are filled when empty.
func (s *Store) LogQuery(ctx context.Context, entry models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	sourceIDs := entry.SourceIDs
	if sourceIDs == nil {
		sourceIDs = []string{}
	}

	response, err := json.Marshal(entry.Response)
	if err != nil {
		return fmt.Errorf("%w: encode audit response: %v", ErrInsertFailed, err)
	}

	_, err = s.db.ExecContext(ctx, insertAuditSQL,
		entry.ID,
		entry.Query,
		nullIfEmpty(entry.Company),
		string(entry.Intent),
		entry.Success,
		response,
		entry.Confidence,
		pq.Array(sourceIDs),
		entry.ResponseTimeMS,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: insert audit entry: %v", ErrInsertFailed, err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
