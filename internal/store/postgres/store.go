// Package postgres is the relational backend of the query pipeline: the
// entity store, the organization directory and the query audit log.
package postgres

import (
	"database/sql"
	"errors"

	"itdocs-query/internal/common/logger"
)

var (
	ErrQueryFailed  = errors.New("QUERY_EXECUTION_FAILED")
	ErrInsertFailed = errors.New("DATABASE_INSERT_FAILED")
)

// Store implements engine.EntityStore, resolver.OrganizationDirectory and
// engine.AuditLog over a single connection pool.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func New(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "postgres-store"}),
	}
}
