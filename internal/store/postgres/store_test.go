package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itdocs-query/internal/common/logger"
	"itdocs-query/internal/models"
)

var entityCols = []string{"id", "itglue_id", "organization_id", "entity_type", "name", "attributes", "search_text"}

func setupMockDB(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, logger.NewTestLogger(t)), mock
}

func TestStore_GetByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectQuery(`SELECT (.+) FROM entities WHERE id = \$1`).
			WithArgs("e-1").
			WillReturnRows(sqlmock.NewRows(entityCols).
				AddRow("e-1", "9001", "42", "router", "edge-router", []byte(`{"ip":"10.0.0.1"}`), "edge router 10.0.0.1"))

		e, err := store.GetByID(context.Background(), "e-1")

		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, "edge-router", e.Name)
		assert.Equal(t, "42", e.OrganizationID)
		assert.Equal(t, "10.0.0.1", e.Attributes["ip"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing returns nil", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectQuery(`SELECT (.+) FROM entities WHERE id = \$1`).
			WithArgs("nope").
			WillReturnError(sql.ErrNoRows)

		e, err := store.GetByID(context.Background(), "nope")

		assert.NoError(t, err)
		assert.Nil(t, e)
	})

	t.Run("driver error is wrapped", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectQuery(`SELECT (.+) FROM entities`).
			WillReturnError(errors.New("connection refused"))

		_, err := store.GetByID(context.Background(), "e-1")

		assert.ErrorIs(t, err, ErrQueryFailed)
	})
}

func TestStore_GetByIDs_PreservesRequestOrder(t *testing.T) {
	store, mock := setupMockDB(t)
	mock.ExpectQuery(`SELECT (.+) FROM entities WHERE id = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(entityCols).
			AddRow("b", nil, "42", "switch", "core", nil, nil).
			AddRow("a", nil, "42", "router", "edge", []byte(`{}`), "edge"))

	got, err := store.GetByIDs(context.Background(), []string{"a", "missing", "b"})

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.NotNil(t, got[1].Attributes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetByIDs_Empty(t *testing.T) {
	store, mock := setupMockDB(t)

	got, err := store.GetByIDs(context.Background(), nil)

	assert.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetByOrganization(t *testing.T) {
	tests := []struct {
		name       string
		entityType string
		limit      int
		offset     int
		pattern    string
		args       []interface{}
	}{
		{
			name:    "all types, no limit",
			pattern: `FROM entities WHERE organization_id = \$1 ORDER BY name, id$`,
			args:    []interface{}{"42"},
		},
		{
			name:       "typed and limited",
			entityType: "server",
			limit:      100,
			pattern:    `WHERE organization_id = \$1 AND entity_type = \$2 ORDER BY name, id LIMIT \$3$`,
			args:       []interface{}{"42", "server", 100},
		},
		{
			name:       "second page",
			entityType: "server",
			limit:      100,
			offset:     100,
			pattern:    `WHERE organization_id = \$1 AND entity_type = \$2 ORDER BY name, id LIMIT \$3 OFFSET \$4`,
			args:       []interface{}{"42", "server", 100, 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := setupMockDB(t)
			args := make([]driver.Value, len(tt.args))
			for i, a := range tt.args {
				args[i] = a
			}
			mock.ExpectQuery(tt.pattern).
				WithArgs(args...).
				WillReturnRows(sqlmock.NewRows(entityCols).
					AddRow("s-1", "1", "42", "server", "dc01", []byte(`{"os":"windows"}`), "dc01"))

			got, err := store.GetByOrganization(context.Background(), "42", tt.entityType, tt.limit, tt.offset)

			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "dc01", got[0].Name)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_Search(t *testing.T) {
	store, mock := setupMockDB(t)
	mock.ExpectQuery(`WHERE \(name ILIKE \$1 OR search_text ILIKE \$1\) AND entity_type = \$2 ORDER BY name, id LIMIT \$3$`).
		WithArgs("%vpn%", "document", 10).
		WillReturnRows(sqlmock.NewRows(entityCols).
			AddRow("d-1", nil, "42", "document", "VPN runbook", nil, "how to reset the vpn"))

	got, err := store.Search(context.Background(), "vpn", "document", 10, 0)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "how to reset the vpn", got[0].SearchText)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Search_TypeOnly(t *testing.T) {
	store, mock := setupMockDB(t)
	mock.ExpectQuery(`FROM entities WHERE entity_type = \$1 ORDER BY name, id LIMIT \$2 OFFSET \$3`).
		WithArgs("server", 100, 200).
		WillReturnRows(sqlmock.NewRows(entityCols))

	got, err := store.Search(context.Background(), "  ", "server", 100, 200)

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Search_BadAttributes(t *testing.T) {
	store, mock := setupMockDB(t)
	mock.ExpectQuery(`FROM entities`).
		WillReturnRows(sqlmock.NewRows(entityCols).
			AddRow("x", nil, "42", "server", "broken", []byte(`{not json`), nil))

	_, err := store.Search(context.Background(), "broken", "", 0, 0)

	assert.ErrorIs(t, err, ErrQueryFailed)
}

func TestStore_CountByType(t *testing.T) {
	t.Run("organization and type", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectQuery(`SELECT entity_type, COUNT\(\*\) FROM entities WHERE organization_id = \$1 AND entity_type = \$2 GROUP BY entity_type`).
			WithArgs("42", "printer").
			WillReturnRows(sqlmock.NewRows([]string{"entity_type", "count"}).AddRow("printer", 1500))

		counts, err := store.CountByType(context.Background(), "42", "printer")

		require.NoError(t, err)
		assert.Equal(t, map[string]int{"printer": 1500}, counts)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("every organization", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectQuery(`SELECT entity_type, COUNT\(\*\) FROM entities GROUP BY entity_type`).
			WillReturnRows(sqlmock.NewRows([]string{"entity_type", "count"}).
				AddRow("server", 12).
				AddRow("router", 3))

		counts, err := store.CountByType(context.Background(), "", "")

		require.NoError(t, err)
		assert.Equal(t, map[string]int{"server": 12, "router": 3}, counts)
	})

	t.Run("driver error is wrapped", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectQuery(`GROUP BY entity_type`).WillReturnError(errors.New("timeout"))

		_, err := store.CountByType(context.Background(), "42", "")

		assert.ErrorIs(t, err, ErrQueryFailed)
	})
}

func TestStore_GetOrganizations(t *testing.T) {
	t.Run("name filter", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectQuery(`SELECT id, name, attributes FROM organizations WHERE name = \$1 ORDER BY name`).
			WithArgs("Acme Corp").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "attributes"}).
				AddRow(int64(10), "Acme Corp", nil))

		orgs, err := store.GetOrganizations(context.Background(), map[string]string{"name": "Acme Corp"})

		require.NoError(t, err)
		assert.Equal(t, []models.Organization{{ID: "10", Name: "Acme Corp"}}, orgs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("full listing with name in attributes", func(t *testing.T) {
		store, mock := setupMockDB(t)
		mock.ExpectQuery(`SELECT id, name, attributes FROM organizations ORDER BY name`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "attributes"}).
				AddRow(int64(20), nil, []byte(`{"name":"Globex"}`)).
				AddRow(int64(30), "Initech", []byte(`{"short_name":"INI"}`)))

		orgs, err := store.GetOrganizations(context.Background(), nil)

		require.NoError(t, err)
		assert.Equal(t, []models.Organization{
			{ID: "20", Name: "Globex"},
			{ID: "30", Name: "Initech"},
		}, orgs)
	})
}

func TestStore_LogQuery(t *testing.T) {
	store, mock := setupMockDB(t)
	mock.ExpectExec(`INSERT INTO query_audit_log`).
		WithArgs(
			sqlmock.AnyArg(),
			"router ip for Acme",
			"42",
			"GET_ATTRIBUTE",
			true,
			sqlmock.AnyArg(),
			0.9,
			sqlmock.AnyArg(),
			int64(12),
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.LogQuery(context.Background(), models.AuditEntry{
		Query:          "router ip for Acme",
		Company:        "42",
		Intent:         models.IntentGetAttribute,
		Success:        true,
		Response:       &models.ResponseEnvelope{Success: true, Timestamp: time.Now()},
		Confidence:     0.9,
		SourceIDs:      []string{"e-1"},
		ResponseTimeMS: 12,
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LogQuery_Error(t *testing.T) {
	store, mock := setupMockDB(t)
	mock.ExpectExec(`INSERT INTO query_audit_log`).
		WillReturnError(errors.New("disk full"))

	err := store.LogQuery(context.Background(), models.AuditEntry{Query: "q"})

	assert.ErrorIs(t, err, ErrInsertFailed)
}
