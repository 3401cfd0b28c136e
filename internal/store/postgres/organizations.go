package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"itdocs-query/internal/models"
)

// GetOrganizations lists organizations. Supported filters are "name" (exact)
// and "id". Rows whose name column is empty fall back to attributes.name.
func (s *Store) GetOrganizations(ctx context.Context, filters map[string]string) ([]models.Organization, error) {
	var (
		where []string
		args  []interface{}
	)
	for _, key := range []string{"id", "name"} {
		if v, ok := filters[key]; ok && v != "" {
			args = append(args, v)
			where = append(where, key+" = $"+strconv.Itoa(len(args)))
		}
	}

	query := `SELECT id, name, attributes FROM organizations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list organizations: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	var out []models.Organization
	for rows.Next() {
		var (
			id       int64
			name     *string
			rawAttrs []byte
		)
		if err := rows.Scan(&id, &name, &rawAttrs); err != nil {
			return nil, fmt.Errorf("%w: scan organization: %v", ErrQueryFailed, err)
		}

		record := map[string]interface{}{"id": id}
		if name != nil {
			record["name"] = *name
		}
		if len(rawAttrs) > 0 {
			var attrs map[string]interface{}
			if err := json.Unmarshal(rawAttrs, &attrs); err == nil {
				record["attributes"] = attrs
			}
		}

		org, err := models.OrganizationFromRecord(record)
		if err != nil {
			s.logger.Warn("skipping organization record", map[string]interface{}{"id": id, "error": err.Error()})
			continue
		}
		out = append(out, org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate organizations: %v", ErrQueryFailed, err)
	}
	return out, nil
}
