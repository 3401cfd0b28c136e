package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"itdocs-query/internal/models"
)

const entityColumns = `id, itglue_id, organization_id, entity_type, name, attributes, search_text`

// GetByID returns nil without error when id does not exist.
func (s *Store) GetByID(ctx context.Context, id string) (*models.Entity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = $1`, id)

	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get entity %s: %v", ErrQueryFailed, id, err)
	}
	return e, nil
}

// GetByIDs returns the entities that exist, in the order of ids. Missing ids
// are skipped, so callers compare lengths to detect them.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]models.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("%w: get entities: %v", ErrQueryFailed, err)
	}
	found, err := collectEntities(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Entity, len(found))
	for _, e := range found {
		byID[e.ID] = e
	}
	out := make([]models.Entity, 0, len(found))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok && !seen[id] {
			out = append(out, e)
			seen[id] = true
		}
	}
	return out, nil
}

// GetByOrganization lists one page of an organization's entities, optionally
// narrowed to one entity type. limit <= 0 means no limit.
func (s *Store) GetByOrganization(ctx context.Context, orgID, entityType string, limit, offset int) ([]models.Entity, error) {
	var (
		where = []string{"organization_id = $1"}
		args  = []interface{}{orgID}
	)
	if entityType != "" {
		args = append(args, entityType)
		where = append(where, "entity_type = $"+strconv.Itoa(len(args)))
	}
	query, args := paginate(`SELECT `+entityColumns+` FROM entities WHERE `+strings.Join(where, " AND "), args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: entities by organization: %v", ErrQueryFailed, err)
	}
	return collectEntities(rows)
}

// Search matches text against name and search_text. Blank text lists by
// entity type only.
func (s *Store) Search(ctx context.Context, text, entityType string, limit, offset int) ([]models.Entity, error) {
	var (
		where []string
		args  []interface{}
	)
	if t := strings.TrimSpace(text); t != "" {
		args = append(args, "%"+t+"%")
		n := strconv.Itoa(len(args))
		where = append(where, "(name ILIKE $"+n+" OR search_text ILIKE $"+n+")")
	}
	if entityType != "" {
		args = append(args, entityType)
		where = append(where, "entity_type = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + entityColumns + ` FROM entities`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query, args = paginate(query, args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: search entities: %v", ErrQueryFailed, err)
	}
	return collectEntities(rows)
}

// CountByType counts entities per entity type. A blank orgID counts across
// all organizations and a blank entityType counts every type.
func (s *Store) CountByType(ctx context.Context, orgID, entityType string) (map[string]int, error) {
	var (
		where []string
		args  []interface{}
	)
	if orgID != "" {
		args = append(args, orgID)
		where = append(where, "organization_id = $"+strconv.Itoa(len(args)))
	}
	if entityType != "" {
		args = append(args, entityType)
		where = append(where, "entity_type = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT entity_type, COUNT(*) FROM entities`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` GROUP BY entity_type`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: count entities: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			t string
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("%w: scan count: %v", ErrQueryFailed, err)
		}
		counts[t] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate counts: %v", ErrQueryFailed, err)
	}
	return counts, nil
}

// paginate orders by name with id as tie-breaker so consecutive pages
// neither repeat nor skip rows.
func paginate(query string, args []interface{}, limit, offset int) (string, []interface{}) {
	query += ` ORDER BY name, id`
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}
	return query, args
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row scanner) (*models.Entity, error) {
	var (
		e          models.Entity
		itglueID   sql.NullString
		searchText sql.NullString
		rawAttrs   []byte
	)
	if err := row.Scan(&e.ID, &itglueID, &e.OrganizationID, &e.EntityType, &e.Name, &rawAttrs, &searchText); err != nil {
		return nil, err
	}
	e.ITGlueID = itglueID.String
	e.SearchText = searchText.String
	e.Attributes = map[string]interface{}{}
	if len(rawAttrs) > 0 {
		if err := json.Unmarshal(rawAttrs, &e.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes of %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

func collectEntities(rows *sql.Rows) ([]models.Entity, error) {
	defer rows.Close()

	var out []models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan entity: %v", ErrQueryFailed, err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate entities: %v", ErrQueryFailed, err)
	}
	return out, nil
}
