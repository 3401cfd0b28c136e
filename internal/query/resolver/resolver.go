// Package resolver maps free-text company names onto organization ids from
// the organization directory.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"itdocs-query/internal/common/logger"
	"itdocs-query/internal/models"
)

// lookupTimeout bounds a shared directory lookup, which no longer follows the
// cancellation of the caller that started it.
const lookupTimeout = 10 * time.Second

var (
	ErrCompanyNotFound = errors.New("COMPANY_NOT_FOUND")
	ErrDirectoryFailed = errors.New("ORGANIZATION_DIRECTORY_FAILED")
)

// OrganizationDirectory lists organizations. A "name" filter requests an
// exact-name match; nil filters list everything.
type OrganizationDirectory interface {
	GetOrganizations(ctx context.Context, filters map[string]string) ([]models.Organization, error)
}

// Memo stores resolved ids by normalized company name.
type Memo interface {
	Get(key string) (string, bool)
	Set(key, orgID string)
}

// MapMemo is an in-process Memo safe for concurrent use.
type MapMemo struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMapMemo() *MapMemo {
	return &MapMemo{entries: make(map[string]string)}
}

func (m *MapMemo) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.entries[key]
	return id, ok
}

func (m *MapMemo) Set(key, orgID string) {
	m.mu.Lock()
	m.entries[key] = orgID
	m.mu.Unlock()
}

func (m *MapMemo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

type Resolver struct {
	directory OrganizationDirectory
	memo      Memo
	flight    singleflight.Group
	logger    logger.Logger
}

// New builds a Resolver. A nil memo gets a fresh MapMemo.
func New(directory OrganizationDirectory, memo Memo, log logger.Logger) *Resolver {
	if memo == nil {
		memo = NewMapMemo()
	}
	return &Resolver{
		directory: directory,
		memo:      memo,
		logger:    log.WithFields(map[string]interface{}{"component": "company-resolver"}),
	}
}

// Resolve returns the organization id for name. Numeric input is already an
// id and is returned as-is.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrCompanyNotFound
	}
	if isNumeric(trimmed) {
		return trimmed, nil
	}

	key := normalizeKey(trimmed)
	if id, ok := r.memo.Get(key); ok {
		return id, nil
	}

	// The lookup is shared with concurrent callers, so it runs detached from
	// this caller's cancellation. Each caller still stops waiting on its own.
	ch := r.flight.DoChan(key, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()

		id, err := r.lookup(lookupCtx, trimmed)
		if err != nil {
			return "", err
		}
		r.memo.Set(key, id)
		return id, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrDirectoryFailed, ctx.Err())
	}
}

func (r *Resolver) lookup(ctx context.Context, name string) (string, error) {
	orgs, err := r.directory.GetOrganizations(ctx, map[string]string{"name": name})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDirectoryFailed, err)
	}
	if len(orgs) == 0 {
		orgs, err = r.directory.GetOrganizations(ctx, nil)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrDirectoryFailed, err)
		}
	}

	org, ok := bestMatch(name, orgs)
	if !ok {
		r.logger.Info("company not resolved", map[string]interface{}{
			"company":    name,
			"candidates": len(orgs),
		})
		return "", ErrCompanyNotFound
	}

	r.logger.Debug("company resolved", map[string]interface{}{
		"company": name,
		"orgId":   org.ID,
		"orgName": org.Name,
	})
	return org.ID, nil
}

// bestMatch applies the match tiers in priority order: exact name, name
// contained in the organization's name, organization's name contained in
// name.
func bestMatch(name string, orgs []models.Organization) (models.Organization, bool) {
	needle := strings.ToLower(name)
	tiers := []func(orgName string) bool{
		func(orgName string) bool { return orgName == needle },
		func(orgName string) bool { return strings.Contains(orgName, needle) },
		func(orgName string) bool { return orgName != "" && strings.Contains(needle, orgName) },
	}
	for _, matches := range tiers {
		for _, org := range orgs {
			if matches(strings.ToLower(org.Name)) {
				return org, true
			}
		}
	}
	return models.Organization{}, false
}

func normalizeKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
