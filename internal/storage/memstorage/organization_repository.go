package memstorage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signet-auth/signet-api/internal/domain/organization"
	"github.com/signet-auth/signet-api/internal/ierr"
)

type OrganizationRepository struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*organization.Organization
	bySlug map[string]uuid.UUID
}

func NewOrganizationRepository() *OrganizationRepository {
	return &OrganizationRepository{
		byID:   make(map[uuid.UUID]*organization.Organization),
		bySlug: make(map[string]uuid.UUID),
	}
}

var _ organization.Repository = (*OrganizationRepository)(nil)

func (r *OrganizationRepository) Create(_ context.Context, org *organization.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[org.ID]; ok {
		return ierr.ErrDuplicateID
	}
	if _, ok := r.bySlug[org.Slug]; ok {
		return ierr.ErrDuplicateSlug
	}

	now := time.Now().UTC()
	org.CreatedAt = now
	org.UpdatedAt = now

	stored := copyOrg(org)
	r.byID[org.ID] = stored
	r.bySlug[org.Slug] = org.ID
	return nil
}

func (r *OrganizationRepository) FindByID(_ context.Context, id uuid.UUID) (*organization.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	org, ok := r.byID[id]
	if !ok {
		return nil, ierr.ErrNotFound
	}
	return copyOrg(org), nil
}

func (r *OrganizationRepository) FindBySlug(_ context.Context, slug string) (*organization.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySlug[slug]
	if !ok {
		return nil, ierr.ErrNotFound
	}
	return copyOrg(r.byID[id]), nil
}

func (r *OrganizationRepository) List(_ context.Context, limit, offset int) ([]*organization.Organization, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orgs := make([]*organization.Organization, 0, len(r.byID))
	for _, org := range r.byID {
		orgs = append(orgs, copyOrg(org))
	}
	sort.Slice(orgs, func(i, j int) bool {
		return orgs[i].CreatedAt.After(orgs[j].CreatedAt)
	})

	total := int64(len(orgs))
	if limit <= 0 {
		limit = 50
	}
	if offset >= len(orgs) {
		return []*organization.Organization{}, total, nil
	}
	end := offset + limit
	if end > len(orgs) {
		end = len(orgs)
	}
	return orgs[offset:end], total, nil
}

func copyOrg(org *organization.Organization) *organization.Organization {
	dup := *org
	dup.Metadata = copyMap(org.Metadata)
	return &dup
}
