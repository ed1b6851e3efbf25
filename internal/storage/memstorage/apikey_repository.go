package memstorage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signet-auth/signet-api/internal/domain/apikey"
	"github.com/signet-auth/signet-api/internal/ierr"
)

// APIKeyRepository is an in-memory apikey.Repository used by tests and
// local development. All methods are safe for concurrent use.
type APIKeyRepository struct {
	mu   sync.RWMutex
	keys map[uuid.UUID]*apikey.APIKey
}

func NewAPIKeyRepository() *APIKeyRepository {
	return &APIKeyRepository{keys: make(map[uuid.UUID]*apikey.APIKey)}
}

var _ apikey.Repository = (*APIKeyRepository)(nil)

func (r *APIKeyRepository) Insert(_ context.Context, key *apikey.APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[key.ID]; ok {
		return ierr.ErrDuplicateID
	}

	now := time.Now().UTC()
	key.CreatedAt = now
	key.UpdatedAt = now

	stored := copyKey(key)
	r.keys[key.ID] = stored
	return nil
}

func (r *APIKeyRepository) FindByID(_ context.Context, id uuid.UUID) (*apikey.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.keys[id]
	if !ok {
		return nil, ierr.ErrNotFound
	}
	return copyKey(key), nil
}

func (r *APIKeyRepository) FindByPrefix(_ context.Context, prefix string) ([]*apikey.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]*apikey.APIKey, 0, 1)
	for _, key := range r.keys {
		if key.KeyPrefix == prefix {
			matches = append(matches, copyKey(key))
		}
	}
	return matches, nil
}

func (r *APIKeyRepository) FindBySubject(_ context.Context, subject string, params apikey.ListParams) ([]*apikey.APIKey, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now().UTC()
	matches := make([]*apikey.APIKey, 0)
	for _, key := range r.keys {
		if key.Subject != subject {
			continue
		}
		if params.Status != "" && params.Status != apikey.FilterAll &&
			apikey.StatusFilter(key.StatusAt(now)) != params.Status {
			continue
		}
		matches = append(matches, copyKey(key))
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	total := int64(len(matches))
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	if params.Offset >= len(matches) {
		return []*apikey.APIKey{}, total, nil
	}
	end := params.Offset + limit
	if end > len(matches) {
		end = len(matches)
	}
	return matches[params.Offset:end], total, nil
}

func (r *APIKeyRepository) Update(_ context.Context, id uuid.UUID, patch apikey.Patch) (*apikey.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[id]
	if !ok {
		return nil, ierr.ErrNotFound
	}

	if patch.Name != nil {
		key.Name = *patch.Name
	}
	if patch.Description != nil {
		key.Description = *patch.Description
	}
	if patch.Scopes != nil {
		key.Scopes = append([]string(nil), patch.Scopes...)
	}
	if patch.Claims != nil {
		key.Claims = copyMap(patch.Claims)
	}
	key.UpdatedAt = time.Now().UTC()

	return copyKey(key), nil
}

func (r *APIKeyRepository) MarkRevoked(_ context.Context, id uuid.UUID, actor, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[id]
	if !ok {
		return ierr.ErrNotFound
	}
	if key.RevokedAt != nil {
		return ierr.ErrAlreadyRevoked
	}

	key.RevokedAt = &at
	key.RevokedBy = &actor
	key.RevocationReason = &reason
	key.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *APIKeyRepository) TouchLastUsed(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[id]
	if !ok {
		return ierr.ErrNotFound
	}
	if key.LastUsedAt == nil || at.After(*key.LastUsedAt) {
		key.LastUsedAt = &at
	}
	return nil
}

func copyKey(key *apikey.APIKey) *apikey.APIKey {
	dup := *key
	dup.Scopes = append([]string(nil), key.Scopes...)
	dup.Claims = copyMap(key.Claims)
	dup.LastUsedAt = copyTime(key.LastUsedAt)
	dup.ExpiresAt = copyTime(key.ExpiresAt)
	dup.RevokedAt = copyTime(key.RevokedAt)
	if key.RevokedBy != nil {
		v := *key.RevokedBy
		dup.RevokedBy = &v
	}
	if key.RevocationReason != nil {
		v := *key.RevocationReason
		dup.RevocationReason = &v
	}
	return &dup
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	dup := make(map[string]string, len(m))
	for k, v := range m {
		dup[k] = v
	}
	return dup
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
