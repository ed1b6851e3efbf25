package memstorage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signet-auth/signet-api/internal/domain/audit"
)

// AuditRepository keeps events append-only in memory, newest last.
type AuditRepository struct {
	mu     sync.RWMutex
	events []*audit.Event
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

var _ audit.Repository = (*AuditRepository)(nil)

func (r *AuditRepository) Insert(_ context.Context, event *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	stored := *event
	stored.Metadata = copyMap(event.Metadata)
	r.events = append(r.events, &stored)
	return nil
}

func (r *AuditRepository) ListForKey(_ context.Context, keyID uuid.UUID, limit, offset int) ([]*audit.Event, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]*audit.Event, 0)
	// Walk backwards so the result is ordered newest first.
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].APIKeyID == keyID {
			dup := *r.events[i]
			dup.Metadata = copyMap(r.events[i].Metadata)
			matches = append(matches, &dup)
		}
	}

	total := int64(len(matches))
	if limit <= 0 {
		limit = 50
	}
	if offset >= len(matches) {
		return []*audit.Event{}, total, nil
	}
	end := offset + limit
	if end > len(matches) {
		end = len(matches)
	}
	return matches[offset:end], total, nil
}
