package audit

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Insert(ctx context.Context, event *Event) error
	// ListForKey returns events for a key ordered newest first.
	ListForKey(ctx context.Context, keyID uuid.UUID, limit, offset int) ([]*Event, int64, error)
}
