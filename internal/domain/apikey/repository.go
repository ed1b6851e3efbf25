package apikey

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StatusFilter selects keys by their derived lifecycle status when
// listing. FilterAll disables the filter.
type StatusFilter string

const (
	FilterActive  StatusFilter = "active"
	FilterRevoked StatusFilter = "revoked"
	FilterExpired StatusFilter = "expired"
	FilterAll     StatusFilter = "all"
)

func (f StatusFilter) Valid() bool {
	switch f {
	case FilterActive, FilterRevoked, FilterExpired, FilterAll:
		return true
	}
	return false
}

type ListParams struct {
	Status StatusFilter
	Limit  int
	Offset int
}

// Patch carries the only mutable fields of a key. Nil means "leave as
// is". Scopes, when set, must be a subset of the current set; the
// repository stores what it is given, the narrowing check lives in the
// service layer.
type Patch struct {
	Name        *string
	Description *string
	Claims      map[string]string
	Scopes      []string
}

func (p Patch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Claims == nil && p.Scopes == nil
}

type Repository interface {
	Insert(ctx context.Context, key *APIKey) error
	FindByID(ctx context.Context, id uuid.UUID) (*APIKey, error)
	// FindByPrefix returns every key sharing the public prefix. The
	// prefix is not unique by design; callers disambiguate by hash.
	FindByPrefix(ctx context.Context, prefix string) ([]*APIKey, error)
	FindBySubject(ctx context.Context, subject string, params ListParams) ([]*APIKey, int64, error)
	Update(ctx context.Context, id uuid.UUID, patch Patch) (*APIKey, error)
	// MarkRevoked transitions the key to revoked iff it is not revoked
	// already. Returns ierr.ErrAlreadyRevoked when the conditional
	// update matches no row for an existing key.
	MarkRevoked(ctx context.Context, id uuid.UUID, actor, reason string, at time.Time) error
	// TouchLastUsed advances last_used_at monotonically; a timestamp
	// older than the stored one is a no-op.
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}
