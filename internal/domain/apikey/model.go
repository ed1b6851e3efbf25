package apikey

import (
	"time"

	"github.com/google/uuid"
)

type SubjectType string

const (
	SubjectOrganization SubjectType = "organization"
	SubjectUser         SubjectType = "user"
)

// Status is derived from the lifecycle timestamps at read time. It is
// never stored so the timestamps that actually govern authorization
// cannot drift from a persisted flag.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

type APIKey struct {
	ID               uuid.UUID         `db:"id" json:"id"`
	Subject          string            `db:"subject" json:"subject"`
	SubjectType      SubjectType       `db:"subject_type" json:"subject_type"`
	Name             string            `db:"name" json:"name"`
	Description      string            `db:"description" json:"description,omitempty"`
	KeyPrefix        string            `db:"key_prefix" json:"key_prefix"`
	KeyHash          string            `db:"key_hash" json:"-"`
	Scopes           []string          `db:"scopes" json:"scopes"`
	Claims           map[string]string `db:"claims" json:"claims,omitempty"`
	CreatedBy        string            `db:"created_by" json:"created_by"`
	LastUsedAt       *time.Time        `db:"last_used_at" json:"last_used_at,omitempty"`
	ExpiresAt        *time.Time        `db:"expires_at" json:"expires_at,omitempty"`
	RevokedAt        *time.Time        `db:"revoked_at" json:"revoked_at,omitempty"`
	RevokedBy        *string           `db:"revoked_by" json:"revoked_by,omitempty"`
	RevocationReason *string           `db:"revocation_reason" json:"revocation_reason,omitempty"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

// StatusAt computes the key's lifecycle status at the given instant.
// Revocation wins over expiry for reporting purposes.
func (k *APIKey) StatusAt(now time.Time) Status {
	if k.RevokedAt != nil {
		return StatusRevoked
	}
	if k.ExpiresAt != nil && !k.ExpiresAt.After(now) {
		return StatusExpired
	}
	return StatusActive
}

func (k *APIKey) ActiveAt(now time.Time) bool {
	return k.StatusAt(now) == StatusActive
}
