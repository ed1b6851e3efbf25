package audit

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	KindCreated    EventKind = "created"
	KindUsed       EventKind = "used"
	KindRevoked    EventKind = "revoked"
	KindAuthFailed EventKind = "auth_failed"
)

// Event is an append-only audit record. Events are never mutated or
// deleted once written.
type Event struct {
	ID        uuid.UUID         `db:"id" json:"id"`
	APIKeyID  uuid.UUID         `db:"api_key_id" json:"api_key_id"`
	Kind      EventKind         `db:"kind" json:"kind"`
	ActorID   string            `db:"actor_id" json:"actor_id,omitempty"`
	IPAddress string            `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent string            `db:"user_agent" json:"user_agent,omitempty"`
	Metadata  map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
}
