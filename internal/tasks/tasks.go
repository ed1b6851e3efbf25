package tasks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TypeKeyUsage = "key:usage:record"
)

// KeyUsagePayload carries one observed use of a valid key. Processing it
// advances last_used_at and appends a `used` audit event, both out of
// band from the request that produced it.
type KeyUsagePayload struct {
	KeyID     uuid.UUID `json:"key_id"`
	UsedAt    time.Time `json:"used_at"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

func NewKeyUsageTask(payload KeyUsagePayload, opts ...asynq.Option) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeKeyUsage, payloadBytes, opts...), nil
}
