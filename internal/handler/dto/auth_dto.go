package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/signet-auth/signet-api/internal/domain/audit"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type AuditEventResponse struct {
	ID        uuid.UUID         `json:"id"`
	APIKeyID  uuid.UUID         `json:"api_key_id"`
	Kind      string            `json:"kind"`
	ActorID   string            `json:"actor_id,omitempty"`
	IPAddress string            `json:"ip_address,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func NewAuditEventResponse(event *audit.Event) *AuditEventResponse {
	return &AuditEventResponse{
		ID:        event.ID,
		APIKeyID:  event.APIKeyID,
		Kind:      string(event.Kind),
		ActorID:   event.ActorID,
		IPAddress: event.IPAddress,
		UserAgent: event.UserAgent,
		Metadata:  event.Metadata,
		CreatedAt: event.CreatedAt,
	}
}

type ListAuditEventsResponse struct {
	Events []*AuditEventResponse `json:"events"`
	Total  int64                 `json:"total"`
}
