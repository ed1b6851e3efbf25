package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/signet-auth/signet-api/internal/domain/apikey"
)

type CreateAPIKeyRequest struct {
	Subject     string            `json:"subject" binding:"required"`
	SubjectType string            `json:"subject_type" binding:"required,oneof=organization user"`
	Name        string            `json:"name" binding:"required,max=128"`
	Description string            `json:"description,omitempty" binding:"max=512"`
	Scopes      []string          `json:"scopes" binding:"required,min=1"`
	Claims      map[string]string `json:"claims,omitempty"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
}

type CreateAPIKeyResponse struct {
	Key *APIKeyResponse `json:"key"`
	// Secret is returned exactly once at creation and is never
	// retrievable again.
	Secret string `json:"secret"`
}

type UpdateAPIKeyRequest struct {
	Name        *string           `json:"name,omitempty" binding:"omitempty,max=128"`
	Description *string           `json:"description,omitempty" binding:"omitempty,max=512"`
	Scopes      []string          `json:"scopes,omitempty"`
	Claims      map[string]string `json:"claims,omitempty"`
}

type RevokeAPIKeyRequest struct {
	Reason string `json:"reason" binding:"required,max=256"`
}

type APIKeyResponse struct {
	ID               uuid.UUID         `json:"id"`
	Subject          string            `json:"subject"`
	SubjectType      string            `json:"subject_type"`
	Name             string            `json:"name"`
	Description      string            `json:"description,omitempty"`
	KeyPrefix        string            `json:"key_prefix"`
	Scopes           []string          `json:"scopes"`
	Claims           map[string]string `json:"claims,omitempty"`
	Status           string            `json:"status"`
	CreatedBy        string            `json:"created_by"`
	LastUsedAt       *time.Time        `json:"last_used_at,omitempty"`
	ExpiresAt        *time.Time        `json:"expires_at,omitempty"`
	RevokedAt        *time.Time        `json:"revoked_at,omitempty"`
	RevokedBy        *string           `json:"revoked_by,omitempty"`
	RevocationReason *string           `json:"revocation_reason,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func NewAPIKeyResponse(key *apikey.APIKey, now time.Time) *APIKeyResponse {
	return &APIKeyResponse{
		ID:               key.ID,
		Subject:          key.Subject,
		SubjectType:      string(key.SubjectType),
		Name:             key.Name,
		Description:      key.Description,
		KeyPrefix:        key.KeyPrefix,
		Scopes:           key.Scopes,
		Claims:           key.Claims,
		Status:           string(key.StatusAt(now)),
		CreatedBy:        key.CreatedBy,
		LastUsedAt:       key.LastUsedAt,
		ExpiresAt:        key.ExpiresAt,
		RevokedAt:        key.RevokedAt,
		RevokedBy:        key.RevokedBy,
		RevocationReason: key.RevocationReason,
		CreatedAt:        key.CreatedAt,
		UpdatedAt:        key.UpdatedAt,
	}
}

type ListAPIKeysResponse struct {
	Keys  []*APIKeyResponse `json:"keys"`
	Total int64             `json:"total"`
}
