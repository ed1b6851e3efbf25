package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/signet-auth/signet-api/internal/domain/organization"
)

type CreateOrganizationRequest struct {
	Name     string            `json:"name" binding:"required,max=128"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type OrganizationResponse struct {
	ID        uuid.UUID         `json:"id"`
	Name      string            `json:"name"`
	Slug      string            `json:"slug"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func NewOrganizationResponse(org *organization.Organization) *OrganizationResponse {
	return &OrganizationResponse{
		ID:        org.ID,
		Name:      org.Name,
		Slug:      org.Slug,
		Metadata:  org.Metadata,
		CreatedAt: org.CreatedAt,
		UpdatedAt: org.UpdatedAt,
	}
}

type ListOrganizationsResponse struct {
	Organizations []*OrganizationResponse `json:"organizations"`
	Total         int64                   `json:"total"`
}
