package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signet-auth/signet-api/internal/domain/organization"
	"github.com/signet-auth/signet-api/internal/ierr"
)

type OrganizationService struct {
	repo   organization.Repository
	logger *zap.Logger
}

func NewOrganizationService(repo organization.Repository, logger *zap.Logger) *OrganizationService {
	return &OrganizationService{
		repo:   repo,
		logger: logger.Named("OrganizationService"),
	}
}

func (s *OrganizationService) Create(ctx context.Context, name string, metadata map[string]string) (*organization.Organization, error) {
	slug := organization.Slugify(name)
	if slug == "" {
		return nil, fmt.Errorf("%w: organization name must contain at least one alphanumeric character", ierr.ErrValidation)
	}

	org := &organization.Organization{
		ID:       uuid.New(),
		Name:     name,
		Slug:     slug,
		Metadata: metadata,
	}
	if err := s.repo.Create(ctx, org); err != nil {
		s.logger.Error("Failed to create organization", zap.String("slug", slug), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Organization created", zap.String("id", org.ID.String()), zap.String("slug", org.Slug))
	return org, nil
}

func (s *OrganizationService) GetBySlug(ctx context.Context, slug string) (*organization.Organization, error) {
	return s.repo.FindBySlug(ctx, slug)
}

func (s *OrganizationService) GetByID(ctx context.Context, id uuid.UUID) (*organization.Organization, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *OrganizationService) List(ctx context.Context, limit, offset int) ([]*organization.Organization, int64, error) {
	return s.repo.List(ctx, limit, offset)
}
