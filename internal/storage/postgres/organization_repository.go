package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/signet-auth/signet-api/internal/domain/organization"
	"github.com/signet-auth/signet-api/internal/ierr"
)

type OrganizationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewOrganizationRepository(db *pgxpool.Pool, logger *zap.Logger) *OrganizationRepository {
	return &OrganizationRepository{
		db:     db,
		logger: logger.Named("OrganizationRepository"),
	}
}

var _ organization.Repository = (*OrganizationRepository)(nil)

func (r *OrganizationRepository) Create(ctx context.Context, org *organization.Organization) error {
	metadataJSON, err := json.Marshal(org.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO organizations (id, name, slug, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query, org.ID, org.Name, org.Slug, metadataJSON).
		Scan(&org.CreatedAt, &org.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.logger.Warn("Attempted to create organization with duplicate slug",
				zap.String("slug", org.Slug),
				zap.String("constraint", pgErr.ConstraintName),
			)
			return fmt.Errorf("%w: %s", ierr.ErrDuplicateSlug, org.Slug)
		}
		r.logger.Error("Failed to create organization", zap.Error(err))
		return fmt.Errorf("db error creating organization: %w", err)
	}

	return nil
}

func (r *OrganizationRepository) FindByID(ctx context.Context, id uuid.UUID) (*organization.Organization, error) {
	query := `SELECT id, name, slug, metadata, created_at, updated_at FROM organizations WHERE id = $1`
	return r.scanOrganization(r.db.QueryRow(ctx, query, id))
}

func (r *OrganizationRepository) FindBySlug(ctx context.Context, slug string) (*organization.Organization, error) {
	query := `SELECT id, name, slug, metadata, created_at, updated_at FROM organizations WHERE slug = $1`
	return r.scanOrganization(r.db.QueryRow(ctx, query, slug))
}

func (r *OrganizationRepository) List(ctx context.Context, limit, offset int) ([]*organization.Organization, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM organizations`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error counting organizations: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, name, slug, metadata, created_at, updated_at
		FROM organizations
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list organizations", zap.Error(err))
		return nil, 0, fmt.Errorf("db error listing organizations: %w", err)
	}
	defer rows.Close()

	orgs := make([]*organization.Organization, 0)
	for rows.Next() {
		org, err := r.scanOrganization(rows)
		if err != nil {
			return nil, 0, err
		}
		orgs = append(orgs, org)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("db iteration error on organizations: %w", err)
	}
	return orgs, total, nil
}

func (r *OrganizationRepository) scanOrganization(row pgx.Row) (*organization.Organization, error) {
	var (
		org          organization.Organization
		metadataJSON []byte
	)
	err := row.Scan(&org.ID, &org.Name, &org.Slug, &metadataJSON, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ierr.ErrNotFound
		}
		r.logger.Error("Failed to scan organization row", zap.Error(err))
		return nil, fmt.Errorf("db scan error on organization: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &org.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &org, nil
}
