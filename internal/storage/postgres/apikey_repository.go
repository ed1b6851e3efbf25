package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/signet-auth/signet-api/internal/domain/apikey"
	"github.com/signet-auth/signet-api/internal/ierr"
)

const apiKeyColumns = `
	id, subject, subject_type, name, description, key_prefix, key_hash,
	scopes, claims, created_by, last_used_at, expires_at,
	revoked_at, revoked_by, revocation_reason, created_at, updated_at
`

type APIKeyRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAPIKeyRepository(db *pgxpool.Pool, logger *zap.Logger) *APIKeyRepository {
	return &APIKeyRepository{
		db:     db,
		logger: logger.Named("APIKeyRepository"),
	}
}

var _ apikey.Repository = (*APIKeyRepository)(nil)

func (r *APIKeyRepository) Insert(ctx context.Context, key *apikey.APIKey) error {
	claimsJSON, err := json.Marshal(key.Claims)
	if err != nil {
		return fmt.Errorf("marshal claims: %w", err)
	}

	query := `
		INSERT INTO api_keys (
			id, subject, subject_type, name, description, key_prefix,
			key_hash, scopes, claims, created_by, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query,
		key.ID,
		key.Subject,
		key.SubjectType,
		key.Name,
		key.Description,
		key.KeyPrefix,
		key.KeyHash,
		key.Scopes,
		claimsJSON,
		key.CreatedBy,
		key.ExpiresAt,
	).Scan(&key.CreatedAt, &key.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.logger.Warn("Attempted to insert api key with duplicate id",
				zap.String("id", key.ID.String()),
				zap.String("constraint", pgErr.ConstraintName),
			)
			return fmt.Errorf("%w: api key %s", ierr.ErrDuplicateID, key.ID)
		}
		r.logger.Error("Failed to insert api key", zap.Error(err))
		return fmt.Errorf("db error inserting api key: %w", err)
	}

	return nil
}

func (r *APIKeyRepository) FindByID(ctx context.Context, id uuid.UUID) (*apikey.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`
	key, err := scanAPIKey(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ierr.ErrNotFound
		}
		r.logger.Error("Failed to find api key by id", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("db error finding api key: %w", err)
	}
	return key, nil
}

func (r *APIKeyRepository) FindByPrefix(ctx context.Context, prefix string) ([]*apikey.APIKey, error) {
	// The prefix column is intentionally not unique; candidates are
	// disambiguated by hash upstream. Revoked rows are included so the
	// verifier can report revocation instead of a generic mismatch.
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_prefix = $1`
	rows, err := r.db.Query(ctx, query, prefix)
	if err != nil {
		r.logger.Error("Failed to query api keys by prefix", zap.Error(err))
		return nil, fmt.Errorf("db error finding api keys by prefix: %w", err)
	}
	defer rows.Close()

	return collectAPIKeys(rows)
}

func (r *APIKeyRepository) FindBySubject(ctx context.Context, subject string, params apikey.ListParams) ([]*apikey.APIKey, int64, error) {
	where := "subject = $1" + statusPredicate(params.Status)

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM api_keys WHERE `+where, subject).Scan(&total); err != nil {
		r.logger.Error("Failed to count api keys for subject", zap.Error(err))
		return nil, 0, fmt.Errorf("db error counting api keys: %w", err)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE ` + where +
		` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, subject, limit, params.Offset)
	if err != nil {
		r.logger.Error("Failed to list api keys for subject", zap.Error(err))
		return nil, 0, fmt.Errorf("db error listing api keys: %w", err)
	}
	defer rows.Close()

	keys, err := collectAPIKeys(rows)
	if err != nil {
		return nil, 0, err
	}
	return keys, total, nil
}

func statusPredicate(filter apikey.StatusFilter) string {
	switch filter {
	case apikey.FilterActive:
		return " AND revoked_at IS NULL AND (expires_at IS NULL OR expires_at > now())"
	case apikey.FilterRevoked:
		return " AND revoked_at IS NOT NULL"
	case apikey.FilterExpired:
		return " AND revoked_at IS NULL AND expires_at IS NOT NULL AND expires_at <= now()"
	default:
		return ""
	}
}

func (r *APIKeyRepository) Update(ctx context.Context, id uuid.UUID, patch apikey.Patch) (*apikey.APIKey, error) {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	args = append(args, id)

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Scopes != nil {
		add("scopes", patch.Scopes)
	}
	if patch.Claims != nil {
		claimsJSON, err := json.Marshal(patch.Claims)
		if err != nil {
			return nil, fmt.Errorf("marshal claims: %w", err)
		}
		add("claims", claimsJSON)
	}
	if len(sets) == 0 {
		return r.FindByID(ctx, id)
	}
	sets = append(sets, "updated_at = now()")

	query := `UPDATE api_keys SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 RETURNING ` + apiKeyColumns

	key, err := scanAPIKey(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ierr.ErrNotFound
		}
		r.logger.Error("Failed to update api key", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("db error updating api key: %w", err)
	}
	return key, nil
}

func (r *APIKeyRepository) MarkRevoked(ctx context.Context, id uuid.UUID, actor, reason string, at time.Time) error {
	// Conditional single-statement transition: only an unrevoked row
	// matches, so concurrent revocations cannot both win.
	query := `
		UPDATE api_keys
		SET revoked_at = $2, revoked_by = $3, revocation_reason = $4, updated_at = now()
		WHERE id = $1 AND revoked_at IS NULL
	`
	cmdTag, err := r.db.Exec(ctx, query, id, at, actor, reason)
	if err != nil {
		r.logger.Error("Failed to revoke api key", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("db error revoking api key: %w", err)
	}
	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM api_keys WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("db error checking api key existence: %w", err)
	}
	if !exists {
		return ierr.ErrNotFound
	}
	return ierr.ErrAlreadyRevoked
}

func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	// GREATEST keeps last_used_at monotonic under concurrent writers.
	query := `
		UPDATE api_keys
		SET last_used_at = GREATEST(COALESCE(last_used_at, 'epoch'::timestamptz), $2)
		WHERE id = $1
	`
	cmdTag, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		r.logger.Error("Failed to update api key last_used_at", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("db error updating last used time: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.Warn("API key not found when updating last_used_at", zap.String("id", id.String()))
	}
	return nil
}

func collectAPIKeys(rows pgx.Rows) ([]*apikey.APIKey, error) {
	keys := make([]*apikey.APIKey, 0)
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("db scan error on api key row: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db iteration error on api keys: %w", err)
	}
	return keys, nil
}

func scanAPIKey(row pgx.Row) (*apikey.APIKey, error) {
	var (
		key        apikey.APIKey
		claimsJSON []byte
	)
	err := row.Scan(
		&key.ID,
		&key.Subject,
		&key.SubjectType,
		&key.Name,
		&key.Description,
		&key.KeyPrefix,
		&key.KeyHash,
		&key.Scopes,
		&claimsJSON,
		&key.CreatedBy,
		&key.LastUsedAt,
		&key.ExpiresAt,
		&key.RevokedAt,
		&key.RevokedBy,
		&key.RevocationReason,
		&key.CreatedAt,
		&key.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(claimsJSON) > 0 {
		if err := json.Unmarshal(claimsJSON, &key.Claims); err != nil {
			return nil, fmt.Errorf("unmarshal claims: %w", err)
		}
	}
	return &key, nil
}
