package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/signet-auth/signet-api/internal/domain/audit"
)

type AuditRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAuditRepository(db *pgxpool.Pool, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger.Named("AuditRepository"),
	}
}

var _ audit.Repository = (*AuditRepository)(nil)

func (r *AuditRepository) Insert(ctx context.Context, event *audit.Event) error {
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO audit_events (id, api_key_id, kind, actor_id, ip_address, user_agent, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err = r.db.QueryRow(ctx, query,
		event.ID,
		event.APIKeyID,
		event.Kind,
		event.ActorID,
		event.IPAddress,
		event.UserAgent,
		metadataJSON,
	).Scan(&event.CreatedAt)

	if err != nil {
		r.logger.Error("Failed to insert audit event",
			zap.String("api_key_id", event.APIKeyID.String()),
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
		return fmt.Errorf("db error inserting audit event: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListForKey(ctx context.Context, keyID uuid.UUID, limit, offset int) ([]*audit.Event, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_events WHERE api_key_id = $1`, keyID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error counting audit events: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, api_key_id, kind, actor_id, ip_address, user_agent, metadata, created_at
		FROM audit_events
		WHERE api_key_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, keyID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list audit events", zap.String("api_key_id", keyID.String()), zap.Error(err))
		return nil, 0, fmt.Errorf("db error listing audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*audit.Event, 0)
	for rows.Next() {
		var (
			event        audit.Event
			metadataJSON []byte
		)
		err := rows.Scan(
			&event.ID,
			&event.APIKeyID,
			&event.Kind,
			&event.ActorID,
			&event.IPAddress,
			&event.UserAgent,
			&metadataJSON,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("db scan error on audit event: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, 0, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("db iteration error on audit events: %w", err)
	}
	return events, total, nil
}
