package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signet-auth/signet-api/internal/domain/audit"
)

// AuditRecorder appends immutable audit events. Recording is best-effort
// from the caller's perspective: a failed insert is logged and swallowed
// so the security-critical path never blocks on the audit channel.
type AuditRecorder struct {
	repo   audit.Repository
	logger *zap.Logger
}

func NewAuditRecorder(repo audit.Repository, logger *zap.Logger) *AuditRecorder {
	return &AuditRecorder{
		repo:   repo,
		logger: logger.Named("AuditRecorder"),
	}
}

func (r *AuditRecorder) Record(ctx context.Context, event *audit.Event) {
	if event.APIKeyID == uuid.Nil || event.Kind == "" {
		r.logger.Warn("Dropping audit event with missing required fields",
			zap.String("kind", string(event.Kind)),
		)
		return
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	if err := r.repo.Insert(ctx, event); err != nil {
		r.logger.Error("Failed to record audit event",
			zap.String("api_key_id", event.APIKeyID.String()),
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
	}
}

func (r *AuditRecorder) ListForKey(ctx context.Context, keyID uuid.UUID, limit, offset int) ([]*audit.Event, int64, error) {
	return r.repo.ListForKey(ctx, keyID, limit, offset)
}
