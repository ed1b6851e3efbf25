package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/signet-auth/signet-api/internal/domain/apikey"
	"github.com/signet-auth/signet-api/internal/domain/audit"
)

type KeyUsageHandler struct {
	keys   apikey.Repository
	audits audit.Repository
	logger *zap.Logger
}

func NewKeyUsageHandler(keys apikey.Repository, audits audit.Repository, logger *zap.Logger) *KeyUsageHandler {
	return &KeyUsageHandler{
		keys:   keys,
		audits: audits,
		logger: logger.Named("KeyUsageHandler"),
	}
}

func (h *KeyUsageHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeKeyUsage {
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}

	var p KeyUsagePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error("Failed to unmarshal key usage payload", zap.Error(err), zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %v", err)
	}

	if err := h.keys.TouchLastUsed(ctx, p.KeyID, p.UsedAt); err != nil {
		h.logger.Error("Failed to advance last_used_at",
			zap.String("key_id", p.KeyID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("touch last used: %w", err)
	}

	event := &audit.Event{
		ID:        uuid.New(),
		APIKeyID:  p.KeyID,
		Kind:      audit.KindUsed,
		IPAddress: p.IPAddress,
		UserAgent: p.UserAgent,
		CreatedAt: p.UsedAt,
	}
	if err := h.audits.Insert(ctx, event); err != nil {
		h.logger.Error("Failed to record usage audit event",
			zap.String("key_id", p.KeyID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("insert audit event: %w", err)
	}

	return nil
}
