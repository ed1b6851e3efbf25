package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/signet-auth/signet-api/internal/domain/apikey"
	"github.com/signet-auth/signet-api/internal/domain/audit"
	"github.com/signet-auth/signet-api/internal/tasks"
)

// UsageDispatcher hands off the recording of one key use. Dispatch must
// be cheap; the actual writes happen out of band.
type UsageDispatcher interface {
	Dispatch(ctx context.Context, payload tasks.KeyUsagePayload) error
}

// AsynqUsageDispatcher enqueues usage records onto the shared queue so
// any worker instance can drain them.
type AsynqUsageDispatcher struct {
	client *asynq.Client
}

func NewAsynqUsageDispatcher(client *asynq.Client) *AsynqUsageDispatcher {
	return &AsynqUsageDispatcher{client: client}
}

func (d *AsynqUsageDispatcher) Dispatch(ctx context.Context, payload tasks.KeyUsagePayload) error {
	task, err := tasks.NewKeyUsageTask(payload)
	if err != nil {
		return err
	}
	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue("low"),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Second),
	)
	return err
}

// DirectUsageDispatcher applies the usage record in process. Used in
// development and tests where no queue is running.
type DirectUsageDispatcher struct {
	keys   apikey.Repository
	audits audit.Repository
	logger *zap.Logger
}

func NewDirectUsageDispatcher(keys apikey.Repository, audits audit.Repository, logger *zap.Logger) *DirectUsageDispatcher {
	return &DirectUsageDispatcher{
		keys:   keys,
		audits: audits,
		logger: logger.Named("DirectUsageDispatcher"),
	}
}

func (d *DirectUsageDispatcher) Dispatch(ctx context.Context, payload tasks.KeyUsagePayload) error {
	if err := d.keys.TouchLastUsed(ctx, payload.KeyID, payload.UsedAt); err != nil {
		return err
	}
	return d.audits.Insert(ctx, &audit.Event{
		ID:        uuid.New(),
		APIKeyID:  payload.KeyID,
		Kind:      audit.KindUsed,
		IPAddress: payload.IPAddress,
		UserAgent: payload.UserAgent,
		CreatedAt: payload.UsedAt,
	})
}
