package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signet-auth/signet-api/internal/domain/apikey"
	"github.com/signet-auth/signet-api/internal/domain/audit"
	"github.com/signet-auth/signet-api/internal/ierr"
	"github.com/signet-auth/signet-api/internal/keygen"
	"github.com/signet-auth/signet-api/internal/ratelimit"
	"github.com/signet-auth/signet-api/internal/scope"
)

// Actor identifies who is driving a management operation.
type Actor struct {
	ID      string
	Subject string
	IsAdmin bool
}

func (a Actor) authorizedFor(subject string) bool {
	return a.IsAdmin || a.Subject == subject
}

type CreateKeyInput struct {
	Subject     string
	SubjectType apikey.SubjectType
	Name        string
	Description string
	Scopes      []string
	Claims      map[string]string
	ExpiresAt   *time.Time
}

// APIKeyService orchestrates the key lifecycle: creation, listing,
// narrowing-only updates and one-way revocation.
type APIKeyService struct {
	repo            apikey.Repository
	generator       *keygen.Generator
	hasher          *keygen.Hasher
	creationLimiter ratelimit.Limiter
	recorder        *AuditRecorder
	logger          *zap.Logger
	now             func() time.Time
}

func NewAPIKeyService(
	repo apikey.Repository,
	generator *keygen.Generator,
	hasher *keygen.Hasher,
	creationLimiter ratelimit.Limiter,
	recorder *AuditRecorder,
	logger *zap.Logger,
) *APIKeyService {
	return &APIKeyService{
		repo:            repo,
		generator:       generator,
		hasher:          hasher,
		creationLimiter: creationLimiter,
		recorder:        recorder,
		logger:          logger.Named("APIKeyService"),
		now:             time.Now,
	}
}

// Create issues a new key and returns the record together with the full
// secret. The secret is returned exactly once; no other operation can
// recover it.
func (s *APIKeyService) Create(ctx context.Context, actor Actor, input CreateKeyInput) (*apikey.APIKey, string, error) {
	if !actor.authorizedFor(input.Subject) {
		return nil, "", fmt.Errorf("%w: actor %s may not manage keys for subject %s", ierr.ErrForbidden, actor.ID, input.Subject)
	}
	if input.Name == "" || input.Subject == "" {
		return nil, "", fmt.Errorf("%w: subject and name are required", ierr.ErrValidation)
	}
	if input.SubjectType != apikey.SubjectOrganization && input.SubjectType != apikey.SubjectUser {
		return nil, "", fmt.Errorf("%w: unknown subject type %q", ierr.ErrValidation, input.SubjectType)
	}
	if len(input.Scopes) == 0 {
		return nil, "", fmt.Errorf("%w: at least one scope is required", ierr.ErrValidation)
	}
	for _, sc := range input.Scopes {
		if !scope.Valid(sc) {
			return nil, "", fmt.Errorf("%w: malformed scope %q", ierr.ErrValidation, sc)
		}
	}

	if s.creationLimiter != nil {
		decision, err := s.creationLimiter.Allow(ctx, "create:"+input.Subject, 1)
		if err != nil {
			s.logger.Error("Creation rate limiter unavailable", zap.Error(err))
			return nil, "", fmt.Errorf("%w: rate limiter unavailable", ierr.ErrInternalServer)
		}
		if !decision.Allowed {
			return nil, "", ierr.RateLimited(decision.RetryAfter)
		}
	}

	secret, prefix, err := s.generator.Generate()
	if err != nil {
		s.logger.Error("Failed to generate api key secret", zap.Error(err))
		return nil, "", err
	}

	key := &apikey.APIKey{
		ID:          uuid.New(),
		Subject:     input.Subject,
		SubjectType: input.SubjectType,
		Name:        input.Name,
		Description: input.Description,
		KeyPrefix:   prefix,
		KeyHash:     s.hasher.Hash(secret),
		Scopes:      scope.Normalize(input.Scopes),
		Claims:      input.Claims,
		CreatedBy:   actor.ID,
		ExpiresAt:   input.ExpiresAt,
	}

	if err := s.repo.Insert(ctx, key); err != nil {
		s.logger.Error("Failed to persist new api key", zap.Error(err))
		return nil, "", err
	}

	s.recorder.Record(ctx, &audit.Event{
		APIKeyID: key.ID,
		Kind:     audit.KindCreated,
		ActorID:  actor.ID,
		Metadata: map[string]string{"name": key.Name},
	})

	s.logger.Info("API key created",
		zap.String("id", key.ID.String()),
		zap.String("subject", key.Subject),
		zap.String("prefix", key.KeyPrefix),
	)
	return key, secret, nil
}

func (s *APIKeyService) List(ctx context.Context, actor Actor, subject string, params apikey.ListParams) ([]*apikey.APIKey, int64, error) {
	if !actor.authorizedFor(subject) {
		return nil, 0, fmt.Errorf("%w: actor %s may not list keys for subject %s", ierr.ErrForbidden, actor.ID, subject)
	}
	if params.Status == "" {
		params.Status = apikey.FilterAll
	}
	if !params.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status filter %q", ierr.ErrValidation, params.Status)
	}
	return s.repo.FindBySubject(ctx, subject, params)
}

func (s *APIKeyService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*apikey.APIKey, error) {
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.authorizedFor(key.Subject) {
		return nil, fmt.Errorf("%w: actor %s may not read key %s", ierr.ErrForbidden, actor.ID, id)
	}
	return key, nil
}

// Update accepts name, description, claims and scope changes. Scopes
// may only shrink: no scope outside the current set can be added.
func (s *APIKeyService) Update(ctx context.Context, actor Actor, id uuid.UUID, patch apikey.Patch) (*apikey.APIKey, error) {
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.authorizedFor(key.Subject) {
		return nil, fmt.Errorf("%w: actor %s may not update key %s", ierr.ErrForbidden, actor.ID, id)
	}
	if patch.Empty() {
		return key, nil
	}

	if patch.Scopes != nil {
		for _, sc := range patch.Scopes {
			if !scope.Valid(sc) {
				return nil, fmt.Errorf("%w: malformed scope %q", ierr.ErrValidation, sc)
			}
		}
		if !scope.IsSubset(patch.Scopes, key.Scopes) {
			return nil, fmt.Errorf("%w: requested scopes exceed the current grant", ierr.ErrScopeExpansionRejected)
		}
		patch.Scopes = scope.Normalize(patch.Scopes)
	}

	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		s.logger.Error("Failed to update api key", zap.String("id", id.String()), zap.Error(err))
		return nil, err
	}
	return updated, nil
}

// Revoke is a one-way transition and fails with AlreadyRevoked when the
// key is already in the terminal state. Revoking an expired key is
// allowed and recorded for audit completeness.
func (s *APIKeyService) Revoke(ctx context.Context, actor Actor, id uuid.UUID, reason string) error {
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !actor.authorizedFor(key.Subject) {
		return fmt.Errorf("%w: actor %s may not revoke key %s", ierr.ErrForbidden, actor.ID, id)
	}

	if err := s.repo.MarkRevoked(ctx, id, actor.ID, reason, s.now().UTC()); err != nil {
		if errors.Is(err, ierr.ErrAlreadyRevoked) {
			return err
		}
		s.logger.Error("Failed to revoke api key", zap.String("id", id.String()), zap.Error(err))
		return err
	}

	s.recorder.Record(ctx, &audit.Event{
		APIKeyID: id,
		Kind:     audit.KindRevoked,
		ActorID:  actor.ID,
		Metadata: map[string]string{"reason": reason},
	})

	s.logger.Info("API key revoked", zap.String("id", id.String()), zap.String("actor", actor.ID))
	return nil
}
