package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/signet-auth/signet-api/internal/domain/apikey"
	"github.com/signet-auth/signet-api/internal/domain/audit"
	"github.com/signet-auth/signet-api/internal/identity"
	"github.com/signet-auth/signet-api/internal/ierr"
	"github.com/signet-auth/signet-api/internal/keygen"
	"github.com/signet-auth/signet-api/internal/ratelimit"
	"github.com/signet-auth/signet-api/internal/tasks"
)

var verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "signet_key_verifications_total",
	Help: "API key verification attempts by outcome.",
}, []string{"outcome"})

// AccessContext is attached to a request after successful verification
// and drives every downstream authorization decision.
type AccessContext struct {
	APIKeyID    uuid.UUID
	Subject     string
	SubjectType apikey.SubjectType
	Scopes      []string
	Claims      map[string]string
}

// RequestMeta describes the network origin of a verification attempt,
// recorded on audit events.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type VerifierConfig struct {
	IdentityTimeout  time.Duration
	IdentityRequired bool
}

type VerifierService struct {
	keys       apikey.Repository
	hasher     *keygen.Hasher
	keyLimiter ratelimit.Limiter
	orgLimiter ratelimit.Limiter
	identity   identity.Provider
	cfg        VerifierConfig
	recorder   *AuditRecorder
	usage      UsageDispatcher
	logger     *zap.Logger
	now        func() time.Time
}

func NewVerifierService(
	keys apikey.Repository,
	hasher *keygen.Hasher,
	keyLimiter, orgLimiter ratelimit.Limiter,
	identityProvider identity.Provider,
	cfg VerifierConfig,
	recorder *AuditRecorder,
	usage UsageDispatcher,
	logger *zap.Logger,
) *VerifierService {
	if cfg.IdentityTimeout <= 0 {
		cfg.IdentityTimeout = 2 * time.Second
	}
	return &VerifierService{
		keys:       keys,
		hasher:     hasher,
		keyLimiter: keyLimiter,
		orgLimiter: orgLimiter,
		identity:   identityProvider,
		cfg:        cfg,
		recorder:   recorder,
		usage:      usage,
		logger:     logger.Named("VerifierService"),
		now:        time.Now,
	}
}

// Verify resolves a presented secret to an AccessContext or one of the
// typed authentication failures. The hash comparison is constant time
// across every prefix candidate, so response timing never narrows down
// a partially correct secret.
func (s *VerifierService) Verify(ctx context.Context, presented string, meta RequestMeta) (*AccessContext, error) {
	prefix, ok := keygen.PrefixFromSecret(presented)
	if !ok {
		verificationsTotal.WithLabelValues("malformed").Inc()
		return nil, ierr.ErrInvalidKey
	}

	candidates, err := s.keys.FindByPrefix(ctx, prefix)
	if err != nil {
		s.logger.Error("Failed to query api key candidates", zap.Error(err))
		return nil, fmt.Errorf("%w: key lookup failed", ierr.ErrInternalServer)
	}

	presentedHash := []byte(s.hasher.Hash(presented))

	var match *apikey.APIKey
	for _, candidate := range candidates {
		if subtle.ConstantTimeCompare(presentedHash, []byte(candidate.KeyHash)) == 1 {
			match = candidate
			break
		}
	}
	if match == nil {
		verificationsTotal.WithLabelValues("invalid").Inc()
		s.logger.Warn("No api key matched presented secret", zap.String("prefix", prefix))
		return nil, ierr.ErrInvalidKey
	}

	now := s.now().UTC()

	if match.RevokedAt != nil {
		verificationsTotal.WithLabelValues("revoked").Inc()
		s.auditAuthFailed(ctx, match.ID, meta, "revoked")
		return nil, ierr.ErrRevokedKey
	}
	if match.ExpiresAt != nil && !match.ExpiresAt.After(now) {
		verificationsTotal.WithLabelValues("expired").Inc()
		s.auditAuthFailed(ctx, match.ID, meta, "expired")
		return nil, ierr.ErrExpiredKey
	}

	if err := s.consume(ctx, s.keyLimiter, "key:"+match.ID.String()); err != nil {
		verificationsTotal.WithLabelValues("rate_limited").Inc()
		return nil, err
	}
	if err := s.consume(ctx, s.orgLimiter, "org:"+match.Subject); err != nil {
		verificationsTotal.WithLabelValues("rate_limited").Inc()
		return nil, err
	}

	if err := s.checkIdentity(ctx, match, meta); err != nil {
		verificationsTotal.WithLabelValues("identity").Inc()
		return nil, err
	}

	s.dispatchUsage(match.ID, now, meta)

	verificationsTotal.WithLabelValues("ok").Inc()
	return &AccessContext{
		APIKeyID:    match.ID,
		Subject:     match.Subject,
		SubjectType: match.SubjectType,
		Scopes:      match.Scopes,
		Claims:      match.Claims,
	}, nil
}

func (s *VerifierService) consume(ctx context.Context, limiter ratelimit.Limiter, bucket string) error {
	if limiter == nil {
		return nil
	}
	decision, err := limiter.Allow(ctx, bucket, 1)
	if err != nil {
		// The limiter store being down must not turn into an open
		// gate silently; surface as an internal failure.
		s.logger.Error("Rate limiter unavailable", zap.String("bucket", bucket), zap.Error(err))
		return fmt.Errorf("%w: rate limiter unavailable", ierr.ErrInternalServer)
	}
	if !decision.Allowed {
		return ierr.RateLimited(decision.RetryAfter)
	}
	return nil
}

func (s *VerifierService) checkIdentity(ctx context.Context, key *apikey.APIKey, meta RequestMeta) error {
	if s.identity == nil || !s.cfg.IdentityRequired {
		return nil
	}

	resolveCtx, cancel := context.WithTimeout(ctx, s.cfg.IdentityTimeout)
	defer cancel()

	resolution, err := s.identity.ResolveSubject(resolveCtx, key.Subject)
	if err != nil {
		s.logger.Warn("Identity provider check failed",
			zap.String("subject", key.Subject),
			zap.Error(err),
		)
		return ierr.ErrIdentityUnverifiable
	}
	if !resolution.Exists || !resolution.MembershipValid {
		s.auditAuthFailed(ctx, key.ID, meta, "subject_invalid")
		return ierr.ErrInvalidKey
	}
	return nil
}

// dispatchUsage schedules the lastUsedAt advance and the `used` audit
// event. Failure to record usage never fails the request.
func (s *VerifierService) dispatchUsage(keyID uuid.UUID, usedAt time.Time, meta RequestMeta) {
	payload := tasks.KeyUsagePayload{
		KeyID:     keyID,
		UsedAt:    usedAt,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}

	go func() {
		dispatchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.usage.Dispatch(dispatchCtx, payload); err != nil {
			s.logger.Error("Failed to dispatch key usage record",
				zap.String("key_id", keyID.String()),
				zap.Error(err),
			)
		}
	}()
}

func (s *VerifierService) auditAuthFailed(ctx context.Context, keyID uuid.UUID, meta RequestMeta, reason string) {
	s.recorder.Record(ctx, &audit.Event{
		APIKeyID:  keyID,
		Kind:      audit.KindAuthFailed,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata:  map[string]string{"reason": reason},
	})
}
