package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/signet-auth/signet-api/internal/domain/apikey"
	"github.com/signet-auth/signet-api/internal/domain/audit"
	"github.com/signet-auth/signet-api/internal/identity"
	"github.com/signet-auth/signet-api/internal/ierr"
	"github.com/signet-auth/signet-api/internal/keygen"
	"github.com/signet-auth/signet-api/internal/ratelimit"
	"github.com/signet-auth/signet-api/internal/scope"
	"github.com/signet-auth/signet-api/internal/storage/memstorage"
)

type verifierFixture struct {
	keys     *memstorage.APIKeyRepository
	audits   *memstorage.AuditRepository
	identity *identity.Static
	keysSvc  *APIKeyService
	verifier *VerifierService
}

func newVerifierFixture(t *testing.T, cfg VerifierConfig, keyPolicy, orgPolicy ratelimit.Policy) *verifierFixture {
	t.Helper()

	logger := zap.NewNop()
	keys := memstorage.NewAPIKeyRepository()
	audits := memstorage.NewAuditRepository()
	recorder := NewAuditRecorder(audits, logger)
	hasher := keygen.NewHasher("test-pepper")
	static := identity.NewStatic()

	keyLimiter, err := ratelimit.NewMemory(keyPolicy)
	require.NoError(t, err)
	t.Cleanup(keyLimiter.Close)
	orgLimiter, err := ratelimit.NewMemory(orgPolicy)
	require.NoError(t, err)
	t.Cleanup(orgLimiter.Close)

	verifier := NewVerifierService(
		keys, hasher, keyLimiter, orgLimiter,
		static, cfg, recorder,
		NewDirectUsageDispatcher(keys, audits, logger),
		logger,
	)

	keysSvc := NewAPIKeyService(keys, keygen.NewGenerator(), hasher, nil, recorder, logger)

	return &verifierFixture{
		keys:     keys,
		audits:   audits,
		identity: static,
		keysSvc:  keysSvc,
		verifier: verifier,
	}
}

func defaultPolicy() ratelimit.Policy {
	return ratelimit.Policy{Capacity: 10000, Window: time.Minute}
}

func (f *verifierFixture) createKey(t *testing.T, scopes []string, expiresAt *time.Time) (*apikey.APIKey, string) {
	t.Helper()
	key, secret, err := f.keysSvc.Create(context.Background(), Actor{ID: "tester", IsAdmin: true}, CreateKeyInput{
		Subject:     "org-1",
		SubjectType: apikey.SubjectOrganization,
		Name:        "test key",
		Scopes:      scopes,
		ExpiresAt:   expiresAt,
	})
	require.NoError(t, err)
	return key, secret
}

func TestVerifySucceedsRepeatedly(t *testing.T) {
	f := newVerifierFixture(t, VerifierConfig{}, defaultPolicy(), defaultPolicy())
	key, secret := f.createKey(t, []string{"exports:write"}, nil)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		access, err := f.verifier.Verify(ctx, secret, RequestMeta{})
		require.NoError(t, err)
		assert.Equal(t, key.ID, access.APIKeyID)
		assert.Equal(t, "org-1", access.Subject)
		assert.Equal(t, apikey.SubjectOrganization, access.SubjectType)
		assert.Equal(t, []string{"exports:write"}, access.Scopes)
	}
}

func TestVerifyUnknownSecret(t *testing.T) {
	f := newVerifierFixture(t, VerifierConfig{}, defaultPolicy(), defaultPolicy())
	f.createKey(t, []string{"exports:write"}, nil)

	_, err := f.verifier.Verify(context.Background(), "sk_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", RequestMeta{})
	assert.ErrorIs(t, err, ierr.ErrInvalidKey)
}

func TestVerifyMalformedSecret(t *testing.T) {
	f := newVerifierFixture(t, VerifierConfig{}, defaultPolicy(), defaultPolicy())

	for _, presented := range []string{"", "garbage", "pk_wrongtag", "sk_short"} {
		_, err := f.verifier.Verify(context.Background(), presented, RequestMeta{})
		assert.ErrorIs(t, err, ierr.ErrInvalidKey, "presented=%q", presented)
	}
}

func TestVerifyRevokedKey(t *testing.T) {
	f := newVerifierFixture(t, VerifierConfig{}, defaultPolicy(), defaultPolicy())
	key, secret := f.createKey(t, []string{"exports:write"}, nil)

	ctx := context.Background()
	require.NoError(t, f.keysSvc.Revoke(ctx, Actor{ID: "tester", IsAdmin: true}, key.ID, "rotated"))

	// Effective immediately, even with the correct secret.
	_, err := f.verifier.Verify(ctx, secret, RequestMeta{})
	assert.ErrorIs(t, err, ierr.ErrRevokedKey)
}

func TestVerifyExpiredKey(t *testing.T) {
	f := newVerifierFixture(t, VerifierConfig{}, defaultPolicy(), defaultPolicy())
	expiry := time.Now().UTC().Add(time.Hour)
	key, secret := f.createKey(t, []string{"exports:write"}, &expiry)

	ctx := context.Background()
	_, err := f.verifier.Verify(ctx, secret, RequestMeta{})
	require.NoError(t, err)

	// Move the verifier clock past the expiry. No stored state
	// changes; the status is derived from expires_at alone.
	f.verifier.now = func() time.Time { return expiry.Add(time.Second) }

	_, err = f.verifier.Verify(ctx, secret, RequestMeta{})
	assert.ErrorIs(t, err, ierr.ErrExpiredKey)

	events, _, err := f.audits.ListForKey(ctx, key.ID, 10, 0)
	require.NoError(t, err)
	var kinds []audit.EventKind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, audit.KindAuthFailed)
}

func TestVerifyPerKeyRateLimit(t *testing.T) {
	f := newVerifierFixture(t, VerifierConfig{},
		ratelimit.Policy{Capacity: 3, Window: time.Hour}, defaultPolicy())
	_, secret := f.createKey(t, []string{"exports:write"}, nil)

	ctx := context.Background()
	var rateLimited int
	for i := 0; i < 4; i++ {
		_, err := f.verifier.Verify(ctx, secret, RequestMeta{})
		if err != nil {
			require.ErrorIs(t, err, ierr.ErrRateLimited)
			var rle *ierr.RateLimitError
			require.True(t, errors.As(err, &rle))
			assert.Greater(t, rle.RetryAfter, time.Duration(0))
			rateLimited++
		}
	}
	assert.Equal(t, 1, rateLimited)
}

func TestVerifyIdentityRequired(t *testing.T) {
	f := newVerifierFixture(t, VerifierConfig{IdentityRequired: true}, defaultPolicy(), defaultPolicy())
	_, secret := f.createKey(t, []string{"exports:write"}, nil)

	ctx := context.Background()

	// Unknown subject: the provider answers, the answer is negative.
	_, err := f.verifier.Verify(ctx, secret, RequestMeta{})
	assert.ErrorIs(t, err, ierr.ErrInvalidKey)

	f.identity.Set("org-1", identity.Resolution{Exists: true, MembershipValid: true})
	_, err = f.verifier.Verify(ctx, secret, RequestMeta{})
	assert.NoError(t, err)

	f.identity.Set("org-1", identity.Resolution{Exists: true, MembershipValid: false})
	_, err = f.verifier.Verify(ctx, secret, RequestMeta{})
	assert.ErrorIs(t, err, ierr.ErrInvalidKey)
}

func TestVerifyIdentityProviderDown(t *testing.T) {
	f := newVerifierFixture(t, VerifierConfig{IdentityRequired: true}, defaultPolicy(), defaultPolicy())
	_, secret := f.createKey(t, []string{"exports:write"}, nil)

	f.verifier.identity = failingProvider{}

	_, err := f.verifier.Verify(context.Background(), secret, RequestMeta{})
	assert.ErrorIs(t, err, ierr.ErrIdentityUnverifiable)
}

type failingProvider struct{}

func (failingProvider) ResolveSubject(context.Context, string) (identity.Resolution, error) {
	return identity.Resolution{}, errors.New("connection refused")
}

func TestVerifyRecordsUsage(t *testing.T) {
	f := newVerifierFixture(t, VerifierConfig{}, defaultPolicy(), defaultPolicy())
	key, secret := f.createKey(t, []string{"exports:write"}, nil)

	ctx := context.Background()
	_, err := f.verifier.Verify(ctx, secret, RequestMeta{IPAddress: "198.51.100.7", UserAgent: "curl/8"})
	require.NoError(t, err)

	// Usage recording is fire-and-forget; wait for it to land.
	require.Eventually(t, func() bool {
		stored, err := f.keys.FindByID(ctx, key.ID)
		return err == nil && stored.LastUsedAt != nil
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		events, _, err := f.audits.ListForKey(ctx, key.ID, 10, 0)
		if err != nil {
			return false
		}
		for _, e := range events {
			if e.Kind == audit.KindUsed && e.IPAddress == "198.51.100.7" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestVerifyConcurrent(t *testing.T) {
	f := newVerifierFixture(t, VerifierConfig{}, defaultPolicy(), defaultPolicy())
	key, secret := f.createKey(t, []string{"exports:write"}, nil)

	ctx := context.Background()
	const callers = 50

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.verifier.Verify(ctx, secret, RequestMeta{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}

	require.Eventually(t, func() bool {
		stored, err := f.keys.FindByID(ctx, key.ID)
		return err == nil && stored.LastUsedAt != nil
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := f.keys.FindByID(ctx, key.ID)
	require.NoError(t, err)
	assert.False(t, stored.LastUsedAt.After(time.Now().UTC()))
}

// Full lifecycle: issue, authenticate, authorize, revoke, list.
func TestKeyLifecycle(t *testing.T) {
	f := newVerifierFixture(t, VerifierConfig{}, defaultPolicy(), defaultPolicy())
	ctx := context.Background()

	key, secret := f.createKey(t, []string{"projects:*"}, nil)

	access, err := f.verifier.Verify(ctx, secret, RequestMeta{})
	require.NoError(t, err)
	assert.True(t, scope.Has(access.Scopes, "projects:read"))
	assert.True(t, scope.Has(access.Scopes, "projects:write"))
	assert.False(t, scope.Has(access.Scopes, "exports:write"))

	require.NoError(t, f.keysSvc.Revoke(ctx, Actor{ID: "tester", IsAdmin: true}, key.ID, "done"))

	_, err = f.verifier.Verify(ctx, secret, RequestMeta{})
	require.ErrorIs(t, err, ierr.ErrRevokedKey)

	keys, total, err := f.keysSvc.List(ctx, Actor{ID: "tester", IsAdmin: true}, "org-1",
		apikey.ListParams{Status: apikey.FilterRevoked})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, key.ID, keys[0].ID)
	require.NotNil(t, keys[0].RevocationReason)
	assert.Equal(t, "done", *keys[0].RevocationReason)
}

func TestTouchLastUsedMonotonic(t *testing.T) {
	keys := memstorage.NewAPIKeyRepository()
	ctx := context.Background()

	key := &apikey.APIKey{
		ID:          uuid.New(),
		Subject:     "org-1",
		SubjectType: apikey.SubjectOrganization,
		Name:        "k",
		KeyPrefix:   "sk_abcdefgh",
		KeyHash:     "h",
		Scopes:      []string{"a:b"},
		CreatedBy:   "tester",
	}
	require.NoError(t, keys.Insert(ctx, key))

	later := time.Now().UTC()
	earlier := later.Add(-time.Minute)

	require.NoError(t, keys.TouchLastUsed(ctx, key.ID, later))
	require.NoError(t, keys.TouchLastUsed(ctx, key.ID, earlier))

	stored, err := keys.FindByID(ctx, key.ID)
	require.NoError(t, err)
	assert.Equal(t, later, *stored.LastUsedAt)
}
