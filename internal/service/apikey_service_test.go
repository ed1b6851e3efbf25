package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/signet-auth/signet-api/internal/domain/apikey"
	"github.com/signet-auth/signet-api/internal/domain/audit"
	"github.com/signet-auth/signet-api/internal/ierr"
	"github.com/signet-auth/signet-api/internal/keygen"
	"github.com/signet-auth/signet-api/internal/ratelimit"
	"github.com/signet-auth/signet-api/internal/storage/memstorage"
)

type keyServiceFixture struct {
	keys   *memstorage.APIKeyRepository
	audits *memstorage.AuditRepository
	svc    *APIKeyService
}

func newKeyServiceFixture(t *testing.T, creationLimiter ratelimit.Limiter) *keyServiceFixture {
	t.Helper()
	logger := zap.NewNop()
	keys := memstorage.NewAPIKeyRepository()
	audits := memstorage.NewAuditRepository()
	svc := NewAPIKeyService(
		keys,
		keygen.NewGenerator(),
		keygen.NewHasher("test-pepper"),
		creationLimiter,
		NewAuditRecorder(audits, logger),
		logger,
	)
	return &keyServiceFixture{keys: keys, audits: audits, svc: svc}
}

var admin = Actor{ID: "admin", IsAdmin: true}

func validInput() CreateKeyInput {
	return CreateKeyInput{
		Subject:     "org-1",
		SubjectType: apikey.SubjectOrganization,
		Name:        "ci deploy",
		Scopes:      []string{"projects:read", "exports:write"},
	}
}

func TestCreateReturnsSecretOnce(t *testing.T) {
	f := newKeyServiceFixture(t, nil)
	ctx := context.Background()

	key, secret, err := f.svc.Create(ctx, admin, validInput())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(secret, keygen.SecretTag))
	assert.True(t, strings.HasPrefix(secret, key.KeyPrefix))
	assert.NotContains(t, key.KeyHash, secret[len(keygen.SecretTag):])

	// Only the hash and the short prefix survive; reading the record
	// back cannot recover the secret.
	stored, err := f.keys.FindByID(ctx, key.ID)
	require.NoError(t, err)
	assert.NotEqual(t, secret, stored.KeyHash)
	assert.Len(t, stored.KeyPrefix, keygen.PrefixLength)
}

func TestCreateRecordsAuditEvent(t *testing.T) {
	f := newKeyServiceFixture(t, nil)
	ctx := context.Background()

	key, _, err := f.svc.Create(ctx, admin, validInput())
	require.NoError(t, err)

	events, total, err := f.audits.ListForKey(ctx, key.ID, 10, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, audit.KindCreated, events[0].Kind)
	assert.Equal(t, "admin", events[0].ActorID)
}

func TestCreateValidation(t *testing.T) {
	f := newKeyServiceFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*CreateKeyInput)
	}{
		{"missing name", func(in *CreateKeyInput) { in.Name = "" }},
		{"missing subject", func(in *CreateKeyInput) { in.Subject = "" }},
		{"bad subject type", func(in *CreateKeyInput) { in.SubjectType = "robot" }},
		{"no scopes", func(in *CreateKeyInput) { in.Scopes = nil }},
		{"malformed scope", func(in *CreateKeyInput) { in.Scopes = []string{"projects read"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, _, err := f.svc.Create(ctx, admin, in)
			assert.ErrorIs(t, err, ierr.ErrValidation)
		})
	}
}

func TestCreateForbiddenForForeignSubject(t *testing.T) {
	f := newKeyServiceFixture(t, nil)
	stranger := Actor{ID: "key:abc", Subject: "org-2"}

	_, _, err := f.svc.Create(context.Background(), stranger, validInput())
	assert.ErrorIs(t, err, ierr.ErrForbidden)
}

func TestCreateRateLimited(t *testing.T) {
	limiter, err := ratelimit.NewMemory(ratelimit.Policy{Capacity: 2, Window: time.Hour})
	require.NoError(t, err)
	t.Cleanup(limiter.Close)
	f := newKeyServiceFixture(t, limiter)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _, err := f.svc.Create(ctx, admin, validInput())
		require.NoError(t, err)
	}
	_, _, err = f.svc.Create(ctx, admin, validInput())
	assert.ErrorIs(t, err, ierr.ErrRateLimited)

	// Other subjects draw from their own bucket.
	other := validInput()
	other.Subject = "org-2"
	_, _, err = f.svc.Create(ctx, admin, other)
	assert.NoError(t, err)
}

func TestUpdateNarrowsScopes(t *testing.T) {
	f := newKeyServiceFixture(t, nil)
	ctx := context.Background()

	key, _, err := f.svc.Create(ctx, admin, validInput())
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, admin, key.ID, apikey.Patch{Scopes: []string{"projects:read"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"projects:read"}, updated.Scopes)

	// Narrowing to nothing is still narrowing.
	updated, err = f.svc.Update(ctx, admin, key.ID, apikey.Patch{Scopes: []string{}})
	require.NoError(t, err)
	assert.Empty(t, updated.Scopes)
}

func TestUpdateRejectsScopeExpansion(t *testing.T) {
	f := newKeyServiceFixture(t, nil)
	ctx := context.Background()

	in := validInput()
	in.Scopes = []string{"projects:read"}
	key, _, err := f.svc.Create(ctx, admin, in)
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, admin, key.ID, apikey.Patch{Scopes: []string{"projects:read", "exports:write"}})
	assert.ErrorIs(t, err, ierr.ErrScopeExpansionRejected)

	stored, err := f.keys.FindByID(ctx, key.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"projects:read"}, stored.Scopes)
}

func TestUpdateMetadataOnly(t *testing.T) {
	f := newKeyServiceFixture(t, nil)
	ctx := context.Background()

	key, _, err := f.svc.Create(ctx, admin, validInput())
	require.NoError(t, err)

	name := "renamed"
	updated, err := f.svc.Update(ctx, admin, key.ID, apikey.Patch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, key.Scopes, updated.Scopes)
}

func TestRevokeIsOneWay(t *testing.T) {
	f := newKeyServiceFixture(t, nil)
	ctx := context.Background()

	key, _, err := f.svc.Create(ctx, admin, validInput())
	require.NoError(t, err)

	require.NoError(t, f.svc.Revoke(ctx, admin, key.ID, "compromised"))

	stored, err := f.keys.FindByID(ctx, key.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.RevokedAt)
	assert.Equal(t, apikey.StatusRevoked, stored.StatusAt(time.Now().UTC()))

	err = f.svc.Revoke(ctx, admin, key.ID, "again")
	assert.ErrorIs(t, err, ierr.ErrAlreadyRevoked)

	events, _, err := f.audits.ListForKey(ctx, key.ID, 10, 0)
	require.NoError(t, err)
	var revoked int
	for _, e := range events {
		if e.Kind == audit.KindRevoked {
			revoked++
		}
	}
	assert.Equal(t, 1, revoked, "the failed second revocation must not add an event")
}

func TestListStatusFilters(t *testing.T) {
	f := newKeyServiceFixture(t, nil)
	ctx := context.Background()

	active, _, err := f.svc.Create(ctx, admin, validInput())
	require.NoError(t, err)

	doomed, _, err := f.svc.Create(ctx, admin, validInput())
	require.NoError(t, err)
	require.NoError(t, f.svc.Revoke(ctx, admin, doomed.ID, "cleanup"))

	expiry := time.Now().UTC().Add(-time.Minute)
	in := validInput()
	in.ExpiresAt = &expiry
	expired, _, err := f.svc.Create(ctx, admin, in)
	require.NoError(t, err)

	cases := []struct {
		filter apikey.StatusFilter
		want   map[string]bool
	}{
		{apikey.FilterActive, map[string]bool{active.ID.String(): true}},
		{apikey.FilterRevoked, map[string]bool{doomed.ID.String(): true}},
		{apikey.FilterExpired, map[string]bool{expired.ID.String(): true}},
		{apikey.FilterAll, map[string]bool{
			active.ID.String(): true, doomed.ID.String(): true, expired.ID.String(): true,
		}},
	}
	for _, tc := range cases {
		keys, total, err := f.svc.List(ctx, admin, "org-1", apikey.ListParams{Status: tc.filter, Limit: 50})
		require.NoError(t, err, "filter %s", tc.filter)
		require.EqualValues(t, len(tc.want), total, "filter %s", tc.filter)
		for _, k := range keys {
			assert.True(t, tc.want[k.ID.String()], "filter %s returned unexpected key %s", tc.filter, k.ID)
		}
	}

	_, _, err = f.svc.List(ctx, admin, "org-1", apikey.ListParams{Status: "sideways"})
	assert.ErrorIs(t, err, ierr.ErrValidation)
}

func TestGetEnforcesOwnership(t *testing.T) {
	f := newKeyServiceFixture(t, nil)
	ctx := context.Background()

	key, _, err := f.svc.Create(ctx, admin, validInput())
	require.NoError(t, err)

	owner := Actor{ID: "key:self", Subject: "org-1"}
	got, err := f.svc.Get(ctx, owner, key.ID)
	require.NoError(t, err)
	assert.Equal(t, key.ID, got.ID)

	stranger := Actor{ID: "key:other", Subject: "org-2"}
	_, err = f.svc.Get(ctx, stranger, key.ID)
	assert.ErrorIs(t, err, ierr.ErrForbidden)
}
