package keygen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	g := NewGenerator()

	secret, prefix, err := g.Generate()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(secret, SecretTag))
	assert.Equal(t, secret[:PrefixLength], prefix)
	assert.Len(t, prefix, PrefixLength)

	// 32 random bytes base64url-encoded without padding is 43 chars.
	assert.Len(t, secret, len(SecretTag)+43)
}

func TestGenerateUnique(t *testing.T) {
	g := NewGenerator()
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		secret, _, err := g.Generate()
		require.NoError(t, err)
		_, dup := seen[secret]
		require.False(t, dup, "generator produced a duplicate secret")
		seen[secret] = struct{}{}
	}
}

func TestPrefixFromSecret(t *testing.T) {
	g := NewGenerator()
	secret, prefix, err := g.Generate()
	require.NoError(t, err)

	// Deriving the prefix from the secret is deterministic and stable.
	for i := 0; i < 3; i++ {
		derived, ok := PrefixFromSecret(secret)
		require.True(t, ok)
		assert.Equal(t, prefix, derived)
	}
}

func TestPrefixFromSecretMalformed(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{"empty", ""},
		{"wrong tag", "pk_abcdefghijklmnop"},
		{"tag only", SecretTag},
		{"too short", SecretTag + "abc"},
		{"prefix only", SecretTag + "abcdefgh"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := PrefixFromSecret(tt.secret)
			assert.False(t, ok)
		})
	}
}

func TestHasherDeterministic(t *testing.T) {
	h := NewHasher("pepper")

	hash := h.Hash("sk_some-secret")
	assert.Equal(t, hash, h.Hash("sk_some-secret"))
	assert.NotEqual(t, hash, h.Hash("sk_other-secret"))
	assert.Len(t, hash, 64)

	// The hash never contains the secret material.
	assert.NotContains(t, hash, "some-secret")
}

func TestHasherPepperChangesHash(t *testing.T) {
	plain := NewHasher("")
	peppered := NewHasher("pepper")

	assert.NotEqual(t, plain.Hash("sk_secret"), peppered.Hash("sk_secret"))
}
