package keygen

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/signet-auth/signet-api/internal/ierr"
)

const (
	// SecretTag is the fixed product tag every issued secret starts with.
	SecretTag = "sk_"

	secretEntropyBytes = 32
	prefixFragmentLen  = 8

	// PrefixLength is the total length of the public key prefix:
	// the tag plus a short fragment of the encoded secret. Long enough
	// to keep prefix collisions rare, far too short to leak entropy.
	PrefixLength = len(SecretTag) + prefixFragmentLen
)

var encoding = base64.RawURLEncoding

// Generator produces opaque API key secrets from a secure random source.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate returns a fresh secret and its public prefix. The secret
// carries at least 256 bits of entropy and is never retained here.
func (g *Generator) Generate() (secret, prefix string, err error) {
	raw := make([]byte, secretEntropyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("%w: %v", ierr.ErrEntropyUnavailable, err)
	}

	secret = SecretTag + encoding.EncodeToString(raw)
	return secret, secret[:PrefixLength], nil
}

// PrefixFromSecret re-derives the public prefix of a presented secret.
// Deterministic: the same secret always yields the same prefix.
func PrefixFromSecret(secret string) (string, bool) {
	if !strings.HasPrefix(secret, SecretTag) || len(secret) < PrefixLength+1 {
		return "", false
	}
	return secret[:PrefixLength], true
}

// Hasher produces one-way hashes of full secrets for storage and lookup.
// With a pepper configured the hash is an HMAC-SHA256 keyed on it, so a
// leaked table alone is not enough to test candidate secrets offline.
type Hasher struct {
	pepper []byte
}

func NewHasher(pepper string) *Hasher {
	return &Hasher{pepper: []byte(pepper)}
}

func (h *Hasher) Hash(secret string) string {
	if len(h.pepper) == 0 {
		sum := sha256.Sum256([]byte(secret))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}
