package identity

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// DefaultVerificationTTL is how long a freshly issued verification token stays usable.
const DefaultVerificationTTL = 10 * time.Minute

// verificationTokenBytes is the entropy of a verification token before encoding.
const verificationTokenBytes = 32

// Token hashing:
// - stores delegate verification-token hashing to cmd/security/token (Digester).
// - Stores keep only the 64-char hex digest; the plain token travels in the email link.
//
// Recommendation (prod):
// - Set AQI_TOKEN_HMAC_KEY to a long random secret (>= 32 bytes).

// NewOpaqueToken returns a cryptographically random, URL-safe (base64url) token.
func NewOpaqueToken(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = verificationTokenBytes
	}

	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	// URL-safe, no padding.
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// IsExpired reports whether rec is past its expiry at now.
// A record without an expiry (already invalidated) is not considered expired;
// such records never come back from FindByToken.
func IsExpired(rec VerificationToken, now time.Time) bool {
	if rec.ExpiresAt == nil {
		return false
	}
	return now.After(*rec.ExpiresAt)
}

func effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultVerificationTTL
	}
	return ttl
}
