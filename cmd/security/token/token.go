package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the token HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "AQI_TOKEN_HMAC_KEY"

	// MinHMACKeyBytes is the minimum key size accepted in enforced mode.
	MinHMACKeyBytes = 32
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrHMACKeyMissing.
// If too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// HMACEnabled reports whether the env key is present (non-empty after trim).
// Note: This does not enforce minimum length. Use HMACKeyFromEnv for policy checks.
func HMACEnabled() bool {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	return raw != ""
}

// Digester turns raw verification tokens into storage digests.
// The zero value hashes with plain SHA-256.
type Digester struct {
	key []byte
}

// NewDigester returns a Digester keyed with key. An empty key selects SHA-256.
func NewDigester(key []byte) Digester {
	if len(key) == 0 {
		return Digester{}
	}
	cp := make([]byte, len(key))
	copy(cp, key)
	return Digester{key: cp}
}

// DigesterFromEnv builds a Digester from AQI_TOKEN_HMAC_KEY.
// With require=true a missing or short key is an error.
func DigesterFromEnv(require bool) (Digester, error) {
	if !require {
		raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
		return NewDigester([]byte(raw)), nil
	}
	key, err := HMACKeyFromEnv(MinHMACKeyBytes)
	if err != nil {
		return Digester{}, err
	}
	return NewDigester(key), nil
}

// Keyed reports whether d uses HMAC.
func (d Digester) Keyed() bool { return len(d.key) > 0 }

// Digest returns the hex digest stored for raw.
func (d Digester) Digest(raw string) string {
	if len(d.key) == 0 {
		return HashSHA256Hex(raw)
	}
	return HashHMACSHA256Hex(raw, d.key)
}

// Equal compares two hex digests in constant time.
func Equal(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

// HashVerificationTokenHex hashes a verification token for server-side storage.
// Behavior:
// - If AQI_TOKEN_HMAC_KEY is set (non-empty), uses HMAC-SHA256(token, key).
// - Otherwise falls back to SHA-256(token).
func HashVerificationTokenHex(token string) string {
	key := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if key == "" {
		return HashSHA256Hex(token)
	}
	return HashHMACSHA256Hex(token, []byte(key))
}

// HashVerificationTokenHexRequireHMAC hashes verification tokens in enforced-HMAC mode.
// It fails if the key is missing or too short.
func HashVerificationTokenHexRequireHMAC(token string, minBytes int) (string, error) {
	key, err := HMACKeyFromEnv(minBytes)
	if err != nil {
		return "", err
	}
	return HashHMACSHA256Hex(token, key), nil
}
