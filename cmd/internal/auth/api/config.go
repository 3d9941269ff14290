package authapi

import (
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Config controls auth API behavior and abuse limits.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// RequireVerified makes /login reject users who have not verified their email.
	RequireVerified bool
	// VerificationTTL is how long a freshly issued verification token stays valid.
	VerificationTTL time.Duration

	// Per-client-IP token buckets; a non-positive rate disables the limit.
	LoginRate     rate.Limit
	LoginBurst    int
	RegisterRate  rate.Limit
	RegisterBurst int
	// LimiterIdle is how long an idle per-IP bucket is kept before cleanup.
	LimiterIdle time.Duration
}

// DefaultConfig returns the baseline used when no env overrides are present.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:    1 << 20,
		VerificationTTL: 10 * time.Minute,
		LoginRate:       rate.Limit(20.0 / 60.0),
		LoginBurst:      10,
		RegisterRate:    rate.Limit(5.0 / 60.0),
		RegisterBurst:   5,
		LimiterIdle:     10 * time.Minute,
	}
}

// LoadConfigFromEnv loads auth config from environment variables with safe defaults.
//
// Env surface:
// - AQI_AUTH_TRUST_PROXY, AQI_AUTH_REQUIRE_VERIFIED (bool)
// - AQI_AUTH_MAX_BODY_BYTES (int)
// - AQI_VERIFICATION_TTL (duration)
// - AQI_AUTH_LOGIN_PER_MIN, AQI_AUTH_LOGIN_BURST (int; 0 disables)
// - AQI_AUTH_REGISTER_PER_MIN, AQI_AUTH_REGISTER_BURST (int; 0 disables)
// - AQI_AUTH_LIMITER_IDLE (duration)
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	cfg := Config{
		TrustProxy:      envBool("AQI_AUTH_TRUST_PROXY", false),
		RequireVerified: envBool("AQI_AUTH_REQUIRE_VERIFIED", false),
		MaxBodyBytes:    envInt64("AQI_AUTH_MAX_BODY_BYTES", def.MaxBodyBytes),
		VerificationTTL: envDuration("AQI_VERIFICATION_TTL", def.VerificationTTL),
		LoginRate:       perMinute(envNonNegInt("AQI_AUTH_LOGIN_PER_MIN", 20)),
		LoginBurst:      envInt("AQI_AUTH_LOGIN_BURST", def.LoginBurst),
		RegisterRate:    perMinute(envNonNegInt("AQI_AUTH_REGISTER_PER_MIN", 5)),
		RegisterBurst:   envInt("AQI_AUTH_REGISTER_BURST", def.RegisterBurst),
		LimiterIdle:     envDuration("AQI_AUTH_LIMITER_IDLE", def.LimiterIdle),
	}
	return cfg
}

func perMinute(n int) rate.Limit {
	if n <= 0 {
		return 0
	}
	return rate.Limit(float64(n) / 60.0)
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envNonNegInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
