package app

import (
	"strings"
	"time"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string
	LogColor  bool

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	// RootPath mounts every route a second time under this prefix (e.g. "/eng.rmuti").
	RootPath string
	// PublicBaseURL is the externally visible origin used in verification links.
	// Empty derives it from HTTPAddr.
	PublicBaseURL string

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	// AutoMigrate applies embedded migrations before serving.
	AutoMigrate bool

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, AQI_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and verification tokens are HMAC-hashed.
	RequireTokenHMAC bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	MetricsEnabled bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("AQI_HTTP_ADDR", "0.0.0.0:8086"),
		LogLevel:  EnvString("AQI_LOG_LEVEL", "info"),
		LogFormat: EnvString("AQI_LOG_FORMAT", "json"),
		LogColor:  EnvBool("AQI_LOG_COLOR", true),

		ReadHeaderTimeout: EnvDuration("AQI_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("AQI_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("AQI_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("AQI_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   EnvDuration("AQI_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),

		MaxHeaderBytes: EnvInt("AQI_HTTP_MAX_HEADER_BYTES", 1<<20),

		RootPath:      normalizeRootPath(EnvString("AQI_ROOT_PATH", "")),
		PublicBaseURL: strings.TrimRight(EnvString("AQI_PUBLIC_BASE_URL", ""), "/"),

		DatabaseURL: EnvString("AQI_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("AQI_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("AQI_DB_MIN_CONNS", 0),
		AutoMigrate: EnvBool("AQI_DB_AUTO_MIGRATE", false),

		ReadinessRequireDB: EnvBool("AQI_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("AQI_REQUIRE_TOKEN_HMAC", false),

		CORSAllowedOrigins:   EnvCSV("AQI_CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowCredentials: EnvBool("AQI_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("AQI_CORS_MAX_AGE_SECONDS", 600),

		MetricsEnabled: EnvBool("AQI_METRICS_ENABLED", true),
	}
}

// normalizeRootPath returns "" or a "/prefix" without a trailing slash.
func normalizeRootPath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}
