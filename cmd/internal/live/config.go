package live

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultSendQueue         = 64
	minSendQueue             = 8
	DefaultWriteTimeout      = 5 * time.Second
	DefaultHeartbeatInterval = 25 * time.Second
	DefaultHeartbeatTimeout  = 5 * time.Second
	DefaultAllowedOrigins    = "http://localhost,http://127.0.0.1"
)

const (
	// Clients only receive; frames beyond this size are rejected.
	maxFrameBytes   = 4 << 10
	maxPingFailures = 3
	maxNodeIDLen    = 128
)

// Config controls the live gateway.
type Config struct {
	OriginRequired bool
	AllowedOrigins []string
	// DevInsecure skips the websocket library's own origin verification.
	DevInsecure bool

	SendQueue         int
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// DefaultConfig is the baseline when no env overrides are present.
func DefaultConfig() Config {
	return Config{
		OriginRequired:    false,
		AllowedOrigins:    splitCSV(DefaultAllowedOrigins),
		SendQueue:         DefaultSendQueue,
		WriteTimeout:      DefaultWriteTimeout,
		HeartbeatInterval: DefaultHeartbeatInterval,
		HeartbeatTimeout:  DefaultHeartbeatTimeout,
	}
}

// FromEnv loads gateway settings.
//
// Env surface:
// - AQI_LIVE_ALLOWED_ORIGINS (CSV, "*" allows any)
// - AQI_LIVE_ORIGIN_REQUIRED, AQI_LIVE_DEV_INSECURE (bool)
// - AQI_LIVE_SEND_QUEUE (int)
// - AQI_LIVE_WRITE_TIMEOUT, AQI_LIVE_HEARTBEAT_INTERVAL, AQI_LIVE_HEARTBEAT_TIMEOUT (durations)
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := lookup("AQI_LIVE_ALLOWED_ORIGINS"); ok {
		cfg.AllowedOrigins = splitCSV(v)
	}
	for _, b := range []struct {
		key string
		dst *bool
	}{
		{"AQI_LIVE_ORIGIN_REQUIRED", &cfg.OriginRequired},
		{"AQI_LIVE_DEV_INSECURE", &cfg.DevInsecure},
	} {
		if v, ok := lookup(b.key); ok {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return Config{}, fmt.Errorf("%s: invalid boolean", b.key)
			}
			*b.dst = parsed
		}
	}
	if v, ok := lookup("AQI_LIVE_SEND_QUEUE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("AQI_LIVE_SEND_QUEUE: must be a positive integer")
		}
		if n < minSendQueue {
			n = minSendQueue
		}
		cfg.SendQueue = n
	}
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"AQI_LIVE_WRITE_TIMEOUT", &cfg.WriteTimeout},
		{"AQI_LIVE_HEARTBEAT_INTERVAL", &cfg.HeartbeatInterval},
		{"AQI_LIVE_HEARTBEAT_TIMEOUT", &cfg.HeartbeatTimeout},
	} {
		if v, ok := lookup(d.key); ok {
			parsed, err := time.ParseDuration(v)
			if err != nil || parsed <= 0 {
				return Config{}, fmt.Errorf("%s: must be a positive duration", d.key)
			}
			*d.dst = parsed
		}
	}
	return cfg, nil
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
