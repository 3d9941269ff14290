package telemetry

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	DefaultTimezone = "Asia/Bangkok"
	DefaultWindow   = time.Hour
	DefaultTimeout  = 10 * time.Second
)

// Config holds the InfluxDB connection and query settings.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	// Location renders query timestamps.
	Location *time.Location
	// Window is how far back Recent looks.
	Window time.Duration
	// Timeout bounds each write or query.
	Timeout time.Duration
}

// Enabled reports whether enough is configured to talk to InfluxDB.
func (c Config) Enabled() bool {
	return c.URL != "" && c.Token != "" && c.Org != "" && c.Bucket != ""
}

// FromEnv loads telemetry settings.
//
// Env surface:
// - AQI_INFLUXDB_URL, AQI_INFLUXDB_TOKEN, AQI_INFLUXDB_ORG, AQI_INFLUXDB_BUCKET
// - AQI_TELEMETRY_TIMEZONE (IANA name)
// - AQI_TELEMETRY_WINDOW, AQI_TELEMETRY_TIMEOUT (Go durations)
func FromEnv() (Config, error) {
	cfg := Config{
		URL:     strings.TrimRight(strings.TrimSpace(os.Getenv("AQI_INFLUXDB_URL")), "/"),
		Token:   strings.TrimSpace(os.Getenv("AQI_INFLUXDB_TOKEN")),
		Org:     strings.TrimSpace(os.Getenv("AQI_INFLUXDB_ORG")),
		Bucket:  strings.TrimSpace(os.Getenv("AQI_INFLUXDB_BUCKET")),
		Window:  DefaultWindow,
		Timeout: DefaultTimeout,
	}

	tz := strings.TrimSpace(os.Getenv("AQI_TELEMETRY_TIMEZONE"))
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Config{}, fmt.Errorf("AQI_TELEMETRY_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	if v := strings.TrimSpace(os.Getenv("AQI_TELEMETRY_WINDOW")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < time.Second {
			return Config{}, fmt.Errorf("AQI_TELEMETRY_WINDOW: must be a duration >= 1s")
		}
		cfg.Window = d
	}
	if v := strings.TrimSpace(os.Getenv("AQI_TELEMETRY_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("AQI_TELEMETRY_TIMEOUT: must be a positive duration")
		}
		cfg.Timeout = d
	}

	partial := cfg.URL != "" || cfg.Token != "" || cfg.Org != "" || cfg.Bucket != ""
	if partial && !cfg.Enabled() {
		return Config{}, fmt.Errorf("AQI_INFLUXDB_*: url, token, org and bucket must all be set")
	}
	return cfg, nil
}
