package notify

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultSMTPHost    = "smtp.gmail.com"
	defaultSMTPPort    = 587
	defaultQueueSize   = 256
	defaultSendTimeout = 15 * time.Second
)

// Config controls verification email delivery.
type Config struct {
	// SMTP transport. SMTP is used only when Username and Password are both set.
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// VerifyBaseURL is prefixed to "/verify-email?token=..." in the email body.
	VerifyBaseURL string

	QueueSize   int
	SendTimeout time.Duration
}

// SMTPEnabled reports whether the config carries SMTP credentials.
func (c Config) SMTPEnabled() bool {
	return strings.TrimSpace(c.Username) != "" && c.Password != ""
}

// DefaultConfig returns a log-only configuration.
func DefaultConfig() Config {
	return Config{
		Host:        defaultSMTPHost,
		Port:        defaultSMTPPort,
		QueueSize:   defaultQueueSize,
		SendTimeout: defaultSendTimeout,
	}
}

// FromEnv loads notifier config.
//
// Env surface:
// - AQI_SMTP_HOST, AQI_SMTP_PORT, AQI_SMTP_USERNAME, AQI_SMTP_PASSWORD, AQI_SMTP_FROM
// - AQI_NOTIFY_VERIFY_BASE_URL
// - AQI_NOTIFY_QUEUE_SIZE, AQI_NOTIFY_SEND_TIMEOUT
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("AQI_SMTP_HOST")); v != "" {
		cfg.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("AQI_SMTP_PORT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 65535 {
			return Config{}, fmt.Errorf("AQI_SMTP_PORT: invalid port %q", v)
		}
		cfg.Port = n
	}
	cfg.Username = strings.TrimSpace(os.Getenv("AQI_SMTP_USERNAME"))
	cfg.Password = os.Getenv("AQI_SMTP_PASSWORD")
	cfg.From = strings.TrimSpace(os.Getenv("AQI_SMTP_FROM"))
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	cfg.VerifyBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("AQI_NOTIFY_VERIFY_BASE_URL")), "/")

	if v := strings.TrimSpace(os.Getenv("AQI_NOTIFY_QUEUE_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("AQI_NOTIFY_QUEUE_SIZE: invalid size %q", v)
		}
		cfg.QueueSize = n
	}
	if v := strings.TrimSpace(os.Getenv("AQI_NOTIFY_SEND_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("AQI_NOTIFY_SEND_TIMEOUT: invalid duration %q", v)
		}
		cfg.SendTimeout = d
	}

	if cfg.SMTPEnabled() && cfg.From == "" {
		return Config{}, fmt.Errorf("AQI_SMTP_FROM: required when SMTP is enabled")
	}
	return cfg, nil
}
