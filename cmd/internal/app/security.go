package app

import (
	"errors"
	"fmt"

	"github.com/Emjay-16/aqi-project/cmd/internal/notify"
	"github.com/Emjay-16/aqi-project/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy.
//
// Fail-fast: a runtime that asked for HMAC-hashed verification tokens never
// starts with plain SHA-256, and half-configured SMTP never silently turns into
// log-only delivery.
func ValidateSecurityConfig(cfg Config, mail notify.Config) error {
	if cfg.RequireTokenHMAC {
		if _, err := token.HMACKeyFromEnv(token.MinHMACKeyBytes); err != nil {
			switch {
			case errors.Is(err, token.ErrHMACKeyMissing):
				return errors.New("security policy: AQI_REQUIRE_TOKEN_HMAC=true but AQI_TOKEN_HMAC_KEY is missing")
			case errors.Is(err, token.ErrHMACKeyTooShort):
				return fmt.Errorf("security policy: AQI_REQUIRE_TOKEN_HMAC=true but AQI_TOKEN_HMAC_KEY is too short (min %d bytes)", token.MinHMACKeyBytes)
			default:
				return err
			}
		}
		if !token.HMACEnabled() {
			return errors.New("security policy: AQI_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
		}
	}

	// Username without password (or the reverse) is a typo, not a request for log-only mail.
	if (mail.Username == "") != (mail.Password == "") {
		return errors.New("security policy: AQI_SMTP_USERNAME and AQI_SMTP_PASSWORD must be set together")
	}
	if mail.SMTPEnabled() && mail.From == "" {
		return errors.New("security policy: AQI_SMTP_FROM is required when SMTP is enabled")
	}

	return nil
}
