package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// secrets are the credential fields that may come from the environment
// instead of the config file, so the file can be committed without them.
type secrets struct {
	EmailPassword string `env:"NOTIFYD_EMAIL_PASSWORD"`
	SMSAuthToken  string `env:"NOTIFYD_SMS_AUTH_TOKEN"`
	TelegramToken string `env:"NOTIFYD_TELEGRAM_TOKEN"`
}

// ApplyEnv overlays environment-provided secrets onto cfg. An env value
// only applies when its channel section exists; a secret for an
// unconfigured channel is rejected as a likely misconfiguration.
func ApplyEnv(cfg *Config) error {
	var s secrets
	if err := env.Parse(&s); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if v := strings.TrimSpace(s.EmailPassword); v != "" {
		if cfg.Email == nil {
			return fmt.Errorf("NOTIFYD_EMAIL_PASSWORD set but email channel is not configured")
		}
		cfg.Email.Password = v
	}
	if v := strings.TrimSpace(s.SMSAuthToken); v != "" {
		if cfg.SMS == nil {
			return fmt.Errorf("NOTIFYD_SMS_AUTH_TOKEN set but sms channel is not configured")
		}
		cfg.SMS.AuthToken = v
	}
	if v := strings.TrimSpace(s.TelegramToken); v != "" {
		if cfg.Telegram == nil {
			return fmt.Errorf("NOTIFYD_TELEGRAM_TOKEN set but telegram channel is not configured")
		}
		cfg.Telegram.Token = v
	}
	return nil
}
