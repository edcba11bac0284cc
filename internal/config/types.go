package config

import (
	"fmt"
	"strings"

	"notifyd/internal/notification"
)

// Config is the on-disk configuration. JSON and YAML are both accepted;
// YAML is coerced to JSON bytes and decoded strictly, so unknown fields are
// rejected in either format.
//
// All durations are Go duration strings (e.g. "500ms", "1s", "1m").
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Delivery DeliveryConfig `json:"delivery"`

	// Channel sections are optional: an omitted section means the channel
	// is not configured and its provider is not registered.
	Email    *EmailConfig    `json:"email,omitempty"`
	SMS      *SMSConfig      `json:"sms,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`

	Storage  *StorageConfig  `json:"storage,omitempty"`
	Schedule *ScheduleConfig `json:"schedule,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// DeliveryConfig carries the orchestrator and dispatcher defaults.
//
// Defaults (when fields are omitted/zero): max_retries 3, retry_delay "1s",
// max_concurrent 10, send_timeout "30s", rate_per_sec 0 (disabled).
type DeliveryConfig struct {
	ProviderOrder []string `json:"provider_order"`
	MaxRetries    int      `json:"max_retries,omitempty"`
	RetryDelay    string   `json:"retry_delay,omitempty"`
	MaxConcurrent int      `json:"max_concurrent,omitempty"`
	SendTimeout   string   `json:"send_timeout,omitempty"`
	RatePerSec    int      `json:"rate_per_sec,omitempty"`
}

type EmailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	From     string `json:"from"`
	STARTTLS bool   `json:"starttls"`
}

type SMSConfig struct {
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"auth_token,omitempty"`
	FromNumber string `json:"from_number"`
}

type TelegramConfig struct {
	Token   string `json:"token,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// ScheduleConfig defines recurring notifications.
type ScheduleConfig struct {
	Enabled  bool          `json:"enabled"`
	Timezone string        `json:"timezone,omitempty"`
	Jobs     []ScheduleJob `json:"jobs,omitempty"`
}

// ScheduleJob fires one bulk dispatch per cron trigger.
type ScheduleJob struct {
	Name       string                   `json:"name"`
	Spec       string                   `json:"spec"` // 5-field or 6-field (seconds) cron
	Strategy   string                   `json:"strategy,omitempty"`
	Message    notification.Message     `json:"message"`
	Recipients []notification.Recipient `json:"recipients"`
}

// Validate applies the structural checks that don't need provider code:
// at least one configured channel, a non-empty provider order referencing
// only configured channels, and well-formed schedule jobs.
func (c *Config) Validate() error {
	configured := map[string]bool{}
	if c.Email != nil {
		configured[notification.ChannelEmail] = true
	}
	if c.SMS != nil {
		configured[notification.ChannelSMS] = true
	}
	if c.Telegram != nil {
		configured[notification.ChannelTelegram] = true
	}
	if len(configured) == 0 {
		return fmt.Errorf("no channels configured")
	}

	if len(c.Delivery.ProviderOrder) == 0 {
		return fmt.Errorf("delivery.provider_order is empty")
	}
	for _, name := range c.Delivery.ProviderOrder {
		if !configured[strings.ToLower(strings.TrimSpace(name))] {
			return fmt.Errorf("delivery.provider_order references unconfigured channel %q", name)
		}
	}

	if c.Schedule != nil {
		for i, j := range c.Schedule.Jobs {
			if strings.TrimSpace(j.Name) == "" {
				return fmt.Errorf("schedule.jobs[%d]: name is empty", i)
			}
			if strings.TrimSpace(j.Spec) == "" {
				return fmt.Errorf("schedule.jobs[%d] (%s): spec is empty", i, j.Name)
			}
			if len(j.Recipients) == 0 {
				return fmt.Errorf("schedule.jobs[%d] (%s): no recipients", i, j.Name)
			}
		}
	}
	return nil
}
