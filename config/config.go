package config

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/mailbridge/mailbridge/internal/logger"
	"github.com/mailbridge/mailbridge/internal/tracing"
)

type AppConfig struct {
	SenderAllowlist     []string `env:"SENDER_ALLOWLIST" envSeparator:","`
	PollIntervalSeconds int      `env:"POLL_INTERVAL_SECONDS" envDefault:"30"`
	MaxAttachmentMB     float64  `env:"MAX_ATTACHMENT_MB" envDefault:"25"`
	AttachmentsDir      string   `env:"ATTACHMENTS_DIR" envDefault:"attachments"`
}

type IMAPConfig struct {
	Host     string `env:"IMAP_HOST"`
	Port     int    `env:"IMAP_PORT" envDefault:"993"`
	TLS      bool   `env:"IMAP_TLS" envDefault:"true"`
	Username string `env:"IMAP_USERNAME"`
	Password string `env:"IMAP_PASSWORD"`
	Mailbox  string `env:"IMAP_MAILBOX" envDefault:"INBOX"`
}

type WhatsAppConfig struct {
	InstanceID         string `env:"WHATSAPP_INSTANCE_ID"`
	Token              string `env:"WHATSAPP_TOKEN"`
	APIBaseURL         string `env:"WHATSAPP_API_BASE_URL" envDefault:"https://api.green-api.com"`
	MediaBaseURL       string `env:"WHATSAPP_MEDIA_BASE_URL" envDefault:"https://media.green-api.com"`
	Destination        string `env:"WHATSAPP_DESTINATION"`
	DefaultCountryCode string `env:"DEFAULT_COUNTRY_CODE" envDefault:"62"`
}

type Config struct {
	AppConfig      *AppConfig
	IMAPConfig     *IMAPConfig
	WhatsAppConfig *WhatsAppConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
}

// Validate reports every missing required option at once so a broken
// deployment fails with a complete picture instead of one field per
// restart.
func (c *Config) Validate() error {
	var missing []string

	if c.IMAPConfig.Host == "" {
		missing = append(missing, "IMAP_HOST")
	}
	if c.IMAPConfig.Username == "" {
		missing = append(missing, "IMAP_USERNAME")
	}
	if c.IMAPConfig.Password == "" {
		missing = append(missing, "IMAP_PASSWORD")
	}
	if c.WhatsAppConfig.InstanceID == "" {
		missing = append(missing, "WHATSAPP_INSTANCE_ID")
	}
	if c.WhatsAppConfig.Token == "" {
		missing = append(missing, "WHATSAPP_TOKEN")
	}
	if c.WhatsAppConfig.Destination == "" {
		missing = append(missing, "WHATSAPP_DESTINATION")
	}

	if len(missing) > 0 {
		return errors.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
