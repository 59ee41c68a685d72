// Package config loads the top-up bot configuration from an optional YAML
// file, the process environment and built-in defaults, in that order of
// increasing precedence for the first two.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	coreconfig "github.com/m3rciful/topupbot/core/config"
	coredatabase "github.com/m3rciful/topupbot/core/database"
	"github.com/m3rciful/topupbot/internal/click"
)

const (
	// DefaultClickBaseURL is the merchant API root of the payment gateway.
	DefaultClickBaseURL = click.DefaultBaseURL
	// DefaultClickTimeout bounds every gateway call.
	DefaultClickTimeout = click.DefaultTimeout
	// DefaultLocale selects the reply language.
	DefaultLocale = "uz"
)

// ClickConfig holds the merchant credentials and endpoint of the payment gateway.
type ClickConfig struct {
	ServiceID      int64  `yaml:"service_id" envconfig:"SERVICE_ID" validate:"required,gt=0"`
	MerchantID     int64  `yaml:"merchant_id" envconfig:"MERCHANT_ID" validate:"required,gt=0"`
	MerchantUserID int64  `yaml:"merchant_user_id" envconfig:"MERCHANT_USER_ID" validate:"required,gt=0"`
	SecretKey      string `yaml:"secret_key" envconfig:"SECRET_KEY" validate:"required"`
	BaseURL        string `yaml:"base_url" envconfig:"CLICK_BASE_URL" validate:"omitempty,url"`
	TimeoutMS      int    `yaml:"timeout_ms" envconfig:"CLICK_TIMEOUT_MS" validate:"gte=0"`
}

// Timeout returns the configured call timeout or the default.
func (c ClickConfig) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return DefaultClickTimeout
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// MetricsConfig controls the Prometheus listener. A blank Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN" validate:"omitempty,hostname_port"`
}

// BotConfig carries conversation settings.
type BotConfig struct {
	Locale string `yaml:"locale" envconfig:"BOT_LOCALE" validate:"omitempty,oneof=uz en"`
}

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Click    ClickConfig         `yaml:"click"`
	Bot      BotConfig           `yaml:"bot"`
	Database coredatabase.Config `yaml:"database"`
	Metrics  MetricsConfig       `yaml:"metrics"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads path (optional), overlays the environment, validates the result and applies defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.ReadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}

	c.Click.SecretKey = strings.TrimSpace(c.Click.SecretKey)
	c.Click.BaseURL = strings.TrimRight(strings.TrimSpace(c.Click.BaseURL), "/")
	if c.Click.BaseURL == "" {
		c.Click.BaseURL = DefaultClickBaseURL
	}
	c.Bot.Locale = strings.ToLower(strings.TrimSpace(c.Bot.Locale))
	if c.Bot.Locale == "" {
		c.Bot.Locale = DefaultLocale
	}

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
