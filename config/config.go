// Package config loads the bot's configuration: a YAML file layered over
// Default, then environment overrides for secrets and deployment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"telegram-store-bot/orders"
)

type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	AdminID  int64          `yaml:"admin_id"`
	LogLevel string         `yaml:"log_level"`
	Database DatabaseConfig `yaml:"database"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	HTTP     HTTPConfig     `yaml:"http"`
	Payment  PaymentConfig  `yaml:"payment"`
	Locale   LocaleConfig   `yaml:"locale"`
	Sweep    SweepConfig    `yaml:"sweep"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`
	// PollTimeout is the long-poll timeout in seconds.
	PollTimeout int  `yaml:"poll_timeout"`
	Debug       bool `yaml:"debug"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type CatalogConfig struct {
	// File is imported at startup when set. Existing products are kept.
	File string `yaml:"file,omitempty"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type PaymentConfig struct {
	Instructions string `yaml:"instructions"`
}

type LocaleConfig struct {
	Default string `yaml:"default"`
}

type SweepConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	MaxAge   time.Duration `yaml:"max_age"`
	Policy   string        `yaml:"policy"`
}

func Default() Config {
	return Config{
		Telegram: TelegramConfig{PollTimeout: 60},
		LogLevel: "info",
		Database: DatabaseConfig{Path: "store.db"},
		HTTP:     HTTPConfig{Addr: ":8080"},
		Locale:   LocaleConfig{Default: "en"},
		Sweep: SweepConfig{
			Interval: 10 * time.Minute,
			MaxAge:   24 * time.Hour,
			Policy:   string(orders.SweepRemind),
		},
	}
}

// Load reads path (if non-empty) over Default and applies environment
// overrides from getenv. It does not validate.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	env := func(k string) string { return strings.TrimSpace(getenv(k)) }

	if v := env("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := env("ADMIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: ADMIN_ID %q: %w", v, err)
		}
		c.AdminID = id
	}
	if v := env("DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := env("PORT"); v != "" {
		c.HTTP.Addr = ":" + v
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram token is required (TELEGRAM_BOT_TOKEN)"))
	}
	if c.Telegram.PollTimeout < 0 {
		errs = append(errs, errors.New("telegram.poll_timeout must not be negative"))
	}
	if c.AdminID == 0 {
		errs = append(errs, errors.New("admin_id is required (ADMIN_ID)"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Sweep.Interval <= 0 {
		errs = append(errs, errors.New("sweep.interval must be positive"))
	}
	if c.Sweep.MaxAge <= 0 {
		errs = append(errs, errors.New("sweep.max_age must be positive"))
	}
	if _, err := orders.ParseSweepPolicy(c.Sweep.Policy); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
