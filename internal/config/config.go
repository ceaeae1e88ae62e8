// Package config provides configuration management.
package config

import (
	stderrors "errors"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"tello-renewal/adapters/browser"
	"tello-renewal/adapters/email"
	"tello-renewal/core/renewal"
	apperrors "tello-renewal/internal/errors"
	"tello-renewal/internal/logging"
)

// DefaultPath is the config file used when --config is not given
const DefaultPath = "config/config.yaml"

// DotEnvFile is loaded into the environment before the config is read, if present
const DotEnvFile = ".env"

// Config is the main application configuration
type Config struct {
	// Tello holds the account being renewed
	Tello TelloConfig `mapstructure:"tello"`

	// SMTP is the relay used for notifications
	SMTP email.Config `mapstructure:"smtp"`

	Browser BrowserConfig `mapstructure:"browser"`

	Schedule ScheduleConfig `mapstructure:"schedule"`

	Metrics MetricsConfig `mapstructure:"metrics"`

	// Logging contains logging configuration
	Logging logging.Config `mapstructure:"logging"`
}

// TelloConfig contains the account credentials and payment card details
type TelloConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`

	// CardExpiration accepts any layout in cardExpirationLayouts
	CardExpiration time.Time `mapstructure:"card_expiration"`
}

// Account converts the section into what the renewal runner needs
func (t TelloConfig) Account() renewal.Account {
	return renewal.Account{Email: t.Email, Password: t.Password, CardExpiration: t.CardExpiration}
}

// BrowserConfig contains Chrome settings
type BrowserConfig struct {
	browser.Config `mapstructure:",squash"`

	// ElementTimeout bounds every wait for a page element
	ElementTimeout time.Duration `mapstructure:"element_timeout"`
}

// ScheduleConfig contains daemon settings
type ScheduleConfig struct {
	// Cron is a standard five field cron expression
	Cron string `mapstructure:"cron"`

	// Addr serves /health, /status and /metrics
	Addr string `mapstructure:"addr"`
}

// MetricsConfig contains metrics export settings
type MetricsConfig struct {
	// PushgatewayURL receives metrics after a one-shot run; empty disables pushing
	PushgatewayURL string `mapstructure:"pushgateway_url"`
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		SMTP: email.Config{Port: 587},
		Browser: BrowserConfig{
			Config:         browser.DefaultConfig(),
			ElementTimeout: renewal.DefaultElementTimeout,
		},
		Schedule: ScheduleConfig{
			Cron: "0 9 * * *",
			Addr: ":9090",
		},
		Logging: logging.DefaultConfig(),
	}
}

// keys lists every setting so that environment variables are seen even
// when the file does not mention them.
var keys = []string{
	"tello.email",
	"tello.password",
	"tello.card_expiration",
	"smtp.server",
	"smtp.port",
	"smtp.username",
	"smtp.password",
	"smtp.from_email",
	"browser.debugger_url",
	"browser.bin",
	"browser.headless",
	"browser.element_timeout",
	"schedule.cron",
	"schedule.addr",
	"metrics.pushgateway_url",
	"logging.level",
	"logging.format",
	"logging.output",
	"logging.development",
}

// Load reads path, then applies .env and environment overrides such as
// TELLO__EMAIL or SMTP__PASSWORD. A missing file is not an error; the
// result is validated either way.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.Config("read "+path, err)
	}

	return decode(v)
}

// LoadDotEnv exports the variables in path that are not already set.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperrors.Config("stat "+path, err)
	}
	if err := gotenv.Load(path); err != nil {
		return apperrors.Config("load "+path, err)
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()

	d := Default()
	v.SetDefault("smtp.port", d.SMTP.Port)
	v.SetDefault("browser.headless", d.Browser.Headless)
	v.SetDefault("browser.element_timeout", d.Browser.ElementTimeout)
	v.SetDefault("schedule.cron", d.Schedule.Cron)
	v.SetDefault("schedule.addr", d.Schedule.Addr)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.development", d.Logging.Development)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		cardExpirationHook(),
	)
	if err := v.Unmarshal(cfg, viper.DecodeHook(hook)); err != nil {
		if apperrors.IsType(err, apperrors.TypeConfig) {
			return nil, err
		}
		return nil, apperrors.Config("decode configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing required key at once.
func (c *Config) Validate() error {
	var missing []string
	require := func(key string, ok bool) {
		if !ok {
			missing = append(missing, key)
		}
	}
	require("tello.email", c.Tello.Email != "")
	require("tello.password", c.Tello.Password != "")
	require("tello.card_expiration", !c.Tello.CardExpiration.IsZero())
	require("smtp.server", c.SMTP.Server != "")
	require("smtp.port", c.SMTP.Port > 0)
	require("smtp.username", c.SMTP.Username != "")
	require("smtp.password", c.SMTP.Password != "")
	require("smtp.from_email", c.SMTP.FromEmail != "")

	if len(missing) > 0 {
		return apperrors.Newf(apperrors.TypeConfig, "missing required configuration: %s", strings.Join(missing, ", ")).
			WithContext("missing", missing)
	}
	if c.Browser.ElementTimeout <= 0 {
		return apperrors.Newf(apperrors.TypeConfig, "browser.element_timeout must be positive, got %s", c.Browser.ElementTimeout)
	}
	return nil
}

// cardExpirationLayouts are tried in order; the first match wins.
var cardExpirationLayouts = []string{
	"1/06",
	"1-06",
	"1/2006",
	"1-2006",
	"1/2/06",
	"1-2-06",
	"1/2/2006",
	"1-2-2006",
	"2006-1",
	"2006-1-2",
}

// ParseCardExpiration accepts month/year, month/day/year and year-month
// dates with either separator. Dates without a day fall on the first.
func ParseCardExpiration(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range cardExpirationLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperrors.Newf(apperrors.TypeConfig, "unrecognized card expiration date %q", s)
}

var timeType = reflect.TypeOf(time.Time{})

func cardExpirationHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != timeType {
			return data, nil
		}
		s := data.(string)
		if s == "" {
			return time.Time{}, nil
		}
		return ParseCardExpiration(s)
	}
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}
