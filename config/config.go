package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"paysession/templates"
)

// Default configuration values
const (
	DefaultPort              = "3000"
	DefaultDataDir           = "./data"
	DefaultProvider          = "api"
	DefaultPollInterval      = 5 * time.Second
	DefaultTickInterval      = time.Second
	DefaultFetchTimeout      = 10 * time.Second
	DefaultCancelTimeout     = 15 * time.Second
	DefaultQRLoadTimeout     = 1200 * time.Millisecond
	DefaultImageFetchTimeout = 10 * time.Second
	DefaultQRSize            = 256
)

// Config holds the application configuration
var Config templates.AppConfig

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"port":                "PORT",
	"dataDir":             "DATA_DIR",
	"logLevel":            "LOG_LEVEL",
	"logFormat":           "LOG_FORMAT",
	"provider":            "PAYMENT_PROVIDER",
	"paymentApiBaseUrl":   "PAYMENT_API_BASE_URL",
	"paymentApiKey":       "PAYMENT_API_KEY",
	"stripeSecretKey":     "STRIPE_SECRET_KEY",
	"stripeWebhookSecret": "STRIPE_WEBHOOK_SECRET",
	"publicUrl":           "PUBLIC_URL",
	"pollInterval":        "POLL_INTERVAL",
}

// DefaultPath returns the config file location under the data directory,
// honouring DATA_DIR.
func DefaultPath() string {
	dir := os.Getenv("DATA_DIR")
	if dir == "" {
		dir = DefaultDataDir
	}
	return filepath.Join(dir, "config.json")
}

// Load reads the JSON config file at path (a missing file is not an error),
// applies defaults and environment overrides, validates the result and
// stores it in Config.
func Load(path string) (templates.AppConfig, error) {
	v := viper.New()

	v.SetDefault("port", DefaultPort)
	v.SetDefault("dataDir", DefaultDataDir)
	v.SetDefault("logLevel", "info")
	v.SetDefault("logFormat", "text")
	v.SetDefault("provider", DefaultProvider)
	v.SetDefault("pollInterval", DefaultPollInterval)
	v.SetDefault("tickInterval", DefaultTickInterval)
	v.SetDefault("fetchTimeout", DefaultFetchTimeout)
	v.SetDefault("cancelTimeout", DefaultCancelTimeout)
	v.SetDefault("qrLoadTimeout", DefaultQRLoadTimeout)
	v.SetDefault("imageFetchTimeout", DefaultImageFetchTimeout)
	v.SetDefault("qrSize", DefaultQRSize)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return templates.AppConfig{}, fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
			return templates.AppConfig{}, fmt.Errorf("error reading configuration file: %w", err)
		}
	}

	var cfg templates.AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return templates.AppConfig{}, fmt.Errorf("error parsing configuration: %w", err)
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if err := validate(cfg); err != nil {
		return templates.AppConfig{}, err
	}

	Config = cfg
	return cfg, nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

func validate(cfg templates.AppConfig) error {
	switch cfg.Provider {
	case "api":
		if cfg.PaymentAPIBaseURL == "" {
			return errors.New("config: paymentApiBaseUrl (PAYMENT_API_BASE_URL) is required for the api provider")
		}
	case "stripe":
		if cfg.StripeSecretKey == "" {
			return errors.New("config: stripeSecretKey (STRIPE_SECRET_KEY) is required for the stripe provider")
		}
	default:
		return fmt.Errorf("config: unknown provider %q", cfg.Provider)
	}

	durations := map[string]time.Duration{
		"pollInterval":  cfg.PollInterval,
		"tickInterval":  cfg.TickInterval,
		"fetchTimeout":  cfg.FetchTimeout,
		"cancelTimeout": cfg.CancelTimeout,
		"qrLoadTimeout": cfg.QRLoadTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}
	if cfg.QRSize <= 0 {
		return errors.New("config: qrSize must be positive")
	}
	return nil
}

// GetStripeKey returns the Stripe API key, checking environment variable first
func GetStripeKey() string {
	if envKey := os.Getenv("STRIPE_SECRET_KEY"); envKey != "" {
		return envKey
	}
	return Config.StripeSecretKey
}

// GetStripeWebhookSecret returns the webhook signing secret, checking environment variable first
func GetStripeWebhookSecret() string {
	if envSecret := os.Getenv("STRIPE_WEBHOOK_SECRET"); envSecret != "" {
		return envSecret
	}
	return Config.StripeWebhookSecret
}
