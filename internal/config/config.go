package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Port     string `mapstructure:"PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Trip planner backend.
	BackendURL     string        `mapstructure:"BACKEND_URL"`
	HTTPTimeout    time.Duration `mapstructure:"HTTP_TIMEOUT"`
	RateLimit      float64       `mapstructure:"BACKEND_RATE_LIMIT"`
	RateBurst      int           `mapstructure:"BACKEND_RATE_BURST"`
	MaxRetries     int           `mapstructure:"BACKEND_MAX_RETRIES"`
	RetryBaseDelay time.Duration `mapstructure:"BACKEND_RETRY_DELAY"`

	// Open-Meteo answers forecasts while the backend is unreachable.
	OpenMeteoFallback bool   `mapstructure:"OPENMETEO_FALLBACK"`
	OpenMeteoURL      string `mapstructure:"OPENMETEO_URL"`

	// Board behaviour.
	BoardLimit     int    `mapstructure:"BOARD_LIMIT"`
	BoardMode      string `mapstructure:"BOARD_MODE"`
	PinnedName     string `mapstructure:"PINNED_NAME"`
	DayWidth       int    `mapstructure:"DAY_WIDTH"`
	MaxVisibleDays int    `mapstructure:"MAX_VISIBLE_DAYS"`

	// In-memory board retention.
	MaxBoards   int           `mapstructure:"MAX_BOARDS"`   // 0 = unlimited
	BoardMaxAge time.Duration `mapstructure:"BOARD_MAX_AGE"` // idle time before pruning

	// RefreshInterval controls how often board forecasts are refreshed.
	RefreshInterval time.Duration `mapstructure:"REFRESH_INTERVAL"`
	RefreshTimeout  time.Duration `mapstructure:"REFRESH_TIMEOUT"`

	// Seeding.
	SeedCount         int    `mapstructure:"SEED_COUNT"`
	SeedCities        string `mapstructure:"SEED_CITIES"` // "|"-separated
	GoogleGeocoderKey string `mapstructure:"GOOGLE_GEOCODER_API_KEY"`
}

var defaults = map[string]any{
	"PORT":                    "8080",
	"LOG_LEVEL":               "info",
	"BACKEND_URL":             "http://localhost:3000",
	"HTTP_TIMEOUT":            "15s",
	"BACKEND_RATE_LIMIT":      10.0,
	"BACKEND_RATE_BURST":      5,
	"BACKEND_MAX_RETRIES":     2,
	"BACKEND_RETRY_DELAY":     "300ms",
	"OPENMETEO_FALLBACK":      true,
	"OPENMETEO_URL":           "https://api.open-meteo.com/v1/forecast",
	"BOARD_LIMIT":             5,
	"BOARD_MODE":              "newestTop",
	"PINNED_NAME":             "Your Location",
	"DAY_WIDTH":               160,
	"MAX_VISIBLE_DAYS":        5,
	"MAX_BOARDS":              1000,
	"BOARD_MAX_AGE":           "24h",
	"REFRESH_INTERVAL":        "15m",
	"REFRESH_TIMEOUT":         "30s",
	"SEED_COUNT":              5,
	"SEED_CITIES":             "",
	"GOOGLE_GEOCODER_API_KEY": "",
}

var validModes = []string{"append", "newestTop", "pinFirst"}

// Load reads configuration from .env, an optional CONFIG_FILE and the
// environment, in increasing precedence, with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	var errs []error
	if c.BoardLimit < 0 {
		errs = append(errs, fmt.Errorf("BOARD_LIMIT must not be negative, got %d", c.BoardLimit))
	}
	if !contains(validModes, c.BoardMode) {
		errs = append(errs, fmt.Errorf("BOARD_MODE must be one of %s, got %q", strings.Join(validModes, ", "), c.BoardMode))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout))
	}
	if c.DayWidth <= 0 || c.MaxVisibleDays <= 0 {
		errs = append(errs, errors.New("DAY_WIDTH and MAX_VISIBLE_DAYS must be positive"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL: %w", err))
	}
	return errors.Join(errs...)
}

// Cities returns the configured seed cities, nil when unset.
func (c *AppConfig) Cities() []string {
	var out []string
	for _, city := range strings.Split(c.SeedCities, "|") {
		if city = strings.TrimSpace(city); city != "" {
			out = append(out, city)
		}
	}
	return out
}

// Level returns the configured log level.
func (c *AppConfig) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
