package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/gaiatryst-synopsis/internal/coherence/providers"
	"github.com/i474232898/gaiatryst-synopsis/internal/lock"
)

const (
	ModeLocal      = "local"
	ModeProduction = "production"
)

// Default poll intervals per mode. The upstream chart refreshes twice a day.
const (
	LocalInterval      = 720 * time.Second
	ProductionInterval = 12 * time.Hour
)

var validate = validator.New()

type AppConfig struct {
	Mode string `validate:"oneof=local production"`

	// TargetURL is the chart page to scrape.
	TargetURL string `validate:"required,url"`

	// FetchInterval controls how often the chart is scraped.
	FetchInterval time.Duration `validate:"gt=0"`
	// FetchTimeout bounds navigation plus the wait for the chart to render.
	FetchTimeout time.Duration `validate:"gt=0"`
	// CycleTimeout bounds a whole fetch cycle including browser startup.
	CycleTimeout time.Duration `validate:"gtefield=FetchTimeout"`
	// FetchOnEmpty allows a synchronous fetch on read when nothing is cached.
	FetchOnEmpty bool

	BreakerMaxFailures int           `validate:"gte=1"`
	BreakerTimeout     time.Duration `validate:"gt=0"`

	ChromeBin       string
	ChromeRemoteURL string
	BlockResources  []string

	CSVPath  string `validate:"required"`
	LockPath string `validate:"required"`

	Port string `validate:"required,numeric"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=console json"`
}

// Load reads configuration from environment with sensible defaults. A .env
// file in the working directory is loaded first if present; variables
// already set in the environment win.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}

	cfg.Mode = strings.ToLower(getenvDefault("APP_MODE", ModeLocal))
	cfg.TargetURL = getenvDefault("TARGET_URL", providers.DefaultTargetURL)

	defInterval := LocalInterval
	if cfg.Mode == ModeProduction {
		defInterval = ProductionInterval
	}

	var err error
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", defInterval); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = getenvDuration("FETCH_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.CycleTimeout, err = getenvDuration("CYCLE_TIMEOUT", 90*time.Second); err != nil {
		return nil, err
	}
	if cfg.BreakerTimeout, err = getenvDuration("BREAKER_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}
	cfg.BreakerMaxFailures = getenvInt("BREAKER_MAX_FAILURES", 3)
	cfg.FetchOnEmpty = getenvBool("FETCH_ON_EMPTY", false)

	cfg.ChromeBin = os.Getenv("CHROME_BIN")
	cfg.ChromeRemoteURL = os.Getenv("CHROME_REMOTE_URL")
	cfg.BlockResources = splitList(getenvDefault("BLOCK_RESOURCES", "images,fonts,media"))

	cfg.CSVPath = getenvDefault("CSV_PATH", "gci_hourly_log_clean.csv")
	cfg.LockPath = getenvDefault("LOCK_PATH", lock.DefaultPath())
	cfg.Port = getenvDefault("PORT", "5002")

	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", "info"))
	cfg.LogFormat = strings.ToLower(getenvDefault("LOG_FORMAT", "console"))

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

// getenvDuration accepts Go durations ("12h") and bare seconds ("720").
func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
