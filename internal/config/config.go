package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Store variants backing the todo and category repositories.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRemote = "remote"
)

// What happens to todos that reference a deleted category.
const (
	CategoryPolicyFallback = "fallback"
	CategoryPolicyCascade  = "cascade"
)

const (
	DefaultFileName = "flowtask.toml"
	defaultDBName   = "flowtask.db"
)

// Config keeps runtime settings for the bot.
type Config struct {
	TelegramToken  string
	DatabaseURL    string
	Store          string
	Seed           bool
	MockDelay      time.Duration
	Remote         RemoteConfig
	RequestTimeout time.Duration
	PersistOrder   bool
	CategoryPolicy string
	DigestInterval time.Duration
	DigestAt       string
	LogLevel       string
	LogFormat      string
}

// RemoteConfig addresses the record store used by the remote variant.
type RemoteConfig struct {
	BaseURL   string
	ProjectID string
	PublicKey string
	PageSize  int
}

// fileConfig mirrors the TOML file. Durations are strings like "250ms".
type fileConfig struct {
	TelegramToken       string  `toml:"telegram_token"`
	DatabaseURL         string  `toml:"database_url"`
	Store               string  `toml:"store"`
	Seed                *bool   `toml:"seed"`
	MockDelay           string  `toml:"mock_delay"`
	RemoteURL           string  `toml:"remote_url"`
	ProjectID           string  `toml:"project_id"`
	PublicKey           string  `toml:"public_key"`
	PageSize            int     `toml:"page_size"`
	RequestTimeout      string  `toml:"request_timeout"`
	PersistOrder        *bool   `toml:"persist_order"`
	CategoryPolicy      string  `toml:"category_policy"`
	DigestIntervalHours int     `toml:"digest_interval_hours"`
	DigestAt            *string `toml:"digest_at"`
	LogLevel            string  `toml:"log_level"`
	LogFormat           string  `toml:"log_format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		DatabaseURL:    defaultDBName,
		Store:          StoreMemory,
		Seed:           true,
		MockDelay:      250 * time.Millisecond,
		Remote:         RemoteConfig{PageSize: 100},
		CategoryPolicy: CategoryPolicyFallback,
		DigestAt:       "09:00",
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// Load reads the optional TOML file then environment variables over defaults.
// FLOWTASK_CONFIG names the file explicitly; otherwise flowtask.toml is used if present.
func Load() (Config, error) {
	path := strings.TrimSpace(os.Getenv("FLOWTASK_CONFIG"))
	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}
	return LoadFrom(path, explicit, os.Getenv)
}

// LoadFrom is Load with an injectable file path and environment lookup.
func LoadFrom(path string, mustExist bool, getenv func(string) string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := applyFile(&cfg, data); err != nil {
				return cfg, fmt.Errorf("config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !mustExist:
		default:
			return cfg, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func applyFile(cfg *Config, data []byte) error {
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return err
	}

	setString(&cfg.TelegramToken, fc.TelegramToken)
	setString(&cfg.DatabaseURL, fc.DatabaseURL)
	setString(&cfg.Store, fc.Store)
	setString(&cfg.Remote.BaseURL, fc.RemoteURL)
	setString(&cfg.Remote.ProjectID, fc.ProjectID)
	setString(&cfg.Remote.PublicKey, fc.PublicKey)
	setString(&cfg.CategoryPolicy, fc.CategoryPolicy)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)
	if fc.Seed != nil {
		cfg.Seed = *fc.Seed
	}
	if fc.PersistOrder != nil {
		cfg.PersistOrder = *fc.PersistOrder
	}
	if fc.DigestAt != nil {
		cfg.DigestAt = strings.TrimSpace(*fc.DigestAt)
	}
	if fc.PageSize > 0 {
		cfg.Remote.PageSize = fc.PageSize
	}
	if fc.DigestIntervalHours > 0 {
		cfg.DigestInterval = time.Duration(fc.DigestIntervalHours) * time.Hour
	}
	if err := setDuration(&cfg.MockDelay, "mock_delay", fc.MockDelay); err != nil {
		return err
	}
	return setDuration(&cfg.RequestTimeout, "request_timeout", fc.RequestTimeout)
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }

	setString(&cfg.TelegramToken, env("TELEGRAM_TOKEN"))
	setString(&cfg.DatabaseURL, env("DATABASE_URL"))
	setString(&cfg.Store, env("FLOWTASK_STORE"))
	setString(&cfg.Remote.BaseURL, env("RECORDSTORE_URL"))
	setString(&cfg.Remote.ProjectID, env("RECORDSTORE_PROJECT_ID"))
	setString(&cfg.Remote.PublicKey, env("RECORDSTORE_PUBLIC_KEY"))
	setString(&cfg.CategoryPolicy, env("FLOWTASK_CATEGORY_POLICY"))
	setString(&cfg.LogLevel, env("LOG_LEVEL"))
	setString(&cfg.LogFormat, env("LOG_FORMAT"))

	if raw, ok := lookup(getenv, "DIGEST_AT"); ok {
		cfg.DigestAt = raw
	}
	if err := setBool(&cfg.Seed, "FLOWTASK_SEED", env("FLOWTASK_SEED")); err != nil {
		return err
	}
	if err := setBool(&cfg.PersistOrder, "FLOWTASK_PERSIST_ORDER", env("FLOWTASK_PERSIST_ORDER")); err != nil {
		return err
	}
	if err := setDuration(&cfg.MockDelay, "FLOWTASK_MOCK_DELAY", env("FLOWTASK_MOCK_DELAY")); err != nil {
		return err
	}
	if err := setDuration(&cfg.RequestTimeout, "FLOWTASK_REQUEST_TIMEOUT", env("FLOWTASK_REQUEST_TIMEOUT")); err != nil {
		return err
	}
	if raw := env("RECORDSTORE_PAGE_SIZE"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return fmt.Errorf("RECORDSTORE_PAGE_SIZE must be a positive integer, got %q", raw)
		}
		cfg.Remote.PageSize = size
	}
	cfg.DigestInterval = parseInterval(env("DIGEST_INTERVAL_HOURS"), cfg.DigestInterval)
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	switch c.Store {
	case StoreMemory, StoreSQLite:
	case StoreRemote:
		if c.Remote.BaseURL == "" {
			return fmt.Errorf("RECORDSTORE_URL is required for store %q", StoreRemote)
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	switch c.CategoryPolicy {
	case CategoryPolicyFallback, CategoryPolicyCascade:
	default:
		return fmt.Errorf("unknown category policy %q", c.CategoryPolicy)
	}
	if c.DigestAt != "" {
		if _, _, err := ParseClock(c.DigestAt); err != nil {
			return err
		}
	}
	return nil
}

// ParseClock parses an HH:MM time of day.
func ParseClock(value string) (hour, minute int, err error) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hour, minute, nil
}

func parseInterval(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return fallback
	}
	return hours
}

func lookup(getenv func(string) string, key string) (string, bool) {
	raw := getenv(key)
	if raw == "" {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	if raw == "-" || strings.EqualFold(raw, "off") {
		return "", true
	}
	return raw, true
}

func setString(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}

func setBool(dst *bool, name, raw string) error {
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("%s must be a boolean, got %q", name, raw)
	}
	*dst = value
	return nil
}

func setDuration(dst *time.Duration, name, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value < 0 {
		return fmt.Errorf("%s must be a non-negative duration, got %q", name, raw)
	}
	*dst = value
	return nil
}
