// Package config loads the bot's settings from a YAML file, a .env file and
// TACHIKOMA_* environment variables, and persists device state between runs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/tachikoma-bot/tachikoma/internal/checksum"
	"github.com/tachikoma-bot/tachikoma/internal/device"
	"github.com/tachikoma-bot/tachikoma/internal/logging"
)

const appDir = "tachikoma"

// DefaultBaseURL is the production game API.
const DefaultBaseURL = "https://api.pixelstarships.com"

// Config is the complete configuration file structure.
type Config struct {
	BaseURL           string            `yaml:"baseURL"`
	LanguageKey       string            `yaml:"languageKey"`
	DeviceType        string            `yaml:"deviceType"`
	Timeout           time.Duration     `yaml:"timeout"`
	ClockSkew         time.Duration     `yaml:"clockSkew"`
	HeartbeatInterval time.Duration     `yaml:"heartbeatInterval"`
	RateLimit         RateLimitConfig   `yaml:"rateLimit"`
	Retry             RetryConfig       `yaml:"retry"`
	Checksum          ChecksumConfig    `yaml:"checksum"`
	Headers           map[string]string `yaml:"headers"`
	Log               LogConfig         `yaml:"log"`
	Starbux           StarbuxConfig     `yaml:"starbux"`

	// Credentials only ever come from the environment or a prompt.
	Credentials Credentials `yaml:"-"`
}

type RateLimitConfig struct {
	CallsPerMinute int           `yaml:"callsPerMinute"`
	Period         time.Duration `yaml:"period"`
}

type RetryConfig struct {
	MaxAttempts   int           `yaml:"maxAttempts"`
	BackoffFactor time.Duration `yaml:"backoffFactor"`
	MaxBackoff    time.Duration `yaml:"maxBackoff"`
	Statuses      []int         `yaml:"statuses"`
}

type ChecksumConfig struct {
	Key  string `yaml:"key"`
	Salt string `yaml:"salt"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

type StarbuxConfig struct {
	Max      int           `yaml:"max"`
	Cooldown time.Duration `yaml:"cooldown"`
}

// Credentials hold the account a session logs in as. All empty means guest.
type Credentials struct {
	Email      string
	Password   string
	AuthString string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseURL:           DefaultBaseURL,
		LanguageKey:       device.DefaultLanguage,
		DeviceType:        device.DefaultType,
		Timeout:           5 * time.Second,
		HeartbeatInterval: 60 * time.Second,
		RateLimit: RateLimitConfig{
			CallsPerMinute: 30,
			Period:         time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts:   10,
			BackoffFactor: time.Second,
			MaxBackoff:    120 * time.Second,
			Statuses:      []int{500, 502, 503, 504, 520},
		},
		Checksum: ChecksumConfig{
			Key:  checksum.DefaultKey,
			Salt: checksum.DefaultSalt,
		},
		Headers: map[string]string{
			"Accept":          "*/*",
			"Accept-Encoding": "identity",
			"User-Agent":      "UnityPlayer/5.6.0f3 (UnityWebRequest/1.0, libcurl/7.51.0-DEV)",
			"X-Unity-Version": "5.6.0f3",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
			File:   "tachikoma.log",
		},
		Starbux: StarbuxConfig{
			Max:      10,
			Cooldown: 180 * time.Second,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/tachikoma/config.yaml, falling back to ~/.config.
func DefaultPath() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appDir, "config.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", appDir, "config.yaml"), nil
}

// DataDir returns $XDG_DATA_HOME/tachikoma, falling back to ~/.local/share.
func DataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appDir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", appDir), nil
}

// LoadDotEnv loads the given .env files into the process environment. Missing
// files are skipped; variables already set are never overwritten.
func LoadDotEnv(files ...string) error {
	existing := lo.Filter(files, func(f string, _ int) bool {
		_, err := os.Stat(f)
		return err == nil
	})
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// Load reads the configuration at path, writing defaults there when the file
// does not exist, then applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	log := logging.GetConfigLogger()
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Info("Creating default configuration", "path", path)
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to create default configuration: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file: %w", err)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Debug("Configuration loaded", "path", path, "baseURL", cfg.BaseURL)
	return cfg, nil
}

// Save writes cfg to path with owner-only permissions.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from TACHIKOMA_* variables.
func (c *Config) ApplyEnv() {
	c.BaseURL = getEnv("TACHIKOMA_BASE_URL", c.BaseURL)
	c.LanguageKey = getEnv("TACHIKOMA_LANGUAGE", c.LanguageKey)
	c.DeviceType = getEnv("TACHIKOMA_DEVICE_TYPE", c.DeviceType)
	c.Timeout = getDuration("TACHIKOMA_TIMEOUT", c.Timeout)
	c.ClockSkew = getDuration("TACHIKOMA_CLOCK_SKEW", c.ClockSkew)
	c.RateLimit.CallsPerMinute = getInt("TACHIKOMA_CALLS_PER_MINUTE", c.RateLimit.CallsPerMinute)
	c.Retry.MaxAttempts = getInt("TACHIKOMA_RETRY_ATTEMPTS", c.Retry.MaxAttempts)
	c.Log.Level = getEnv("TACHIKOMA_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("TACHIKOMA_LOG_FORMAT", c.Log.Format)
	c.Log.Output = getEnv("TACHIKOMA_LOG_OUTPUT", c.Log.Output)

	c.Credentials.Email = getEnv("TACHIKOMA_EMAIL", c.Credentials.Email)
	c.Credentials.Password = getEnv("TACHIKOMA_PASSWORD", c.Credentials.Password)
	c.Credentials.AuthString = getEnv("TACHIKOMA_AUTH", c.Credentials.AuthString)
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("baseURL cannot be empty")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("baseURL must start with http:// or https://: %s", c.BaseURL)
	}
	if c.RateLimit.CallsPerMinute < 1 || c.RateLimit.CallsPerMinute > 1000 {
		return fmt.Errorf("rateLimit.callsPerMinute must be between 1 and 1000, got %d", c.RateLimit.CallsPerMinute)
	}
	if c.RateLimit.Period <= 0 {
		return fmt.Errorf("rateLimit.period must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.maxAttempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// LoggingConfig converts the log section into a logging.Config.
func (c *Config) LoggingConfig() logging.Config {
	level, _ := logging.ParseLevel(c.Log.Level)
	return logging.Config{
		Level:  level,
		Format: c.Log.Format,
		Output: c.Log.Output,
		File:   c.Log.File,
	}
}

// HasAccount reports whether credentials for a registered account are present.
func (c Credentials) HasAccount() bool {
	return c.Email != "" || c.AuthString != ""
}

func getEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	return lo.Ternary(v != "", v, def)
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
