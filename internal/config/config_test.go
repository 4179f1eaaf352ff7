package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tachikoma-bot/tachikoma/internal/device"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TACHIKOMA_BASE_URL", "TACHIKOMA_LANGUAGE", "TACHIKOMA_DEVICE_TYPE",
		"TACHIKOMA_TIMEOUT", "TACHIKOMA_CLOCK_SKEW", "TACHIKOMA_CALLS_PER_MINUTE",
		"TACHIKOMA_RETRY_ATTEMPTS", "TACHIKOMA_LOG_LEVEL", "TACHIKOMA_LOG_FORMAT",
		"TACHIKOMA_LOG_OUTPUT", "TACHIKOMA_EMAIL", "TACHIKOMA_PASSWORD", "TACHIKOMA_AUTH",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadCreatesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "tachikoma", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != DefaultBaseURL || cfg.RateLimit.CallsPerMinute != 30 || cfg.Retry.MaxAttempts != 10 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("config mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestLoadMergesPartialFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "baseURL: http://localhost:9000\nrateLimit:\n  callsPerMinute: 5\ntimeout: 2s\n"
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "http://localhost:9000" || cfg.RateLimit.CallsPerMinute != 5 || cfg.Timeout != 2*time.Second {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Retry.MaxAttempts != 10 || cfg.RateLimit.Period != time.Minute {
		t.Fatalf("defaults lost for unset fields: %+v", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TACHIKOMA_BASE_URL", "http://fake:1")
	t.Setenv("TACHIKOMA_CALLS_PER_MINUTE", "12")
	t.Setenv("TACHIKOMA_CLOCK_SKEW", "-3s")
	t.Setenv("TACHIKOMA_EMAIL", "a@b.com")
	t.Setenv("TACHIKOMA_PASSWORD", "pw")

	cfg := Default()
	cfg.ApplyEnv()
	if cfg.BaseURL != "http://fake:1" || cfg.RateLimit.CallsPerMinute != 12 || cfg.ClockSkew != -3*time.Second {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if !cfg.Credentials.HasAccount() || cfg.Credentials.Password != "pw" {
		t.Fatalf("credentials = %+v", cfg.Credentials)
	}
}

func TestGetIntIgnoresGarbage(t *testing.T) {
	t.Setenv("X_INT", "nope")
	if v := getInt("X_INT", 7); v != 7 {
		t.Fatalf("want 7, got %d", v)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty base url": func(c *Config) { c.BaseURL = "" },
		"bad scheme":     func(c *Config) { c.BaseURL = "ftp://x" },
		"zero rate":      func(c *Config) { c.RateLimit.CallsPerMinute = 0 },
		"huge rate":      func(c *Config) { c.RateLimit.CallsPerMinute = 5000 },
		"no attempts":    func(c *Config) { c.Retry.MaxAttempts = 0 },
		"bad level":      func(c *Config) { c.Log.Level = "loud" },
		"bad format":     func(c *Config) { c.Log.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadDotEnvSkipsMissing(t *testing.T) {
	// godotenv never overrides a variable that is present, even if empty.
	t.Setenv("TACHIKOMA_AUTH", "")
	os.Unsetenv("TACHIKOMA_AUTH")
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("TACHIKOMA_AUTH=R0\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), envFile); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("TACHIKOMA_AUTH"); got != "R0" {
		t.Fatalf("TACHIKOMA_AUTH = %q", got)
	}
}

func TestDeviceStoreSealsRefreshToken(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenDeviceStore(dir)
	if err != nil {
		t.Fatalf("OpenDeviceStore: %v", err)
	}

	if _, ok, err := store.LoadDevice("default"); err != nil || ok {
		t.Fatalf("empty store returned ok=%v err=%v", ok, err)
	}

	d := device.New("en", "").WithPersister(store.Profile("default"))
	d.AcquireRefreshToken("super-secret-refresh")

	raw, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "super-secret-refresh") {
		t.Fatal("refresh token stored in plaintext")
	}

	reopened, err := OpenDeviceStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	st, ok, err := reopened.LoadDevice("default")
	if err != nil || !ok {
		t.Fatalf("LoadDevice ok=%v err=%v", ok, err)
	}
	if st.Key != d.Key() || st.RefreshToken != "super-secret-refresh" {
		t.Fatalf("loaded state = %+v", st)
	}
}

func TestVaultRejectsTampering(t *testing.T) {
	v, err := OpenVault(filepath.Join(t.TempDir(), "vault.salt"))
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := v.Seal("abc")
	if err != nil {
		t.Fatal(err)
	}
	if sealed == "abc" {
		t.Fatal("sealed value equals plaintext")
	}
	tampered := []byte(sealed)
	tampered[len(tampered)-2] ^= 0x01
	if _, err := v.Open(string(tampered)); err == nil {
		t.Fatal("expected error opening tampered value")
	}
	if out, err := v.Open(""); err != nil || out != "" {
		t.Fatalf("Open(\"\") = %q, %v", out, err)
	}
}
