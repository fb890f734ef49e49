package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/icdl/internal/types"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DefaultProfile != "default" {
		t.Errorf("Expected default profile 'default', got '%s'", cfg.DefaultProfile)
	}
	if cfg.Backend != "http" {
		t.Errorf("Expected backend 'http', got '%s'", cfg.Backend)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Expected concurrency 4, got %d", cfg.Concurrency)
	}
	if cfg.CacheTTL != 300 {
		t.Errorf("Expected cache TTL 300, got %d", cfg.CacheTTL)
	}
	if cfg.DuplicatePolicy != "first" {
		t.Errorf("Expected duplicate policy 'first', got '%s'", cfg.DuplicatePolicy)
	}
	if cfg.Verify {
		t.Error("Expected verify to be off by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{"invalid output format", func(c *Config) { c.DefaultOutputFormat = "xml" }, "invalid output format"},
		{"invalid backend", func(c *Config) { c.Backend = "ftp" }, "invalid backend"},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, "concurrency must be between"},
		{"concurrency too high", func(c *Config) { c.Concurrency = 33 }, "concurrency must be between"},
		{"negative cache TTL", func(c *Config) { c.CacheTTL = -1 }, "cache TTL must be non-negative"},
		{"max retries too high", func(c *Config) { c.MaxRetries = 11 }, "max retries must be between 0 and 10"},
		{"retry base delay too low", func(c *Config) { c.RetryBaseDelay = 50 }, "retry base delay must be between"},
		{"request timeout out of range", func(c *Config) { c.RequestTimeout = 3700 }, "request timeout must be between"},
		{"progress interval too low", func(c *Config) { c.ProgressInterval = 10 }, "progress interval"},
		{"invalid duplicate policy", func(c *Config) { c.DuplicatePolicy = "last" }, "invalid duplicate policy"},
		{"invalid log level", func(c *Config) { c.LogLevel = "loud" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Expected error containing '%s', got nil", tt.errorMsg)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestConfigDurationGetters(t *testing.T) {
	cfg := &Config{
		CacheTTL:         300,
		RetryBaseDelay:   1000,
		RequestTimeout:   60,
		ProgressInterval: 2000,
	}

	if d := cfg.GetCacheTTL(); d != 300*time.Second {
		t.Errorf("Expected cache TTL 300s, got %v", d)
	}
	if d := cfg.GetRetryBaseDelay(); d != 1000*time.Millisecond {
		t.Errorf("Expected retry base delay 1000ms, got %v", d)
	}
	if d := cfg.GetRequestTimeout(); d != 60*time.Second {
		t.Errorf("Expected request timeout 60s, got %v", d)
	}
	if d := cfg.GetProgressInterval(); d != 2*time.Second {
		t.Errorf("Expected progress interval 2s, got %v", d)
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ConfigFileName)

	cfg := DefaultConfig()
	cfg.DefaultProfile = "test-profile"
	cfg.Backend = "s3"
	cfg.Bucket = "photos-backup"
	cfg.Concurrency = 8
	cfg.Verify = true

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "test-profile" || loaded.Backend != "s3" || loaded.Bucket != "photos-backup" {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Concurrency != 8 || !loaded.Verify {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Concurrency != DefaultConfig().Concurrency {
		t.Errorf("Concurrency = %d", cfg.Concurrency)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected error for malformed config file")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	cfg := DefaultConfig()
	cfg.DefaultProfile = "file-profile"
	cfg.CacheTTL = 60
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ICDL_DEFAULT_PROFILE", "env-profile")
	t.Setenv("ICDL_CONCURRENCY", "12")
	t.Setenv("ICDL_VERIFY", "true")
	t.Setenv("ICDL_DUPLICATE_POLICY", "strict")
	t.Setenv("ICDL_DEFAULT_OUTPUT_FORMAT", "json")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "env-profile" {
		t.Errorf("DefaultProfile = %q", loaded.DefaultProfile)
	}
	if loaded.Concurrency != 12 {
		t.Errorf("Concurrency = %d", loaded.Concurrency)
	}
	if !loaded.Verify {
		t.Error("Expected verify from env")
	}
	if loaded.DuplicatePolicy != "strict" {
		t.Errorf("DuplicatePolicy = %q", loaded.DuplicatePolicy)
	}
	if loaded.DefaultOutputFormat != types.OutputFormatJSON {
		t.Errorf("DefaultOutputFormat = %q", loaded.DefaultOutputFormat)
	}
	// untouched by env
	if loaded.CacheTTL != 60 {
		t.Errorf("CacheTTL = %d, want file value 60", loaded.CacheTTL)
	}
}

func TestLoadFile_IgnoresEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	cfg := DefaultConfig()
	cfg.Concurrency = 6
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ICDL_CONCURRENCY", "12")

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if loaded.Concurrency != 6 {
		t.Errorf("Concurrency = %d, want file value 6", loaded.Concurrency)
	}

	missing, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadFile() on missing file error = %v", err)
	}
	if missing.Concurrency != DefaultConfig().Concurrency {
		t.Errorf("Concurrency = %d, want default", missing.Concurrency)
	}
}

func TestLoad_EnvInvalid(t *testing.T) {
	t.Setenv("ICDL_CONCURRENCY", "many")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("Expected error for non-numeric ICDL_CONCURRENCY")
	}
}

func TestGetConfigDir_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ICDL_CONFIG_DIR", dir)

	got, err := GetConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if got != dir {
		t.Errorf("GetConfigDir() = %q, want %q", got, dir)
	}
	journal, _ := GetJournalPath()
	if journal != filepath.Join(dir, JournalFileName) {
		t.Errorf("GetJournalPath() = %q", journal)
	}
}

func TestConfigSet(t *testing.T) {
	tests := []struct {
		key, value string
		wantErr    bool
		check      func(*Config) bool
	}{
		{"concurrency", "16", false, func(c *Config) bool { return c.Concurrency == 16 }},
		{"Concurrency", "64", true, nil},
		{"cacheTTL", "abc", true, nil},
		{"backend", "drive", false, func(c *Config) bool { return c.Backend == "drive" }},
		{"verify", "yes", false, func(c *Config) bool { return c.Verify }},
		{"duplicatePolicy", "strict", false, func(c *Config) bool { return c.DuplicatePolicy == "strict" }},
		{"logLevel", "chatty", true, nil},
		{"unknownKey", "1", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			cfg := DefaultConfig()
			before := *cfg
			err := cfg.Set(tt.key, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				if *cfg != before {
					t.Error("failed Set modified the config")
				}
				return
			}
			if err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if !tt.check(cfg) {
				t.Errorf("Set(%s, %s) not applied: %+v", tt.key, tt.value, cfg)
			}
		})
	}
}

func TestKeysAreSettable(t *testing.T) {
	for _, key := range Keys() {
		cfg := DefaultConfig()
		err := cfg.Set(key, "")
		if err != nil && strings.Contains(err.Error(), "unknown configuration key") {
			t.Errorf("Keys() lists %q but Set rejects it", key)
		}
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"off", false},
		{"", false},
		{"invalid", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseBool(tt.input); got != tt.want {
				t.Errorf("parseBool(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
