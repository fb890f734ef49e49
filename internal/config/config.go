package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dl-alexandre/icdl/internal/utils"
	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"
	// JournalFileName is the run journal inside the config directory
	JournalFileName = "journal.db"
	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "ICDL"
)

// Config holds application configuration. Every field can be overridden by
// an ICDL_ environment variable named after it in upper snake case
// (ICDL_CACHE_TTL, ICDL_DEFAULT_OUTPUT_FORMAT, ...).
type Config struct {
	// DefaultProfile is the token profile used when --profile is not given
	DefaultProfile string `json:"defaultProfile" split_words:"true"`

	// Backend selects the remote session implementation (http, drive, s3)
	Backend string `json:"backend" split_words:"true"`

	// Endpoint is the base URL of the http backend
	Endpoint string `json:"endpoint,omitempty" split_words:"true"`

	// Bucket and Region configure the s3 backend
	Bucket string `json:"bucket,omitempty" split_words:"true"`
	Region string `json:"region,omitempty" split_words:"true"`

	// OAuthClientID and OAuthClientSecret let the drive backend refresh
	// stored OAuth tokens
	OAuthClientID     string `json:"oauthClientId,omitempty" envconfig:"OAUTH_CLIENT_ID"`
	OAuthClientSecret string `json:"oauthClientSecret,omitempty" envconfig:"OAUTH_CLIENT_SECRET"`

	DefaultOutputFormat types.OutputFormat `json:"defaultOutputFormat" split_words:"true"`

	// Concurrency is the default number of parallel transfers
	Concurrency int `json:"concurrency" split_words:"true"`

	// CacheTTL is the listing cache TTL in seconds
	CacheTTL int `json:"cacheTTL" split_words:"true"`

	MaxRetries int `json:"maxRetries" split_words:"true"`

	// RetryBaseDelay is the base delay for exponential backoff in milliseconds
	RetryBaseDelay int `json:"retryBaseDelay" split_words:"true"`

	// RequestTimeout bounds connection setup and response headers, in seconds.
	// Bodies are streamed without a deadline.
	RequestTimeout int `json:"requestTimeout" split_words:"true"`

	// ProgressInterval is the progress render interval in milliseconds
	ProgressInterval int `json:"progressInterval" split_words:"true"`

	// DuplicatePolicy decides what happens when a name matches several entries
	DuplicatePolicy string `json:"duplicatePolicy" split_words:"true"`

	Verify          bool `json:"verify" split_words:"true"`
	PreserveModTime bool `json:"preserveModTime" split_words:"true"`
	Journal         bool `json:"journal" split_words:"true"`

	// LogLevel sets the logging verbosity (quiet, normal, verbose, debug)
	LogLevel string `json:"logLevel" split_words:"true"`

	ColorOutput bool `json:"colorOutput" split_words:"true"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultProfile:      "default",
		Backend:             utils.BackendHTTP,
		DefaultOutputFormat: types.OutputFormatTable,
		Concurrency:         utils.DefaultConcurrency,
		CacheTTL:            utils.DefaultCacheTTLSeconds,
		MaxRetries:          utils.DefaultMaxRetries,
		RetryBaseDelay:      utils.DefaultRetryDelayMs,
		RequestTimeout:      60,
		ProgressInterval:    utils.DefaultProgressIntervalMs,
		DuplicatePolicy:     utils.DuplicatePolicyFirst,
		PreserveModTime:     true,
		Journal:             true,
		LogLevel:            "normal",
		ColorOutput:         true,
	}
}

// Load loads configuration with precedence: CLI flags > env vars > config file > defaults.
// An empty path means the default config file location.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return nil, err
		}
	}

	if err := cfg.loadFromFile(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile reads defaults and the config file only, without the
// environment layer. Use it for edits that are saved back to the file.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.loadFromFile(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

// Save writes the configuration to path, or to the default location when
// path is empty
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if path == "" {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DefaultOutputFormat != types.OutputFormatJSON &&
		c.DefaultOutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s (must be 'json' or 'table')", c.DefaultOutputFormat)
	}

	switch c.Backend {
	case utils.BackendHTTP, utils.BackendDrive, utils.BackendS3:
	default:
		return fmt.Errorf("invalid backend: %s (must be 'http', 'drive', or 's3')", c.Backend)
	}

	if c.Concurrency < 1 || c.Concurrency > utils.MaxConcurrency {
		return fmt.Errorf("concurrency must be between 1 and %d, got: %d", utils.MaxConcurrency, c.Concurrency)
	}

	if c.CacheTTL < 0 {
		return fmt.Errorf("cache TTL must be non-negative, got: %d", c.CacheTTL)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max retries must be between 0 and 10, got: %d", c.MaxRetries)
	}

	if c.RetryBaseDelay < 100 || c.RetryBaseDelay > 60000 {
		return fmt.Errorf("retry base delay must be between 100ms and 60000ms, got: %d", c.RetryBaseDelay)
	}

	if c.RequestTimeout < 1 || c.RequestTimeout > 3600 {
		return fmt.Errorf("request timeout must be between 1 and 3600 seconds, got: %d", c.RequestTimeout)
	}

	if c.ProgressInterval < 100 {
		return fmt.Errorf("progress interval must be at least 100ms, got: %d", c.ProgressInterval)
	}

	if c.DuplicatePolicy != utils.DuplicatePolicyFirst && c.DuplicatePolicy != utils.DuplicatePolicyStrict {
		return fmt.Errorf("invalid duplicate policy: %s (must be 'first' or 'strict')", c.DuplicatePolicy)
	}

	validLogLevels := []string{"quiet", "normal", "verbose", "debug"}
	isValid := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}

// Keys lists the names accepted by Set
func Keys() []string {
	return []string{
		"defaultProfile", "backend", "endpoint", "bucket", "region", "oauthClientId", "oauthClientSecret",
		"defaultOutputFormat",
		"concurrency", "cacheTTL", "maxRetries", "retryBaseDelay", "requestTimeout",
		"progressInterval", "duplicatePolicy", "verify", "preserveModTime", "journal",
		"logLevel", "colorOutput",
	}
}

// Set assigns a single key from its string form. Keys are matched case
// insensitively. The result is validated as a whole.
func (c *Config) Set(key, value string) error {
	next := *c

	var err error
	switch strings.ToLower(key) {
	case "defaultprofile":
		next.DefaultProfile = value
	case "backend":
		next.Backend = value
	case "endpoint":
		next.Endpoint = value
	case "bucket":
		next.Bucket = value
	case "region":
		next.Region = value
	case "oauthclientid":
		next.OAuthClientID = value
	case "oauthclientsecret":
		next.OAuthClientSecret = value
	case "defaultoutputformat":
		next.DefaultOutputFormat = types.OutputFormat(value)
	case "concurrency":
		next.Concurrency, err = strconv.Atoi(value)
	case "cachettl":
		next.CacheTTL, err = strconv.Atoi(value)
	case "maxretries":
		next.MaxRetries, err = strconv.Atoi(value)
	case "retrybasedelay":
		next.RetryBaseDelay, err = strconv.Atoi(value)
	case "requesttimeout":
		next.RequestTimeout, err = strconv.Atoi(value)
	case "progressinterval":
		next.ProgressInterval, err = strconv.Atoi(value)
	case "duplicatepolicy":
		next.DuplicatePolicy = value
	case "verify":
		next.Verify = parseBool(value)
	case "preservemodtime":
		next.PreserveModTime = parseBool(value)
	case "journal":
		next.Journal = parseBool(value)
	case "loglevel":
		next.LogLevel = value
	case "coloroutput":
		next.ColorOutput = parseBool(value)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}

	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// GetCacheTTL returns the cache TTL as a duration
func (c *Config) GetCacheTTL() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// GetRetryBaseDelay returns the retry base delay as a duration
func (c *Config) GetRetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelay) * time.Millisecond
}

// GetRequestTimeout returns the request timeout as a duration
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

func (c *Config) GetProgressInterval() time.Duration {
	return time.Duration(c.ProgressInterval) * time.Millisecond
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetJournalPath returns the path to the run journal
func GetJournalPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, JournalFileName), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "icdl"), nil
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
