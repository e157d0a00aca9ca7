// ABOUTME: Configuration loading and parsing for the insight client
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/insight-chat/internal/kv"
)

// Config represents the complete client configuration
type Config struct {
	Service ServiceConfig `yaml:"service" toml:"service"`
	Storage StorageConfig `yaml:"storage" toml:"storage"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	UI      UIConfig      `yaml:"ui" toml:"ui"`
}

// ServiceConfig holds the analysis service endpoint configuration
type ServiceConfig struct {
	URL       string `yaml:"url" toml:"url"`
	Encoding  string `yaml:"encoding" toml:"encoding"` // multipart, json
	Token     string `yaml:"token" toml:"token"`
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
	Subject   string `yaml:"subject" toml:"subject"`

	// Timeout bounds one query; zero waits indefinitely.
	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// StorageConfig holds durable storage configuration
type StorageConfig struct {
	Backend string      `yaml:"backend" toml:"backend"` // memory, sqlite, redis
	Path    string      `yaml:"path" toml:"path"`
	Driver  string      `yaml:"driver" toml:"driver"` // sqlite (pure Go), sqlite3 (cgo)
	Redis   RedisConfig `yaml:"redis" toml:"redis"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	// File, when set, sends logs to a rotating file instead of stderr.
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
}

// UIConfig holds terminal rendering configuration
type UIConfig struct {
	Theme        string `yaml:"theme" toml:"theme"` // glamour style: auto, dark, light, notty
	PageSize     int    `yaml:"page_size" toml:"page_size"`
	Width        int    `yaml:"width" toml:"width"`
	DefaultTitle string `yaml:"default_title" toml:"default_title"`
}

// Defaults
const (
	DefaultServiceURL   = "http://localhost:8000/api/chat"
	DefaultPageSize     = 10
	DefaultWidth        = 80
	DefaultSessionTitle = "OFM Sales Analysis"
)

// DefaultTimeout is the service timeout when none is configured: wait
// indefinitely.
const DefaultTimeout time.Duration = 0

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			URL:      DefaultServiceURL,
			Encoding: "multipart",
			Timeout:  DefaultTimeout,
		},
		Storage: StorageConfig{
			Backend: kv.BackendSQLite,
			Path:    DefaultDataPath(),
			Driver:  kv.DriverModernc,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: kv.DefaultRedisPrefix,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		UI: UIConfig{
			Theme:        "auto",
			PageSize:     DefaultPageSize,
			Width:        DefaultWidth,
			DefaultTitle: DefaultSessionTitle,
		},
	}
}

// GetConfigPath returns $INSIGHT_CONFIG, or config.yaml under the insight
// directory of $XDG_CONFIG_HOME (~/.config when unset).
func GetConfigPath() string {
	if p := os.Getenv("INSIGHT_CONFIG"); p != "" {
		return p
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".insight", "config.yaml")
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "insight", "config.yaml")
}

// DefaultDataPath returns the default SQLite database location under
// $XDG_DATA_HOME (~/.local/share when unset).
func DefaultDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".insight", "insight.db")
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "insight", "insight.db")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Values absent from the file keep their defaults. Files ending in .toml are
// parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.Storage.Path = expandHome(cfg.Storage.Path)
	cfg.Logging.File = expandHome(cfg.Logging.File)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Service.URL == "" {
		return fmt.Errorf("service.url is required")
	}
	u, err := url.Parse(c.Service.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("service.url must be an http(s) URL, got %q", c.Service.URL)
	}
	switch c.Service.Encoding {
	case "", "multipart", "json":
	default:
		return fmt.Errorf("service.encoding must be multipart or json, got %q", c.Service.Encoding)
	}
	if c.Service.Timeout < 0 {
		return fmt.Errorf("service.timeout must not be negative")
	}

	switch c.Storage.Backend {
	case kv.BackendMemory:
	case kv.BackendSQLite, "":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
		switch c.Storage.Driver {
		case "", kv.DriverModernc, kv.DriverMattn:
		default:
			return fmt.Errorf("storage.driver must be sqlite or sqlite3, got %q", c.Storage.Driver)
		}
	case kv.BackendRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("storage.backend must be memory, sqlite or redis, got %q", c.Storage.Backend)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.UI.PageSize <= 0 {
		return fmt.Errorf("ui.page_size must be positive")
	}

	return nil
}

// KVOptions maps the storage section onto kv.Options.
func (c *Config) KVOptions() kv.Options {
	return kv.Options{
		Backend:       c.Storage.Backend,
		Path:          c.Storage.Path,
		Driver:        c.Storage.Driver,
		RedisAddr:     c.Storage.Redis.Addr,
		RedisPassword: c.Storage.Redis.Password,
		RedisDB:       c.Storage.Redis.DB,
		Prefix:        c.Storage.Redis.Prefix,
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Service.TimeoutRaw != "" {
		cfg.Service.Timeout, err = time.ParseDuration(cfg.Service.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.Service.TimeoutRaw, err)
		}
	}

	return nil
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(homeDir, p[2:])
}
