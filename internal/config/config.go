package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// ConfigFileEnv names a YAML file read before the environment.
const ConfigFileEnv = "MARKETPLACE_CONFIG"

type Config struct {
	HTTPAddr  string `yaml:"http_addr"`
	PublicURL string `yaml:"public_url"`
	LogLevel  string `yaml:"log_level"`

	DataDir          string `yaml:"data_dir"`
	KeyPath          string `yaml:"key_path"`
	DirectoryBackend string `yaml:"directory_backend"`
	SQLitePath       string `yaml:"sqlite_path"`
	PostgresDSN      string `yaml:"postgres_dsn"`
	CASDir           string `yaml:"cas_dir"`
	Network          string `yaml:"network"`
	PoPRPolicyPath   string `yaml:"popr_policy_path"`

	ResolveTimeoutSeconds int `yaml:"resolve_timeout_seconds"`

	RateLimitRequests      int  `yaml:"rate_limit_requests"`
	RateLimitWindowSeconds int  `yaml:"rate_limit_window_seconds"`
	RateLimitMaxKeys       int  `yaml:"rate_limit_max_keys"`
	RateLimitFailClosed    bool `yaml:"rate_limit_fail_closed"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

func Defaults() Config {
	return Config{
		HTTPAddr:               ":3000",
		LogLevel:               "info",
		DataDir:                defaultDataDir(),
		Network:                "production",
		ResolveTimeoutSeconds:  10,
		RateLimitWindowSeconds: 60,
		RateLimitMaxKeys:       10000,
	}
}

// FromEnv reads the environment over the defaults.
func FromEnv() Config {
	cfg := Defaults()
	cfg.applyEnv()
	cfg.fillDerived()
	return cfg
}

// Load reads the YAML file at path (if any), then the environment, then
// fills paths derived from the data directory.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.fillDerived()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = envDefault("HTTP_ADDR", c.HTTPAddr)
	c.PublicURL = envDefault("PUBLIC_URL", c.PublicURL)
	c.LogLevel = envDefault("LOG_LEVEL", c.LogLevel)
	c.DataDir = envDefault("DATA_DIR", c.DataDir)
	c.KeyPath = envDefault("KEY_PATH", c.KeyPath)
	c.DirectoryBackend = envDefault("DIRECTORY_BACKEND", c.DirectoryBackend)
	c.SQLitePath = envDefault("SQLITE_PATH", c.SQLitePath)
	c.PostgresDSN = envDefault("POSTGRES_DSN", c.PostgresDSN)
	c.CASDir = envDefault("CAS_DIR", c.CASDir)
	c.Network = envDefault("CHLU_NETWORK", c.Network)
	c.PoPRPolicyPath = envDefault("POPR_POLICY_PATH", c.PoPRPolicyPath)
	c.ResolveTimeoutSeconds = envIntDefault("RESOLVE_TIMEOUT_SECONDS", c.ResolveTimeoutSeconds)
	c.RateLimitRequests = envIntDefault("RATE_LIMIT_REQUESTS", c.RateLimitRequests)
	c.RateLimitWindowSeconds = envIntDefault("RATE_LIMIT_WINDOW_SECONDS", c.RateLimitWindowSeconds)
	c.RateLimitMaxKeys = envIntDefault("RATE_LIMIT_MAX_KEYS", c.RateLimitMaxKeys)
	c.RateLimitFailClosed = envBoolDefault("RATE_LIMIT_FAIL_CLOSED", c.RateLimitFailClosed)
	c.RedisAddr = envDefault("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = envDefault("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = envIntDefault("REDIS_DB", c.RedisDB)
}

func (c *Config) fillDerived() {
	if c.DirectoryBackend == "" {
		if c.PostgresDSN != "" {
			c.DirectoryBackend = BackendPostgres
		} else {
			c.DirectoryBackend = BackendSQLite
		}
	}
	c.DirectoryBackend = strings.ToLower(c.DirectoryBackend)
	if c.DataDir == "" {
		return
	}
	if c.KeyPath == "" {
		c.KeyPath = filepath.Join(c.DataDir, "marketplace.key")
	}
	if c.SQLitePath == "" {
		c.SQLitePath = filepath.Join(c.DataDir, "marketplace.db")
	}
	if c.CASDir == "" {
		c.CASDir = filepath.Join(c.DataDir, "cas")
	}
}

func (c Config) Validate() error {
	switch c.DirectoryBackend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("postgres directory requires POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unknown directory backend %q", c.DirectoryBackend)
	}
	if c.ResolveTimeoutSeconds <= 0 {
		return errors.New("resolve timeout must be positive")
	}
	return nil
}

func (c Config) ResolveTimeout() time.Duration {
	return time.Duration(c.ResolveTimeoutSeconds) * time.Second
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".chlu", "marketplace")
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}
