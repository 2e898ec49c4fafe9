package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Auth          AuthConfig          `yaml:"auth"`
	Worker        WorkerConfig        `yaml:"worker"`
	Log           LogConfig           `yaml:"log"`
	ReportStorage ReportStorageConfig `yaml:"report_storage"`
	Analytics     AnalyticsConfig     `yaml:"analytics"`
	Client        ClientConfig        `yaml:"client"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig contains session and login settings.
type AuthConfig struct {
	SessionTTL       Duration   `yaml:"session_ttl"`
	SessionCacheSize int        `yaml:"session_cache_size"`
	SessionCacheTTL  Duration   `yaml:"session_cache_ttl"`
	LoginRate        float64    `yaml:"login_rate"` // attempts per second per client IP
	LoginBurst       int        `yaml:"login_burst"`
	Users            []SeedUser `yaml:"users"`
}

// SeedUser is an account created at startup when it does not exist yet.
// PasswordHash is a bcrypt hash; plaintext passwords never appear in config.
type SeedUser struct {
	Username     string `yaml:"username"`
	FullName     string `yaml:"full_name"`
	PasswordHash string `yaml:"password_hash"`
	IsAdmin      bool   `yaml:"is_admin"`
}

// WorkerConfig contains background worker settings.
type WorkerConfig struct {
	SessionSweepInterval Duration `yaml:"session_sweep_interval"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ReportStorageConfig configures archiving of generated reports to
// S3-compatible storage. An empty bucket disables archiving.
type ReportStorageConfig struct {
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	UseSSL    *bool    `yaml:"use_ssl"`
	AccessKey string   `yaml:"-"` // env-only
	SecretKey string   `yaml:"-"` // env-only
	URLExpiry Duration `yaml:"url_expiry"`
}

// AnalyticsConfig contains settings for calendar bucketing.
type AnalyticsConfig struct {
	Timezone string `yaml:"timezone"`
}

// Location resolves Timezone. validate has already checked it loads.
func (a AnalyticsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ClientConfig contains settings for the command-line client.
type ClientConfig struct {
	ServerURL      string   `yaml:"server_url"`
	LocalPath      string   `yaml:"local_path"`
	AutosaveDelay  Duration `yaml:"autosave_delay"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("WFTRACKER_CONFIG_PATH", "config/wftracker.yaml")

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/wftracker.db",
		},
		Auth: AuthConfig{
			SessionTTL:       Duration(24 * time.Hour),
			SessionCacheSize: 1024,
			SessionCacheTTL:  Duration(1 * time.Minute),
			LoginRate:        0.2,
			LoginBurst:       5,
		},
		Worker: WorkerConfig{
			SessionSweepInterval: Duration(1 * time.Hour),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		ReportStorage: ReportStorageConfig{
			Region:    "us-east-1",
			URLExpiry: Duration(15 * time.Minute),
		},
		Analytics: AnalyticsConfig{
			Timezone: "UTC",
		},
		Client: ClientConfig{
			ServerURL:      "http://localhost:8080",
			LocalPath:      "~/.wftracker/progress.json",
			AutosaveDelay:  Duration(2 * time.Second),
			RequestTimeout: Duration(10 * time.Second),
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("WFTRACKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	envDuration("WFTRACKER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("WFTRACKER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("WFTRACKER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Database
	if v := os.Getenv("WFTRACKER_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Auth
	envDuration("WFTRACKER_SESSION_TTL", &cfg.Auth.SessionTTL)
	if v := os.Getenv("WFTRACKER_LOGIN_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Auth.LoginRate = f
		}
	}
	if v := os.Getenv("WFTRACKER_LOGIN_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Auth.LoginBurst = n
		}
	}

	// Worker
	envDuration("WFTRACKER_SESSION_SWEEP_INTERVAL", &cfg.Worker.SessionSweepInterval)

	// Log
	if v := os.Getenv("WFTRACKER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("WFTRACKER_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	// Report storage
	if v := os.Getenv("WFTRACKER_REPORT_BUCKET"); v != "" {
		cfg.ReportStorage.Bucket = v
	}
	if v := os.Getenv("WFTRACKER_S3_ENDPOINT"); v != "" {
		cfg.ReportStorage.Endpoint = v
	}
	if v := os.Getenv("WFTRACKER_S3_REGION"); v != "" {
		cfg.ReportStorage.Region = v
	}
	if v := os.Getenv("WFTRACKER_S3_ACCESS_KEY"); v != "" {
		cfg.ReportStorage.AccessKey = v
	}
	if v := os.Getenv("WFTRACKER_S3_SECRET_KEY"); v != "" {
		cfg.ReportStorage.SecretKey = v
	}
	if v := os.Getenv("WFTRACKER_S3_USE_SSL"); v != "" {
		useSSL := v == "true" || v == "1"
		cfg.ReportStorage.UseSSL = &useSSL
	}
	envDuration("WFTRACKER_S3_URL_EXPIRY", &cfg.ReportStorage.URLExpiry)

	// Analytics
	if v := os.Getenv("WFTRACKER_TIMEZONE"); v != "" {
		cfg.Analytics.Timezone = v
	}

	// Client
	if v := os.Getenv("WFTRACKER_SERVER_URL"); v != "" {
		cfg.Client.ServerURL = v
	}
	if v := os.Getenv("WFTRACKER_LOCAL_PATH"); v != "" {
		cfg.Client.LocalPath = v
	}
	envDuration("WFTRACKER_AUTOSAVE_DELAY", &cfg.Client.AutosaveDelay)
}

func envDuration(key string, dst *Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = Duration(d)
	}
}

// validate checks that configuration values are usable.
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Auth.SessionTTL <= 0 {
		return errors.New("auth.session_ttl must be positive")
	}
	if c.Auth.LoginRate <= 0 || c.Auth.LoginBurst <= 0 {
		return errors.New("auth.login_rate and auth.login_burst must be positive")
	}
	seen := make(map[string]bool, len(c.Auth.Users))
	for i, u := range c.Auth.Users {
		if strings.TrimSpace(u.Username) == "" {
			return fmt.Errorf("auth.users[%d]: username is required", i)
		}
		if seen[u.Username] {
			return fmt.Errorf("auth.users[%d]: duplicate username %q", i, u.Username)
		}
		seen[u.Username] = true
		if !strings.HasPrefix(u.PasswordHash, "$2") {
			return fmt.Errorf("auth.users[%d]: password_hash must be a bcrypt hash", i)
		}
	}
	if c.Worker.SessionSweepInterval <= 0 {
		return errors.New("worker.session_sweep_interval must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	if c.ReportStorage.Bucket != "" && c.ReportStorage.Endpoint == "" {
		return errors.New("report_storage.endpoint is required when a bucket is set")
	}
	if _, err := time.LoadLocation(c.Analytics.Timezone); err != nil {
		return fmt.Errorf("analytics.timezone: %w", err)
	}
	if c.Client.AutosaveDelay < 0 {
		return errors.New("client.autosave_delay must not be negative")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
