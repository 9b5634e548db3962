package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backends
const (
	BackendMTProto = "mtproto" // Real Telegram account over MTProto
	BackendMemory  = "memory"  // Seeded in-process account, no network
)

// Environment overrides
const (
	EnvAPIID         = "TELEGRAM_API_ID"
	EnvAPIHash       = "TELEGRAM_API_HASH"
	EnvSessionString = "TELEGRAM_SESSION_STRING"
	EnvPort          = "TELEGATE_PORT"
)

var apiHashPattern = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `toml:"server" yaml:"server"`     // HTTP server settings
	Logging  LoggingConfig  `toml:"logging" yaml:"logging"`   // Application logging settings
	Telegram TelegramConfig `toml:"telegram" yaml:"telegram"` // Upstream account and credential settings
	Session  SessionConfig  `toml:"session" yaml:"session"`   // Connection lifecycle settings
	Gateway  GatewayConfig  `toml:"gateway" yaml:"gateway"`   // Pagination settings
	MCP      MCPConfig      `toml:"mcp" yaml:"mcp"`           // Tool front end settings
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Port                int      `toml:"port" yaml:"port"`                                         // HTTP port
	Host                string   `toml:"host" yaml:"host"`                                         // Address to bind to (127.0.0.1 keeps the API local)
	CORSAllowedOrigins  []string `toml:"cors_allowed_origins" yaml:"cors_allowed_origins"`         // Origins allowed for CORS requests (["*"] for all)
	ReadTimeoutSecs     int      `toml:"read_timeout_seconds" yaml:"read_timeout_seconds"`         // Maximum duration for reading a request
	WriteTimeoutSecs    int      `toml:"write_timeout_seconds" yaml:"write_timeout_seconds"`       // Maximum duration for writing a response
	IdleTimeoutSecs     int      `toml:"idle_timeout_seconds" yaml:"idle_timeout_seconds"`         // Keep-alive idle timeout
	ShutdownTimeoutSecs int      `toml:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"` // Grace period for in-flight requests on shutdown
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`   // "debug", "info", "warn" or "error"
	Format string `toml:"format" yaml:"format"` // "json" or "console"
}

// TelegramConfig selects the upstream and holds the account credential.
// The credential normally comes from the environment.
type TelegramConfig struct {
	Backend       string `toml:"backend" yaml:"backend"`               // "mtproto" or "memory"
	APIID         int    `toml:"api_id" yaml:"api_id"`                 // Application id from my.telegram.org
	APIHash       string `toml:"api_hash" yaml:"api_hash"`             // Application hash from my.telegram.org
	SessionString string `toml:"session_string" yaml:"session_string"` // Persisted string session of the account
	SessionDB     string `toml:"session_db" yaml:"session_db"`         // SQLite file holding MTProto session state
}

// SessionConfig controls connect retries, drop detection and call bounds
type SessionConfig struct {
	MaxAttempts           int `toml:"max_attempts" yaml:"max_attempts"`                             // Dial attempts per connect cycle
	BackoffBaseMs         int `toml:"backoff_base_ms" yaml:"backoff_base_ms"`                       // First retry delay, doubled per attempt
	BackoffMaxSecs        int `toml:"backoff_max_seconds" yaml:"backoff_max_seconds"`               // Retry delay cap
	KeepaliveIntervalSecs int `toml:"keepalive_interval_seconds" yaml:"keepalive_interval_seconds"` // Ping interval (negative disables)
	CallTimeoutSecs       int `toml:"call_timeout_seconds" yaml:"call_timeout_seconds"`             // Upper bound for one upstream call
}

// GatewayConfig controls pagination
type GatewayConfig struct {
	DefaultPageSize     int `toml:"default_page_size" yaml:"default_page_size"`           // Page size when none is requested
	MaxPageSize         int `toml:"max_page_size" yaml:"max_page_size"`                   // Larger requests are clamped
	PageTokenTTLMinutes int `toml:"page_token_ttl_minutes" yaml:"page_token_ttl_minutes"` // Lifetime of issued page tokens
	MaxPageTokens       int `toml:"max_page_tokens" yaml:"max_page_tokens"`               // Live tokens kept before the oldest is evicted
}

// MCPConfig controls the tool front end
type MCPConfig struct {
	HTTPEnabled *bool `toml:"http_enabled" yaml:"http_enabled"` // Serve JSON-RPC on POST /mcp (default true)
}

// Load reads a TOML file, or YAML when the extension is .yaml or .yml
func Load(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	default:
		meta, err := toml.Decode(string(data), &config)
		if err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown config key: %s", undecoded[0])
		}
	}

	return &config, nil
}

// LoadWithFallback loads the first config file found, then applies .env and
// environment overrides. An explicitly requested file must exist; otherwise
// running without any file yields the defaults.
func LoadWithFallback(preferredPath string) (*Config, error) {
	if preferredPath != "" {
		if _, err := os.Stat(preferredPath); err != nil {
			return nil, fmt.Errorf("config file not found: %s", preferredPath)
		}
	}

	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,
		"configs/config.toml",
		"config.toml",
		"config.yaml",
	}

	config := &Config{}
	for _, path := range searchPaths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		loaded, err := Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
		config = loaded
		break
	}

	if err := config.applyEnv(".env"); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnv loads envFile into the process environment without overriding
// variables already set, then applies the overrides
func (c *Config) applyEnv(envFile string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if v := strings.TrimSpace(os.Getenv(EnvAPIID)); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", EnvAPIID, err)
		}
		c.Telegram.APIID = id
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPIHash)); v != "" {
		c.Telegram.APIHash = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSessionString)); v != "" {
		c.Telegram.SessionString = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPort)); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", EnvPort, err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate fills defaults for unset values and validates the configuration
func (c *Config) Validate() error {
	// Server
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.ReadTimeoutSecs <= 0 {
		c.Server.ReadTimeoutSecs = 30
	}
	if c.Server.WriteTimeoutSecs <= 0 {
		c.Server.WriteTimeoutSecs = 60
	}
	if c.Server.IdleTimeoutSecs <= 0 {
		c.Server.IdleTimeoutSecs = 120
	}
	if c.Server.ShutdownTimeoutSecs <= 0 {
		c.Server.ShutdownTimeoutSecs = 10
	}

	// Logging
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn or error)", c.Logging.Level)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be console or json)", c.Logging.Format)
	}

	if err := c.ValidateTelegram(); err != nil {
		return err
	}

	// Session
	if c.Session.MaxAttempts <= 0 {
		c.Session.MaxAttempts = 5
	}
	if c.Session.BackoffBaseMs <= 0 {
		c.Session.BackoffBaseMs = 500
	}
	if c.Session.BackoffMaxSecs <= 0 {
		c.Session.BackoffMaxSecs = 30
	}
	if c.Session.KeepaliveIntervalSecs == 0 {
		c.Session.KeepaliveIntervalSecs = 60
	}
	if c.Session.CallTimeoutSecs <= 0 {
		c.Session.CallTimeoutSecs = 30
	}

	// Gateway
	if c.Gateway.MaxPageSize <= 0 {
		c.Gateway.MaxPageSize = 100
	}
	if c.Gateway.DefaultPageSize <= 0 {
		c.Gateway.DefaultPageSize = 20
	}
	if c.Gateway.DefaultPageSize > c.Gateway.MaxPageSize {
		return fmt.Errorf("default_page_size (%d) exceeds max_page_size (%d)", c.Gateway.DefaultPageSize, c.Gateway.MaxPageSize)
	}
	if c.Gateway.PageTokenTTLMinutes <= 0 {
		c.Gateway.PageTokenTTLMinutes = 30
	}
	if c.Gateway.MaxPageTokens <= 0 {
		c.Gateway.MaxPageTokens = 10000
	}

	if c.MCP.HTTPEnabled == nil {
		enabled := true
		c.MCP.HTTPEnabled = &enabled
	}

	return nil
}

// ValidateTelegram checks the backend and, for mtproto, the credential shape
func (c *Config) ValidateTelegram() error {
	if c.Telegram.Backend == "" {
		c.Telegram.Backend = BackendMTProto
	}
	if c.Telegram.SessionDB == "" {
		c.Telegram.SessionDB = "data/telegate.db"
	}

	switch c.Telegram.Backend {
	case BackendMemory:
		return nil
	case BackendMTProto:
	default:
		return fmt.Errorf("invalid telegram backend: %s (must be %s or %s)", c.Telegram.Backend, BackendMTProto, BackendMemory)
	}

	if c.Telegram.APIID <= 0 {
		return fmt.Errorf("telegram api_id is required (set %s)", EnvAPIID)
	}
	if !apiHashPattern.MatchString(c.Telegram.APIHash) {
		return fmt.Errorf("telegram api_hash must be 32 hex characters (set %s)", EnvAPIHash)
	}
	if strings.TrimSpace(c.Telegram.SessionString) == "" {
		return fmt.Errorf("telegram session_string is required (set %s)", EnvSessionString)
	}
	return nil
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s SessionConfig) BackoffBase() time.Duration {
	return time.Duration(s.BackoffBaseMs) * time.Millisecond
}

func (s SessionConfig) BackoffMax() time.Duration {
	return time.Duration(s.BackoffMaxSecs) * time.Second
}

// KeepaliveInterval is zero when keepalive is disabled
func (s SessionConfig) KeepaliveInterval() time.Duration {
	if s.KeepaliveIntervalSecs < 0 {
		return 0
	}
	return time.Duration(s.KeepaliveIntervalSecs) * time.Second
}

func (s SessionConfig) CallTimeout() time.Duration {
	return time.Duration(s.CallTimeoutSecs) * time.Second
}

func (g GatewayConfig) PageTokenTTL() time.Duration {
	return time.Duration(g.PageTokenTTLMinutes) * time.Minute
}
