package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/florianilch/tokengate/internal/authclient"
	"github.com/florianilch/tokengate/internal/session"
	"github.com/florianilch/tokengate/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
	LogFormatOTel LogFormat = "otel"
)

// TokenStorageType represents the different storage backends supported for
// the token pair.
type TokenStorageType string

const (
	TokenStorageTypeMemory  TokenStorageType = "memory"
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
	TokenStorageTypeRedis   TokenStorageType = "redis"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigServerHost      = "127.0.0.1"
	DefaultConfigServerPort      = 4000
	DefaultConfigShutdownTimeout = 5 * time.Second
	DefaultConfigAuthStorage     = TokenStorageTypeMemory
	DefaultConfigRedisKey        = "tokengate:session"

	keyringService = "tokengate-session"
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// UpstreamConfig holds upstream API configuration.
type UpstreamConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
}

// AuthConfig describes how to construct the token store, the wire client,
// and the session's lifecycle knobs.
type AuthConfig struct {
	// BaseURL of the identity provider. Defaults to the upstream base URL
	// when the API hosts its own auth endpoints.
	BaseURL string `json:"base_url" validate:"omitempty,url"`

	// Endpoint paths, relative to BaseURL.
	LoginEndpoint   string `json:"login_endpoint"`
	RefreshEndpoint string `json:"refresh_endpoint"`

	// AutoAttachToken disables all header attachment when false.
	AutoAttachToken *bool `json:"auto_attach_token"`

	// AutoRefreshToken enables the proactive refresh path.
	AutoRefreshToken *bool `json:"auto_refresh_token"`

	// ExpirationBuffer is the safety margin subtracted from expiry before a
	// token is declared unusable.
	ExpirationBuffer time.Duration `json:"expiration_buffer"`

	// RefreshThreshold is the remaining-lifetime floor that triggers
	// proactive refresh.
	RefreshThreshold time.Duration `json:"refresh_threshold"`

	// RefreshTimeout bounds the wait on a proactive refresh per request.
	RefreshTimeout time.Duration `json:"refresh_timeout"`

	// Storage selects the token store backend.
	Storage TokenStorageType `json:"storage" validate:"required,oneof=memory file keyring redis"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // For file storage: path to token file
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
	RedisAddr   string `json:"redis_addr,omitempty"`   // For redis storage: host:port
	RedisKey    string `json:"redis_key,omitempty"`    // For redis storage: key holding the pair
}

// NewTokenStore creates a TokenStore from the authentication configuration.
func (a *AuthConfig) NewTokenStore() (tokenstore.TokenStore, error) {
	switch a.Storage {
	case TokenStorageTypeMemory:
		return tokenstore.NewMemoryStore(), nil
	case TokenStorageTypeFile:
		return tokenstore.NewFileStore(a.File)
	case TokenStorageTypeKeyring:
		return tokenstore.NewKeyringStore(keyringService, a.KeyringUser)
	case TokenStorageTypeRedis:
		client := redis.NewClient(&redis.Options{Addr: a.RedisAddr})
		return tokenstore.NewRedisStore(client, a.RedisKey)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// AttachToken reports whether outgoing requests get an Authorization header.
func (a *AuthConfig) AttachToken() bool {
	return a.AutoAttachToken == nil || *a.AutoAttachToken
}

// RefreshEnabled reports whether the proactive refresh path runs.
func (a *AuthConfig) RefreshEnabled() bool {
	return a.AutoRefreshToken == nil || *a.AutoRefreshToken
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level     `json:"log_level"`
	LogFormat LogFormat      `json:"log_format" validate:"oneof=text json otel"`
	Server    ServerConfig   `json:"server"`
	Shutdown  ShutdownConfig `json:"shutdown"`
	Upstream  UpstreamConfig `json:"upstream"`
	Auth      AuthConfig     `json:"auth"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Auth.BaseURL == "" {
		c.Auth.BaseURL = c.Upstream.BaseURL
	}
	if c.Auth.LoginEndpoint == "" {
		c.Auth.LoginEndpoint = authclient.DefaultLoginEndpoint
	}
	if c.Auth.RefreshEndpoint == "" {
		c.Auth.RefreshEndpoint = authclient.DefaultRefreshEndpoint
	}
	if c.Auth.ExpirationBuffer == 0 {
		c.Auth.ExpirationBuffer = session.DefaultExpirationBuffer
	}
	if c.Auth.RefreshThreshold == 0 {
		c.Auth.RefreshThreshold = session.DefaultRefreshThreshold
	}
	if c.Auth.RefreshTimeout == 0 {
		c.Auth.RefreshTimeout = 30 * time.Second
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "tokengate", "session")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case TokenStorageTypeRedis:
		if c.Auth.RedisKey == "" {
			c.Auth.RedisKey = DefaultConfigRedisKey
		}
	case TokenStorageTypeMemory:
		// nothing to default
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	case TokenStorageTypeRedis:
		if c.Auth.RedisAddr == "" {
			return errors.New("redis_addr required for redis storage")
		}
	}

	return nil
}
