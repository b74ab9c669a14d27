package app

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Upstream.BaseURL = "https://api.example.com"
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults failed: %v", err)
	}

	if cfg.LogFormat != LogFormatText {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 4000 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Auth.Storage != TokenStorageTypeMemory {
		t.Errorf("Auth.Storage = %q, want memory", cfg.Auth.Storage)
	}
	if cfg.Auth.BaseURL != cfg.Upstream.BaseURL {
		t.Errorf("Auth.BaseURL = %q, want upstream default", cfg.Auth.BaseURL)
	}
	if cfg.Auth.LoginEndpoint != "api/auth/login" || cfg.Auth.RefreshEndpoint != "api/auth/refresh" {
		t.Errorf("endpoints = %q, %q", cfg.Auth.LoginEndpoint, cfg.Auth.RefreshEndpoint)
	}
	if cfg.Auth.ExpirationBuffer != 60*time.Second {
		t.Errorf("ExpirationBuffer = %v, want 60s", cfg.Auth.ExpirationBuffer)
	}
	if cfg.Auth.RefreshThreshold != 300*time.Second {
		t.Errorf("RefreshThreshold = %v, want 300s", cfg.Auth.RefreshThreshold)
	}
	if !cfg.Auth.AttachToken() || !cfg.Auth.RefreshEnabled() {
		t.Error("attach/refresh should default to enabled")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed on defaulted config: %v", err)
	}
}

func TestBoolOverrides(t *testing.T) {
	off := false
	cfg := validConfig()
	cfg.Auth.AutoAttachToken = &off
	cfg.Auth.AutoRefreshToken = &off
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults failed: %v", err)
	}

	if cfg.Auth.AttachToken() {
		t.Error("AttachToken() = true with explicit false")
	}
	if cfg.Auth.RefreshEnabled() {
		t.Error("RefreshEnabled() = true with explicit false")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing upstream base URL",
			mutate:  func(c *Config) { c.Upstream.BaseURL = "" },
			wantErr: "BaseURL",
		},
		{
			name:    "redis storage without address",
			mutate:  func(c *Config) { c.Auth.Storage = TokenStorageTypeRedis },
			wantErr: "redis_addr",
		},
		{
			name:    "unknown storage type",
			mutate:  func(c *Config) { c.Auth.Storage = "cookie" },
			wantErr: "Storage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			if err := cfg.ApplyDefaults(); err != nil {
				t.Fatalf("ApplyDefaults failed: %v", err)
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestNewTokenStore(t *testing.T) {
	cfg := validConfig()
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults failed: %v", err)
	}

	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		t.Fatalf("NewTokenStore failed: %v", err)
	}
	if store == nil {
		t.Fatal("NewTokenStore returned nil store")
	}
}
