// Package config defines the gateway configuration and its file loader.
package config

import (
	"time"

	"github.com/widgetgate/widgetgate/pkg/kvs"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" json:"server"`
	Upstream    UpstreamConfig    `yaml:"upstream" json:"upstream"`
	Limits      LimitsConfig      `yaml:"limits" json:"limits"`
	Sessions    SessionsConfig    `yaml:"sessions" json:"sessions"`
	Passthrough PassthroughConfig `yaml:"passthrough" json:"passthrough"`
	Tenants     []TenantConfig    `yaml:"tenants" json:"tenants"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// ServerConfig contains gateway server settings
type ServerConfig struct {
	Host               string `yaml:"host" json:"host"`
	Port               int    `yaml:"port" json:"port"`
	BaseURL            string `yaml:"base_url" json:"base_url"`                         // Optional: external base URL (behind reverse proxies)
	DevAPIKey          string `yaml:"dev_api_key" json:"dev_api_key"`                   // Optional: key required by /api/auth/config
	Debug              bool   `yaml:"debug" json:"debug"`                               // Enables /debug endpoints
	DefaultRedirectURI string `yaml:"default_redirect_uri" json:"default_redirect_uri"` // Fallback OAuth callback URL for tenants without one
}

// UpstreamConfig contains the upstream chat-completion service settings
type UpstreamConfig struct {
	URL      string        `yaml:"url" json:"url"`         // Upstream base URL (required)
	APIKey   string        `yaml:"api_key" json:"api_key"` // Credential injected on every outbound call
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`
}

// TimeoutConfig contains outbound call timeouts as duration strings
type TimeoutConfig struct {
	Identity string `yaml:"identity" json:"identity"` // Userinfo/discovery calls (default: 10s)
	Upload   string `yaml:"upload" json:"upload"`     // Large attachment uploads (default: 5m)
	Request  string `yaml:"request" json:"request"`   // Buffered JSON calls (default: 60s)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GetIdentityTimeout returns the identity call timeout
func (t TimeoutConfig) GetIdentityTimeout() time.Duration {
	return parseDurationOr(t.Identity, 10*time.Second)
}

// GetUploadTimeout returns the upload call timeout
func (t TimeoutConfig) GetUploadTimeout() time.Duration {
	return parseDurationOr(t.Upload, 5*time.Minute)
}

// GetRequestTimeout returns the buffered call timeout
func (t TimeoutConfig) GetRequestTimeout() time.Duration {
	return parseDurationOr(t.Request, 60*time.Second)
}

// LimitsConfig contains resource limits
type LimitsConfig struct {
	MaxUploadBytes    int64 `yaml:"max_upload_bytes" json:"max_upload_bytes"`       // Raw multipart buffer cap (default: 50MB)
	TenantConcurrency int   `yaml:"tenant_concurrency" json:"tenant_concurrency"` // Max in-flight upstream calls per tenant (0 = unlimited)
}

// SessionsConfig contains session cache settings
type SessionsConfig struct {
	Store         string            `yaml:"store" json:"store"`                   // "memory", "leveldb" or "redis" (default: "memory")
	SweepInterval string            `yaml:"sweep_interval" json:"sweep_interval"` // Expired-session sweep interval (default: 5m)
	LevelDB       kvs.LevelDBConfig `yaml:"leveldb" json:"leveldb"`
	Redis         kvs.RedisConfig   `yaml:"redis" json:"redis"`
}

// GetSweepInterval returns the sweep interval as a time.Duration
func (s SessionsConfig) GetSweepInterval() time.Duration {
	return parseDurationOr(s.SweepInterval, 5*time.Minute)
}

// PassthroughConfig lists paths exempt from identity resolution
type PassthroughConfig struct {
	Prefix []string `yaml:"prefix" json:"prefix"`
	Regex  []string `yaml:"regex" json:"regex"`
	Glob   []string `yaml:"glob" json:"glob"`
}

// TenantConfig represents one chat-widget deployment
type TenantConfig struct {
	Identifier     string       `yaml:"identifier" json:"identifier"`           // Public tenant key (case-insensitive unique)
	ChatflowID     string       `yaml:"chatflow_id" json:"chatflow_id"`         // Upstream internal id
	AllowedOrigins []string     `yaml:"allowed_origins" json:"allowed_origins"` // Origin allow-list; "*" disables the tenant
	Debug          *bool        `yaml:"debug" json:"debug"`                     // Tri-state override of the global debug toggle
	OAuth          *OAuthConfig `yaml:"oauth" json:"oauth"`                     // Optional OAuth/OIDC block
}

// OAuthConfig contains per-tenant OAuth/OIDC parameters
type OAuthConfig struct {
	Mode         string `yaml:"mode" json:"mode"` // "required", "optional" or "disabled"
	ClientID     string `yaml:"client_id" json:"client_id"`
	Authority    string `yaml:"authority" json:"authority"`
	RedirectURI  string `yaml:"redirect_uri" json:"redirect_uri"`
	Scope        string `yaml:"scope" json:"scope"`
	ResponseType string `yaml:"response_type" json:"response_type"`
	Prompt       string `yaml:"prompt" json:"prompt"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string             `yaml:"level" json:"level"`
	Color bool               `yaml:"color" json:"color"`
	File  *LoggingFileConfig `yaml:"file" json:"file"`
}

// LoggingFileConfig contains log file rotation settings
type LoggingFileConfig struct {
	Path       string `yaml:"path" json:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Upstream.URL == "" {
		return ErrUpstreamRequired
	}

	if len(c.Tenants) == 0 {
		return ErrNoTenants
	}

	switch c.Sessions.Store {
	case "", "memory", "leveldb", "redis":
	default:
		return ErrInvalidSessionStore
	}

	for _, tenant := range c.Tenants {
		if tenant.OAuth == nil {
			continue
		}
		switch tenant.OAuth.Mode {
		case "", "required", "optional", "disabled":
		default:
			return ErrInvalidOAuthMode
		}
	}

	return nil
}
