package core

import (
	"fmt"
	"strings"
	"time"
)

// OAuthConfig holds the vendor-defined authorization server surface plus
// the client registration used for both flow variants.
type OAuthConfig struct {
	ClientID     string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string   `koanf:"client_secret" mapstructure:"client_secret"`
	AuthorizeURL string   `koanf:"authorize_url" mapstructure:"authorize_url"`
	TokenURL     string   `koanf:"token_url" mapstructure:"token_url"`
	IdentityURL  string   `koanf:"identity_url" mapstructure:"identity_url"`
	RedirectURI  string   `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	Scopes       []string `koanf:"scopes" mapstructure:"scopes"`
}

// HostedConfig controls the hosted-pairing flow variant.
type HostedConfig struct {
	Enabled bool   `koanf:"enabled" mapstructure:"enabled"`
	BaseURL string `koanf:"base_url" mapstructure:"base_url"`
}

// EncryptionConfig controls the at-rest key material source. When Key is
// empty the security package falls back to the OS vault and then the file.
type EncryptionConfig struct {
	Key         string `koanf:"key" mapstructure:"key"`
	KeyFilePath string `koanf:"key_file_path" mapstructure:"key_file_path"`
}

type Config struct {
	ServiceName   string           `koanf:"service_name" mapstructure:"service_name"`
	Provider      string           `koanf:"provider" mapstructure:"provider"`
	OAuth         OAuthConfig      `koanf:"oauth" mapstructure:"oauth"`
	Hosted        HostedConfig     `koanf:"hosted" mapstructure:"hosted"`
	Encryption    EncryptionConfig `koanf:"encryption" mapstructure:"encryption"`
	SessionTTL    time.Duration    `koanf:"session_ttl" mapstructure:"session_ttl"`
	PairingTTL    time.Duration    `koanf:"pairing_ttl" mapstructure:"pairing_ttl"`
	RefreshWindow time.Duration    `koanf:"refresh_window" mapstructure:"refresh_window"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:   "auth-broker",
		Provider:      "twitter",
		SessionTTL:    DefaultSessionTTL,
		PairingTTL:    DefaultPairingTTL,
		RefreshWindow: TokenRefreshSafetyWindow,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Provider) == "" {
		return fmt.Errorf("core: provider is required")
	}
	if c.Hosted.Enabled && strings.TrimSpace(c.Hosted.BaseURL) == "" {
		return fmt.Errorf("core: hosted.base_url is required when hosted mode is enabled")
	}
	if c.SessionTTL < 0 || c.PairingTTL < 0 || c.RefreshWindow < 0 {
		return fmt.Errorf("core: ttl and window durations must not be negative")
	}
	return nil
}

// LoginURL is the hint embedded in re-auth errors: the hosted login page
// when hosted mode is on, otherwise the provider authorize endpoint.
func (c Config) LoginURL() string {
	if c.Hosted.Enabled && strings.TrimSpace(c.Hosted.BaseURL) != "" {
		return strings.TrimSuffix(strings.TrimSpace(c.Hosted.BaseURL), "/") + "/login"
	}
	return strings.TrimSpace(c.OAuth.AuthorizeURL)
}

func (c Config) refreshWindow() time.Duration {
	if c.RefreshWindow <= 0 {
		return TokenRefreshSafetyWindow
	}
	return c.RefreshWindow
}
