package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSupportedCoins is the withdrawal allow-list used when the config
// file does not set one.
var DefaultSupportedCoins = []string{"BTC", "LTC", "ETH", "BAB", "REP", "XMR"}

const (
	TransportWebsocket = "websocket"
	TransportHTTP      = "http"
)

// VenueConfig describes how to reach the APEX gateway.
type VenueConfig struct {
	URL            string   `yaml:"url"`
	Transport      string   `yaml:"transport"` // websocket | http
	HTTPURL        string   `yaml:"http_url"`
	RequestTimeout Duration `yaml:"request_timeout"`
	RateLimit      int      `yaml:"rate_limit"` // calls per second, 0 = unlimited
}

// MaxResolveAttempts bounds resolver.max_attempts. The wait before the last
// attempt is 2^(attempts-1) times base_delay.
const MaxResolveAttempts = 16

// ResolverConfig is the tx id polling policy.
type ResolverConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
}

type WalletConfig struct {
	SupportedCoins    []string       `yaml:"supported_coins"`
	Resolver          ResolverConfig `yaml:"resolver"`
	ValidateAddresses *bool          `yaml:"validate_addresses"`
	QuoteTimeout      Duration       `yaml:"quote_timeout"`
	// SweepInterval paces background resolution of pending withdrawals.
	SweepInterval Duration `yaml:"sweep_interval"`
}

// AccountConfig holds one venue login. Secret fields may be left empty and
// filled from the secret store.
type AccountConfig struct {
	ID         string `yaml:"id"`
	UserID     int    `yaml:"user_id"`
	APIKey     string `yaml:"api_key"`
	Secret     string `yaml:"secret"`
	Signature  string `yaml:"signature"`
	Nonce      string `yaml:"nonce"`
	TOTPSecret string `yaml:"totp_secret"`
}

type SecretsConfig struct {
	Path string `yaml:"path"`
	Key  string `yaml:"key"`
}

type StorageConfig struct {
	LedgerPath string `yaml:"ledger_path"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
	// ReadTimeout bounds the venue reads behind one read request, login
	// included.
	ReadTimeout Duration `yaml:"read_timeout"`
	// SendTimeout bounds a withdrawal request, transaction id polling
	// included.
	SendTimeout Duration `yaml:"send_timeout"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Config is the application configuration.
type Config struct {
	Venue    VenueConfig     `yaml:"venue"`
	Wallet   WalletConfig    `yaml:"wallet"`
	Accounts []AccountConfig `yaml:"accounts"`
	Secrets  SecretsConfig   `yaml:"secrets"`
	Storage  StorageConfig   `yaml:"storage"`
	Server   ServerConfig    `yaml:"server"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Log      LogConfig       `yaml:"log"`
}

// LoadFromFile reads a YAML config, expanding ${VAR} references from the
// environment, then applies env overrides and defaults. An empty path yields
// a config built from env and defaults alone.
func LoadFromFile(filePath string) (*Config, error) {
	cfg := &Config{}

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", filePath, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", filePath, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Venue.URL = getEnv("APEX_URL", c.Venue.URL)
	c.Venue.HTTPURL = getEnv("APEX_HTTP_URL", c.Venue.HTTPURL)
	c.Venue.Transport = getEnv("APEX_TRANSPORT", c.Venue.Transport)
	c.Venue.RateLimit = parseIntEnv("APEX_RATE_LIMIT", c.Venue.RateLimit)
	c.Secrets.Path = getEnv("APEXWALLET_SECRET_DB", c.Secrets.Path)
	c.Secrets.Key = getEnv("APEXWALLET_SECRET_KEY", c.Secrets.Key)
	c.Storage.LedgerPath = getEnv("APEXWALLET_LEDGER", c.Storage.LedgerPath)
	c.Server.Listen = getEnv("APEXWALLET_LISTEN", c.Server.Listen)
	c.Metrics.Listen = getEnv("APEXWALLET_METRICS_LISTEN", c.Metrics.Listen)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)
}

func (c *Config) applyDefaults() {
	if c.Venue.Transport == "" {
		c.Venue.Transport = TransportWebsocket
	}
	if c.Venue.RequestTimeout.Duration == 0 {
		c.Venue.RequestTimeout.Duration = 30 * time.Second
	}
	if len(c.Wallet.SupportedCoins) == 0 {
		c.Wallet.SupportedCoins = append([]string(nil), DefaultSupportedCoins...)
	}
	for i, coin := range c.Wallet.SupportedCoins {
		c.Wallet.SupportedCoins[i] = strings.ToUpper(strings.TrimSpace(coin))
	}
	if c.Wallet.Resolver.MaxAttempts <= 0 {
		c.Wallet.Resolver.MaxAttempts = 5
	}
	if c.Wallet.Resolver.BaseDelay.Duration <= 0 {
		c.Wallet.Resolver.BaseDelay.Duration = time.Second
	}
	if c.Wallet.ValidateAddresses == nil {
		v := true
		c.Wallet.ValidateAddresses = &v
	}
	if c.Wallet.QuoteTimeout.Duration <= 0 {
		c.Wallet.QuoteTimeout.Duration = 15 * time.Second
	}
	if c.Wallet.SweepInterval.Duration <= 0 {
		c.Wallet.SweepInterval.Duration = time.Minute
	}
	if c.Storage.LedgerPath == "" {
		c.Storage.LedgerPath = "data/withdrawals.db"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.ReadTimeout.Duration <= 0 {
		c.Server.ReadTimeout.Duration = 45 * time.Second
	}
	if c.Server.SendTimeout.Duration <= 0 {
		c.Server.SendTimeout.Duration = 2 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.File != "" {
		if c.Log.MaxSize == 0 {
			c.Log.MaxSize = 100
		}
		if c.Log.MaxBackups == 0 {
			c.Log.MaxBackups = 3
		}
		if c.Log.MaxAge == 0 {
			c.Log.MaxAge = 7
		}
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	switch c.Venue.Transport {
	case TransportWebsocket:
		if c.Venue.URL == "" {
			return fmt.Errorf("venue.url is required for the websocket transport")
		}
	case TransportHTTP:
		if c.Venue.HTTPURL == "" {
			return fmt.Errorf("venue.http_url is required for the http transport")
		}
	default:
		return fmt.Errorf("unknown venue.transport %q", c.Venue.Transport)
	}

	if c.Wallet.Resolver.MaxAttempts > MaxResolveAttempts {
		return fmt.Errorf("wallet.resolver.max_attempts must be at most %d, got %d",
			MaxResolveAttempts, c.Wallet.Resolver.MaxAttempts)
	}

	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account is required")
	}
	seen := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("accounts[%d].id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate account id %q", a.ID)
		}
		seen[a.ID] = true
		if a.UserID <= 0 {
			return fmt.Errorf("account %q: user_id is required", a.ID)
		}
	}
	return nil
}

// Account looks up an account by id.
func (c *Config) Account(id string) (AccountConfig, bool) {
	for _, a := range c.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return AccountConfig{}, false
}

func getEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
