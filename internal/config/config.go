package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Transmitter TransmitterConfig `mapstructure:"transmitter"`
	Lookout     LookoutConfig     `mapstructure:"lookout"`
	RiskStore   RiskStoreConfig   `mapstructure:"risk_store"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// TransmitterConfig identifies this SSF transmitter and the downstream
// receiver it pushes signed events to.
type TransmitterConfig struct {
	Issuer          string        `mapstructure:"issuer"`
	OrgURL          string        `mapstructure:"org_url"`
	SigningKeyFile  string        `mapstructure:"signing_key_file"`
	SigningKeyID    string        `mapstructure:"signing_key_id"`
	JWKSFile        string        `mapstructure:"jwks_file"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
}

// LookoutConfig configures the upstream MTD vendor API and the poll
// cadence. AppKey is the client-credentials secret; when it is absent
// polling is disabled rather than failing the boot.
type LookoutConfig struct {
	AppKey         string        `mapstructure:"app_key"`
	BaseURL        string        `mapstructure:"base_url"`
	TokenURL       string        `mapstructure:"token_url"`
	EnterpriseGUID string        `mapstructure:"enterprise_guid"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	SinceMinutes   int           `mapstructure:"since_minutes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type RiskStoreConfig struct {
	Backend       string `mapstructure:"backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	// Empty defaults keep env-only keys visible to Unmarshal.
	v.SetDefault("transmitter.issuer", "")
	v.SetDefault("transmitter.org_url", "")
	v.SetDefault("transmitter.signing_key_file", "private.pem")
	v.SetDefault("transmitter.signing_key_id", "lookout-ssf-key-1")
	v.SetDefault("transmitter.jwks_file", "jwks.json")
	v.SetDefault("transmitter.delivery_timeout", "10s")
	v.SetDefault("lookout.app_key", "")
	v.SetDefault("lookout.enterprise_guid", "")
	v.SetDefault("lookout.base_url", "https://api.lookout.com")
	v.SetDefault("lookout.token_url", "https://api.lookout.com/oauth2/token")
	v.SetDefault("lookout.poll_interval", "60s")
	v.SetDefault("lookout.since_minutes", 5)
	v.SetDefault("lookout.request_timeout", "15s")
	v.SetDefault("risk_store.backend", "memory")
	v.SetDefault("risk_store.redis_addr", "127.0.0.1:6379")
	v.SetDefault("risk_store.redis_password", "")
	v.SetDefault("risk_store.redis_db", 0)
	v.SetDefault("risk_store.redis_prefix", "ssf:risk")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ssf-relay")
	}

	// Environment variables override
	v.SetEnvPrefix("SSF")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings that must be present before the relay
// can serve anything. The Lookout app key is deliberately not in this
// list: its absence only disables polling.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Transmitter.Issuer) == "" {
		return fmt.Errorf("transmitter.issuer is required")
	}
	if strings.TrimSpace(c.Transmitter.OrgURL) == "" {
		return fmt.Errorf("transmitter.org_url is required")
	}
	if strings.TrimSpace(c.Transmitter.SigningKeyFile) == "" {
		return fmt.Errorf("transmitter.signing_key_file is required")
	}
	if c.Lookout.PollInterval <= 0 {
		return fmt.Errorf("lookout.poll_interval must be positive")
	}
	if c.Lookout.SinceMinutes <= 0 {
		return fmt.Errorf("lookout.since_minutes must be positive")
	}
	return nil
}

// PollingEnabled reports whether the upstream credential is configured.
func (c *Config) PollingEnabled() bool {
	return strings.TrimSpace(c.Lookout.AppKey) != ""
}
