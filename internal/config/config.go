package config

import (
	"encoding/json"
	"fmt"
	"os"
)

type Config struct {
	Server          ServerConfig          `json:"server"`
	Postgres        PostgresConfig        `json:"postgres"`
	Redis           RedisConfig           `json:"redis"`
	Auth            AuthConfig            `json:"auth"`
	Cache           CacheConfig           `json:"cache"`
	Brokers         []BrokerConfig        `json:"brokers"`
	ClientRateLimit ClientRateLimitConfig `json:"client_rate_limit"`
	TrustKeys       map[string]string     `json:"trust_keys"` // fingerprint -> hex ed25519 public key
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type AuthConfig struct {
	JWTSecret   string `json:"-"` // from env (JWT_SECRET)
	ExpiryHours int    `json:"expiry_hours"`
}

type CacheConfig struct {
	MaxSize    int `json:"max_size"`
	TTLSeconds int `json:"ttl_seconds"`
}

// BrokerConfig describes one marketplace provider. Type is "signed" for
// the authenticated provider or "catalog" for the public read-only one.
type BrokerConfig struct {
	Name              string `json:"name"`
	Type              string `json:"type"`
	BaseURL           string `json:"base_url"`
	APIKeyEnv         string `json:"api_key_env"` // env var holding the provider credential
	RequestsPerMinute int    `json:"requests_per_minute"`
}

type ClientRateLimitConfig struct {
	Enabled           bool `json:"enabled"`
	RequestsPerMinute int  `json:"requests_per_minute"`
}

func Load(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	config.applyEnv()

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Auth.ExpiryHours <= 0 {
		c.Auth.ExpiryHours = 24
	}
	if c.Cache.MaxSize <= 0 {
		c.Cache.MaxSize = 1000
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = 300
	}
	if c.ClientRateLimit.RequestsPerMinute <= 0 {
		c.ClientRateLimit.RequestsPerMinute = 120
	}
	for i := range c.Brokers {
		if c.Brokers[i].RequestsPerMinute <= 0 {
			c.Brokers[i].RequestsPerMinute = 60
		}
	}
}

func (c *Config) applyEnv() {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		c.Postgres.DSN = dsn
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		c.Redis.Password = password
	}
}

func (c *Config) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("config: at least one broker must be configured")
	}

	for _, b := range c.Brokers {
		if b.Name == "" || b.BaseURL == "" {
			return fmt.Errorf("config: broker entries need both name and base_url")
		}
		if b.Type != "signed" && b.Type != "catalog" {
			return fmt.Errorf("config: broker %q has unknown type %q", b.Name, b.Type)
		}
	}

	return nil
}
