package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Services  map[string]string `mapstructure:"services"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Admin     AdminConfig     `mapstructure:"admin"`
}

type ServerConfig struct {
	Port            string `mapstructure:"port"`
	MaxUploadBytes  int64  `mapstructure:"max_upload_bytes"`
	ShutdownSeconds int    `mapstructure:"shutdown_seconds"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AuthConfig selects the token verifier: a remote JWKS endpoint when
// JWKSURL is set, otherwise a shared HMAC secret.
type AuthConfig struct {
	JWKSURL       string `mapstructure:"jwks_url"`
	Issuer        string `mapstructure:"issuer"`
	HMACSecret    string `mapstructure:"hmac_secret"`
	LeewaySeconds int    `mapstructure:"leeway_seconds"`
}

func (c AuthConfig) Leeway() time.Duration {
	return time.Duration(c.LeewaySeconds) * time.Second
}

// CORSConfig lists the browser origins allowed to call the gateway. Leaving
// AllowedOrigins empty turns cross-origin enforcement off, the mode for
// same-origin deployments with no browser clients on other hosts.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAgeSeconds    int      `mapstructure:"max_age_seconds"`
}

type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

type ExtractorConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

func (c ExtractorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type UpstreamConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

func (c UpstreamConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	AuditListKey string `mapstructure:"audit_list_key"`
	AuditListMax int    `mapstructure:"audit_list_max"`
	RateLimit    bool   `mapstructure:"rate_limit"`
}

type AuditConfig struct {
	LogDir              string `mapstructure:"log_dir"`
	QueueSize           int    `mapstructure:"queue_size"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
	MaxBodyBytes        int    `mapstructure:"max_body_bytes"`
}

func (c AuditConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type AdminConfig struct {
	Key string `mapstructure:"key"`
}

func Load() (*Config, error) {
	// Optional .env for local development; real deployments use env vars.
	_ = godotenv.Load()

	viper.SetConfigName("ledgergate")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support, e.g. LEDGERGATE_DATABASE_DSN
	viper.SetEnvPrefix("ledgergate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.max_upload_bytes", 20<<20)
	viper.SetDefault("server.shutdown_seconds", 5)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("auth.leeway_seconds", 30)
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	viper.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization", "X-Request-ID"})
	viper.SetDefault("cors.max_age_seconds", 86400)
	viper.SetDefault("rate_limit.window_seconds", 60)
	viper.SetDefault("rate_limit.max_requests", 100)
	viper.SetDefault("extractor.timeout_seconds", 30)
	viper.SetDefault("upstream.timeout_seconds", 30)
	viper.SetDefault("redis.audit_list_key", "audit_records")
	viper.SetDefault("redis.audit_list_max", 10000)
	viper.SetDefault("audit.log_dir", "./logs")
	viper.SetDefault("audit.queue_size", 1000)
	viper.SetDefault("audit.write_timeout_seconds", 10)
	viper.SetDefault("audit.max_body_bytes", 8192)
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
}

func (c *Config) Validate() error {
	if c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("rate_limit.window_seconds must be > 0 (got %d)", c.RateLimit.WindowSeconds)
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("rate_limit.max_requests must be > 0 (got %d)", c.RateLimit.MaxRequests)
	}
	if c.Auth.JWKSURL == "" && c.Auth.HMACSecret == "" {
		return fmt.Errorf("auth requires either jwks_url or hmac_secret")
	}
	return nil
}
