package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/adherence-portal/internal/adherence"
)

// EnvPrefix namespaces every environment override, e.g. PORTAL_SERVER_PORT.
const EnvPrefix = "PORTAL"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Session   SessionConfig   `mapstructure:"session"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Adherence AdherenceConfig `mapstructure:"adherence"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Log       LogConfig       `mapstructure:"log"`

	Secrets Secrets `mapstructure:"-"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
}

type UpstreamConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	APIKeyHeader       string        `mapstructure:"api_key_header"`
	Timeout            time.Duration `mapstructure:"timeout"`
	BreakerMaxFailures uint32        `mapstructure:"breaker_max_failures"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`
}

type SessionConfig struct {
	TTL          time.Duration `mapstructure:"ttl"`
	Issuer       string        `mapstructure:"issuer"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	CookieDomain string        `mapstructure:"cookie_domain"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
}

// RedisConfig is optional; an empty URL keeps sessions and audit events in process.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type CacheConfig struct {
	CatalogTTL      time.Duration `mapstructure:"catalog_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	IdleTTL           time.Duration `mapstructure:"idle_ttl"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type AdherenceConfig struct {
	WindowDays int    `mapstructure:"window_days"`
	Timezone   string `mapstructure:"timezone"`
}

type AuditConfig struct {
	Channel string `mapstructure:"channel"`
	Buffer  int    `mapstructure:"buffer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Secrets never live in config.yaml.
type Secrets struct {
	SessionSecret  string `envconfig:"SESSION_SECRET" required:"true"`
	UpstreamAPIKey string `envconfig:"UPSTREAM_API_KEY"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.max_header_bytes", 1<<14)

	v.SetDefault("upstream.base_url", "")
	v.SetDefault("upstream.api_key_header", "X-Api-Key")
	v.SetDefault("upstream.timeout", 10*time.Second)
	v.SetDefault("upstream.breaker_max_failures", 5)
	v.SetDefault("upstream.breaker_timeout", 30*time.Second)

	v.SetDefault("session.ttl", 8*time.Hour)
	v.SetDefault("session.issuer", "adherence-portal")
	v.SetDefault("session.key_prefix", "portal:session:")
	v.SetDefault("session.cookie_domain", "")
	v.SetDefault("session.cookie_secure", true)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("cache.catalog_ttl", 10*time.Minute)
	v.SetDefault("cache.cleanup_interval", 5*time.Minute)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("rate_limit.idle_ttl", 10*time.Minute)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("adherence.window_days", adherence.DefaultWindowDays)
	v.SetDefault("adherence.timezone", "UTC")

	v.SetDefault("audit.channel", "portal.audit")
	v.SetDefault("audit.buffer", 256)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// LoadConfig reads config.yaml from the given paths (or . and ./config),
// applies PORTAL_ environment overrides and loads secrets. A missing file is
// not an error; defaults and the environment are enough to run.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &config.Secrets); err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the portal cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		errs = append(errs, errors.New("upstream.base_url is required"))
	}
	if len(c.Secrets.SessionSecret) < 32 {
		errs = append(errs, errors.New("PORTAL_SESSION_SECRET must be at least 32 bytes"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if c.Adherence.WindowDays < 1 || c.Adherence.WindowDays > 366 {
		errs = append(errs, fmt.Errorf("adherence.window_days %d must be between 1 and 366", c.Adherence.WindowDays))
	}
	if _, err := time.LoadLocation(c.Adherence.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("adherence.timezone: %w", err))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate_limit requires positive requests_per_second and burst"))
	}
	return errors.Join(errs...)
}

// Location returns the zone in which "today" is computed for the grid.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Adherence.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
