package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds process configuration loaded from environment variables or config files.
// It is passed explicitly to the components that need it.
type Config struct {
	AppEnv          string        `mapstructure:"APP_ENV" validate:"required,oneof=development staging production test"`
	HTTPAddr        string        `mapstructure:"HTTP_ADDR" validate:"required,hostname_port"`
	// MetricsAddr is where the worker serves /metrics.
	MetricsAddr     string        `mapstructure:"METRICS_ADDR" validate:"omitempty,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"required"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"required,oneof=json console"`

	// DevOps API the client talks to. For the fixture server this is also
	// the base URL it advertises.
	DevopsAPIURL     string `mapstructure:"DEVOPS_API_URL" validate:"required,url"`
	DevopsAPIVersion string `mapstructure:"DEVOPS_API_VERSION" validate:"required,alphanum"`
	GraphQLURL       string `mapstructure:"GRAPHQL_URL" validate:"omitempty,url"`

	KeycloakURL      string `mapstructure:"KEYCLOAK_URL" validate:"omitempty,url"`
	KeycloakRealm    string `mapstructure:"KEYCLOAK_REALM"`
	KeycloakClientID string `mapstructure:"KEYCLOAK_CLIENT_ID"`
	AuthSecret       string `mapstructure:"AUTH_SECRET"`
	AuthToken        string `mapstructure:"AUTH_TOKEN"`

	DatabaseURL string `mapstructure:"DATABASE_URL" validate:"omitempty,url|uri"`

	RedisAddr     string `mapstructure:"REDIS_ADDR" validate:"omitempty,hostname_port"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	QueryStaleTime time.Duration `mapstructure:"QUERY_STALE_TIME"`
	QueryCacheTime time.Duration `mapstructure:"QUERY_CACHE_TIME"`
	QueryRetry     int           `mapstructure:"QUERY_RETRY" validate:"gte=0,lte=10"`
	PollInterval   time.Duration `mapstructure:"POLL_INTERVAL"`

	// Scope the worker follows for VMs and background jobs.
	WatchRangeID    string `mapstructure:"WATCH_RANGE_ID"`
	WatchScenarioID string `mapstructure:"WATCH_SCENARIO_ID"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS" validate:"gt=0"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST" validate:"gte=1"`
	// TrustProxy reads the client IP from forwarded headers.
	TrustProxy bool `mapstructure:"TRUST_PROXY"`

	GoMaxProcs int `mapstructure:"GOMAXPROCS" validate:"gte=0,lte=4096"`
}

var (
	validate = validator.New(validator.WithRequiredStructEnabled())

	keys = []string{
		"APP_ENV",
		"HTTP_ADDR",
		"METRICS_ADDR",
		"SHUTDOWN_TIMEOUT",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"DEVOPS_API_URL",
		"DEVOPS_API_VERSION",
		"GRAPHQL_URL",
		"KEYCLOAK_URL",
		"KEYCLOAK_REALM",
		"KEYCLOAK_CLIENT_ID",
		"AUTH_SECRET",
		"AUTH_TOKEN",
		"DATABASE_URL",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"QUERY_STALE_TIME",
		"QUERY_CACHE_TIME",
		"QUERY_RETRY",
		"POLL_INTERVAL",
		"WATCH_RANGE_ID",
		"WATCH_SCENARIO_ID",
		"RATE_LIMIT_RPS",
		"RATE_LIMIT_BURST",
		"TRUST_PROXY",
		"GOMAXPROCS",
	}
)

// Load reads configuration using Viper. It loads .env files if present,
// applies defaults, binds env vars, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", "0.0.0.0:8080")
	v.SetDefault("METRICS_ADDR", "0.0.0.0:9090")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DEVOPS_API_URL", "http://localhost:8080")
	v.SetDefault("DEVOPS_API_VERSION", "v1")
	v.SetDefault("QUERY_STALE_TIME", "30s")
	v.SetDefault("QUERY_CACHE_TIME", "5m")
	v.SetDefault("QUERY_RETRY", 3)
	v.SetDefault("POLL_INTERVAL", "5s")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("GOMAXPROCS", 0)

	// Optional config file
	_ = v.ReadInConfig()

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	// Durations may arrive as plain strings from the environment.
	for key, dst := range map[string]*time.Duration{
		"SHUTDOWN_TIMEOUT": &c.ShutdownTimeout,
		"QUERY_STALE_TIME": &c.QueryStaleTime,
		"QUERY_CACHE_TIME": &c.QueryCacheTime,
		"POLL_INTERVAL":    &c.PollInterval,
	} {
		s := v.GetString(key)
		if s == "" {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
	}

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if c.GoMaxProcs > 0 {
		runtime.GOMAXPROCS(c.GoMaxProcs)
	}

	return &c, nil
}

// MustLoad loads configuration or exits the process on failure.
func MustLoad() *Config {
	c, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return c
}

// APIBaseURL joins the DevOps API URL with its version segment.
func (c *Config) APIBaseURL() string {
	return fmt.Sprintf("%s/%s", trimSlash(c.DevopsAPIURL), c.DevopsAPIVersion)
}

// AuthEnabled reports whether bearer tokens are checked on the fixture server.
func (c *Config) AuthEnabled() bool { return c.AuthSecret != "" }

// KeycloakIssuer returns the realm issuer URL, or "" when Keycloak is not configured.
func (c *Config) KeycloakIssuer() string {
	if c.KeycloakURL == "" || c.KeycloakRealm == "" {
		return ""
	}
	return fmt.Sprintf("%s/realms/%s", trimSlash(c.KeycloakURL), c.KeycloakRealm)
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
