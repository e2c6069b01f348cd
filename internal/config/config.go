package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "PLANTRIP"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabaseDriver  = DriverSQLite
	defaultDatabaseDSN     = "plantrip.db"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultAuthIssuer      = "plantrip-auth"
	defaultAuthAudience    = "plantrip-api"
	defaultCookieName      = "access_token"
	defaultTokenTTLMinutes = 60
	defaultGenerationModel = "claude-sonnet-4-20250514"
	defaultGenerationURL   = "https://api.anthropic.com"

	// DriverSQLite selects the embedded pure-Go SQLite driver.
	DriverSQLite = "sqlite"
	// DriverPostgres selects PostgreSQL.
	DriverPostgres = "postgres"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabaseDriver string
	DatabaseDSN    string
	LogLevel       string
	LogFormat      string
	FrontendURL    string
	AllowedOrigins []string

	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Generation GenerationConfig
	Places     PlacesConfig
	Photos     PhotosConfig
	Notify     NotifyConfig

	ShareTokenTTL         time.Duration
	UniqueCountryPerOwner bool
}

// AuthConfig configures access-token issuance and validation.
type AuthConfig struct {
	SigningSecret string
	Issuer        string
	Audience      string
	CookieName    string
	TokenTTL      time.Duration
}

// RateLimitConfig configures the Redis-backed limiter. An empty RedisAddress
// disables limiting.
type RateLimitConfig struct {
	RedisAddress        string
	RedisPassword       string
	GeneratePerHour     int
	SharePerMinute      int
	SharedViewPerMinute int
	FeedbackPerMinute   int
}

// GenerationConfig configures the itinerary generation provider.
type GenerationConfig struct {
	APIKey          string
	Model           string
	BaseURL         string
	Timeout         time.Duration
	MaxConcurrent   int
	FixturesEnabled bool
}

// PlacesConfig configures OpenTripMap lookups.
type PlacesConfig struct {
	APIKey  string
	Timeout time.Duration
}

// PhotosConfig configures Unsplash photo search.
type PhotosConfig struct {
	AccessKey string
	Timeout   time.Duration
}

// NotifyConfig configures outbound email.
type NotifyConfig struct {
	ResendAPIKey string
	FromEmail    string
	AMQPURL      string
	Workers      int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("frontend.url", "")
	configViper.SetDefault("cors.allowed_origins", []string{})

	configViper.SetDefault("auth.signing_secret", "")
	configViper.SetDefault("auth.issuer", defaultAuthIssuer)
	configViper.SetDefault("auth.audience", defaultAuthAudience)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)

	configViper.SetDefault("redis.address", "")
	configViper.SetDefault("redis.password", "")
	configViper.SetDefault("ratelimit.generate_per_hour", 3)
	configViper.SetDefault("ratelimit.share_per_minute", 5)
	configViper.SetDefault("ratelimit.shared_view_per_minute", 30)
	configViper.SetDefault("ratelimit.feedback_per_minute", 10)

	configViper.SetDefault("generation.api_key", "")
	configViper.SetDefault("generation.model", defaultGenerationModel)
	configViper.SetDefault("generation.base_url", defaultGenerationURL)
	configViper.SetDefault("generation.timeout", 60*time.Second)
	configViper.SetDefault("generation.max_concurrent", 4)
	configViper.SetDefault("generation.fixtures_enabled", false)

	configViper.SetDefault("places.api_key", "")
	configViper.SetDefault("places.timeout", 10*time.Second)
	configViper.SetDefault("photos.access_key", "")
	configViper.SetDefault("photos.timeout", 10*time.Second)

	configViper.SetDefault("notify.resend_api_key", "")
	configViper.SetDefault("notify.from_email", "")
	configViper.SetDefault("notify.amqp_url", "")
	configViper.SetDefault("notify.workers", 2)

	configViper.SetDefault("share.token_ttl", 24*time.Hour)
	configViper.SetDefault("trips.unique_country_per_owner", false)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:    configViper.GetString("database.dsn"),
		LogLevel:       configViper.GetString("log.level"),
		LogFormat:      configViper.GetString("log.format"),
		FrontendURL:    strings.TrimRight(configViper.GetString("frontend.url"), "/"),
		AllowedOrigins: splitList(configViper.GetStringSlice("cors.allowed_origins")),
		Auth: AuthConfig{
			SigningSecret: configViper.GetString("auth.signing_secret"),
			Issuer:        configViper.GetString("auth.issuer"),
			Audience:      configViper.GetString("auth.audience"),
			CookieName:    configViper.GetString("auth.cookie_name"),
			TokenTTL:      time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RedisAddress:        configViper.GetString("redis.address"),
			RedisPassword:       configViper.GetString("redis.password"),
			GeneratePerHour:     configViper.GetInt("ratelimit.generate_per_hour"),
			SharePerMinute:      configViper.GetInt("ratelimit.share_per_minute"),
			SharedViewPerMinute: configViper.GetInt("ratelimit.shared_view_per_minute"),
			FeedbackPerMinute:   configViper.GetInt("ratelimit.feedback_per_minute"),
		},
		Generation: GenerationConfig{
			APIKey:          configViper.GetString("generation.api_key"),
			Model:           configViper.GetString("generation.model"),
			BaseURL:         configViper.GetString("generation.base_url"),
			Timeout:         configViper.GetDuration("generation.timeout"),
			MaxConcurrent:   configViper.GetInt("generation.max_concurrent"),
			FixturesEnabled: configViper.GetBool("generation.fixtures_enabled"),
		},
		Places: PlacesConfig{
			APIKey:  configViper.GetString("places.api_key"),
			Timeout: configViper.GetDuration("places.timeout"),
		},
		Photos: PhotosConfig{
			AccessKey: configViper.GetString("photos.access_key"),
			Timeout:   configViper.GetDuration("photos.timeout"),
		},
		Notify: NotifyConfig{
			ResendAPIKey: configViper.GetString("notify.resend_api_key"),
			FromEmail:    configViper.GetString("notify.from_email"),
			AMQPURL:      configViper.GetString("notify.amqp_url"),
			Workers:      configViper.GetInt("notify.workers"),
		},
		ShareTokenTTL:         configViper.GetDuration("share.token_ttl"),
		UniqueCountryPerOwner: configViper.GetBool("trips.unique_country_per_owner"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// splitList accepts both list values and comma-separated env strings.
func splitList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}

func (c AppConfig) validate() error {
	var problems []error
	if strings.TrimSpace(c.Auth.SigningSecret) == "" {
		problems = append(problems, errors.New("auth.signing_secret is required"))
	}
	if c.DatabaseDriver != DriverSQLite && c.DatabaseDriver != DriverPostgres {
		problems = append(problems, fmt.Errorf("database.driver must be %s or %s", DriverSQLite, DriverPostgres))
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		problems = append(problems, errors.New("database.dsn is required"))
	}
	if strings.TrimSpace(c.Auth.CookieName) == "" {
		problems = append(problems, errors.New("auth.cookie_name is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		problems = append(problems, errors.New("auth.token_ttl_minutes must be positive"))
	}
	if c.ShareTokenTTL <= 0 {
		problems = append(problems, errors.New("share.token_ttl must be positive"))
	}
	if c.Generation.MaxConcurrent < 1 {
		problems = append(problems, errors.New("generation.max_concurrent must be at least 1"))
	}
	if c.Notify.ResendAPIKey != "" && strings.TrimSpace(c.Notify.FromEmail) == "" {
		problems = append(problems, errors.New("notify.from_email is required with notify.resend_api_key"))
	}
	return errors.Join(problems...)
}
