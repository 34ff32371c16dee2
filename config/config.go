package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/smartprocure/backend/internal/infrastructure/marketplace"
	"github.com/smartprocure/backend/internal/outreach"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Discovery   DiscoveryConfig   `mapstructure:"discovery"`
	Cache       CacheConfig       `mapstructure:"cache"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	AI          AIConfig          `mapstructure:"ai"`
	Outreach    OutreachConfig    `mapstructure:"outreach"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// MarketplaceConfig holds supplier directory settings
type MarketplaceConfig struct {
	BaseURL           string                `mapstructure:"base_url"`
	SearchPath        string                `mapstructure:"search_path"`
	QueryParam        string                `mapstructure:"query_param"`
	UserAgent         string                `mapstructure:"user_agent"`
	Timeout           time.Duration         `mapstructure:"timeout"`
	RequestsPerMinute int                   `mapstructure:"requests_per_minute"`
	Selectors         marketplace.Selectors `mapstructure:"selectors"`
}

// DiscoveryConfig holds discovery pipeline settings
type DiscoveryConfig struct {
	TargetCount     int           `mapstructure:"target_count"`
	MaxQueries      int           `mapstructure:"max_queries"`
	Concurrency     int           `mapstructure:"concurrency"`
	PolitenessDelay time.Duration `mapstructure:"politeness_delay"`
	MaxRetries      int           `mapstructure:"max_retries"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	BackoffMax      time.Duration `mapstructure:"backoff_max"`
	MaxResults      int           `mapstructure:"max_results"`
	RunTimeout      time.Duration `mapstructure:"run_timeout"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute
}

// StorageConfig holds artifact storage configuration
type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// AIConfig holds keyword expansion settings
type AIConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	Model        string `mapstructure:"model"`
	MaxSynonyms  int    `mapstructure:"max_synonyms"`
}

// OutreachConfig holds supplier outreach settings
type OutreachConfig struct {
	Live        bool                  `mapstructure:"live"`
	Concurrency int                   `mapstructure:"concurrency"`
	Sender      string                `mapstructure:"sender"`
	SMTP        outreach.SMTPConfig   `mapstructure:"smtp"`
	Twilio      outreach.TwilioConfig `mapstructure:"twilio"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from an explicit config file; an empty path searches the default locations
func LoadFile(path string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/smartprocure/")
	}

	// Environment variable settings
	v.SetEnvPrefix("SMARTPROCURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads a .env file from the working directory when present.
// Variables already set in the environment win.
func loadEnvFile() error {
	err := godotenv.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// setDefaults sets default configuration values.
// Every key gets a default so that AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Marketplace defaults
	v.SetDefault("marketplace.base_url", marketplace.DefaultBaseURL)
	v.SetDefault("marketplace.search_path", marketplace.DefaultSearchPath)
	v.SetDefault("marketplace.query_param", marketplace.DefaultQueryParam)
	v.SetDefault("marketplace.user_agent", marketplace.DefaultUserAgent)
	v.SetDefault("marketplace.timeout", marketplace.DefaultTimeout)
	v.SetDefault("marketplace.requests_per_minute", marketplace.DefaultRequestsPerMinute)
	v.SetDefault("marketplace.selectors.card", "")

	// Discovery defaults
	v.SetDefault("discovery.target_count", 40)
	v.SetDefault("discovery.max_queries", 4)
	v.SetDefault("discovery.concurrency", 3)
	v.SetDefault("discovery.politeness_delay", "1s")
	v.SetDefault("discovery.max_retries", 3)
	v.SetDefault("discovery.backoff_base", "500ms")
	v.SetDefault("discovery.backoff_max", "8s")
	v.SetDefault("discovery.max_results", 20)
	v.SetDefault("discovery.run_timeout", "5m")

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "6h")

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 30)

	// Storage defaults
	v.SetDefault("storage.dir", "data")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	// AI defaults
	v.SetDefault("ai.gemini_api_key", "")
	v.SetDefault("ai.model", "gemini-2.5-flash")
	v.SetDefault("ai.max_synonyms", 0)

	// Outreach defaults
	v.SetDefault("outreach.live", false)
	v.SetDefault("outreach.concurrency", 5)
	v.SetDefault("outreach.sender", "Procurement Team")
	v.SetDefault("outreach.smtp.host", "")
	v.SetDefault("outreach.smtp.port", 587)
	v.SetDefault("outreach.smtp.username", "")
	v.SetDefault("outreach.smtp.password", "")
	v.SetDefault("outreach.smtp.from_email", "")
	v.SetDefault("outreach.smtp.from_name", "Procurement Team")
	v.SetDefault("outreach.twilio.account_sid", "")
	v.SetDefault("outreach.twilio.auth_token", "")
	v.SetDefault("outreach.twilio.from_number", "")
	v.SetDefault("outreach.twilio.base_url", "")
}

// validate validates the configuration
func validate(config *Config) error {
	d := config.Discovery
	if d.Concurrency < 1 || d.Concurrency > 3 {
		return fmt.Errorf("discovery concurrency must be between 1 and 3, got: %d", d.Concurrency)
	}
	if d.TargetCount <= 0 {
		return fmt.Errorf("discovery target count must be positive, got: %d", d.TargetCount)
	}
	if d.MaxQueries < 1 || d.MaxQueries > 8 {
		return fmt.Errorf("discovery max queries must be between 1 and 8, got: %d", d.MaxQueries)
	}
	if d.PolitenessDelay < 0 || d.MaxRetries < 0 {
		return fmt.Errorf("discovery politeness delay and max retries must not be negative")
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache type is 'redis'")
	}

	if strings.TrimSpace(config.Storage.Dir) == "" {
		return fmt.Errorf("storage directory is required (set SMARTPROCURE_STORAGE_DIR)")
	}

	if config.Outreach.Live && !config.Outreach.SMTP.Configured() {
		return fmt.Errorf("live outreach requires SMTP host, username, password and from_email")
	}

	return nil
}
