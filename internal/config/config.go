package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/pkg/ratelimit"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig             `mapstructure:"database"`
	Logging    LoggingConfig              `mapstructure:"logging"`
	Scraper    ScraperConfig              `mapstructure:"scraper"`
	Retry      RetryConfig                `mapstructure:"retry"`
	RateLimits map[string]RateLimitConfig `mapstructure:"rate_limits"`
	Platforms  PlatformsConfig            `mapstructure:"platforms"`
	Sentiment  SentimentConfig            `mapstructure:"sentiment"`
	Anthropic  AnthropicConfig            `mapstructure:"anthropic"`
	Server     ServerConfig               `mapstructure:"server"`
	Scheduler  SchedulerConfig            `mapstructure:"scheduler"`
	Tracker    TrackerConfig              `mapstructure:"tracker"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite
	DSN    string `mapstructure:"dsn"`    // Connection string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// ScraperConfig holds defaults applied to scrape requests
type ScraperConfig struct {
	DefaultMaxResults int           `mapstructure:"default_max_results"`
	DefaultTimeRange  string        `mapstructure:"default_time_range"`
	RefreshMaxResults int           `mapstructure:"refresh_max_results"`
	MaxRateLimitWait  time.Duration `mapstructure:"max_rate_limit_wait"`
	Concurrent        bool          `mapstructure:"concurrent"`
	// Adapter selects "mock" (generated content) or "live" (platform APIs where configured)
	Adapter string `mapstructure:"adapter"`
	Seed    int64  `mapstructure:"seed"`
}

// RetryConfig holds the retry policy
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
}

// RateLimitConfig is the per-platform request budget
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	BurstLimit        int `mapstructure:"burst_limit"`
}

// PlatformsConfig holds adapter credentials and endpoints
type PlatformsConfig struct {
	Twitter  TwitterConfig  `mapstructure:"twitter"`
	YouTube  YouTubeConfig  `mapstructure:"youtube"`
	Blog     BlogConfig     `mapstructure:"blog"`
	LinkedIn LinkedInConfig `mapstructure:"linkedin"`
}

// TwitterConfig holds Twitter/X API settings
type TwitterConfig struct {
	BearerToken string `mapstructure:"bearer_token"`
	BaseURL     string `mapstructure:"base_url"`
}

// YouTubeConfig holds YouTube Data API settings
type YouTubeConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// BlogConfig holds the RSS/Atom feeds scraped for the blog platform
type BlogConfig struct {
	Feeds []FeedConfig `mapstructure:"feeds"`
}

// FeedConfig represents a single RSS feed
type FeedConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// LinkedInConfig holds LinkedIn API settings
type LinkedInConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	BaseURL      string `mapstructure:"base_url"`
	// Token injection from environment (for headless deployment)
	AccessToken     string `mapstructure:"access_token"`
	RefreshToken    string `mapstructure:"refresh_token"`
	TokenExpiresAt  string `mapstructure:"token_expires_at"`
	OrganizationURN string `mapstructure:"organization_urn"`
}

// SentimentConfig selects the sentiment scorer
type SentimentConfig struct {
	Scorer string `mapstructure:"scorer"` // vader, random or anthropic
	Seed   int64  `mapstructure:"seed"`
}

// AnthropicConfig holds Claude API settings
type AnthropicConfig struct {
	APIKey            string `mapstructure:"api_key"`
	Model             string `mapstructure:"model"`
	MaxTokens         int    `mapstructure:"max_tokens"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SchedulerConfig holds scheduler settings
type SchedulerConfig struct {
	RefreshCron string   `mapstructure:"refresh_cron"`
	Users       []string `mapstructure:"users"` // caller ids refreshed on every tick
	Platforms   []string `mapstructure:"platforms"`
}

// TrackerConfig holds Google Sheets export settings
type TrackerConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	SpreadsheetID      string `mapstructure:"spreadsheet_id"`
	SheetName          string `mapstructure:"sheet_name"`
	CredentialsFile    string `mapstructure:"credentials_file"`
	ServiceAccountJSON string `mapstructure:"service_account_json"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".web3-feed"))
		}
	}

	v.SetEnvPrefix("WEB3FEED")
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	v.BindEnv("database.dsn", "WEB3FEED_DATABASE_DSN")
	v.BindEnv("logging.level", "WEB3FEED_LOGGING_LEVEL")
	v.BindEnv("anthropic.api_key", "WEB3FEED_ANTHROPIC_API_KEY")
	v.BindEnv("sentiment.scorer", "WEB3FEED_SENTIMENT_SCORER")
	v.BindEnv("scraper.adapter", "WEB3FEED_SCRAPER_ADAPTER")
	v.BindEnv("platforms.twitter.bearer_token", "WEB3FEED_TWITTER_BEARER_TOKEN")
	v.BindEnv("platforms.youtube.api_key", "WEB3FEED_YOUTUBE_API_KEY")
	v.BindEnv("platforms.linkedin.client_id", "WEB3FEED_LINKEDIN_CLIENT_ID")
	v.BindEnv("platforms.linkedin.client_secret", "WEB3FEED_LINKEDIN_CLIENT_SECRET")
	v.BindEnv("platforms.linkedin.access_token", "WEB3FEED_LINKEDIN_ACCESS_TOKEN")
	v.BindEnv("platforms.linkedin.refresh_token", "WEB3FEED_LINKEDIN_REFRESH_TOKEN")
	v.BindEnv("server.port", "WEB3FEED_SERVER_PORT")
	v.BindEnv("tracker.spreadsheet_id", "WEB3FEED_TRACKER_SPREADSHEET_ID")
	v.BindEnv("tracker.service_account_json", "WEB3FEED_GOOGLE_SERVICE_ACCOUNT_JSON")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// DefaultRateLimits are the per-platform budgets used when none are configured
func DefaultRateLimits() map[string]RateLimitConfig {
	return map[string]RateLimitConfig{
		string(models.PlatformTwitter):  {RequestsPerMinute: 300, BurstLimit: 15},
		string(models.PlatformLinkedIn): {RequestsPerMinute: 100, BurstLimit: 10},
		string(models.PlatformDiscord):  {RequestsPerMinute: 50, BurstLimit: 5},
		string(models.PlatformTelegram): {RequestsPerMinute: 30, BurstLimit: 3},
		string(models.PlatformYouTube):  {RequestsPerMinute: 100, BurstLimit: 10},
		string(models.PlatformBlog):     {RequestsPerMinute: 60, BurstLimit: 6},
	}
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/web3feed.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("scraper.default_max_results", models.DefaultMaxResults)
	v.SetDefault("scraper.default_time_range", string(models.DefaultTimeRange))
	v.SetDefault("scraper.refresh_max_results", 20)
	v.SetDefault("scraper.max_rate_limit_wait", "60s")
	v.SetDefault("scraper.concurrent", true)
	v.SetDefault("scraper.adapter", "mock")

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.max_delay", "10s")

	for name, rl := range DefaultRateLimits() {
		v.SetDefault("rate_limits."+name+".requests_per_minute", rl.RequestsPerMinute)
		v.SetDefault("rate_limits."+name+".burst_limit", rl.BurstLimit)
	}

	v.SetDefault("platforms.twitter.base_url", "https://api.twitter.com/2")
	v.SetDefault("platforms.linkedin.base_url", "https://api.linkedin.com/v2")

	v.SetDefault("sentiment.scorer", "vader")

	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 256)
	v.SetDefault("anthropic.requests_per_minute", 10)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("scheduler.refresh_cron", "*/30 * * * *") // Every 30 minutes

	v.SetDefault("tracker.enabled", false)
	v.SetDefault("tracker.sheet_name", "Content")
}

// Quotas converts the configured rate limits into limiter quotas
func (c *Config) Quotas() map[string]ratelimit.Quota {
	limits := c.RateLimits
	if len(limits) == 0 {
		limits = DefaultRateLimits()
	}
	quotas := make(map[string]ratelimit.Quota, len(limits))
	for name, rl := range limits {
		quotas[name] = ratelimit.Quota{
			RequestsPerMinute: rl.RequestsPerMinute,
			BurstLimit:        rl.BurstLimit,
		}
	}
	return quotas
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Retry.MaxRetries < 1 {
		return fmt.Errorf("retry.max_retries must be at least 1")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay must not be less than retry.base_delay")
	}
	if c.Scraper.DefaultMaxResults < 1 || c.Scraper.RefreshMaxResults < 1 {
		return fmt.Errorf("scraper max results must be positive")
	}
	if _, err := models.ParseTimeRange(c.Scraper.DefaultTimeRange); err != nil {
		return fmt.Errorf("scraper.default_time_range: %w", err)
	}
	for name := range c.RateLimits {
		if _, err := models.ParsePlatform(name); err != nil {
			return fmt.Errorf("rate_limits: %w", err)
		}
	}
	switch c.Scraper.Adapter {
	case "mock", "live":
	default:
		return fmt.Errorf("scraper.adapter must be mock or live, got %q", c.Scraper.Adapter)
	}
	if c.Tracker.Enabled && c.Tracker.SpreadsheetID == "" {
		return fmt.Errorf("tracker.spreadsheet_id is required when the tracker is enabled")
	}
	switch c.Sentiment.Scorer {
	case "vader", "random":
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("anthropic.api_key is required for the anthropic scorer")
		}
	default:
		return fmt.Errorf("sentiment.scorer must be vader, random or anthropic, got %q", c.Sentiment.Scorer)
	}
	return nil
}
