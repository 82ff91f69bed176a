package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Cache     CacheConfig
	Amazon    AmazonConfig
	Sources   []SourceConfig
	HTTP      HTTPConfig
	Scraper   ScraperConfig
	Catalog   CatalogConfig
	Vector    VectorConfig
	Alerts    AlertsConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type      string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL  string        `mapstructure:"redis_url"`
	TTL       time.Duration `mapstructure:"ttl"`
	SearchTTL time.Duration `mapstructure:"search_ttl"`
	FacetTTL  time.Duration `mapstructure:"facet_ttl"`
}

// AmazonConfig holds Product Advertising API credentials
type AmazonConfig struct {
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	PartnerTag string `mapstructure:"partner_tag"`
	Host       string `mapstructure:"host"`
	Region     string `mapstructure:"region"`
	BaseURL    string `mapstructure:"base_url"`
}

// Enabled reports whether enough credentials are present to call the API.
func (a AmazonConfig) Enabled() bool {
	return a.AccessKey != "" && a.SecretKey != "" && a.PartnerTag != ""
}

// Endpoint returns BaseURL, or https://<Host> when no base URL is set.
func (a AmazonConfig) Endpoint() string {
	if a.BaseURL != "" {
		return a.BaseURL
	}
	return "https://" + a.Host
}

// SourceConfig describes one generic retail REST source and its shipping rule
type SourceConfig struct {
	Name                  string  `mapstructure:"name"`
	BaseURL               string  `mapstructure:"base_url"`
	HostPattern           string  `mapstructure:"host_pattern"`
	APIKey                string  `mapstructure:"api_key"`
	FreeShippingThreshold float64 `mapstructure:"free_shipping_threshold"`
	ShippingRate          float64 `mapstructure:"shipping_rate"`
	ShippingTime          string  `mapstructure:"shipping_time"`
}

// HasShippingRule reports whether the source overrides the default shipping rule.
func (s SourceConfig) HasShippingRule() bool {
	return s.FreeShippingThreshold > 0 || s.ShippingRate > 0 || s.ShippingTime != ""
}

// HTTPConfig holds outbound HTTP settings shared by the source adapters
type HTTPConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// ScraperConfig holds fallback scraper configuration
type ScraperConfig struct {
	Renderer  string        `mapstructure:"renderer"` // "chrome" or "http"
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// CatalogConfig holds the SQLite catalog location
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// VectorConfig selects the vector index backend
type VectorConfig struct {
	Backend     string `mapstructure:"backend"` // "sqlite" or "pgvector"
	PostgresDSN string `mapstructure:"postgres_dsn"`
	Dimensions  int    `mapstructure:"dimensions"`
}

// AlertsConfig holds the wishlist alert sweep configuration
type AlertsConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	KafkaBrokers []string      `mapstructure:"kafka_brokers"`
	KafkaTopic   string        `mapstructure:"kafka_topic"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/snapp/")

	// SNAPP_CACHE_REDIS_URL -> cache.redis_url
	v.SetEnvPrefix("SNAPP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile exports the variables in ./.env that are not already set.
func loadEnvFile() error {
	if _, err := os.Stat(".env"); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		if _, exists := os.LookupEnv(name); exists {
			continue
		}
		if err := os.Setenv(name, v.GetString(key)); err != nil {
			return err
		}
	}
	return nil
}

// setDefaults sets default configuration values. Every key gets a default so
// AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("log.level", "info")

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.search_ttl", "24h")
	v.SetDefault("cache.facet_ttl", "1h")

	// Amazon defaults
	v.SetDefault("amazon.access_key", "")
	v.SetDefault("amazon.secret_key", "")
	v.SetDefault("amazon.partner_tag", "")
	v.SetDefault("amazon.host", "webservices.amazon.com")
	v.SetDefault("amazon.region", "us-east-1")
	v.SetDefault("amazon.base_url", "")

	v.SetDefault("http.timeout", "5s")
	v.SetDefault("http.requests_per_second", 5)

	v.SetDefault("scraper.renderer", "chrome")
	v.SetDefault("scraper.timeout", "15s")
	v.SetDefault("scraper.user_agent", "")

	v.SetDefault("catalog.path", "./data")

	v.SetDefault("vector.backend", "sqlite")
	v.SetDefault("vector.postgres_dsn", "")
	v.SetDefault("vector.dimensions", 512)

	// Alert defaults
	v.SetDefault("alerts.interval", "15m")
	v.SetDefault("alerts.kafka_brokers", []string{})
	v.SetDefault("alerts.kafka_topic", "snapp.notifications")

	v.SetDefault("ratelimit.per_ip", 100)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("redis URL is required when cache type is 'redis' (set SNAPP_CACHE_REDIS_URL)")
	}

	if config.Vector.Backend != "sqlite" && config.Vector.Backend != "pgvector" {
		return fmt.Errorf("vector backend must be 'sqlite' or 'pgvector', got: %s", config.Vector.Backend)
	}

	if config.Vector.Backend == "pgvector" && config.Vector.PostgresDSN == "" {
		return fmt.Errorf("postgres DSN is required when vector backend is 'pgvector' (set SNAPP_VECTOR_POSTGRES_DSN)")
	}

	if config.Scraper.Renderer != "chrome" && config.Scraper.Renderer != "http" {
		return fmt.Errorf("scraper renderer must be 'chrome' or 'http', got: %s", config.Scraper.Renderer)
	}

	if config.Alerts.Interval <= 0 {
		return fmt.Errorf("alerts interval must be positive, got: %s", config.Alerts.Interval)
	}

	for i, s := range config.Sources {
		if s.Name == "" || s.BaseURL == "" {
			return fmt.Errorf("source %d: name and base_url are required", i)
		}
	}

	return nil
}
