package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"schemainjector/schema"
)

// Config holds all configuration for the service
type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	Browser  BrowserConfig
	Cache    CacheConfig
	Log      LogConfig
	Injector InjectorConfig
	Store    StoreConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// UpstreamConfig describes the storefront being proxied
type UpstreamConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	FetchMode string        `mapstructure:"fetch_mode"` // "http" or "browser"
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// BrowserConfig sizes the headless browser pool
type BrowserConfig struct {
	PoolSize int `mapstructure:"pool_size"`
}

// CacheConfig holds redis settings for upstream page caching
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	RedisAddr string        `mapstructure:"redis_addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// LogConfig selects the zap level and encoding
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// InjectorConfig holds the gate marker and DOM selectors
type InjectorConfig struct {
	PathMarker          string `mapstructure:"path_marker"`
	ContainerSelector   string `mapstructure:"container_selector"`
	DataAttribute       string `mapstructure:"data_attribute"`
	ImageSelector       string `mapstructure:"image_selector"`
	DescriptionSelector string `mapstructure:"description_selector"`
}

// StoreConfig holds the storefront constants written into each offer
type StoreConfig struct {
	DefaultBrand   string `mapstructure:"default_brand"`
	Currency       string `mapstructure:"currency"`
	AreaServed     string `mapstructure:"area_served"`
	Country        string `mapstructure:"country"`
	Region         string `mapstructure:"region"`
	ShippingCost   string `mapstructure:"shipping_cost"`
	HandlingDays   int    `mapstructure:"handling_days"`
	TransitDays    int    `mapstructure:"transit_days"`
	DeliveryMethod string `mapstructure:"delivery_method"`
}

// Schema converts the store settings into schema.Store
func (s StoreConfig) Schema() schema.Store {
	return schema.Store{
		DefaultBrand:   s.DefaultBrand,
		Currency:       s.Currency,
		AreaServed:     s.AreaServed,
		Country:        s.Country,
		Region:         s.Region,
		ShippingCost:   s.ShippingCost,
		HandlingDays:   s.HandlingDays,
		TransitDays:    s.TransitDays,
		DeliveryMethod: s.DeliveryMethod,
	}
}

// Load reads config.yaml (optional), SCHEMAINJECTOR_* environment
// variables and defaults. An explicit file path overrides the search paths.
func Load(file string) (*Config, error) {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/schemainjector/")
	}

	v.SetEnvPrefix("SCHEMAINJECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("upstream.base_url", "")
	v.SetDefault("upstream.fetch_mode", "http")
	v.SetDefault("upstream.timeout", "30s")
	v.SetDefault("upstream.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36")

	v.SetDefault("browser.pool_size", 4)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", "5m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("injector.path_marker", "/product/")
	v.SetDefault("injector.container_selector", ".lb_prod_single_add_to_cart")
	v.SetDefault("injector.data_attribute", "filter_data")
	v.SetDefault("injector.image_selector", ".lb_prod_single_img img")
	v.SetDefault("injector.description_selector", ".lb_prod_single_descr")

	store := schema.DefaultStore()
	v.SetDefault("store.default_brand", store.DefaultBrand)
	v.SetDefault("store.currency", store.Currency)
	v.SetDefault("store.area_served", store.AreaServed)
	v.SetDefault("store.country", store.Country)
	v.SetDefault("store.region", store.Region)
	v.SetDefault("store.shipping_cost", store.ShippingCost)
	v.SetDefault("store.handling_days", store.HandlingDays)
	v.SetDefault("store.transit_days", store.TransitDays)
	v.SetDefault("store.delivery_method", store.DeliveryMethod)
}

func validate(cfg *Config) error {
	switch cfg.Upstream.FetchMode {
	case "http", "browser":
	default:
		return fmt.Errorf("upstream fetch mode must be 'http' or 'browser', got: %s", cfg.Upstream.FetchMode)
	}

	if cfg.Upstream.BaseURL != "" && !strings.HasPrefix(cfg.Upstream.BaseURL, "http://") &&
		!strings.HasPrefix(cfg.Upstream.BaseURL, "https://") {
		return fmt.Errorf("upstream base URL must start with http:// or https://, got: %s", cfg.Upstream.BaseURL)
	}

	if cfg.Injector.ContainerSelector == "" || cfg.Injector.DataAttribute == "" {
		return errors.New("injector container selector and data attribute are required")
	}

	if cfg.Browser.PoolSize < 1 {
		return fmt.Errorf("browser pool size must be at least 1, got: %d", cfg.Browser.PoolSize)
	}

	if cfg.Cache.Enabled && cfg.Cache.RedisAddr == "" {
		return errors.New("redis address is required when the cache is enabled")
	}

	return nil
}
