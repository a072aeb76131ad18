// Package config loads the application configuration from an optional YAML
// file and LISTSYNC_ prefixed environment variables.
package config

import (
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-listsync/cache"
	"github.com/goliatone/go-listsync/fetcher"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// LISTSYNC_API_BASE_URL for api.base_url.
const EnvPrefix = "LISTSYNC"

// API locates the backend and bounds each request.
type API struct {
	BaseURL    string
	Timeout    time.Duration
	ScopeParam string
}

// Sync controls bulk fetching and manual refresh.
type Sync struct {
	BulkLimit       int
	RefreshCooldown time.Duration
	Scope           string
}

// View holds list rendering settings.
type View struct {
	PageSize int
}

// Cache sizes the in-memory snapshot store.
type Cache struct {
	Capacity           int
	NumShards          int
	EvictionPercentage int
	EvictionInterval   time.Duration
}

// Log sets the logger level.
type Log struct {
	Level string
}

// Metrics toggles the Prometheus recorder.
type Metrics struct {
	Enabled bool
}

// Config is the full application configuration.
type Config struct {
	API     API
	Sync    Sync
	View    View
	Cache   Cache
	Log     Log
	Metrics Metrics
}

// Default returns the configuration used when nothing is overridden. The
// base URL has no default.
func Default() Config {
	c := cache.DefaultConfig()
	return Config{
		API: API{
			Timeout:    15 * time.Second,
			ScopeParam: fetcher.DefaultScopeParam,
		},
		Sync: Sync{
			BulkLimit:       fetcher.DefaultBulkLimit,
			RefreshCooldown: 30 * time.Second,
		},
		View: View{PageSize: 10},
		Cache: Cache{
			Capacity:           c.Capacity,
			NumShards:          c.NumShards,
			EvictionPercentage: c.EvictionPercentage,
			EvictionInterval:   c.EvictionInterval,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path (if not empty), applies environment overrides on top of
// the defaults and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read config file "+path)
		}
	}

	cfg := Config{
		API: API{
			BaseURL:    v.GetString("api.base_url"),
			Timeout:    v.GetDuration("api.timeout"),
			ScopeParam: v.GetString("api.scope_param"),
		},
		Sync: Sync{
			BulkLimit:       v.GetInt("sync.bulk_limit"),
			RefreshCooldown: v.GetDuration("sync.refresh_cooldown"),
			Scope:           v.GetString("sync.scope"),
		},
		View: View{PageSize: v.GetInt("view.page_size")},
		Cache: Cache{
			Capacity:           v.GetInt("cache.capacity"),
			NumShards:          v.GetInt("cache.num_shards"),
			EvictionPercentage: v.GetInt("cache.eviction_percentage"),
			EvictionInterval:   v.GetDuration("cache.eviction_interval"),
		},
		Log:     Log{Level: v.GetString("log.level")},
		Metrics: Metrics{Enabled: v.GetBool("metrics.enabled")},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.scope_param", d.API.ScopeParam)
	v.SetDefault("sync.bulk_limit", d.Sync.BulkLimit)
	v.SetDefault("sync.refresh_cooldown", d.Sync.RefreshCooldown)
	v.SetDefault("sync.scope", d.Sync.Scope)
	v.SetDefault("view.page_size", d.View.PageSize)
	v.SetDefault("cache.capacity", d.Cache.Capacity)
	v.SetDefault("cache.num_shards", d.Cache.NumShards)
	v.SetDefault("cache.eviction_percentage", d.Cache.EvictionPercentage)
	v.SetDefault("cache.eviction_interval", d.Cache.EvictionInterval)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
}

// Validate checks every section and reports the first failure.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c.API,
		validation.Field(&c.API.BaseURL, validation.Required, validation.By(absoluteURL)),
		validation.Field(&c.API.Timeout, validation.Min(time.Duration(0))),
	)
	if err == nil {
		err = validation.ValidateStruct(&c.Sync,
			validation.Field(&c.Sync.BulkLimit, validation.Required, validation.Min(1)),
			validation.Field(&c.Sync.RefreshCooldown, validation.Min(time.Duration(0))),
		)
	}
	if err == nil {
		err = validation.ValidateStruct(&c.View,
			validation.Field(&c.View.PageSize, validation.Required, validation.Min(1)),
		)
	}
	if err == nil {
		err = validation.ValidateStruct(&c.Log,
			validation.Field(&c.Log.Level, validation.In("debug", "info", "warn", "error")),
		)
	}
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration")
	}

	if err := c.CacheConfig().Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid cache configuration")
	}
	return nil
}

// CacheConfig converts the cache section to a cache.Config.
func (c Config) CacheConfig() cache.Config {
	return cache.Config{
		Capacity:           c.Cache.Capacity,
		NumShards:          c.Cache.NumShards,
		EvictionPercentage: c.Cache.EvictionPercentage,
		EvictionInterval:   c.Cache.EvictionInterval,
	}
}

// ClientConfig returns the fetcher client configuration for endpoints.
func (c Config) ClientConfig(endpoints map[string]string) fetcher.ClientConfig {
	return fetcher.ClientConfig{
		BaseURL:    c.API.BaseURL,
		Endpoints:  endpoints,
		ScopeParam: c.API.ScopeParam,
		Timeout:    c.API.Timeout,
	}
}

func absoluteURL(value any) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return validation.NewError("validation_absolute_url", "must be an absolute URL")
	}
	return nil
}
