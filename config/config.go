// Package config loads plexfront settings from a YAML file and PLEXFRONT_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. PLEXFRONT_PLEX_SERVER_URL.
const EnvPrefix = "PLEXFRONT"

// Config holds all application configuration
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Server    ServerConfig    `mapstructure:"server"`
	Plex      PlexConfig      `mapstructure:"plex"`
	TMDB      TMDBConfig      `mapstructure:"tmdb"`
	Trakt     TraktConfig     `mapstructure:"trakt"`
	IMDB      IMDBConfig      `mapstructure:"imdb"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Images    ImagesConfig    `mapstructure:"images"`
	Logos     LogosConfig     `mapstructure:"logos"`
	Watchlist WatchlistConfig `mapstructure:"watchlist"`
	Settings  SettingsConfig  `mapstructure:"settings"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	// ImageRateLimit is requests per second per client on the image proxy.
	ImageRateLimit float64 `mapstructure:"image_rate_limit"`
	ImageRateBurst int     `mapstructure:"image_rate_burst"`
	// AdminTokens may read logs and trigger maintenance; empty disables those routes.
	AdminTokens []string `mapstructure:"admin_tokens"`
}

// PlexConfig holds media server configuration
type PlexConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	ClientID  string        `mapstructure:"client_id"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// TMDBConfig holds TMDB API configuration
type TMDBConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// TraktConfig holds Trakt API configuration
type TraktConfig struct {
	ClientID string        `mapstructure:"client_id"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// IMDBConfig holds IMDB export configuration
type IMDBConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig holds the JSON disk cache windows
type CacheConfig struct {
	CrossProcessLock bool          `mapstructure:"cross_process_lock"`
	RefreshTimeout   time.Duration `mapstructure:"refresh_timeout"`
	HomeFresh        time.Duration `mapstructure:"home_fresh"`
	HomeStale        time.Duration `mapstructure:"home_stale"`
	LibraryFresh     time.Duration `mapstructure:"library_fresh"`
	LibraryStale     time.Duration `mapstructure:"library_stale"`
}

// ImagesConfig holds the image byte cache limits
type ImagesConfig struct {
	MaxMemoryBytes int64         `mapstructure:"max_memory_bytes"`
	MemoryTTL      time.Duration `mapstructure:"memory_ttl"`
	DiskTTL        time.Duration `mapstructure:"disk_ttl"`
	Dir            string        `mapstructure:"dir"`
}

// LogosConfig holds the logo cache TTLs
type LogosConfig struct {
	PositiveTTL time.Duration `mapstructure:"positive_ttl"`
	NegativeTTL time.Duration `mapstructure:"negative_ttl"`
}

// WatchlistConfig holds watchlist unification settings
type WatchlistConfig struct {
	FreshFor       time.Duration `mapstructure:"fresh_for"`
	StaleFor       time.Duration `mapstructure:"stale_for"`
	RatingPolicy   string        `mapstructure:"rating_policy"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

// SettingsConfig holds the source validation cache windows
type SettingsConfig struct {
	ValidationFresh time.Duration `mapstructure:"validation_fresh"`
	ValidationStale time.Duration `mapstructure:"validation_stale"`
}

// SchedulerConfig holds maintenance task intervals
type SchedulerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	LogoSweep     time.Duration `mapstructure:"logo_sweep"`
	ImagePrune    time.Duration `mapstructure:"image_prune"`
	TempCleanup   time.Duration `mapstructure:"tmp_cleanup"`
	TempMaxAge    time.Duration `mapstructure:"tmp_max_age"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File       string `mapstructure:"file"`
	Debug      bool   `mapstructure:"debug"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")

	v.SetDefault("server.addr", ":7777")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.image_rate_limit", 50.0)
	v.SetDefault("server.image_rate_burst", 100)
	v.SetDefault("server.admin_tokens", []string{})

	v.SetDefault("plex.server_url", "")
	v.SetDefault("plex.client_id", "")
	v.SetDefault("plex.timeout", 10*time.Second)

	v.SetDefault("tmdb.api_key", "")
	v.SetDefault("tmdb.timeout", 10*time.Second)
	v.SetDefault("tmdb.requests_per_second", 4.0)

	v.SetDefault("trakt.client_id", "")
	v.SetDefault("trakt.timeout", 10*time.Second)

	v.SetDefault("imdb.timeout", 10*time.Second)

	v.SetDefault("cache.cross_process_lock", false)
	v.SetDefault("cache.refresh_timeout", 30*time.Second)
	v.SetDefault("cache.home_fresh", 30*time.Second)
	v.SetDefault("cache.home_stale", 5*time.Minute)
	v.SetDefault("cache.library_fresh", 5*time.Minute)
	v.SetDefault("cache.library_stale", time.Hour)

	v.SetDefault("images.max_memory_bytes", int64(100<<20))
	v.SetDefault("images.memory_ttl", 24*time.Hour)
	v.SetDefault("images.disk_ttl", 7*24*time.Hour)
	v.SetDefault("images.dir", "images")

	v.SetDefault("logos.positive_ttl", 7*24*time.Hour)
	v.SetDefault("logos.negative_ttl", 24*time.Hour)

	v.SetDefault("watchlist.fresh_for", 5*time.Minute)
	v.SetDefault("watchlist.stale_for", 24*time.Hour)
	v.SetDefault("watchlist.rating_policy", "local-first")
	v.SetDefault("watchlist.max_concurrency", 4)

	v.SetDefault("settings.validation_fresh", time.Hour)
	v.SetDefault("settings.validation_stale", 24*time.Hour)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.check_interval", time.Minute)
	v.SetDefault("scheduler.logo_sweep", 6*time.Hour)
	v.SetDefault("scheduler.image_prune", 15*time.Minute)
	v.SetDefault("scheduler.tmp_cleanup", time.Hour)
	v.SetDefault("scheduler.tmp_max_age", time.Hour)

	v.SetDefault("logging.file", "")
	v.SetDefault("logging.debug", false)
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)
}

// Default returns the configuration used when no file or environment is set.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// defaults always decode
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load reads configuration from path, or from plexfront.yaml in the working
// directory or /etc/plexfront when path is empty. A missing default file is
// not an error; environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName("plexfront")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/plexfront")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}

	positive := map[string]time.Duration{
		"cache.home_fresh":          c.Cache.HomeFresh,
		"cache.home_stale":          c.Cache.HomeStale,
		"cache.library_fresh":       c.Cache.LibraryFresh,
		"cache.library_stale":       c.Cache.LibraryStale,
		"cache.refresh_timeout":     c.Cache.RefreshTimeout,
		"images.memory_ttl":         c.Images.MemoryTTL,
		"images.disk_ttl":           c.Images.DiskTTL,
		"logos.positive_ttl":        c.Logos.PositiveTTL,
		"logos.negative_ttl":        c.Logos.NegativeTTL,
		"watchlist.fresh_for":       c.Watchlist.FreshFor,
		"watchlist.stale_for":       c.Watchlist.StaleFor,
		"settings.validation_fresh": c.Settings.ValidationFresh,
		"settings.validation_stale": c.Settings.ValidationStale,
		"plex.timeout":              c.Plex.Timeout,
		"tmdb.timeout":              c.TMDB.Timeout,
		"trakt.timeout":             c.Trakt.Timeout,
		"imdb.timeout":              c.IMDB.Timeout,
	}
	for _, name := range sortedKeys(positive) {
		if positive[name] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, positive[name]))
		}
	}
	if c.Images.MaxMemoryBytes <= 0 {
		errs = append(errs, fmt.Errorf("images.max_memory_bytes must be positive, got %d", c.Images.MaxMemoryBytes))
	}
	switch strings.ToLower(strings.TrimSpace(c.Watchlist.RatingPolicy)) {
	case "", "local-first", "source-first":
	default:
		errs = append(errs, fmt.Errorf("watchlist.rating_policy must be local-first or source-first, got %q", c.Watchlist.RatingPolicy))
	}
	return errors.Join(errs...)
}

func sortedKeys(m map[string]time.Duration) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
