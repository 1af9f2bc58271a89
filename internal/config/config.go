package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all application configuration settings.
type Config struct {
	Environment string `envconfig:"ENV" default:"development"`

	HTTPPort    int           `envconfig:"HTTP_PORT" default:"8080"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`

	LibraryRoot   string `envconfig:"LIBRARY_ROOT" default:"./library"`
	RegistryDir   string `envconfig:"REGISTRY_DIR" default:"./library/vrdb"`
	WatchRegistry bool   `envconfig:"WATCH_REGISTRY" default:"true"`

	Concurrency    int           `envconfig:"CONCURRENCY" default:"3"`
	PollInterval   time.Duration `envconfig:"POLL_INTERVAL" default:"500ms"`
	NotifyInterval time.Duration `envconfig:"NOTIFY_INTERVAL" default:"500ms"`

	DownloadTimeout  time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"30m"`
	MaxFileSize      int64         `envconfig:"MAX_FILE_SIZE" default:"34359738368"`
	DownloadRetries  int           `envconfig:"DOWNLOAD_RETRIES" default:"3"`
	RetryCooldown    time.Duration `envconfig:"RETRY_COOLDOWN" default:"2s"`
	UserAgent        string        `envconfig:"USER_AGENT" default:"retro-installer/1.0"`
	ArweaveBaseURL   string        `envconfig:"ARWEAVE_BASE_URL" default:"https://arweave.net"`
	RomheavenBaseURL string        `envconfig:"ROMHEAVEN_BASE_URL" default:"https://dl.romheaven.com"`

	SteamGridAPIKey  string `envconfig:"STEAMGRID_API_KEY"`
	SteamGridBaseURL string `envconfig:"STEAMGRID_BASE_URL" default:"https://www.steamgriddb.com/api/v2"`
	ArtworkMaxSize   int    `envconfig:"ARTWORK_MAX_SIZE" default:"1920"`

	IGDBClientID     string        `envconfig:"IGDB_CLIENT_ID"`
	IGDBClientSecret string        `envconfig:"IGDB_CLIENT_SECRET"`
	IGDBBaseURL      string        `envconfig:"IGDB_BASE_URL" default:"https://api.igdb.com/v4"`
	TwitchTokenURL   string        `envconfig:"TWITCH_TOKEN_URL" default:"https://id.twitch.tv/oauth2/token"`
	CatalogCachePath string        `envconfig:"CATALOG_CACHE_PATH" default:"./library/cache/catalog.db"`
	CatalogCacheTTL  time.Duration `envconfig:"CATALOG_CACHE_TTL" default:"24h"`

	ClearSchedule string `envconfig:"CLEAR_SCHEDULE"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	DrainOnShutdown bool          `envconfig:"DRAIN_ON_SHUTDOWN" default:"true"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"auto"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive: %d", c.Concurrency)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive: %s", c.PollInterval)
	}
	if c.NotifyInterval < 0 {
		return fmt.Errorf("notify interval cannot be negative: %s", c.NotifyInterval)
	}

	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive: %d", c.MaxFileSize)
	}
	if c.DownloadRetries < 0 {
		return fmt.Errorf("download retries cannot be negative: %d", c.DownloadRetries)
	}
	if c.ArtworkMaxSize <= 0 {
		return fmt.Errorf("artwork max size must be positive: %d", c.ArtworkMaxSize)
	}

	if c.LibraryRoot == "" {
		return fmt.Errorf("library root cannot be empty")
	}
	if c.RegistryDir == "" {
		return fmt.Errorf("registry directory cannot be empty")
	}

	if c.ClearSchedule != "" {
		if _, err := cron.ParseStandard(c.ClearSchedule); err != nil {
			return fmt.Errorf("invalid clear schedule %q: %w", c.ClearSchedule, err)
		}
	}

	switch c.LogFormat {
	case "json", "text", "auto":
	default:
		return fmt.Errorf("unknown log format: %q", c.LogFormat)
	}

	return nil
}

// ArtworkEnabled reports whether a SteamGridDB key was configured.
func (c *Config) ArtworkEnabled() bool {
	return c.SteamGridAPIKey != ""
}

// CatalogEnabled reports whether IGDB credentials were configured.
func (c *Config) CatalogEnabled() bool {
	return c.IGDBClientID != "" && c.IGDBClientSecret != ""
}
