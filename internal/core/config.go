// Package core holds the service configuration shared by the CLI and the HTTP server.
package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultServerHost          = "0.0.0.0"
	DefaultServerPort          = 8080
	DefaultServerReadTimeout   = 10 * time.Second
	DefaultServerWriteTimeout  = 30 * time.Second
	DefaultShutdownTimeout     = 10 * time.Second
	DefaultUpstreamTimeout     = 10 * time.Second
	DefaultRequestsPerSecond   = 10
	DefaultCatalogDriver       = "sqlite"
	DefaultCatalogDSN          = "./raveview.db"
	DefaultURLIndexCapacity    = 10000
	DefaultBloomFPRate         = 0.001
	DefaultIndexWarmLimit      = 5000
	DefaultMetadataCacheSize   = 1024
	DefaultMetadataCacheTTL    = 5 * time.Minute
	DefaultFloodLimitPerMinute = 10
	DefaultUserHeader          = "X-User-ID"
)

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	YouTube    YouTubeConfig
	SoundCloud SoundCloudConfig
	Catalog    CatalogConfig
	App        AppConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// UserHeader carries the authenticated user id set by the fronting proxy.
	UserHeader string
}

// LogConfig configures zap.
type LogConfig struct {
	Level string
}

// YouTubeConfig configures the YouTube resolver. APIKey is optional.
type YouTubeConfig struct {
	APIKey            string
	OEmbedURL         string
	DataAPIURL        string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// SoundCloudConfig configures the SoundCloud resolver and its client credentials.
type SoundCloudConfig struct {
	ClientID          string
	ClientSecret      string
	TokenURL          string
	APIURL            string
	OEmbedURL         string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// CatalogConfig selects the catalog store.
type CatalogConfig struct {
	Driver            string
	DSN               string
	IndexCapacity     int
	BloomFPRate       float64
	IndexWarmLimit    int
	MetadataCacheSize int
	MetadataCacheTTL  time.Duration
}

// AppConfig holds submission policy.
type AppConfig struct {
	FloodLimitPerMinute int
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultServerHost,
			Port:            DefaultServerPort,
			ReadTimeout:     DefaultServerReadTimeout,
			WriteTimeout:    DefaultServerWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			UserHeader:      DefaultUserHeader,
		},
		Log: LogConfig{
			Level: "info",
		},
		YouTube: YouTubeConfig{
			Timeout:           DefaultUpstreamTimeout,
			RequestsPerSecond: DefaultRequestsPerSecond,
		},
		SoundCloud: SoundCloudConfig{
			Timeout:           DefaultUpstreamTimeout,
			RequestsPerSecond: DefaultRequestsPerSecond,
		},
		Catalog: CatalogConfig{
			Driver:            DefaultCatalogDriver,
			DSN:               DefaultCatalogDSN,
			IndexCapacity:     DefaultURLIndexCapacity,
			BloomFPRate:       DefaultBloomFPRate,
			IndexWarmLimit:    DefaultIndexWarmLimit,
			MetadataCacheSize: DefaultMetadataCacheSize,
			MetadataCacheTTL:  DefaultMetadataCacheTTL,
		},
		App: AppConfig{
			FloodLimitPerMinute: DefaultFloodLimitPerMinute,
		},
	}
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Validate reports every configuration problem at once.
// Missing SoundCloud credentials are allowed; SoundCloud requests then fail with 503.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d is out of range", c.Server.Port))
	}
	if strings.TrimSpace(c.Server.UserHeader) == "" {
		errs = append(errs, errors.New("user header must not be empty"))
	}

	switch c.Catalog.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("catalog driver must be postgres or sqlite, got %q", c.Catalog.Driver))
	}
	if c.Catalog.DSN == "" {
		errs = append(errs, errors.New("catalog dsn is required"))
	}
	if c.Catalog.IndexCapacity <= 0 {
		errs = append(errs, fmt.Errorf("url index capacity must be positive, got %d", c.Catalog.IndexCapacity))
	}
	if c.Catalog.BloomFPRate <= 0 || c.Catalog.BloomFPRate >= 1 {
		errs = append(errs, fmt.Errorf("bloom false positive rate must be in (0, 1), got %v", c.Catalog.BloomFPRate))
	}

	if (c.SoundCloud.ClientID == "") != (c.SoundCloud.ClientSecret == "") {
		errs = append(errs, errors.New("soundcloud client id and secret must be set together"))
	}

	if c.YouTube.Timeout <= 0 || c.SoundCloud.Timeout <= 0 {
		errs = append(errs, errors.New("upstream timeouts must be positive"))
	}

	return errors.Join(errs...)
}
