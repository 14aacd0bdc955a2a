// Package main provides the raveview CLI application entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"raveview/internal/catalog"
	"raveview/internal/core"
	"raveview/internal/flood"
	httpserver "raveview/internal/http"
	"raveview/internal/ingest"
	"raveview/internal/store"
	"raveview/pkg/setlink"
)

const envPrefix = "RAVEVIEW"

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "raveview",
	Short: "raveview - DJ set ingestion service",
	Long: `raveview turns YouTube and SoundCloud links into catalogued DJ sets with title, artist,
thumbnail, duration and upload date. Each canonical link is catalogued exactly once.`,
	RunE: runServe,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <url>",
	Short: "Resolve a link and print its set metadata without cataloguing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <url>",
	Short: "Resolve a link and add it to the catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := core.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file (default is .env)")
	flags.String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")

	flags.String("server-host", defaults.Server.Host, "HTTP server host")
	flags.Int("server-port", defaults.Server.Port, "HTTP server port")
	flags.Duration("server-read-timeout", defaults.Server.ReadTimeout, "HTTP read timeout")
	flags.Duration("server-write-timeout", defaults.Server.WriteTimeout, "HTTP write timeout")
	flags.String("user-header", defaults.Server.UserHeader, "Request header carrying the authenticated user id")

	flags.String("youtube-api-key", "", "YouTube Data API key (optional, enables duration and upload date)")
	flags.String("youtube-oembed-url", setlink.YouTubeOEmbedURL, "YouTube oEmbed endpoint")
	flags.String("youtube-data-api-url", setlink.YouTubeDataAPIURL, "YouTube Data API videos endpoint")
	flags.Duration("youtube-timeout", defaults.YouTube.Timeout, "Timeout for YouTube requests")
	flags.Float64("youtube-rps", defaults.YouTube.RequestsPerSecond, "Outbound YouTube requests per second")

	flags.String("soundcloud-client-id", "", "SoundCloud client ID")
	flags.String("soundcloud-client-secret", "", "SoundCloud client secret")
	flags.String("soundcloud-token-url", setlink.SoundCloudTokenURL, "SoundCloud OAuth token endpoint")
	flags.String("soundcloud-api-url", setlink.SoundCloudAPIURL, "SoundCloud API base URL")
	flags.String("soundcloud-oembed-url", setlink.SoundCloudOEmbedURL, "SoundCloud oEmbed endpoint")
	flags.Duration("soundcloud-timeout", defaults.SoundCloud.Timeout, "Timeout for SoundCloud requests")
	flags.Float64("soundcloud-rps", defaults.SoundCloud.RequestsPerSecond, "Outbound SoundCloud requests per second")

	flags.String("catalog-driver", defaults.Catalog.Driver, "Catalog store (postgres, sqlite)")
	flags.String("catalog-dsn", defaults.Catalog.DSN, "Catalog DSN (postgres URL or sqlite path)")
	flags.Int("url-index-capacity", defaults.Catalog.IndexCapacity, "Number of URL to id mappings kept in memory")
	flags.Float64("bloom-fp-rate", defaults.Catalog.BloomFPRate, "False positive rate of the URL index Bloom filter")
	flags.Int("index-warm-limit", defaults.Catalog.IndexWarmLimit, "Recent catalog URLs loaded into the index at startup")
	flags.Int("metadata-cache-size", defaults.Catalog.MetadataCacheSize, "Resolved metadata cache size (0 disables)")
	flags.Duration("metadata-cache-ttl", defaults.Catalog.MetadataCacheTTL, "Resolved metadata cache lifetime")

	flags.Int("flood-limit-per-minute", defaults.App.FloodLimitPerMinute, "Maximum submissions per user per minute (0 disables)")
	flags.Bool("generate-env-example", false, "Generate .env.example file from current configuration and exit")

	ingestCmd.Flags().String("user", "cli", "Creator id recorded on new catalog entries")
	resolveCmd.Flags().Bool("json", false, "Print metadata as JSON")

	rootCmd.AddCommand(resolveCmd, ingestCmd)

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	cfg.Log.Level = viper.GetString("log-level")

	cfg.Server.Host = viper.GetString("server-host")
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Server.ReadTimeout = viper.GetDuration("server-read-timeout")
	cfg.Server.WriteTimeout = viper.GetDuration("server-write-timeout")
	cfg.Server.UserHeader = viper.GetString("user-header")

	cfg.YouTube.APIKey = viper.GetString("youtube-api-key")
	cfg.YouTube.OEmbedURL = viper.GetString("youtube-oembed-url")
	cfg.YouTube.DataAPIURL = viper.GetString("youtube-data-api-url")
	cfg.YouTube.Timeout = viper.GetDuration("youtube-timeout")
	cfg.YouTube.RequestsPerSecond = viper.GetFloat64("youtube-rps")

	cfg.SoundCloud.ClientID = viper.GetString("soundcloud-client-id")
	cfg.SoundCloud.ClientSecret = viper.GetString("soundcloud-client-secret")
	cfg.SoundCloud.TokenURL = viper.GetString("soundcloud-token-url")
	cfg.SoundCloud.APIURL = viper.GetString("soundcloud-api-url")
	cfg.SoundCloud.OEmbedURL = viper.GetString("soundcloud-oembed-url")
	cfg.SoundCloud.Timeout = viper.GetDuration("soundcloud-timeout")
	cfg.SoundCloud.RequestsPerSecond = viper.GetFloat64("soundcloud-rps")

	cfg.Catalog.Driver = viper.GetString("catalog-driver")
	cfg.Catalog.DSN = viper.GetString("catalog-dsn")
	cfg.Catalog.IndexCapacity = viper.GetInt("url-index-capacity")
	cfg.Catalog.BloomFPRate = viper.GetFloat64("bloom-fp-rate")
	cfg.Catalog.IndexWarmLimit = viper.GetInt("index-warm-limit")
	cfg.Catalog.MetadataCacheSize = viper.GetInt("metadata-cache-size")
	cfg.Catalog.MetadataCacheTTL = viper.GetDuration("metadata-cache-ttl")

	cfg.App.FloodLimitPerMinute = viper.GetInt("flood-limit-per-minute")

	return cfg
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

// resolvers holds the metadata side of the pipeline.
type resolvers struct {
	manager    *setlink.Manager
	soundcloud *setlink.SoundCloudResolver
}

func newResolvers(cfg *core.Config, log *zap.Logger) *resolvers {
	youtube := setlink.NewYouTubeResolver(setlink.YouTubeConfig{
		APIKey:            cfg.YouTube.APIKey,
		OEmbedURL:         cfg.YouTube.OEmbedURL,
		DataAPIURL:        cfg.YouTube.DataAPIURL,
		Timeout:           cfg.YouTube.Timeout,
		RequestsPerSecond: cfg.YouTube.RequestsPerSecond,
	}, log.Named("youtube"))

	tokens := setlink.NewCredentialCache(cfg.SoundCloud.ClientID, cfg.SoundCloud.ClientSecret,
		cfg.SoundCloud.TokenURL, cfg.SoundCloud.Timeout, log.Named("credentials"))
	soundcloud := setlink.NewSoundCloudResolver(setlink.SoundCloudConfig{
		APIURL:            cfg.SoundCloud.APIURL,
		OEmbedURL:         cfg.SoundCloud.OEmbedURL,
		Timeout:           cfg.SoundCloud.Timeout,
		RequestsPerSecond: cfg.SoundCloud.RequestsPerSecond,
	}, tokens, log.Named("soundcloud"))

	if !tokens.Configured() {
		log.Warn("SoundCloud credentials not configured; SoundCloud links will be rejected")
	}

	manager := setlink.NewManager(log.Named("setlink"), cfg.Catalog.MetadataCacheSize,
		cfg.Catalog.MetadataCacheTTL, youtube, soundcloud)

	return &resolvers{manager: manager, soundcloud: soundcloud}
}

// pipeline is the full ingestion stack over an open catalog.
type pipeline struct {
	*resolvers
	db      catalog.Store
	writer  *catalog.Writer
	service *ingest.Service
}

func newPipeline(ctx context.Context, cfg *core.Config, log *zap.Logger) (*pipeline, error) {
	db, err := catalog.Open(ctx, cfg.Catalog.Driver, cfg.Catalog.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	index, err := store.NewURLIndex(cfg.Catalog.IndexCapacity, cfg.Catalog.BloomFPRate)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	writer := catalog.NewWriter(db, index, log.Named("catalog"))
	if err := writer.Warm(ctx, cfg.Catalog.IndexWarmLimit); err != nil {
		log.Warn("Failed to warm url index", zap.Error(err))
	}

	res := newResolvers(cfg, log)
	return &pipeline{
		resolvers: res,
		db:        db,
		writer:    writer,
		service:   ingest.NewService(res.manager, writer, log.Named("ingest")),
	}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	if viper.GetBool("generate-env-example") {
		return generateEnvExample(cmd)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	defer func() { _ = logger.Sync() }()

	if err := config.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	logger.Info("Starting raveview",
		zap.String("catalog_driver", config.Catalog.Driver),
		zap.Bool("youtube_data_api", config.YouTube.APIKey != ""),
		zap.Bool("soundcloud_configured", config.SoundCloud.ClientID != ""),
		zap.Int("flood_limit_per_minute", config.App.FloodLimitPerMinute))

	p, err := newPipeline(ctx, config, logger)
	if err != nil {
		return err
	}
	defer p.db.Close()

	floodgate := flood.New(config.App.FloodLimitPerMinute)
	defer floodgate.Stop()

	server := httpserver.NewServer(httpserver.Config{
		Addr:            config.Server.Addr(),
		ReadTimeout:     config.Server.ReadTimeout,
		WriteTimeout:    config.Server.WriteTimeout,
		ShutdownTimeout: config.Server.ShutdownTimeout,
		UserHeader:      config.Server.UserHeader,
	}, httpserver.Dependencies{
		Submitter:  p.service,
		Catalog:    p.writer,
		Thumbnails: p.soundcloud,
		Flood:      floodgate,
	}, logger.Named("http"))

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gCtx)
	})

	logger.Info("raveview started successfully", zap.String("http_addr", config.Server.Addr()))

	if err := g.Wait(); err != nil {
		logger.Error("raveview stopped with error", zap.Error(err))
		return err
	}

	logger.Info("raveview stopped gracefully")
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res := newResolvers(config, logger)
	meta, err := res.manager.ResolveMetadata(ctx, args[0])
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}
	printMetadata(cmd, meta)
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := config.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	user, _ := cmd.Flags().GetString("user")

	p, err := newPipeline(ctx, config, logger)
	if err != nil {
		return err
	}
	defer p.db.Close()

	result, err := p.service.Submit(ctx, args[0], user)
	if err != nil {
		return err
	}

	status := "existing"
	if result.Created {
		status = "created"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", result.ID, status, result.URL)
	return nil
}

func printMetadata(cmd *cobra.Command, meta *setlink.SetMetadata) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "Platform:\t%s\n", meta.Platform)
	fmt.Fprintf(w, "ID:\t%s\n", meta.PlatformID)
	fmt.Fprintf(w, "URL:\t%s\n", meta.CanonicalURL)
	fmt.Fprintf(w, "Title:\t%s\n", meta.Title)
	fmt.Fprintf(w, "Artist:\t%s\n", meta.Artist)
	if meta.DurationSec != nil {
		fmt.Fprintf(w, "Duration:\t%s\n", setlink.FormatDuration(*meta.DurationSec))
	}
	if meta.UploadedAt != nil {
		fmt.Fprintf(w, "Uploaded:\t%s\n", meta.UploadedAt.Format("2006-01-02"))
	}
	if meta.ThumbnailURL != "" {
		fmt.Fprintf(w, "Thumbnail:\t%s\n", meta.ThumbnailURL)
	}
}
