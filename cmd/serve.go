package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"schemainjector/browser"
	"schemainjector/cache"
	"schemainjector/config"
	"schemainjector/fetch"
	"schemainjector/injector"
	"schemainjector/logger"
	"schemainjector/metrics"
	"schemainjector/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Proxy the storefront and inject product schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}

		log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var pageCache *cache.Cache
		if cfg.Cache.Enabled {
			pageCache = cache.New(cache.Options{
				Addr:     cfg.Cache.RedisAddr,
				Password: cfg.Cache.Password,
				DB:       cfg.Cache.DB,
			})
			defer pageCache.Close()

			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			if err := pageCache.Ping(pingCtx); err != nil {
				log.Warn("redis unavailable, serving without cache", zap.Error(err))
			}
			cancel()
		}

		fetchOpts := fetch.Options{
			Mode:      cfg.Upstream.FetchMode,
			Timeout:   cfg.Upstream.Timeout,
			UserAgent: cfg.Upstream.UserAgent,
			Cache:     pageCache,
			CacheTTL:  cfg.Cache.TTL,
			Logger:    log,
		}
		if cfg.Upstream.FetchMode == fetch.ModeBrowser {
			pool := browser.New(cfg.Browser.PoolSize, cfg.Upstream.UserAgent, log)
			defer pool.Shutdown()
			fetchOpts.Renderer = pool
		}

		fetcher, err := fetch.New(fetchOpts)
		if err != nil {
			return fmt.Errorf("fetcher: %w", err)
		}

		srv := server.New(server.Options{
			Addr:            ":" + cfg.Server.Port,
			UpstreamBaseURL: cfg.Upstream.BaseURL,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			Injector:        newInjector(cfg, log),
			Fetcher:         fetcher,
			Metrics:         metrics.New(),
			Logger:          log,
		})

		if cfg.Upstream.BaseURL == "" {
			log.Warn("no upstream configured, only /inject and /schema are usable")
		}

		return srv.Run(ctx)
	},
}

func newInjector(cfg *config.Config, log *zap.Logger) *injector.Injector {
	return injector.New(injector.Options{
		PathMarker: cfg.Injector.PathMarker,
		Selectors: injector.Selectors{
			Container:   cfg.Injector.ContainerSelector,
			Attribute:   cfg.Injector.DataAttribute,
			Image:       cfg.Injector.ImageSelector,
			Description: cfg.Injector.DescriptionSelector,
		},
		Store:  cfg.Store.Schema(),
		Logger: log,
	})
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
