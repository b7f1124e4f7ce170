package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/subdex/subdex/internal/cache"
	"github.com/subdex/subdex/internal/config"
	"github.com/subdex/subdex/internal/fetcher"
	"github.com/subdex/subdex/internal/identity"
	"github.com/subdex/subdex/internal/metrics"
	"github.com/subdex/subdex/internal/models"
	"github.com/subdex/subdex/internal/parser"
	"github.com/subdex/subdex/internal/server"
	"github.com/subdex/subdex/internal/services"
)

func main() {
	cfg := config.GetConfig()
	logger := config.GetLogger()

	logger.Info().
		Str("source_domain", cfg.SourceDomain).
		Int("mirrors", len(cfg.MirrorTemplates)).
		Str("server_address", cfg.Server.Address).
		Int("server_port", cfg.Server.Port).
		Msg("Application started with configuration")

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			logger.Warn().Err(err).Msg("Sentry initialization failed, continuing without error reporting")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	searchCache, err := cache.NewStore[*models.SearchResult](cache.Config{
		Size:  cfg.Cache.Size,
		TTL:   cfg.SearchTTL(),
		Group: "search",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create search cache")
	}
	defer searchCache.Close()

	downloadCache, err := cache.NewStore[*models.DownloadResult](cache.Config{
		Size:  cfg.Cache.Size,
		TTL:   cfg.DownloadTTL(),
		Group: "download",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create download cache")
	}
	defer downloadCache.Close()

	httpClient := fetcher.NewHTTPClient(cfg)
	pool := identity.NewPool(cfg.UserAgents)

	jitterMin := time.Duration(cfg.Fetch.JitterMinMs) * time.Millisecond
	jitterMax := time.Duration(cfg.Fetch.JitterMaxMs) * time.Millisecond

	// The search path retries a single URL; the download path relies on the
	// mirror chain instead, so its fetcher gets a single attempt per mirror.
	searchFetcher := fetcher.New(httpClient, pool, fetcher.Options{
		MaxAttempts: cfg.Fetch.SearchAttempts,
		JitterMin:   jitterMin,
		JitterMax:   jitterMax,
		Referer:     cfg.SourceDomain,
	})
	downloadFetcher := fetcher.New(httpClient, pool, fetcher.Options{
		MaxAttempts: 1,
		JitterMin:   jitterMin,
		JitterMax:   jitterMax,
		Referer:     cfg.SourceDomain,
	})

	searchService := services.NewSearchService(searchFetcher, parser.NewExtractor(), searchCache, cfg.SourceDomain)
	downloader := services.NewDownloader(downloadFetcher, downloadCache, cfg.MirrorTemplates)

	srv := server.New(searchService, downloader, server.CacheStats{
		SearchEntries:   searchCache.Len,
		DownloadEntries: downloadCache.Len,
	}, cfg)
	httpServer := server.NewHTTPServer(srv, cfg)

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewHTTPServer(cfg.Server.Address, cfg.Metrics.Port)
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("Starting Prometheus metrics HTTP server")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal().Err(err).Msg("Failed to serve metrics")
			}
		}()
		defer func() {
			if err := metricsServer.Shutdown(context.Background()); err != nil {
				logger.Error().Err(err).Msg("Failed to shutdown metrics server")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server.StartKeepalive(ctx, cfg.Keepalive.URL, cfg.KeepaliveInterval())

	go func() {
		logger.Info().Str("address", httpServer.Addr).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
	}

	logger.Info().Msg("Server stopped gracefully")
}
