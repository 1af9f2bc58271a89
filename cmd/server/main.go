package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	h "github.com/veranemoloko/retro-installer/internal/api/http"
	"github.com/veranemoloko/retro-installer/internal/archive"
	"github.com/veranemoloko/retro-installer/internal/artwork"
	"github.com/veranemoloko/retro-installer/internal/catalog"
	cfgpkg "github.com/veranemoloko/retro-installer/internal/config"
	"github.com/veranemoloko/retro-installer/internal/dispatcher"
	"github.com/veranemoloko/retro-installer/internal/housekeeping"
	"github.com/veranemoloko/retro-installer/internal/notifier"
	"github.com/veranemoloko/retro-installer/internal/pipeline"
	"github.com/veranemoloko/retro-installer/internal/registry"
	repo "github.com/veranemoloko/retro-installer/internal/repository"
	"github.com/veranemoloko/retro-installer/internal/source"
	svc "github.com/veranemoloko/retro-installer/internal/service"
)

func main() {
	cfg, err := cfgpkg.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfgpkg.SetupLogger(cfg)
	logger.Info("configuration loaded successfully", "env", cfg.Environment, "library", cfg.LibraryRoot)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consoles := registry.New(cfg.LibraryRoot, logger.With("component", "registry"))
	if err := consoles.LoadDir(cfg.RegistryDir); err != nil {
		logger.Warn("failed to load console registry, using built-in table", "dir", cfg.RegistryDir, "error", err)
	}
	if cfg.WatchRegistry {
		if err := consoles.Watch(ctx, cfg.RegistryDir); err != nil {
			logger.Warn("registry hot reload disabled", "error", err)
		}
	}

	var cache *catalog.Cache
	if cfg.CatalogEnabled() {
		cache, err = catalog.OpenCache(cfg.CatalogCachePath, cfg.CatalogCacheTTL)
		if err != nil {
			logger.Warn("catalog cache unavailable, continuing without it", "path", cfg.CatalogCachePath, "error", err)
			cache = nil
		} else {
			defer cache.Close()
			if n, err := cache.Purge(ctx); err == nil && n > 0 {
				logger.Info("purged stale catalog entries", "count", n)
			}
		}
	}

	catalogClient := catalog.NewClient(catalog.Options{
		ClientID:     cfg.IGDBClientID,
		ClientSecret: cfg.IGDBClientSecret,
		BaseURL:      cfg.IGDBBaseURL,
		TokenURL:     cfg.TwitchTokenURL,
	}, cache, logger.With("component", "catalog"))

	artworkClient := artwork.NewClient(artwork.Options{
		APIKey:  cfg.SteamGridAPIKey,
		BaseURL: cfg.SteamGridBaseURL,
		MaxSize: cfg.ArtworkMaxSize,
	}, logger.With("component", "artwork"))

	resolver := source.NewResolver(source.Options{
		ArweaveBaseURL:   cfg.ArweaveBaseURL,
		RomheavenBaseURL: cfg.RomheavenBaseURL,
		UserAgent:        cfg.UserAgent,
		Timeout:          cfg.DownloadTimeout,
		MaxFileSize:      cfg.MaxFileSize,
		Retries:          cfg.DownloadRetries,
		RetryCooldown:    cfg.RetryCooldown,
	}, logger.With("component", "source"))

	store := repo.NewTaskStore(logger.With("component", "store"))
	notif := notifier.New(cfg.NotifyInterval, logger.With("component", "notifier"))

	executor := pipeline.NewExecutor(pipeline.Deps{
		Store:    store,
		Notifier: notif,
		Registry: consoles,
		Source:   resolver,
		Unpacker: archive.NewUnpacker(logger),
		Metadata: catalogClient,
		Artwork:  artworkClient,
	}, logger.With("component", "executor"))

	disp := dispatcher.New(store, executor, dispatcher.Options{
		Ceiling:      cfg.Concurrency,
		PollInterval: cfg.PollInterval,
	}, logger.With("component", "dispatcher"))

	manager := svc.NewManager(ctx, svc.Deps{
		Store:      store,
		Notifier:   notif,
		Dispatcher: disp,
		Sources:    consoles,
		Logger:     logger.With("component", "manager"),
	})

	janitor, err := housekeeping.NewJanitor(manager, cfg.ClearSchedule, logger.With("component", "janitor"))
	if err != nil {
		logger.Error("failed to configure janitor", "error", err)
		os.Exit(1)
	}
	janitor.Start()

	logger.Info("providers configured",
		"catalog", catalogClient.Enabled(),
		"artwork", artworkClient.Enabled(),
		"clear_schedule", janitor.Enabled(),
	)

	router := h.NewRouter(manager, consoles, logger.With("component", "http"))
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:     router,
		ReadTimeout: cfg.HTTPTimeout,
		IdleTimeout: cfg.HTTPTimeout,
	}

	go func() {
		logger.Info("server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed to start", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	} else {
		logger.Info("server stopped gracefully")
	}

	janitor.Stop(shutdownCtx)

	if err := manager.Shutdown(shutdownCtx, cfg.DrainOnShutdown); err != nil {
		logger.Error("manager shutdown failed", "error", err)
	}
}
