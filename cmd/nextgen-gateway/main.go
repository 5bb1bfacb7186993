package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Checker-Finance/nextgen-api/internal/api"
	"github.com/Checker-Finance/nextgen-api/internal/catalog"
	"github.com/Checker-Finance/nextgen-api/internal/jobs"
	"github.com/Checker-Finance/nextgen-api/internal/store"
	"github.com/Checker-Finance/nextgen-api/pkg/config"
	"github.com/Checker-Finance/nextgen-api/pkg/logger"
	"github.com/Checker-Finance/nextgen-api/pkg/nextgen"
	"github.com/Checker-Finance/nextgen-api/pkg/secrets"
	"github.com/Checker-Finance/nextgen-api/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Infof("starting [%s]...", cfg.ServiceName)

	// --- Credentials from AWS Secrets Manager (optional) ---
	if cfg.SecretName != "" {
		awsProvider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}
		if err := secrets.ApplyCredentials(ctx, awsProvider, cfg.SecretName, &cfg.NextGen); err != nil {
			logg.Fatalw("failed to load nextgen credentials", "secret", cfg.SecretName, "error", err)
		}
		logg.Infow("nextgen credentials loaded from secrets manager", "secret", cfg.SecretName)
	}

	// --- NextGen client ---
	client, err := nextgen.New(cfg.NextGen, logger.Named("nextgen"))
	if err != nil {
		logg.Fatalw("invalid nextgen configuration", "error", err)
	}
	logg.Infow("nextgen client ready",
		"base_url", cfg.NextGen.BaseURL,
		"client_id", utils.MaskID(cfg.NextGen.ClientID, 8),
		"site_id", cfg.NextGen.SiteID)

	// --- Store (Redis, or in-memory when REDIS_ADDR is empty) ---
	var st store.Store
	if cfg.RedisAddr != "" {
		st, err = store.NewRedis(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass, cfg.ServiceName+":", logger.Named("store"))
		if err != nil {
			logg.Fatalw("failed to init store", "error", err)
		}
	} else {
		logg.Warn("REDIS_ADDR not set, using in-memory catalog cache")
		st = store.NewMemory(cfg.CacheCleanupFreq)
	}

	// --- Catalog service and refresher ---
	catalogSvc := catalog.NewService(client.Master(), st, cfg.CacheTTL, logger.Named("catalog"))
	refresher := jobs.NewCatalogRefresher(logger.Named("jobs"), catalogSvc, cfg.CatalogRefreshInterval)
	go refresher.Start(ctx)

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		UnescapePath: true,
	})

	handler := api.NewMasterHandler(logger.Named("api"), catalogSvc, client)
	api.RegisterRoutes(app, st, client, handler)

	go func() {
		logg.Infof("HTTP API listening on :%s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("["+cfg.ServiceName+"] running",
		"env", cfg.Env,
		"refresh_interval", cfg.CatalogRefreshInterval,
		"cache_ttl", cfg.CacheTTL)

	<-ctx.Done()
	logg.Infof("shutting down [%s]...", cfg.ServiceName)

	refresher.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
	if err := client.Close(); err != nil {
		logg.Warnw("nextgen.close_failed", "error", err)
	}
}
