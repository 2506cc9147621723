package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/smart-irrigation/internal/api/http"
	"github.com/i474232898/smart-irrigation/internal/config"
	"github.com/i474232898/smart-irrigation/internal/prediction"
	"github.com/i474232898/smart-irrigation/internal/pump"
	"github.com/i474232898/smart-irrigation/internal/scheduler"
	"github.com/i474232898/smart-irrigation/internal/sensor"
	"github.com/i474232898/smart-irrigation/internal/store"
)

// repository is what both store implementations provide.
type repository interface {
	pump.LogRepository
	sensor.Repository
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRepo()

	engine := prediction.Load(cfg.ModelPath, cfg.ScalerPath, log)
	weatherSvc := newWeatherService(cfg, log)
	sensors := sensor.NewService(repo, weatherSvc, log)
	controller := pump.NewController(repo, repo, engine, weatherSvc, pump.NewStatusCache(),
		pump.WithRainThreshold(cfg.DefaultRainThreshold),
		pump.WithLogger(log),
	)

	// Scheduler that periodically runs automatic evaluation.
	sched := scheduler.New(cfg.AutoDevices, cfg.AutoInterval, controller, log)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "smart-irrigation",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Predictor: engine,
		Weather:   weatherSvc,
		Sensors:   sensors,
		Pump:      controller,
		Logger:    log,
	})

	go func() {
		log.Info("http server listening", "port", cfg.Port, "model_loaded", engine.ModelLoaded(), "live_weather", weatherSvc.Live())
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("fiber server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
	return nil
}

// openRepository picks PostgreSQL when DATABASE_URL is set, memory otherwise.
func openRepository(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (repository, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Info("using in-memory store", "max_age", cfg.StoreMaxAge)
		return store.NewMemoryStore(cfg.StoreMaxAge), func() {}, nil
	}

	pool, err := store.OpenPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	pg := store.NewPostgres(pool)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	log.Info("using postgres store")
	return pg, pool.Close, nil
}
