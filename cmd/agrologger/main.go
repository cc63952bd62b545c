package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/agrolab/agrologger/internal/agro"
	httpapi "github.com/agrolab/agrologger/internal/api/http"
	"github.com/agrolab/agrologger/internal/config"
	"github.com/agrolab/agrologger/internal/ingest"
	"github.com/agrolab/agrologger/internal/scheduler"
	"github.com/agrolab/agrologger/internal/store"
)

func main() {
	// Load configuration (reads .env when present).
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Relational store holding readings, aggregates and phase definitions.
	pg, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pg.Close()

	if cfg.MigrationsDir != "" {
		if err := pg.RunMigrations(cfg.MigrationsDir); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		log.Printf("INFO: migrations applied from %s", cfg.MigrationsDir)
	}

	// Per-logger rate limiter; Redis-backed when configured so the window
	// holds across instances.
	var limiter ingest.RateLimiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		limiter = ingest.NewRedisLimiter(rdb, cfg.RateLimitWindow)
		log.Printf("INFO: using redis rate limiter at %s", cfg.RedisAddr)
	} else {
		limiter = ingest.NewMemoryLimiter(cfg.RateLimitWindow)
	}

	// Core services.
	registry := agro.NewPhaseRegistry(pg)
	aggregator := agro.NewAggregator(pg, pg, pg)
	ingestSvc := ingest.NewService(pg, pg, pg, limiter)

	// Daily aggregation trigger.
	sched := scheduler.New(cfg.AggregationTime, aggregator)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "agrologger",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "agrologger",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, httpapi.Deps{
		Registry:   registry,
		Aggregator: aggregator,
		Ingest:     ingestSvc,
		Fields:     pg,
		Readings:   pg,
		Aggregates: pg,
		GDD:        pg,
		APIKey:     cfg.APIKey,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
