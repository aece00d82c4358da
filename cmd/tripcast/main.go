package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpapi "github.com/i474232898/tripcast/internal/api/http"
	"github.com/i474232898/tripcast/internal/backend"
	"github.com/i474232898/tripcast/internal/board"
	"github.com/i474232898/tripcast/internal/config"
	"github.com/i474232898/tripcast/internal/grid"
	"github.com/i474232898/tripcast/internal/lists"
	"github.com/i474232898/tripcast/internal/locations"
	"github.com/i474232898/tripcast/internal/scheduler"
	"github.com/i474232898/tripcast/internal/seed"
	"github.com/i474232898/tripcast/internal/store"
	"github.com/i474232898/tripcast/internal/weather"
	"github.com/i474232898/tripcast/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	// Trip planner backend with resilience (rate limit + backoff + circuit breaker).
	client := backend.New(backend.Config{
		BaseURL:   cfg.BackendURL,
		Timeout:   cfg.HTTPTimeout,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
		Backoff: backend.BackoffConfig{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: cfg.RetryBaseDelay,
			MaxInterval:     8 * cfg.RetryBaseDelay,
		},
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout + time.Second},
	})

	// Open-Meteo takes over forecasts while the backend cannot answer.
	var forecaster weather.Forecaster = client
	if cfg.OpenMeteoFallback {
		forecaster = &providers.Fallback{
			Primary:   client,
			Secondary: providers.NewOpenMeteo(&http.Client{Timeout: cfg.HTTPTimeout}, cfg.OpenMeteoURL),
			ShouldFallback: func(err error) bool {
				return backend.IsTransient(err) || errors.Is(err, weather.ErrNoForecasts)
			},
		}
	}

	// Seed cities resolve through the backend first, Google when configured.
	resolver := seed.Chain{seed.BackendResolver{Searcher: client}}
	if cfg.GoogleGeocoderKey != "" {
		resolver = append(resolver, seed.NewGoogleResolver(cfg.GoogleGeocoderKey))
	}

	// In-memory boards with configured retention.
	boards := store.NewMemoryStore(cfg.MaxBoards, cfg.BoardMaxAge)

	// Scheduler that periodically refreshes boards.
	sched := scheduler.New(boards, cfg.RefreshInterval, cfg.RefreshTimeout)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "tripcast",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.HTTPTimeout + 10*time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "tripcast",
			"boards":  boards.Len(),
		})
	})

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Backend:    client,
		Forecaster: forecaster,
		Lists:      lists.NewCache(client),
		Boards:     boards,
		Seeder:     seed.NewLoader(resolver, cfg.Cities(), cfg.SeedCount),
		Board: board.Config{
			Store: locations.Options{
				Limit:      cfg.BoardLimit,
				Mode:       locations.Mode(cfg.BoardMode),
				PinnedName: cfg.PinnedName,
			},
			Window: grid.Config{
				DayWidth:       cfg.DayWidth,
				MaxVisibleDays: cfg.MaxVisibleDays,
			},
		},
	})

	go func() {
		log.Info().Str("port", cfg.Port).Str("backend", cfg.BackendURL).Msg("tripcast listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("fiber server stopped")
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
}
