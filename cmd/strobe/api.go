// Package main provides the Strobe server binary.
package main

import (
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukex/strobe/pkg/clock"
	"github.com/dukex/strobe/pkg/metrics"
	"github.com/dukex/strobe/pkg/persistence"
	"github.com/dukex/strobe/pkg/services"
	"github.com/dukex/strobe/pkg/web"
)

type apiConfig struct {
	defaultTimeoutSeconds int
	maxTimeoutSeconds     int
}

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	notifier    services.ScheduleNotifier
	clock       *clock.Clock
	config      apiConfig
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	notifier services.ScheduleNotifier,
	clk *clock.Clock,
	config apiConfig,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		notifier:    notifier,
		clock:       clk,
		config:      config,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	targetService := services.NewTarget(a.persistence, a.notifier, a.clock, services.TargetLimits{
		DefaultTimeoutSeconds: a.config.defaultTimeoutSeconds,
		MaxTimeoutSeconds:     a.config.maxTimeoutSeconds,
	})
	scheduleService := services.NewSchedule(a.persistence, a.notifier, a.clock)
	runService := services.NewRun(a.persistence)
	metricsCollector := metrics.NewCollector(a.persistence, a.clock)

	handlers := web.NewAPIHandlers(targetService, scheduleService, runService, metricsCollector, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			return a.persistence.HealthCheck(c.Context()) == nil
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Strobe API")
	})

	app.Get("/health", handlers.HealthCheck)

	v1 := app.Group("/api/v1")

	t := v1.Group("/targets")
	t.Post("/", handlers.CreateTarget)
	t.Get("/", handlers.GetTargets)
	t.Get("/:id", handlers.GetTarget)
	t.Put("/:id", handlers.UpdateTarget)
	t.Delete("/:id", handlers.DeleteTarget)

	s := v1.Group("/schedules")
	s.Post("/", handlers.CreateSchedule)
	s.Get("/", handlers.GetSchedules)
	s.Get("/:id", handlers.GetSchedule)
	s.Put("/:id", handlers.UpdateSchedule)
	s.Delete("/:id", handlers.DeleteSchedule)
	s.Post("/:id/pause", handlers.PauseSchedule)
	s.Post("/:id/resume", handlers.ResumeSchedule)

	r := v1.Group("/runs")
	r.Get("/", handlers.GetRuns)
	r.Get("/count", handlers.CountRuns)
	r.Get("/:id", handlers.GetRun)
	r.Get("/:id/attempts", handlers.GetRunAttempts)

	m := v1.Group("/metrics")
	m.Get("/", handlers.GetMetrics)
	m.Get("/schedules/:id", handlers.GetScheduleMetrics)

	registry := metrics.NewRegistry(metricsCollector)
	m.Get("/prometheus", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return app
}
