package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/strobe/pkg/clock"
	"github.com/dukex/strobe/pkg/cmd"
	"github.com/dukex/strobe/pkg/executor"
	"github.com/dukex/strobe/pkg/log"
	"github.com/dukex/strobe/pkg/otelhelper"
	"github.com/dukex/strobe/pkg/scheduler"
	"github.com/dukex/strobe/pkg/trigger"
)

const shutdownTimeout = 30 * time.Second

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("strobe")
	logger.InfoContext(ctx, "Initializing Strobe")

	clk, err := clock.New(command.String("timezone"))
	if err != nil {
		return err
	}

	persistence, err := cmd.NewPersistence(ctx, logger, clk, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	// Subscribing before the scheduler starts means no firing goes
	// unlogged.
	if err := registerRunEventLog(ctx, eventBus); err != nil {
		return err
	}

	tracer, err := otelhelper.NewTracer(ctx, "strobe")
	if err != nil {
		return err
	}

	exec := executor.New(persistence, clk, eventBus, tracer, executor.Config{
		MaxRetries:    command.Int("max-retries"),
		RetryDelay:    time.Duration(command.Int("retry-delay-seconds")) * time.Second,
		MaxConcurrent: command.Int("max-concurrent-jobs"),
	})

	sched := scheduler.New(
		persistence,
		trigger.New(clk.Location()),
		clk,
		exec,
		eventBus,
		tracer,
		scheduler.Config{
			MisfireGrace: time.Duration(command.Int("job-misfire-grace-seconds")) * time.Second,
		},
	)

	// Close orphaned runs and rearm persisted schedules before anything
	// can fire or the API accepts writes.
	if err := sched.Recover(ctx); err != nil {
		return err
	}

	sched.Start(ctx)

	api := NewAPI(logger, persistence, sched, clk, apiConfig{
		defaultTimeoutSeconds: command.Int("default-timeout-seconds"),
		maxTimeoutSeconds:     command.Int("max-timeout-seconds"),
	})

	app := api.App()

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- app.Listen(":" + strconv.Itoa(command.Int("port")))
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.InfoContext(ctx, "Received signal, shutting down", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			logger.ErrorContext(ctx, "API server failed", "error", err)
		}
	}

	// Shutdown order: stop accepting requests, stop arming timers, then
	// wait for in-flight runs to finish recording their attempts.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.ErrorContext(ctx, "Failed to shut down API server", "error", err)
	}

	sched.Stop()

	if err := exec.Shutdown(shutdownCtx); err != nil {
		logger.ErrorContext(ctx, "Executor shutdown timed out; in-flight runs will be recovered on restart", "error", err)
	}

	logger.InfoContext(ctx, "Shutdown complete")

	return nil
}
