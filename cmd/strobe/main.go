package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort          = 8000
	defaultTimeout       = 30
	defaultMaxTimeout    = 120
	defaultMaxRetries    = 3
	defaultRetryDelay    = 1
	defaultMaxConcurrent = 100
	defaultMisfireGrace  = 60
	defaultTimezone      = "Asia/Kolkata"
)

func main() {
	cmd := &cli.Command{
		Name:                  "strobe",
		Usage:                 "Persistent scheduler for outbound HTTP calls",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL (postgres://...) or file store path",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.IntFlag{
				Name:    "default-timeout-seconds",
				Usage:   "Per-attempt HTTP timeout applied when a target omits one",
				Value:   defaultTimeout,
				Sources: cli.EnvVars("DEFAULT_TIMEOUT_SECONDS"),
			},
			&cli.IntFlag{
				Name:    "max-timeout-seconds",
				Usage:   "Upper bound accepted for a target's timeout_seconds",
				Value:   defaultMaxTimeout,
				Sources: cli.EnvVars("MAX_TIMEOUT_SECONDS"),
			},
			&cli.IntFlag{
				Name:    "max-retries",
				Usage:   "Additional attempts after the first try of a run",
				Value:   defaultMaxRetries,
				Sources: cli.EnvVars("MAX_RETRIES"),
			},
			&cli.IntFlag{
				Name:    "retry-delay-seconds",
				Usage:   "Base of the exponential backoff between attempts",
				Value:   defaultRetryDelay,
				Sources: cli.EnvVars("RETRY_DELAY_SECONDS"),
			},
			&cli.IntFlag{
				Name:    "max-concurrent-jobs",
				Usage:   "Number of runs executed concurrently",
				Value:   defaultMaxConcurrent,
				Sources: cli.EnvVars("MAX_CONCURRENT_JOBS"),
			},
			&cli.IntFlag{
				Name:    "job-misfire-grace-seconds",
				Usage:   "How far past its fire time a firing may still run",
				Value:   defaultMisfireGrace,
				Sources: cli.EnvVars("JOB_MISFIRE_GRACE_SECONDS"),
			},
			&cli.StringFlag{
				Name:    "timezone",
				Usage:   "IANA zone all scheduling math is pinned to",
				Value:   defaultTimezone,
				Sources: cli.EnvVars("TIMEZONE"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list (event-bus=kafka only)",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
