// Command analyzer runs the analysis runner: the periodic tick that
// expires stale candidates, re-scores every eligible symbol through the
// detection engine, and dispatches an alert for every actionable candidate
// on each tick.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/elcrypto/pumpguard/internal/alert"
	"github.com/elcrypto/pumpguard/internal/breaker"
	"github.com/elcrypto/pumpguard/internal/config"
	"github.com/elcrypto/pumpguard/internal/engine"
	"github.com/elcrypto/pumpguard/internal/httpserver"
	"github.com/elcrypto/pumpguard/internal/runner"
	"github.com/elcrypto/pumpguard/internal/store/postgres"
	"github.com/elcrypto/pumpguard/internal/telemetry"
)

var (
	configPath      string
	once            bool
	intervalMinutes int
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	rootCmd := &cobra.Command{
		Use:     "analyzer",
		Short:   "Analysis runner: scores candidates and dispatches alerts on a fixed cadence",
		Version: "1.0.0",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(log)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.Flags().BoolVar(&once, "once", false, "run a single analysis cycle and exit")
	rootCmd.Flags().IntVar(&intervalMinutes, "interval", 0, "tick cadence in minutes (overrides config)")

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("analyzer failed")
		os.Exit(1)
	}
}

func run(log zerolog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if intervalMinutes > 0 {
		cfg.Runner.IntervalMinutes = intervalMinutes
	}

	db, err := postgres.Open(cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	metrics := telemetry.New(prometheus.DefaultRegisterer)

	brk := breaker.New("postgres", 30*time.Second)
	eng := engine.New(cfg.Engine)
	alerter := alert.New(cfg.Alert)
	rnr := runner.New(db, eng, alerter, brk, cfg.Runner, cfg.Universe, log)
	rnr.SetMetrics(metrics)

	srv := httpserver.New(cfg.HTTP, db, log)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("ops http server stopped")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rnr.Run(ctx, cfg.Engine.MinSignalCount, once)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
