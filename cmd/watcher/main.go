// Command watcher runs the breakout watcher: an hourly check over
// every HIGH-confidence active candidate for the dual-market volume spike
// that marks an actual pump start.
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
	"github.com/elcrypto/pumpguard/internal/config"
	"github.com/elcrypto/pumpguard/internal/httpserver"
	"github.com/elcrypto/pumpguard/internal/store/postgres"
	"github.com/elcrypto/pumpguard/internal/telemetry"
	"github.com/elcrypto/pumpguard/internal/watcher"
)

var (
	configPath       string
	once             bool
	intervalMinutes  int
	spotThreshold    float64
	futuresThreshold float64
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	rootCmd := &cobra.Command{
		Use:     "watcher",
		Short:   "Breakout watcher: flags dual-market volume breakouts on active candidates",
		Version: "1.0.0",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(log)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.Flags().BoolVar(&once, "once", false, "run a single check and exit")
	rootCmd.Flags().IntVar(&intervalMinutes, "interval", 0, "tick cadence in minutes (overrides config)")
	rootCmd.Flags().Float64Var(&spotThreshold, "spot-threshold", 0, "SPOT volume ratio trigger (overrides config)")
	rootCmd.Flags().Float64Var(&futuresThreshold, "futures-threshold", 0, "FUTURES volume ratio trigger (overrides config)")

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("watcher failed")
		os.Exit(1)
	}
}

func run(log zerolog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if intervalMinutes > 0 {
		cfg.Watcher.IntervalMinutes = intervalMinutes
	}
	if spotThreshold > 0 {
		cfg.Watcher.SpotThreshold = spotThreshold
	}
	if futuresThreshold > 0 {
		cfg.Watcher.FuturesThreshold = futuresThreshold
	}

	db, err := postgres.Open(cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	metrics := telemetry.New(prometheus.DefaultRegisterer)
	alerter := alert.New(cfg.Alert)
	w := watcher.New(db, alerter, cfg.Watcher, log)
	w.SetMetrics(metrics)

	srv := httpserver.New(cfg.HTTP, db, log)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("ops http server stopped")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	w.Run(ctx, once)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
