// Command coincidence runs the extreme co-occurrence monitor: a
// one-shot check for pairs carrying a simultaneous EXTREME spike on both
// SPOT and FUTURES, meant to run immediately after each detector pass
// rather than on its own schedule.
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
	"github.com/elcrypto/pumpguard/internal/coincidence"
	"github.com/elcrypto/pumpguard/internal/config"
	"github.com/elcrypto/pumpguard/internal/store/postgres"
	"github.com/elcrypto/pumpguard/internal/telemetry"
)

var (
	configPath      string
	lookbackMinutes int
	dryRun          bool
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	rootCmd := &cobra.Command{
		Use:     "coincidence",
		Short:   "Extreme co-occurrence monitor: flags simultaneous dual-market EXTREME spikes",
		Version: "1.0.0",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(log)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.Flags().IntVar(&lookbackMinutes, "lookback", 0, "lookback window in minutes (overrides config)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "log matching alerts instead of dispatching them")

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("coincidence check failed")
		os.Exit(1)
	}
}

func run(log zerolog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if lookbackMinutes > 0 {
		cfg.Coincidence.LookbackMinutes = lookbackMinutes
	}

	db, err := postgres.Open(cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	metrics := telemetry.New(prometheus.DefaultRegisterer)
	alerter := alert.New(cfg.Alert)
	mon := coincidence.New(db, alerter, cfg.Coincidence, log)
	mon.SetMetrics(metrics)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stats, err := mon.RunOnce(ctx, dryRun)
	if err != nil {
		return err
	}
	log.Info().Int("found", stats.Found).Int("sent", stats.Sent).Msg("coincidence check complete")
	return nil
}
