// Command detector runs the spike detector. --historical runs the 30-day
// batched historical backfill and exits (no live cycle, even with --once);
// --once runs a single cycle over the live lookback window and exits; with
// neither flag it runs live cycles in a loop alongside the ops HTTP server.
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

	"github.com/elcrypto/pumpguard/internal/config"
	"github.com/elcrypto/pumpguard/internal/detect"
	"github.com/elcrypto/pumpguard/internal/httpserver"
	"github.com/elcrypto/pumpguard/internal/store/postgres"
	"github.com/elcrypto/pumpguard/internal/telemetry"
)

const historicalBackfillHours = 30 * 24

var (
	configPath string
	once       bool
	historical bool
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	rootCmd := &cobra.Command{
		Use:     "detector",
		Short:   "Spike detector: classifies volume anomalies into raw signals",
		Version: "1.0.0",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(log)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.Flags().BoolVar(&once, "once", false, "run a single live detection cycle and exit")
	rootCmd.Flags().BoolVar(&historical, "historical", false, "run the 30-day batched historical backfill and exit")

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("detector failed")
		os.Exit(1)
	}
}

func run(log zerolog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := postgres.Open(cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	metrics := telemetry.New(prometheus.DefaultRegisterer)
	det := detect.New(db, cfg.Detector, cfg.Universe, log)
	det.SetMetrics(metrics)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	now := time.Now().UTC()

	if historical {
		n, err := det.RunHistorical(ctx, now, historicalBackfillHours)
		if err != nil {
			return err
		}
		log.Info().Int("signals_inserted", n).Msg("historical backfill complete")
	}

	if once || historical {
		if !historical {
			n, err := det.RunLive(ctx, now)
			if err != nil {
				return err
			}
			log.Info().Int("signals_inserted", n).Msg("detection cycle complete")
		}
		return nil
	}

	srv := httpserver.New(cfg.HTTP, db, log)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("ops http server stopped")
		}
	}()

	ticker := time.NewTicker(time.Duration(cfg.Detector.LiveLookbackHours) * time.Hour)
	defer ticker.Stop()

loop:
	for {
		n, err := det.RunLive(ctx, time.Now().UTC())
		if err != nil {
			log.Error().Err(err).Msg("detection cycle failed")
		} else {
			log.Info().Int("signals_inserted", n).Msg("detection cycle complete")
		}

		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
