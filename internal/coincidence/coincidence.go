// Package coincidence implements the extreme co-occurrence monitor:
// a one-shot check for pairs carrying a simultaneous EXTREME-strength
// volume spike on both SPOT and FUTURES for the same candle, a stronger
// signal than either side alone. Grounded on the original
// extreme_alert_monitor.py, meant to run immediately after each detector
// pass rather than on its own schedule.
package coincidence

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/elcrypto/pumpguard/internal/alert"
	"github.com/elcrypto/pumpguard/internal/config"
	"github.com/elcrypto/pumpguard/internal/domain"
	"github.com/elcrypto/pumpguard/internal/store"
	"github.com/elcrypto/pumpguard/internal/telemetry"
)

// Stats summarizes one coincidence check.
type Stats struct {
	Found int
	Sent  int
}

// Monitor owns the one-shot coincidence check.
type Monitor struct {
	store   store.Store
	alerter *alert.Alerter
	cfg     config.CoincidenceConfig
	log     zerolog.Logger
	metrics *telemetry.Metrics
}

// New builds a Monitor.
func New(st store.Store, alerter *alert.Alerter, cfg config.CoincidenceConfig, log zerolog.Logger) *Monitor {
	return &Monitor{store: st, alerter: alerter, cfg: cfg, log: log.With().Str("component", "coincidence").Logger()}
}

// SetMetrics attaches a telemetry bundle updated on every check. Safe to
// leave unset.
func (m *Monitor) SetMetrics(t *telemetry.Metrics) { m.metrics = t }

// RunOnce finds every double-EXTREME pair detected within the configured
// lookback window and dispatches one alert per pair. dryRun logs the
// message instead of sending it, mirroring the original script's flag.
func (m *Monitor) RunOnce(ctx context.Context, dryRun bool) (Stats, error) {
	var stats Stats

	signals, err := m.store.FindDoubleExtremeSignals(ctx, m.cfg.Lookback())
	if err != nil {
		return stats, err
	}
	stats.Found = len(signals)
	if stats.Found == 0 {
		m.log.Info().Msg("no double EXTREME signals found")
		return stats, nil
	}
	m.log.Info().Int("count", stats.Found).Msg("double EXTREME signals found")

	for _, s := range signals {
		msg := formatMessage(s)
		if dryRun {
			m.log.Info().Str("symbol", s.Symbol).Str("message", msg).Msg("dry run, alert not sent")
			continue
		}
		if err := m.alerter.SendRawAlert(ctx, domain.ConfidenceHigh, 2, msg); err != nil {
			m.log.Error().Err(err).Str("symbol", s.Symbol).Msg("failed to send double EXTREME alert")
			if m.metrics != nil {
				m.metrics.AlertDispatchFailures.WithLabelValues("coincidence").Inc()
			}
			continue
		}
		stats.Sent++
		if m.metrics != nil {
			m.metrics.AlertsSent.WithLabelValues("coincidence", string(domain.ConfidenceHigh)).Inc()
		}
	}

	return stats, nil
}

func formatMessage(s store.DoubleExtremeSignal) string {
	return fmt.Sprintf(
		"DOUBLE EXTREME: %s at %s — SPOT %.2fx, FUTURES %.2fx (spot vol $%.0f, futures vol $%.0f)",
		s.Symbol, s.SignalTime.Format("2006-01-02 15:04 UTC"), s.SpotSpike, s.FuturesSpike, s.SpotVolume, s.FuturesVolume,
	)
}
