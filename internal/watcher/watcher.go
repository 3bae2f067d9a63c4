// Package watcher implements the breakout watcher: an hourly check
// over every HIGH-confidence active candidate that looks for the dual
// market volume spike marking an actual pump start, distinct from the
// precursor signals the detector and scoring engine already scored.
// Grounded on the original
// pump_start_monitor.py's SPOT/FUTURES ratio gate and per-symbol cooldown.
package watcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/elcrypto/pumpguard/internal/alert"
	"github.com/elcrypto/pumpguard/internal/apperrors"
	"github.com/elcrypto/pumpguard/internal/config"
	"github.com/elcrypto/pumpguard/internal/domain"
	"github.com/elcrypto/pumpguard/internal/store"
	"github.com/elcrypto/pumpguard/internal/telemetry"
	"github.com/elcrypto/pumpguard/internal/universe"
)

// CycleStats summarizes one watch tick.
type CycleStats struct {
	Checked   int
	Triggered int
}

// Watcher owns the breakout-check tick loop.
type Watcher struct {
	store   store.Store
	alerter *alert.Alerter
	cfg     config.WatcherConfig
	log     zerolog.Logger
	metrics *telemetry.Metrics

	lastAlert map[string]time.Time
}

// New builds a Watcher. The per-symbol cooldown map is process-local and
// resets on restart, matching the original daemon's in-memory dict.
func New(st store.Store, alerter *alert.Alerter, cfg config.WatcherConfig, log zerolog.Logger) *Watcher {
	return &Watcher{
		store: st, alerter: alerter, cfg: cfg,
		log:       log.With().Str("component", "watcher").Logger(),
		lastAlert: make(map[string]time.Time),
	}
}

// SetMetrics attaches a telemetry bundle updated on every tick. Safe to
// leave unset.
func (w *Watcher) SetMetrics(m *telemetry.Metrics) { w.metrics = m }

// RunOnce checks every active HIGH-confidence candidate for a dual-market
// volume breakout and alerts on the ones that cross both thresholds.
func (w *Watcher) RunOnce(ctx context.Context, now time.Time) (CycleStats, error) {
	var stats CycleStats
	tickStart := time.Now()
	if w.metrics != nil {
		defer func() { w.metrics.TickDuration.WithLabelValues("watcher").Observe(time.Since(tickStart).Seconds()) }()
	}

	candidates, err := w.store.ListActiveCandidates(ctx, store.ActiveCandidateFilter{Confidence: domain.ConfidenceHigh})
	if err != nil {
		if w.metrics != nil {
			w.metrics.StorageErrors.WithLabelValues("watcher").Inc()
		}
		return stats, err
	}
	w.log.Info().Int("candidates", len(candidates)).Msg("breakout check starting")

	for _, c := range candidates {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		stats.Checked++
		triggered, err := w.checkBreakout(ctx, c, now)
		if err != nil {
			if apperrors.Is(err, apperrors.KindDataInsufficient) {
				continue
			}
			w.log.Error().Err(err).Str("symbol", c.Symbol).Msg("breakout check failed, skipping symbol")
			continue
		}
		if triggered {
			stats.Triggered++
		}
	}

	w.log.Info().Int("checked", stats.Checked).Int("triggered", stats.Triggered).Msg("breakout check complete")
	return stats, nil
}

func (w *Watcher) checkBreakout(ctx context.Context, c domain.Candidate, now time.Time) (bool, error) {
	if last, ok := w.lastAlert[c.Symbol]; ok && now.Sub(last) < w.cfg.Cooldown() {
		return false, nil
	}
	if !universe.IsUSDTQuoted(c.Symbol) {
		return false, nil
	}

	spotRatio, candleTime, ok := w.volumeRatio(ctx, c.Symbol, domain.Spot)
	if !ok {
		return false, apperrors.DataInsufficient(c.Symbol, nil)
	}
	futuresRatio, _, ok := w.volumeRatio(ctx, c.Symbol, domain.Futures)
	if !ok {
		return false, apperrors.DataInsufficient(c.Symbol, nil)
	}

	spotTriggered := spotRatio >= w.cfg.SpotThreshold
	futuresTriggered := futuresRatio >= w.cfg.FuturesThreshold

	w.log.Info().Str("symbol", c.Symbol).Float64("spot_ratio", spotRatio).
		Float64("futures_ratio", futuresRatio).Bool("spot_ok", spotTriggered).
		Bool("futures_ok", futuresTriggered).Msg("breakout ratios")

	if !spotTriggered || !futuresTriggered {
		return false, nil
	}

	w.log.Warn().Str("symbol", c.Symbol).Msg("pump breakout detected")
	if err := w.alerter.SendBreakoutAlert(ctx, alert.BreakoutCandidate{
		Symbol: c.Symbol, Confidence: c.Confidence, Score: c.Score, PatternType: c.PatternType,
		SpotRatio: spotRatio, FuturesRatio: futuresRatio, CandleTime: candleTime,
	}); err != nil {
		w.log.Warn().Err(err).Str("symbol", c.Symbol).Msg("breakout alert dispatch failed")
		if w.metrics != nil {
			w.metrics.AlertDispatchFailures.WithLabelValues("watcher").Inc()
		}
	} else if w.metrics != nil {
		w.metrics.AlertsSent.WithLabelValues("watcher", string(c.Confidence)).Inc()
	}
	w.lastAlert[c.Symbol] = now
	return true, nil
}

// volumeRatio compares the last two closed candles on the given market
// side, the same "current / previous" ratio the original daemon used, and
// reports the current candle's timestamp alongside the ratio.
func (w *Watcher) volumeRatio(ctx context.Context, symbol string, side domain.MarketSide) (float64, time.Time, bool) {
	candles, err := w.store.GetLatestCandles(ctx, symbol, side, w.cfg.FineIntervalHours, 2)
	if err != nil || len(candles) < 2 {
		return 0, time.Time{}, false
	}
	current, previous := candles[0], candles[1]
	if previous.QuoteVolume <= 0 {
		return 0, time.Time{}, false
	}
	return current.QuoteVolume / previous.QuoteVolume, time.UnixMilli(current.OpenTimeMS).UTC(), true
}

// Run drives the interruptible hourly loop, identical in shape to the
// analysis runner's tick loop.
func (w *Watcher) Run(ctx context.Context, once bool) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := w.RunOnce(ctx, time.Now().UTC()); err != nil {
			w.log.Error().Err(err).Msg("breakout cycle failed, retrying after cooldown")
			if !interruptibleSleep(ctx, 60*time.Second) {
				return
			}
			continue
		}

		if once {
			return
		}
		if !interruptibleSleep(ctx, w.cfg.Interval()) {
			return
		}
	}
}

func interruptibleSleep(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Second):
		}
	}
	return true
}
