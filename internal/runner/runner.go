// Package runner implements the analysis runner: the periodic tick
// that expires stale candidates, re-analyzes every eligible symbol through
// the detection engine, persists results, and dispatches an alert for every
// actionable candidate on each tick. Grounded on the original analysis_runner_v2.py's
// run_analysis_cycle/process_detection split, generalized with the
// teacher's breaker-guarded storage reconnect idiom.
package runner

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/elcrypto/pumpguard/internal/alert"
	"github.com/elcrypto/pumpguard/internal/apperrors"
	"github.com/elcrypto/pumpguard/internal/breaker"
	"github.com/elcrypto/pumpguard/internal/config"
	"github.com/elcrypto/pumpguard/internal/domain"
	"github.com/elcrypto/pumpguard/internal/engine"
	"github.com/elcrypto/pumpguard/internal/store"
	"github.com/elcrypto/pumpguard/internal/telemetry"
)

// CycleStats summarizes one analysis tick, mirroring the Python runner's
// (total_analyzed, detections_count, actionable_count) tuple.
type CycleStats struct {
	Analyzed   int
	Detected   int
	Actionable int
	Expired    int
}

// Runner owns the analysis tick loop.
type Runner struct {
	store    store.Store
	engine   *engine.Engine
	alerter  *alert.Alerter
	breaker  *breaker.Breaker
	cfg      config.RunnerConfig
	universe store.UniverseParams
	log      zerolog.Logger
	metrics  *telemetry.Metrics
}

// New builds a Runner. breaker guards reconnect attempts after a storage
// failure; pass breaker.New("postgres", cooldown) from the caller. universe
// restricts symbol selection to the configured exchange/market-cap floor.
func New(st store.Store, eng *engine.Engine, alerter *alert.Alerter, brk *breaker.Breaker, cfg config.RunnerConfig, universe config.UniverseConfig, log zerolog.Logger) *Runner {
	return &Runner{
		store: st, engine: eng, alerter: alerter, breaker: brk, cfg: cfg,
		universe: store.UniverseParams{ExchangeID: universe.ExchangeID, MinMarketCapUSD: universe.MinMarketCapUSD},
		log:      log.With().Str("component", "runner").Logger(),
	}
}

// SetMetrics attaches a telemetry bundle the runner updates on every tick.
// Safe to leave unset; nil metrics are simply skipped.
func (r *Runner) SetMetrics(m *telemetry.Metrics) { r.metrics = m }

// RunOnce executes a single tick: expire stale candidates, then analyze
// every symbol returned by SelectAnalysisSymbols.
func (r *Runner) RunOnce(ctx context.Context, minSignalCount int) (CycleStats, error) {
	var stats CycleStats
	tickStart := time.Now()
	if r.metrics != nil {
		defer func() { r.metrics.TickDuration.WithLabelValues("runner").Observe(time.Since(tickStart).Seconds()) }()
	}

	now := time.Now().UTC()
	expired, err := r.store.ExpireStaleCandidates(ctx, now)
	if err != nil {
		if r.metrics != nil {
			r.metrics.StorageErrors.WithLabelValues("runner").Inc()
		}
		return stats, err
	}
	stats.Expired = expired

	symbols, err := r.store.SelectAnalysisSymbols(ctx, minSignalCount, r.universe)
	if err != nil {
		return stats, err
	}
	r.log.Info().Int("symbol_count", len(symbols)).Msg("analysis cycle starting")

	for _, symbol := range symbols {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		stats.Analyzed++
		actionable, err := r.analyzeOne(ctx, symbol, now)
		if err != nil {
			if apperrors.Is(err, apperrors.KindDataInsufficient) {
				continue
			}
			if apperrors.Is(err, apperrors.KindStorageUnavailable) {
				return stats, err
			}
			r.log.Error().Err(err).Str("symbol", symbol).Msg("analysis failed, skipping symbol")
			continue
		}
		stats.Detected++
		if actionable {
			stats.Actionable++
		}
	}

	r.log.Info().Int("analyzed", stats.Analyzed).Int("detected", stats.Detected).
		Int("expired", stats.Expired).Msg("analysis cycle complete")
	return stats, nil
}

func (r *Runner) analyzeOne(ctx context.Context, symbol string, now time.Time) (bool, error) {
	from := now.Add(-7 * 24 * time.Hour)
	signals, err := r.store.ListSignalsForSymbol(ctx, symbol, from, now)
	if err != nil {
		return false, err
	}

	lastPump, err := r.store.LastKnownPumpBefore(ctx, symbol, now)
	if err != nil {
		return false, err
	}

	result, err := r.engine.Analyze(ctx, signals, lastPump, now)
	if err != nil {
		return false, apperrors.Bug(symbol, err)
	}
	if result == nil {
		return false, apperrors.DataInsufficient(symbol, nil)
	}

	candidate := domain.Candidate{
		Symbol: symbol, Confidence: result.Confidence, Score: result.Score,
		PatternType: result.PatternType, TotalSignals: result.TotalSignals,
		ExtremeSignals: result.ExtremeSignals, CriticalWindowSignals: result.CriticalWindowSignals,
		ETAHours: result.ETAHours, IsActionable: result.IsActionable, PumpPhase: result.PumpPhase,
		PriceChangeFromFirst: result.PriceChangeFromFirst, PriceChange24h: result.PriceChange24h,
		HoursSinceLastPump: result.HoursSinceLastPump,
	}
	if len(signals) > 0 {
		candidate.ActualPrice = signals[0].PriceAtSignal
	}

	candidateID, err := r.store.UpsertCandidate(ctx, candidate)
	if err != nil {
		return false, err
	}
	if r.metrics != nil {
		r.metrics.CandidatesUpserted.Inc()
	}

	if err := r.store.WriteSnapshot(ctx, candidateID, result.Detail); err != nil {
		return false, err
	}

	links := make([]domain.CandidateSignal, len(signals))
	for i, s := range signals {
		links[i] = domain.CandidateSignal{CandidateID: candidateID, SignalID: s.ID, RelevanceScore: relevanceFor(s.SignalStrength)}
	}
	if err := r.store.ReplaceCandidateSignals(ctx, candidateID, links); err != nil {
		return false, err
	}

	r.log.Info().Str("symbol", symbol).Str("confidence", string(result.Confidence)).
		Float64("score", result.Score).Bool("actionable", result.IsActionable).Msg(result.Summary())

	if result.IsActionable {
		if err := r.alerter.SendCandidateAlert(ctx, alert.Candidate{
			Symbol: symbol, Confidence: result.Confidence, Score: result.Score,
			PatternType: result.PatternType, TotalSignals: result.TotalSignals,
			ExtremeSignals: result.ExtremeSignals, CriticalWindowSignals: result.CriticalWindowSignals,
			ETAHours: result.ETAHours,
		}); err != nil {
			r.log.Warn().Err(err).Str("symbol", symbol).Msg("alert dispatch failed")
			if r.metrics != nil {
				r.metrics.AlertDispatchFailures.WithLabelValues("runner").Inc()
			}
		} else if r.metrics != nil {
			r.metrics.AlertsSent.WithLabelValues("runner", string(result.Confidence)).Inc()
		}
	}

	return result.IsActionable, nil
}

func relevanceFor(strength domain.Strength) float64 {
	switch strength {
	case domain.StrengthExtreme:
		return 1.0
	case domain.StrengthVeryStrong:
		return 0.8
	case domain.StrengthStrong:
		return 0.6
	case domain.StrengthMedium:
		return 0.4
	default:
		return 0.2
	}
}

// Run drives the interruptible tick loop: a fixed-interval
// schedule with 1-second-granularity cancellation checks, and a
// sleep-and-retry-whole-tick recovery on storage failure guarded by the
// breaker.
func (r *Runner) Run(ctx context.Context, minSignalCount int, once bool) {
	for {
		if ctx.Err() != nil {
			return
		}

		_, err := r.RunOnce(ctx, minSignalCount)
		if err != nil {
			r.log.Error().Err(err).Msg("analysis cycle failed, retrying after cooldown")
			if probeErr := r.breaker.Probe(ctx, r.store.HealthCheck); probeErr != nil {
				r.log.Warn().Err(probeErr).Msg("storage still unhealthy")
			}
			if r.metrics != nil {
				r.metrics.BreakerState.WithLabelValues("postgres").Set(telemetry.BreakerStateValue(r.breaker.State()))
			}
			if !interruptibleSleep(ctx, 60*time.Second) {
				return
			}
			continue
		}

		if once {
			return
		}
		if !interruptibleSleep(ctx, r.cfg.Interval()) {
			return
		}
	}
}

// interruptibleSleep sleeps in 1-second increments so ctx cancellation is
// observed promptly. Returns false if ctx was cancelled mid-sleep.
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
