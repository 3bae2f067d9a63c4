// Package detect implements the spike detector: classifies volume
// anomalies returned by the storage layer's rolling-baseline query into
// strength tiers and idempotently records them as raw signals. Grounded on
// the original detector daemon's classify_signal_strength/save_raw_signal
// split and its batched-historical-load loop.
package detect

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/elcrypto/pumpguard/internal/config"
	"github.com/elcrypto/pumpguard/internal/domain"
	"github.com/elcrypto/pumpguard/internal/store"
	"github.com/elcrypto/pumpguard/internal/telemetry"
)

// Detector runs one detection pass (live or historical-batch) over both
// market sides.
type Detector struct {
	store    store.Store
	cfg      config.DetectorConfig
	universe store.UniverseParams
	log      zerolog.Logger
	metrics  *telemetry.Metrics
}

// New builds a Detector over st using cfg's thresholds, restricted to
// universe's exchange/market-cap floor.
func New(st store.Store, cfg config.DetectorConfig, universe config.UniverseConfig, log zerolog.Logger) *Detector {
	return &Detector{
		store: st, cfg: cfg,
		universe: store.UniverseParams{ExchangeID: universe.ExchangeID, MinMarketCapUSD: universe.MinMarketCapUSD},
		log:      log.With().Str("component", "detector").Logger(),
	}
}

// SetMetrics attaches a telemetry bundle updated on every scan. Safe to
// leave unset.
func (d *Detector) SetMetrics(m *telemetry.Metrics) { d.metrics = m }

// ClassifyStrength applies the four spike-ratio thresholds to the larger
// of the 7d/14d spike ratios.
func (d *Detector) ClassifyStrength(spikeRatio7d, spikeRatio14d float64) domain.Strength {
	maxSpike := spikeRatio7d
	if spikeRatio14d > maxSpike {
		maxSpike = spikeRatio14d
	}

	switch {
	case maxSpike >= d.cfg.ExtremeSpikeRatio:
		return domain.StrengthExtreme
	case maxSpike >= d.cfg.VeryStrongSpikeRatio:
		return domain.StrengthVeryStrong
	case maxSpike >= d.cfg.StrongSpikeRatio:
		return domain.StrengthStrong
	case maxSpike >= d.cfg.MediumSpikeRatio:
		return domain.StrengthMedium
	default:
		return domain.StrengthWeak
	}
}

// RunWindow detects and records anomalies across both market sides for the
// candle window [from, to). Returns the count of newly-inserted signals;
// pre-existing signals are skipped silently via InsertRawSignal's
// ON CONFLICT DO NOTHING semantics.
func (d *Detector) RunWindow(ctx context.Context, from, to time.Time) (int, error) {
	total := 0
	for _, side := range []domain.MarketSide{domain.Futures, domain.Spot} {
		n, err := d.detectSide(ctx, side, from, to)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (d *Detector) detectSide(ctx context.Context, side domain.MarketSide, from, to time.Time) (int, error) {
	candidates, err := d.store.DetectSpikes(ctx, side, d.cfg.MinSpikeRatio, from, to, d.universe)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, c := range candidates {
		strength := d.ClassifyStrength(c.SpikeRatio7d, c.SpikeRatio14d)

		baseline7d, baseline14d, baseline30d := c.Baseline7d, c.Baseline14d, c.Baseline30d
		_, exists, err := d.store.InsertRawSignal(ctx, domain.RawSignal{
			TradingPairID: c.TradingPairID, Symbol: c.Symbol, MarketSide: side,
			SignalTimestamp: c.CandleTime, DetectedAt: time.Now().UTC(),
			Volume: c.Volume, Baseline7d: &baseline7d, Baseline14d: &baseline14d, Baseline30d: &baseline30d,
			SpikeRatio7d: c.SpikeRatio7d, SpikeRatio14d: c.SpikeRatio14d, SpikeRatio30d: c.SpikeRatio30d,
			SignalStrength: strength, PriceAtSignal: c.ClosePrice, DetectorVersion: d.cfg.DetectorVersion,
		})
		if err != nil {
			return inserted, err
		}
		if exists {
			continue
		}
		inserted++
		if d.metrics != nil {
			d.metrics.SignalsEmitted.WithLabelValues(string(side), string(strength)).Inc()
		}
		d.log.Info().Str("symbol", c.Symbol).Str("side", string(side)).
			Float64("spike_ratio_7d", c.SpikeRatio7d).Str("strength", string(strength)).
			Msg("signal recorded")
	}
	return inserted, nil
}

// RunLive scans the recent lookback window ending now.
func (d *Detector) RunLive(ctx context.Context, now time.Time) (int, error) {
	from := now.Add(-time.Duration(d.cfg.LiveLookbackHours) * time.Hour)
	return d.RunWindow(ctx, from, now)
}

// RunHistorical replays the full coarse lookback window in fixed-size
// batches, pausing briefly between batches so a single long-running scan
// never monopolizes the database.
func (d *Detector) RunHistorical(ctx context.Context, now time.Time, totalHours int) (int, error) {
	batchHours := d.cfg.BatchSizeHours
	if batchHours <= 0 {
		batchHours = 48
	}

	start := now.Add(-time.Duration(totalHours) * time.Hour)
	total := 0

	for batchStart := start; batchStart.Before(now); batchStart = batchStart.Add(time.Duration(batchHours) * time.Hour) {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		batchEnd := batchStart.Add(time.Duration(batchHours) * time.Hour)
		if batchEnd.After(now) {
			batchEnd = now
		}

		n, err := d.RunWindow(ctx, batchStart, batchEnd)
		if err != nil {
			d.log.Error().Err(err).Time("batch_start", batchStart).Msg("historical batch failed, continuing")
		} else {
			total += n
		}

		pause := time.Duration(d.cfg.BatchPauseMS) * time.Millisecond
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(pause):
		}
	}

	return total, nil
}
