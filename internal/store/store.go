// Package store defines the typed storage contract every scheduler
// depends on: one interface, one Postgres implementation, typed structs
// for every query result instead of bare rows or maps.
package store

import (
	"context"
	"time"

	"github.com/elcrypto/pumpguard/internal/domain"
)

// ActiveCandidateFilter narrows ListActiveCandidates.
type ActiveCandidateFilter struct {
	Confidence domain.Confidence // zero value means "any"
}

// UniverseParams narrows DetectSpikes/SelectAnalysisSymbols to the
// configured trading universe: listed on the target exchange, market cap
// at or above the floor. ExchangeID zero means "any exchange".
type UniverseParams struct {
	ExchangeID      int64
	MinMarketCapUSD float64
}

// SpikeCandidate is one (trading_pair, candle_time) volume anomaly
// surfaced by DetectSpikes, before strength classification.
type SpikeCandidate struct {
	TradingPairID int64
	Symbol        string
	CandleTime    time.Time
	ClosePrice    float64
	Volume        float64
	Baseline7d    float64
	Baseline14d   float64
	Baseline30d   float64
	SpikeRatio7d  float64
	SpikeRatio14d float64
	SpikeRatio30d float64
}

// Store is the typed storage access layer every component depends on. Every
// method is a single transactional unit; storage failures surface as
// apperrors.StorageUnavailable-wrapped errors, never partial writes.
type Store interface {
	GetConfigString(ctx context.Context, key, def string) (string, error)
	GetConfigFloat(ctx context.Context, key string, def float64) (float64, error)
	GetConfigInt(ctx context.Context, key string, def int) (int, error)

	InsertRawSignal(ctx context.Context, s domain.RawSignal) (id int64, alreadyExists bool, err error)
	ListSignalsForSymbol(ctx context.Context, symbol string, from, to time.Time) ([]domain.RawSignal, error)

	// DetectSpikes computes spike candidates for one market side over the
	// given candle window, via the same rolling-average SQL shape the
	// original detector used (42/84/180-candle trailing windows on 4h
	// candles for the 7d/14d/30d baselines), restricted to universe's
	// exchange/market-cap floor. It does not insert; callers classify
	// strength and call InsertRawSignal per candidate.
	DetectSpikes(ctx context.Context, marketSide domain.MarketSide, minSpikeRatio float64, from, to time.Time, universe UniverseParams) ([]SpikeCandidate, error)

	UpsertCandidate(ctx context.Context, c domain.Candidate) (int64, error)
	WriteSnapshot(ctx context.Context, candidateID int64, detail domain.AnalysisDetail) error
	ReplaceCandidateSignals(ctx context.Context, candidateID int64, links []domain.CandidateSignal) error
	ExpireStaleCandidates(ctx context.Context, now time.Time) (int, error)
	ListActiveCandidates(ctx context.Context, filter ActiveCandidateFilter) ([]domain.Candidate, error)

	// SelectAnalysisSymbols returns symbols satisfying the universe filter
	// with at least minSignals raw signals in the last 7 days, ordered by
	// (extreme_count DESC, total_count DESC).
	SelectAnalysisSymbols(ctx context.Context, minSignals int, universe UniverseParams) ([]string, error)

	ListKnownPumps(ctx context.Context) ([]domain.KnownPumpEvent, error)
	WriteBacktestResult(ctx context.Context, row domain.BacktestResult) error
	ClearBacktestResults(ctx context.Context) error

	LastKnownPumpBefore(ctx context.Context, symbol string, t time.Time) (*domain.LastKnownPump, error)
	GetLatestCandles(ctx context.Context, symbol string, marketSide domain.MarketSide, intervalHours int, n int) ([]domain.Candle, error)

	// FindDoubleExtremeSignals self-joins raw_signals for pairs carrying
	// an EXTREME-strength signal on both market sides for the same
	// candle timestamp, detected within the last lookback window.
	FindDoubleExtremeSignals(ctx context.Context, lookback time.Duration) ([]DoubleExtremeSignal, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// DoubleExtremeSignal pairs the SPOT and FUTURES sides of a simultaneous
// EXTREME volume spike on the same symbol and candle.
type DoubleExtremeSignal struct {
	Symbol        string
	SignalTime    time.Time
	SpotSpike     float64
	FuturesSpike  float64
	SpotVolume    float64
	FuturesVolume float64
}
