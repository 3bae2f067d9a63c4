package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elcrypto/pumpguard/internal/alert"
	"github.com/elcrypto/pumpguard/internal/config"
	"github.com/elcrypto/pumpguard/internal/domain"
	"github.com/elcrypto/pumpguard/internal/store"
)

type fakeStore struct {
	store.Store
	candidates []domain.Candidate
	candles    map[domain.MarketSide][]domain.Candle
}

func (f *fakeStore) ListActiveCandidates(ctx context.Context, filter store.ActiveCandidateFilter) ([]domain.Candidate, error) {
	return f.candidates, nil
}

func (f *fakeStore) GetLatestCandles(ctx context.Context, symbol string, side domain.MarketSide, intervalHours, n int) ([]domain.Candle, error) {
	return f.candles[side], nil
}

func testConfig() config.WatcherConfig {
	return config.DefaultConfig().Watcher
}

func TestRunOnceTriggersOnDualMarketBreakout(t *testing.T) {
	fs := &fakeStore{
		candidates: []domain.Candidate{{Symbol: "FOOUSDT", Confidence: domain.ConfidenceHigh}},
		candles: map[domain.MarketSide][]domain.Candle{
			domain.Spot:    {{QuoteVolume: 200}, {QuoteVolume: 100}},
			domain.Futures: {{QuoteVolume: 180}, {QuoteVolume: 100}},
		},
	}
	w := New(fs, alert.New(config.AlertConfig{}), testConfig(), zerolog.Nop())

	stats, err := w.RunOnce(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Checked)
	assert.Equal(t, 1, stats.Triggered)
}

func TestRunOnceSkipsBelowThreshold(t *testing.T) {
	fs := &fakeStore{
		candidates: []domain.Candidate{{Symbol: "FOOUSDT", Confidence: domain.ConfidenceHigh}},
		candles: map[domain.MarketSide][]domain.Candle{
			domain.Spot:    {{QuoteVolume: 110}, {QuoteVolume: 100}},
			domain.Futures: {{QuoteVolume: 180}, {QuoteVolume: 100}},
		},
	}
	w := New(fs, alert.New(config.AlertConfig{}), testConfig(), zerolog.Nop())

	stats, err := w.RunOnce(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Triggered)
}

func TestRunOnceRespectsCooldown(t *testing.T) {
	fs := &fakeStore{
		candidates: []domain.Candidate{{Symbol: "FOOUSDT", Confidence: domain.ConfidenceHigh}},
		candles: map[domain.MarketSide][]domain.Candle{
			domain.Spot:    {{QuoteVolume: 200}, {QuoteVolume: 100}},
			domain.Futures: {{QuoteVolume: 180}, {QuoteVolume: 100}},
		},
	}
	w := New(fs, alert.New(config.AlertConfig{}), testConfig(), zerolog.Nop())

	now := time.Now()
	stats, err := w.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Triggered)

	stats, err = w.RunOnce(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Triggered, "still within cooldown window")
}

func TestRunOnceSkipsNonUSDTPairs(t *testing.T) {
	fs := &fakeStore{
		candidates: []domain.Candidate{{Symbol: "FOOBTC", Confidence: domain.ConfidenceHigh}},
		candles: map[domain.MarketSide][]domain.Candle{
			domain.Spot:    {{QuoteVolume: 200}, {QuoteVolume: 100}},
			domain.Futures: {{QuoteVolume: 180}, {QuoteVolume: 100}},
		},
	}
	w := New(fs, alert.New(config.AlertConfig{}), testConfig(), zerolog.Nop())

	stats, err := w.RunOnce(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Triggered)
}
