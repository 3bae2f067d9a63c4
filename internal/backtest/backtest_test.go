package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elcrypto/pumpguard/internal/config"
	"github.com/elcrypto/pumpguard/internal/domain"
	"github.com/elcrypto/pumpguard/internal/engine"
	"github.com/elcrypto/pumpguard/internal/store"
)

// fakeStore stubs the engine to detect only at analysis_time == pumpStart-48h,
// so only the 48h-offset replay counts as a true positive.
type fakeStore struct {
	store.Store
	pumpStart time.Time
	cleared   bool
	written   []domain.BacktestResult
}

func (f *fakeStore) ClearBacktestResults(ctx context.Context) error {
	f.cleared = true
	return nil
}

func (f *fakeStore) ListKnownPumps(ctx context.Context) ([]domain.KnownPumpEvent, error) {
	return []domain.KnownPumpEvent{{ID: 1, Symbol: "EVTUSDT", PumpStart: f.pumpStart}}, nil
}

func (f *fakeStore) ListSignalsForSymbol(ctx context.Context, symbol string, from, to time.Time) ([]domain.RawSignal, error) {
	if !to.Equal(f.pumpStart.Add(-48 * time.Hour)) {
		return nil, nil
	}
	var out []domain.RawSignal
	for i := 0; i < 20; i++ {
		out = append(out, domain.RawSignal{
			ID: int64(i + 1), Symbol: symbol, SignalTimestamp: to.Add(-time.Duration(48+i) * time.Hour),
			SignalStrength: domain.StrengthExtreme, MarketSide: domain.Spot, PriceAtSignal: 1.0,
		})
	}
	return out, nil
}

func (f *fakeStore) LastKnownPumpBefore(ctx context.Context, symbol string, t time.Time) (*domain.LastKnownPump, error) {
	return nil, nil
}

func (f *fakeStore) WriteBacktestResult(ctx context.Context, row domain.BacktestResult) error {
	f.written = append(f.written, row)
	return nil
}

func TestRunClassifiesDetectionAtCorrectOffsetOnly(t *testing.T) {
	pumpStart := time.Now().UTC()
	fs := &fakeStore{pumpStart: pumpStart}
	eng := engine.New(config.DefaultConfig().Engine)
	r := New(fs, eng, config.DefaultConfig().Engine, zerolog.Nop())

	metrics, windows, err := r.Run(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, fs.cleared)
	assert.Len(t, windows, 5)
	assert.Len(t, fs.written, 5)

	var detectedOffsets []int
	for _, w := range windows {
		if w.WasDetected {
			detectedOffsets = append(detectedOffsets, w.HoursBeforePump)
		}
	}
	assert.Equal(t, []int{48}, detectedOffsets)
	assert.Equal(t, 1, metrics.Overall.TP)
	assert.Equal(t, 4, metrics.Overall.FN)
	assert.InDelta(t, 0.2, metrics.Overall.Recall, 0.001)
}

func TestAggregateComputesDerivedMetricsSafely(t *testing.T) {
	m := aggregate(nil, config.DefaultConfig().Engine)
	assert.Equal(t, 0.0, m.Overall.Precision)
	assert.Equal(t, 0.0, m.Overall.Recall)
	assert.Equal(t, 0.0, m.Overall.F1Score)
	assert.NotEmpty(t, m.RunID)
}

func TestClassifyLabelsDetectedAsTP(t *testing.T) {
	assert.Equal(t, domain.ClassificationTP, classify(true))
	assert.Equal(t, domain.ClassificationFN, classify(false))
}
