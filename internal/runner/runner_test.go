package runner

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elcrypto/pumpguard/internal/alert"
	"github.com/elcrypto/pumpguard/internal/breaker"
	"github.com/elcrypto/pumpguard/internal/config"
	"github.com/elcrypto/pumpguard/internal/domain"
	"github.com/elcrypto/pumpguard/internal/engine"
	"github.com/elcrypto/pumpguard/internal/store"
)

type fakeStore struct {
	store.Store
	symbols         []string
	signalsBySymbol map[string][]domain.RawSignal
	upserts         int
	snapshots       int
	linkCalls       int
	expireCalls     int
}

func (f *fakeStore) ExpireStaleCandidates(ctx context.Context, now time.Time) (int, error) {
	f.expireCalls++
	return 0, nil
}

func (f *fakeStore) SelectAnalysisSymbols(ctx context.Context, minSignals int, universe store.UniverseParams) ([]string, error) {
	return f.symbols, nil
}

func (f *fakeStore) ListSignalsForSymbol(ctx context.Context, symbol string, from, to time.Time) ([]domain.RawSignal, error) {
	return f.signalsBySymbol[symbol], nil
}

func (f *fakeStore) LastKnownPumpBefore(ctx context.Context, symbol string, t time.Time) (*domain.LastKnownPump, error) {
	return nil, nil
}

func (f *fakeStore) UpsertCandidate(ctx context.Context, c domain.Candidate) (int64, error) {
	f.upserts++
	return int64(f.upserts), nil
}

func (f *fakeStore) WriteSnapshot(ctx context.Context, candidateID int64, detail domain.AnalysisDetail) error {
	f.snapshots++
	return nil
}

func (f *fakeStore) ReplaceCandidateSignals(ctx context.Context, candidateID int64, links []domain.CandidateSignal) error {
	f.linkCalls++
	return nil
}

func buildSignals(n int, asOf time.Time) []domain.RawSignal {
	var out []domain.RawSignal
	for i := 0; i < n; i++ {
		out = append(out, domain.RawSignal{
			ID: int64(i + 1), Symbol: "FOOUSDT", SignalTimestamp: asOf.Add(-time.Duration(i) * time.Hour),
			SignalStrength: domain.StrengthExtreme, MarketSide: domain.Spot, PriceAtSignal: 1.0,
		})
	}
	return out
}

func TestRunOnceUpsertsDetectedCandidates(t *testing.T) {
	now := time.Now().UTC()
	fs := &fakeStore{
		symbols:         []string{"FOOUSDT"},
		signalsBySymbol: map[string][]domain.RawSignal{"FOOUSDT": buildSignals(20, now)},
	}

	r := New(fs, engine.New(config.DefaultConfig().Engine), alert.New(config.AlertConfig{}),
		breaker.New("test", time.Second), config.RunnerConfig{IntervalMinutes: 30}, config.DefaultConfig().Universe, zerolog.Nop())

	stats, err := r.RunOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Analyzed)
	assert.Equal(t, 1, stats.Detected)
	assert.Equal(t, 1, fs.upserts)
	assert.Equal(t, 1, fs.snapshots)
	assert.Equal(t, 1, fs.linkCalls)
	assert.Equal(t, 1, fs.expireCalls)
}

func TestRunOnceSkipsSymbolsWithNoPattern(t *testing.T) {
	now := time.Now().UTC()
	fs := &fakeStore{
		symbols:         []string{"BARUSDT"},
		signalsBySymbol: map[string][]domain.RawSignal{"BARUSDT": buildSignals(1, now)},
	}

	r := New(fs, engine.New(config.DefaultConfig().Engine), alert.New(config.AlertConfig{}),
		breaker.New("test", time.Second), config.RunnerConfig{IntervalMinutes: 30}, config.DefaultConfig().Universe, zerolog.Nop())

	stats, err := r.RunOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Analyzed)
	assert.Equal(t, 0, stats.Detected)
	assert.Equal(t, 0, fs.upserts)
}

func TestInterruptibleSleepReturnsFalseOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok := interruptibleSleep(ctx, 5*time.Second)
	assert.False(t, ok)
}
