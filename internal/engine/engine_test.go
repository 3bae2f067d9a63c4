package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elcrypto/pumpguard/internal/config"
	"github.com/elcrypto/pumpguard/internal/domain"
)

func testConfig() config.EngineConfig {
	return config.DefaultConfig().Engine
}

func makeSignal(hoursAgo float64, strength domain.Strength, side domain.MarketSide, price float64, asOf time.Time) domain.RawSignal {
	return domain.RawSignal{
		Symbol: "FOOUSDT", SignalTimestamp: asOf.Add(-time.Duration(hoursAgo * float64(time.Hour))),
		SignalStrength: strength, MarketSide: side, PriceAtSignal: price, SpikeRatio7d: 2.0,
	}
}

func TestAnalyzeReturnsNilBelowMinSignalCount(t *testing.T) {
	e := New(testConfig())
	asOf := time.Now()

	signals := []domain.RawSignal{makeSignal(10, domain.StrengthExtreme, domain.Spot, 1.0, asOf)}

	result, err := e.Analyze(context.Background(), signals, nil, asOf)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestAnalyzeDetectsExtremePrecursor(t *testing.T) {
	e := New(testConfig())
	asOf := time.Now()

	var signals []domain.RawSignal
	// 5 EXTREME signals 48-52h old; the one at exactly 48h falls in the
	// 24-48h bucket, so 4 land inside the 48-72h critical window.
	for i := 0; i < 5; i++ {
		signals = append(signals, makeSignal(48+float64(i), domain.StrengthExtreme, domain.Spot, 1.0+float64(i)*0.01, asOf))
	}
	// Plus enough additional signals to clear min_signal_count and drive
	// the signal-count factor up.
	for i := 0; i < 12; i++ {
		signals = append(signals, makeSignal(float64(i), domain.StrengthStrong, domain.Futures, 1.0, asOf))
	}

	result, err := e.Analyze(context.Background(), signals, nil, asOf)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, domain.PatternExtremePrecursor, result.PatternType)
	assert.GreaterOrEqual(t, result.CriticalWindowSignals, 4)
	assert.Equal(t, 17, result.TotalSignals)
}

func TestAnalyzeActionableRequiresHighConfidenceAndCriticalWindow(t *testing.T) {
	e := New(testConfig())
	asOf := time.Now()

	var signals []domain.RawSignal
	for i := 0; i < 5; i++ {
		signals = append(signals, makeSignal(48+float64(i), domain.StrengthExtreme, domain.Spot, 1.0, asOf))
	}
	for i := 0; i < 15; i++ {
		signals = append(signals, makeSignal(float64(i), domain.StrengthVeryStrong, domain.Futures, 1.0, asOf))
	}

	result, err := e.Analyze(context.Background(), signals, nil, asOf)
	require.NoError(t, err)
	require.NotNil(t, result)

	if result.Confidence == domain.ConfidenceHigh {
		assert.Equal(t, result.CriticalWindowSignals >= testConfig().CriticalWindowMinSignals, result.IsActionable)
	} else {
		assert.False(t, result.IsActionable, "non-HIGH confidence must never be actionable")
	}
}

func TestAnalyzeETAEscalatesWithCriticalWindowDensity(t *testing.T) {
	asOf := time.Now()
	oneSignalEta := estimateETA(1, 40)
	threeSignalEta := estimateETA(3, 40)
	fiveSignalEta := estimateETA(5, 40)
	_ = asOf

	require.NotNil(t, oneSignalEta)
	require.NotNil(t, threeSignalEta)
	require.NotNil(t, fiveSignalEta)
	assert.Equal(t, 72, *oneSignalEta)
	assert.Equal(t, 60, *threeSignalEta)
	assert.Equal(t, 48, *fiveSignalEta)
}

func TestAnalyzeETANilWhenTooEarly(t *testing.T) {
	eta := estimateETA(0, 40)
	assert.Nil(t, eta)
}

func TestClassifyPumpPhasePostPumpCooling(t *testing.T) {
	asOf := time.Now()
	lastPump := &domain.LastKnownPump{PumpStart: asOf.Add(-24 * time.Hour), StartPrice: 1.0}

	signals := []domain.RawSignal{
		makeSignal(50, domain.StrengthStrong, domain.Spot, 1.19, asOf),
		makeSignal(1, domain.StrengthStrong, domain.Spot, 1.20, asOf),
	}

	phase, fromFirst, _, hoursSince := classifyPumpPhase(signals, lastPump, asOf)
	assert.Equal(t, domain.PhasePostPumpCooling, phase)
	assert.Greater(t, fromFirst, 15.0)
	require.NotNil(t, hoursSince)
	assert.Less(t, *hoursSince, 72.0)
}

func TestClassifyPumpPhaseSecondWave(t *testing.T) {
	asOf := time.Now()
	lastPump := &domain.LastKnownPump{PumpStart: asOf.Add(-200 * time.Hour), StartPrice: 1.0}

	signals := []domain.RawSignal{
		makeSignal(48, domain.StrengthStrong, domain.Spot, 1.0, asOf),
		makeSignal(1, domain.StrengthStrong, domain.Spot, 1.15, asOf),
	}

	phase, _, price24h, _ := classifyPumpPhase(signals, lastPump, asOf)
	assert.Equal(t, domain.PhaseSecondWavePotential, phase)
	assert.Greater(t, price24h, 10.0)
}

func TestClassifyPumpPhaseDefaultsToEarlySignal(t *testing.T) {
	asOf := time.Now()
	signals := []domain.RawSignal{makeSignal(10, domain.StrengthMedium, domain.Spot, 1.0, asOf)}

	phase, _, _, _ := classifyPumpPhase(signals, nil, asOf)
	assert.Equal(t, domain.PhaseEarlySignal, phase)
}

func TestAnalyzeSignalStrengthBonusForMultipleExtreme(t *testing.T) {
	lowExtreme := analyzeSignalStrength(1, 0, 0, 10)
	highExtreme := analyzeSignalStrength(3, 0, 0, 10)
	assert.Greater(t, highExtreme, lowExtreme)
}

func TestAnalyzeSpotFuturesBalancePrefersBothSides(t *testing.T) {
	balanced := analyzeSpotFuturesBalance(map[domain.MarketSide]int{domain.Spot: 5, domain.Futures: 5})
	onesided := analyzeSpotFuturesBalance(map[domain.MarketSide]int{domain.Spot: 10})
	assert.Greater(t, balanced, onesided)
}

func TestResultSummaryAndBreakdownRender(t *testing.T) {
	eta := 48
	r := &Result{
		Confidence: domain.ConfidenceHigh, Score: 88.5, PatternType: domain.PatternExtremePrecursor,
		TotalSignals: 20, ExtremeSignals: 5, CriticalWindowSignals: 5, ETAHours: &eta,
		IsActionable: true, PumpPhase: domain.PhaseEarlySignal,
	}
	assert.Contains(t, r.Summary(), "ACTIONABLE")
	assert.Contains(t, r.Breakdown(), "confidence=HIGH")
}
