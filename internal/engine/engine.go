// Package engine implements the detection engine: the pure, deterministic
// five-factor scoring pass over a symbol's last-7-days raw signals. The
// config-struct-plus-CalculateScore-plus-component-breakdown shape follows
// the original Python engine's pump-precursor factor set and constants.
package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/elcrypto/pumpguard/internal/config"
	"github.com/elcrypto/pumpguard/internal/domain"
)

// signalCountDivisor is the avg signal count actionable pumps carry in the
// originating research corpus; untunable per the resolved Open Question.
const signalCountDivisor = 16.44

// Engine computes the per-symbol pump-likelihood analysis. It holds no
// mutable state and is safe for concurrent use by multiple callers.
type Engine struct {
	cfg config.EngineConfig
}

// New builds an Engine bound to cfg. cfg is read once per Analyze call,
// never mutated.
func New(cfg config.EngineConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Result is everything needed to persist a candidate plus the report
// surface (Summary/Breakdown) for logs and alerts.
type Result struct {
	Confidence            domain.Confidence
	Score                 float64
	PatternType           domain.PatternType
	TotalSignals          int
	ExtremeSignals        int
	CriticalWindowSignals int
	ETAHours              *int
	IsActionable          bool
	PumpPhase             domain.PumpPhase
	PriceChangeFromFirst  float64
	PriceChange24h        float64
	HoursSinceLastPump    *float64
	Detail                domain.AnalysisDetail
}

// Analyze runs the seven-step scoring algorithm over signals (already
// filtered to the last 7 days by the caller) as of asOf. Returns nil, nil
// when there is no pump pattern: too few signals, or score below the
// medium-confidence threshold.
func (e *Engine) Analyze(ctx context.Context, signals []domain.RawSignal, lastPump *domain.LastKnownPump, asOf time.Time) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if len(signals) < e.cfg.MinSignalCount {
		return nil, nil
	}

	scores, criticalWindowSignals, extremeCount, strengthHist, sideHist := e.factorScores(signals, asOf)

	total := scores.SignalCount*e.cfg.WeightSignalCount +
		scores.TimeDistribution*e.cfg.WeightTimeDistribution +
		scores.SignalStrength*e.cfg.WeightSignalStrength +
		scores.Escalation*e.cfg.WeightEscalation +
		scores.SpotFuturesBal*e.cfg.WeightSpotFuturesBal
	total = round2(math.Max(0, math.Min(100, total)))

	if total < e.cfg.MediumConfidenceThreshold {
		return nil, nil
	}

	confidence := domain.ConfidenceMedium
	if total >= e.cfg.HighConfidenceThreshold {
		confidence = domain.ConfidenceHigh
	}

	patternType := determinePatternType(extremeCount, criticalWindowSignals, total, len(signals))
	etaHours := estimateETA(criticalWindowSignals, total)
	isActionable := confidence == domain.ConfidenceHigh && criticalWindowSignals >= e.cfg.CriticalWindowMinSignals

	phase, priceFromFirst, price24h, hoursSincePump := classifyPumpPhase(signals, lastPump, asOf)

	weights := domain.FactorWeights{
		SignalCount: e.cfg.WeightSignalCount, TimeDistribution: e.cfg.WeightTimeDistribution,
		SignalStrength: e.cfg.WeightSignalStrength, Escalation: e.cfg.WeightEscalation,
		SpotFuturesBal: e.cfg.WeightSpotFuturesBal,
	}

	return &Result{
		Confidence: confidence, Score: round2(total), PatternType: patternType,
		TotalSignals: len(signals), ExtremeSignals: extremeCount,
		CriticalWindowSignals: criticalWindowSignals, ETAHours: etaHours,
		IsActionable: isActionable, PumpPhase: phase,
		PriceChangeFromFirst: round2(priceFromFirst), PriceChange24h: round2(price24h),
		HoursSinceLastPump: hoursSincePump,
		Detail: domain.AnalysisDetail{
			AsOfTime: asOf, Weights: weights, RawScores: scores,
			StrengthHistogram: strengthHist, MarketSideHistogram: sideHist,
			CriticalWindowCount: criticalWindowSignals,
		},
	}, nil
}

// factorScores computes each raw [0,100] factor score (signal count, time
// distribution, signal strength, escalation, spot/futures balance), plus
// the histograms persisted in the AnalysisSnapshot.
func (e *Engine) factorScores(signals []domain.RawSignal, asOf time.Time) (domain.FactorScores, int, int, map[domain.Strength]int, map[domain.MarketSide]int) {
	strengthHist := map[domain.Strength]int{}
	sideHist := map[domain.MarketSide]int{}
	var extreme, veryStrong, strong int

	for _, s := range signals {
		strengthHist[s.SignalStrength]++
		sideHist[s.MarketSide]++
		switch s.SignalStrength {
		case domain.StrengthExtreme:
			extreme++
		case domain.StrengthVeryStrong:
			veryStrong++
		case domain.StrengthStrong:
			strong++
		}
	}

	signalCountScore := math.Min(100, (float64(len(signals))/signalCountDivisor)*100)

	timeDistScore, criticalWindow := analyzeTimeDistribution(signals, asOf)

	strengthScore := analyzeSignalStrength(extreme, veryStrong, strong, len(signals))

	escalationScore := analyzeEscalation(signals, asOf)

	balanceScore := analyzeSpotFuturesBalance(sideHist)

	return domain.FactorScores{
		SignalCount:      round2(signalCountScore),
		TimeDistribution: round2(timeDistScore),
		SignalStrength:   round2(strengthScore),
		Escalation:       round2(escalationScore),
		SpotFuturesBal:   round2(balanceScore),
	}, criticalWindow, extreme, strengthHist, sideHist
}

// analyzeTimeDistribution buckets signals into 24h windows back from asOf
// and scores the 48-72h critical window.
func analyzeTimeDistribution(signals []domain.RawSignal, asOf time.Time) (float64, int) {
	var window0to24, window24to48, window48to72, recentOther int

	for _, s := range signals {
		hoursAgo := asOf.Sub(s.SignalTimestamp).Hours()
		switch {
		case hoursAgo <= 24:
			window0to24++
		case hoursAgo <= 48:
			window24to48++
		case hoursAgo <= 72:
			window48to72++
		default:
			recentOther++
		}
	}

	critical := window48to72

	var score float64
	switch {
	case critical >= 5:
		score = 100
	case critical >= 4:
		score = 90
	case critical >= 3:
		score = 70
	case critical >= 2:
		score = 50
	case critical >= 1:
		score = 30
	default:
		recent := window0to24 + window24to48
		score = math.Min(40, float64(recent)*5)
	}

	return score, critical
}

// analyzeSignalStrength weights EXTREME=3, VERY_STRONG=2, STRONG=1 against
// the all-EXTREME ceiling, with a bonus for multiple EXTREME signals.
func analyzeSignalStrength(extreme, veryStrong, strong, total int) float64 {
	if total == 0 {
		return 0
	}

	weighted := float64(extreme*3 + veryStrong*2 + strong)
	maxPossible := float64(total * 3)
	score := (weighted / maxPossible) * 100

	switch {
	case extreme >= 3:
		score = math.Min(100, score+20)
	case extreme >= 2:
		score = math.Min(100, score+10)
	}

	return score
}

// analyzeEscalation compares signal density in the second half of the
// window to the first half; escalating density suggests an approaching
// pump.
func analyzeEscalation(signals []domain.RawSignal, _ time.Time) float64 {
	if len(signals) < 3 {
		return escalationScore(1.0)
	}

	times := make([]time.Time, len(signals))
	for i, s := range signals {
		times[i] = s.SignalTimestamp
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	mid := len(times) / 2
	firstHalf, secondHalf := times[:mid], times[mid:]

	firstDensity := density(firstHalf)
	secondDensity := density(secondHalf)

	var ratio float64
	if firstDensity > 0 {
		ratio = secondDensity / firstDensity
	} else {
		ratio = 1.0
	}

	return escalationScore(ratio)
}

func escalationScore(ratio float64) float64 {
	switch {
	case ratio >= 2.0:
		return 100
	case ratio >= 1.5:
		return 80
	case ratio >= 1.0:
		return 60
	default:
		return 40
	}
}

func density(times []time.Time) float64 {
	if len(times) == 0 {
		return 0
	}
	durationHours := times[len(times)-1].Sub(times[0]).Hours()
	if durationHours < 1 {
		durationHours = 1
	}
	return float64(len(times)) / durationHours
}

// analyzeSpotFuturesBalance rewards the presence of both market sides,
// with a perfect balance scoring highest.
func analyzeSpotFuturesBalance(sideHist map[domain.MarketSide]int) float64 {
	spot := sideHist[domain.Spot]
	futures := sideHist[domain.Futures]
	total := spot + futures
	if total == 0 {
		return 0
	}

	if spot > 0 && futures > 0 {
		lo, hi := float64(spot), float64(futures)
		if lo > hi {
			lo, hi = hi, lo
		}
		ratio := lo / hi
		return 50 + ratio*50
	}
	return 30
}

func determinePatternType(extremeCount, criticalWindow int, score float64, totalSignals int) domain.PatternType {
	switch {
	case extremeCount >= 2 && criticalWindow >= 4:
		return domain.PatternExtremePrecursor
	case extremeCount >= 1 && criticalWindow >= 3:
		return domain.PatternStrongPrecursor
	case score >= 60 && totalSignals >= 12:
		return domain.PatternMediumPrecursor
	default:
		return domain.PatternEarly
	}
}

func estimateETA(criticalWindow int, score float64) *int {
	hours := func(h int) *int { return &h }

	switch {
	case criticalWindow >= 5:
		return hours(48)
	case criticalWindow >= 3:
		return hours(60)
	case criticalWindow >= 1:
		return hours(72)
	case score >= 70:
		return hours(96)
	default:
		return nil
	}
}

// classifyPumpPhase derives the pump-phase label from the price
// trajectory implied by signal prices and the most recent known pump.
func classifyPumpPhase(signals []domain.RawSignal, lastPump *domain.LastKnownPump, asOf time.Time) (domain.PumpPhase, float64, float64, *float64) {
	type priced struct {
		at    time.Time
		price float64
	}

	var points []priced
	for _, s := range signals {
		if s.PriceAtSignal > 0 {
			points = append(points, priced{at: s.SignalTimestamp, price: s.PriceAtSignal})
		}
	}

	var hoursSincePump *float64
	if lastPump != nil {
		h := asOf.Sub(lastPump.PumpStart).Hours()
		hoursSincePump = &h
	}

	if len(points) == 0 {
		return domain.PhaseEarlySignal, 0, 0, hoursSincePump
	}

	sort.Slice(points, func(i, j int) bool { return points[i].at.Before(points[j].at) })

	currentPrice := points[len(points)-1].price

	basePrice := points[0].price
	if lastPump != nil && lastPump.StartPrice > 0 {
		basePrice = lastPump.StartPrice
	}

	var priceFromFirst float64
	if basePrice > 0 {
		priceFromFirst = ((currentPrice - basePrice) / basePrice) * 100
	}

	cutoff24h := asOf.Add(-24 * time.Hour)
	var price24hAgo float64
	for i := len(points) - 1; i >= 0; i-- {
		if !points[i].at.After(cutoff24h) {
			price24hAgo = points[i].price
			break
		}
	}

	price24h := priceFromFirst
	if price24hAgo > 0 {
		price24h = ((currentPrice - price24hAgo) / price24hAgo) * 100
	}

	phase := classifyPhase(priceFromFirst, price24h, hoursSincePump)
	return phase, priceFromFirst, price24h, hoursSincePump
}

func classifyPhase(priceFromFirst, price24h float64, hoursSincePump *float64) domain.PumpPhase {
	if priceFromFirst > 15 && hoursSincePump != nil && *hoursSincePump < 72 && price24h < 5 {
		return domain.PhasePostPumpCooling
	}
	if hoursSincePump != nil && *hoursSincePump > 168 && price24h > 10 {
		return domain.PhaseSecondWavePotential
	}
	return domain.PhaseEarlySignal
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// Summary renders a one-line report.
func (r *Result) Summary() string {
	eta := "n/a"
	if r.ETAHours != nil {
		eta = fmt.Sprintf("%dh", *r.ETAHours)
	}
	actionable := ""
	if r.IsActionable {
		actionable = " [ACTIONABLE]"
	}
	return fmt.Sprintf("%s score=%.2f pattern=%s eta=%s phase=%s%s",
		r.Confidence, r.Score, r.PatternType, eta, r.PumpPhase, actionable)
}

// Breakdown renders the full per-factor report.
func (r *Result) Breakdown() string {
	out := fmt.Sprintf("confidence=%s score=%.2f (%d signals, %d extreme, %d in critical window)\n",
		r.Confidence, r.Score, r.TotalSignals, r.ExtremeSignals, r.CriticalWindowSignals)
	out += fmt.Sprintf("  signal_count=%.1f time_distribution=%.1f signal_strength=%.1f escalation=%.1f spot_futures=%.1f\n",
		r.Detail.RawScores.SignalCount, r.Detail.RawScores.TimeDistribution,
		r.Detail.RawScores.SignalStrength, r.Detail.RawScores.Escalation, r.Detail.RawScores.SpotFuturesBal)
	out += fmt.Sprintf("  pattern=%s phase=%s price_from_first=%.2f%% price_24h=%.2f%%\n",
		r.PatternType, r.PumpPhase, r.PriceChangeFromFirst, r.PriceChange24h)
	return out
}
