// Package backtest implements the time-travel backtester: a batch
// driver, not a loop, that replays the scoring engine against a labeled
// corpus of known pumps at a fixed set of offsets before each pump start,
// classifies each replay as a true positive or false negative, and
// aggregates precision/recall/F1/accuracy metrics into a JSON artifact.
// Grounded on the original backtest_engine.py's time-travel/classify/
// aggregate/report structure, writing its artifact as a dated output
// directory holding a JSONL detail file and a run-stamped summary JSON.
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elcrypto/pumpguard/internal/config"
	"github.com/elcrypto/pumpguard/internal/domain"
	"github.com/elcrypto/pumpguard/internal/engine"
	"github.com/elcrypto/pumpguard/internal/store"
)

// offsetsHours are the time-travel windows tested before every known
// pump's start, matching the original engine's 72/60/48/36/24h ladder.
var offsetsHours = []int{72, 60, 48, 36, 24}

// Runner drives one full backtest pass.
type Runner struct {
	store store.Store
	eng   *engine.Engine
	cfg   config.EngineConfig
	log   zerolog.Logger
}

// New builds a Runner.
func New(st store.Store, eng *engine.Engine, cfg config.EngineConfig, log zerolog.Logger) *Runner {
	return &Runner{store: st, eng: eng, cfg: cfg, log: log.With().Str("component", "backtest").Logger()}
}

// WindowResult is one (known_pump, hours_before) replay outcome, the unit
// written to the JSONL detail file.
type WindowResult struct {
	Symbol          string              `json:"symbol"`
	KnownPumpID     int64               `json:"known_pump_id"`
	HoursBeforePump int                 `json:"hours_before_pump"`
	AnalysisTime    time.Time           `json:"analysis_time"`
	WasDetected     bool                `json:"was_detected"`
	Classification  domain.Classification `json:"classification"`
	Confidence      domain.Confidence   `json:"confidence,omitempty"`
	Score           float64             `json:"score,omitempty"`
}

// Metrics is the aggregated performance report, tagged with a run id. The
// artifact path is keyed by date only, so a later run on the same day
// replaces the earlier run's files.
type Metrics struct {
	RunID     string             `json:"run_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Config    config.EngineConfig `json:"config_snapshot"`
	Overall   OverallMetrics     `json:"overall"`
	ByOffset  []OffsetMetrics    `json:"by_time_window"`
	ByConfidence []ConfidenceMetrics `json:"by_confidence"`
}

// OverallMetrics holds the corpus-wide classification counts and derived
// precision/recall/F1/accuracy.
type OverallMetrics struct {
	TP        int     `json:"tp"`
	FP        int     `json:"fp"`
	FN        int     `json:"fn"`
	TN        int     `json:"tn"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
	Accuracy  float64 `json:"accuracy"`
}

// OffsetMetrics is the per-time-window detection rate.
type OffsetMetrics struct {
	HoursBefore   int     `json:"hours_before"`
	Total         int     `json:"total"`
	Detected      int     `json:"detected"`
	Actionable    int     `json:"actionable"`
	DetectionRate float64 `json:"detection_rate"`
}

// ConfidenceMetrics is the per-confidence-tier detection count and average
// score, computed only over detected (was_detected=true) rows.
type ConfidenceMetrics struct {
	Confidence domain.Confidence `json:"confidence"`
	Count      int               `json:"count"`
	AvgScore   float64           `json:"avg_score"`
}

// Run replays the engine against every known pump event at every offset,
// writes a BacktestResult row per replay, and returns the aggregated
// Metrics. clearPrior mirrors the original script's optional DELETE of
// prior rows before a fresh run.
func (r *Runner) Run(ctx context.Context, clearPrior bool) (*Metrics, []WindowResult, error) {
	if clearPrior {
		if err := r.store.ClearBacktestResults(ctx); err != nil {
			return nil, nil, err
		}
	}

	pumps, err := r.store.ListKnownPumps(ctx)
	if err != nil {
		return nil, nil, err
	}
	r.log.Info().Int("pump_count", len(pumps)).Msg("backtest starting")

	configSnapshot, err := json.Marshal(r.cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal config snapshot: %w", err)
	}

	var windows []WindowResult
	for _, pump := range pumps {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		for _, hoursBefore := range offsetsHours {
			w, err := r.replayOne(ctx, pump, hoursBefore, string(configSnapshot))
			if err != nil {
				r.log.Error().Err(err).Str("symbol", pump.Symbol).Int("hours_before", hoursBefore).
					Msg("time-travel replay failed, skipping")
				continue
			}
			windows = append(windows, w)
		}
	}

	metrics := aggregate(windows, r.cfg)
	r.log.Info().Int("tp", metrics.Overall.TP).Int("fn", metrics.Overall.FN).
		Float64("recall", metrics.Overall.Recall).Msg("backtest complete")
	return metrics, windows, nil
}

func (r *Runner) replayOne(ctx context.Context, pump domain.KnownPumpEvent, hoursBefore int, configSnapshot string) (WindowResult, error) {
	analysisTime := pump.PumpStart.Add(-time.Duration(hoursBefore) * time.Hour)

	from := analysisTime.Add(-7 * 24 * time.Hour)
	signals, err := r.store.ListSignalsForSymbol(ctx, pump.Symbol, from, analysisTime)
	if err != nil {
		return WindowResult{}, err
	}
	lastPump, err := r.store.LastKnownPumpBefore(ctx, pump.Symbol, analysisTime)
	if err != nil {
		return WindowResult{}, err
	}

	result, err := r.eng.Analyze(ctx, signals, lastPump, analysisTime)
	if err != nil {
		return WindowResult{}, err
	}

	row := domain.BacktestResult{
		KnownPumpID: pump.ID, HoursBeforePump: hoursBefore, AnalysisTime: analysisTime,
		WasDetected: result != nil, ConfigSnapshot: configSnapshot,
	}
	w := WindowResult{
		Symbol: pump.Symbol, KnownPumpID: pump.ID, HoursBeforePump: hoursBefore,
		AnalysisTime: analysisTime, WasDetected: result != nil,
	}

	if result != nil {
		row.Confidence, row.Score, row.PatternType = result.Confidence, result.Score, result.PatternType
		row.IsActionable = result.IsActionable
		row.TotalSignals, row.ExtremeSignals, row.CriticalWindowSignals =
			result.TotalSignals, result.ExtremeSignals, result.CriticalWindowSignals
		w.Confidence, w.Score = result.Confidence, result.Score
	}
	row.Classification = classify(result != nil)
	w.Classification = row.Classification

	if err := r.store.WriteBacktestResult(ctx, row); err != nil {
		return WindowResult{}, err
	}
	return w, nil
}

// classify labels a replay TP when the engine detected a known pump, FN
// otherwise. Every corpus event is a known positive, so FP/TN never
// arise from this driver; they stay reserved for a future non-pump probe.
func classify(detected bool) domain.Classification {
	if detected {
		return domain.ClassificationTP
	}
	return domain.ClassificationFN
}

func aggregate(windows []WindowResult, cfg config.EngineConfig) *Metrics {
	m := &Metrics{RunID: uuid.NewString(), Config: cfg}

	var tp, fp, fn, tn int
	byOffset := map[int]*OffsetMetrics{}
	byConfidence := map[domain.Confidence]*ConfidenceMetrics{}

	for _, w := range windows {
		switch w.Classification {
		case domain.ClassificationTP:
			tp++
		case domain.ClassificationFP:
			fp++
		case domain.ClassificationFN:
			fn++
		case domain.ClassificationTN:
			tn++
		}

		om, ok := byOffset[w.HoursBeforePump]
		if !ok {
			om = &OffsetMetrics{HoursBefore: w.HoursBeforePump}
			byOffset[w.HoursBeforePump] = om
		}
		om.Total++
		if w.WasDetected {
			om.Detected++
		}

		if w.WasDetected {
			cm, ok := byConfidence[w.Confidence]
			if !ok {
				cm = &ConfidenceMetrics{Confidence: w.Confidence}
				byConfidence[w.Confidence] = cm
			}
			cm.Count++
			cm.AvgScore += w.Score
		}
	}

	m.Overall = OverallMetrics{TP: tp, FP: fp, FN: fn, TN: tn}
	if tp+fp > 0 {
		m.Overall.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		m.Overall.Recall = float64(tp) / float64(tp+fn)
	}
	if m.Overall.Precision+m.Overall.Recall > 0 {
		m.Overall.F1Score = 2 * m.Overall.Precision * m.Overall.Recall / (m.Overall.Precision + m.Overall.Recall)
	}
	if total := tp + fp + fn + tn; total > 0 {
		m.Overall.Accuracy = float64(tp+tn) / float64(total)
	}

	for _, hoursBefore := range offsetsHours {
		om, ok := byOffset[hoursBefore]
		if !ok {
			continue
		}
		if om.Total > 0 {
			om.DetectionRate = float64(om.Detected) / float64(om.Total)
		}
		m.ByOffset = append(m.ByOffset, *om)
	}
	for _, cm := range byConfidence {
		if cm.Count > 0 {
			cm.AvgScore /= float64(cm.Count)
		}
		m.ByConfidence = append(m.ByConfidence, *cm)
	}

	return m
}

// Writer persists the backtest artifact to a dated output directory: a
// JSONL detail file and a summary JSON.
type Writer struct {
	outputDir string
}

// NewWriter builds a Writer rooted at outputDir/<today's date>.
func NewWriter(outputDir string) *Writer {
	return &Writer{outputDir: filepath.Join(outputDir, time.Now().UTC().Format("2006-01-02"))}
}

// Write emits windows.jsonl (one WindowResult per line) and metrics.json
// (the aggregated Metrics) under the writer's output directory.
func (w *Writer) Write(metrics *Metrics, windows []WindowResult) error {
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return fmt.Errorf("create backtest output dir: %w", err)
	}

	detailPath := filepath.Join(w.outputDir, "windows.jsonl")
	f, err := os.Create(detailPath)
	if err != nil {
		return fmt.Errorf("create windows detail file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, w := range windows {
		if err := enc.Encode(w); err != nil {
			return fmt.Errorf("encode window result: %w", err)
		}
	}

	metricsPath := filepath.Join(w.outputDir, "metrics.json")
	metricsFile, err := os.Create(metricsPath)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	defer metricsFile.Close()

	metricsEnc := json.NewEncoder(metricsFile)
	metricsEnc.SetIndent("", "  ")
	return metricsEnc.Encode(metrics)
}
