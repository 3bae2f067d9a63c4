// Package postgres is the Store implementation: typed, parameterized
// access to Postgres via sqlx, using upsert-by-conflict statements,
// row-to-domain scan helpers, and batch writes inside a transaction.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/elcrypto/pumpguard/internal/apperrors"
	"github.com/elcrypto/pumpguard/internal/domain"
	"github.com/elcrypto/pumpguard/internal/store"
)

const defaultTimeout = 10 * time.Second

// Postgres implements store.Store over one *sqlx.DB connection pool per
// process. Single statements autocommit; ReplaceCandidateSignals runs its
// delete and inserts in an explicit transaction.
type Postgres struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open establishes a connection pool against dsn. Callers own the lifetime
// and must call Close when the owning scheduler shuts down.
func Open(dsn string) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, apperrors.StorageUnavailable(fmt.Errorf("connect: %w", err))
	}
	return &Postgres{db: db, timeout: defaultTimeout}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

// HealthCheck issues a trivial SELECT 1 probe; the breaker package wraps
// this to drive the Healthy -> Reconnecting -> Healthy state machine.
func (p *Postgres) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	var one int
	if err := p.db.GetContext(ctx, &one, "SELECT 1"); err != nil {
		return apperrors.StorageUnavailable(err)
	}
	return nil
}

type configRow struct {
	Value string `db:"value"`
}

func (p *Postgres) getConfigRaw(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	var row configRow
	err := p.db.GetContext(ctx, &row, `SELECT value FROM pump.detector_config WHERE key = $1`, key)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.StorageUnavailable(err)
	}
	return row.Value, true, nil
}

func (p *Postgres) GetConfigString(ctx context.Context, key, def string) (string, error) {
	v, ok, err := p.getConfigRaw(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

func (p *Postgres) GetConfigFloat(ctx context.Context, key string, def float64) (float64, error) {
	v, ok, err := p.getConfigRaw(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	var f float64
	if _, scanErr := fmt.Sscanf(v, "%g", &f); scanErr != nil {
		return def, nil
	}
	return f, nil
}

func (p *Postgres) GetConfigInt(ctx context.Context, key string, def int) (int, error) {
	v, ok, err := p.getConfigRaw(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	var i int
	if _, scanErr := fmt.Sscanf(v, "%d", &i); scanErr != nil {
		return def, nil
	}
	return i, nil
}

// InsertRawSignal inserts a signal, relying on the unique-key conflict
// rather than pre-checking.
func (p *Postgres) InsertRawSignal(ctx context.Context, s domain.RawSignal) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	const q = `
		INSERT INTO pump.raw_signals
			(trading_pair_id, symbol, market_side, signal_timestamp, detected_at,
			 volume, baseline_7d, baseline_14d, baseline_30d,
			 spike_ratio_7d, spike_ratio_14d, spike_ratio_30d,
			 signal_strength, price_at_signal, detector_version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (trading_pair_id, signal_timestamp, market_side) DO NOTHING
		RETURNING id`

	var id int64
	err := p.db.QueryRowxContext(ctx, q,
		s.TradingPairID, s.Symbol, s.MarketSide, s.SignalTimestamp, s.DetectedAt,
		s.Volume, s.Baseline7d, s.Baseline14d, s.Baseline30d,
		s.SpikeRatio7d, s.SpikeRatio14d, s.SpikeRatio30d,
		s.SignalStrength, s.PriceAtSignal, s.DetectorVersion,
	).Scan(&id)

	if err == sql.ErrNoRows {
		// ON CONFLICT DO NOTHING suppressed the insert: already present.
		return 0, true, nil
	}
	if err != nil {
		return 0, false, apperrors.StorageUnavailable(err)
	}
	return id, false, nil
}

type signalRow struct {
	ID              int64     `db:"id"`
	TradingPairID   int64     `db:"trading_pair_id"`
	Symbol          string    `db:"symbol"`
	MarketSide      string    `db:"market_side"`
	SignalTimestamp time.Time `db:"signal_timestamp"`
	DetectedAt      time.Time `db:"detected_at"`
	Volume          float64   `db:"volume"`
	Baseline7d      *float64  `db:"baseline_7d"`
	Baseline14d     *float64  `db:"baseline_14d"`
	Baseline30d     *float64  `db:"baseline_30d"`
	SpikeRatio7d    float64   `db:"spike_ratio_7d"`
	SpikeRatio14d   float64   `db:"spike_ratio_14d"`
	SpikeRatio30d   float64   `db:"spike_ratio_30d"`
	SignalStrength  string    `db:"signal_strength"`
	PriceAtSignal   float64   `db:"price_at_signal"`
	DetectorVersion string    `db:"detector_version"`
}

func (r signalRow) toDomain() domain.RawSignal {
	return domain.RawSignal{
		ID: r.ID, TradingPairID: r.TradingPairID, Symbol: r.Symbol,
		MarketSide: domain.MarketSide(r.MarketSide), SignalTimestamp: r.SignalTimestamp,
		DetectedAt: r.DetectedAt, Volume: r.Volume,
		Baseline7d: r.Baseline7d, Baseline14d: r.Baseline14d, Baseline30d: r.Baseline30d,
		SpikeRatio7d: r.SpikeRatio7d, SpikeRatio14d: r.SpikeRatio14d, SpikeRatio30d: r.SpikeRatio30d,
		SignalStrength: domain.Strength(r.SignalStrength), PriceAtSignal: r.PriceAtSignal,
		DetectorVersion: r.DetectorVersion,
	}
}

// DetectSpikes implements the rolling-baseline spike query, grounded in
// the original detector's window-function CTE: 42/84/180 trailing 4h
// candles for the 7d/14d/30d volume baselines, spike ratio = volume /
// baseline, filtered to the universe (target exchange, active, non-meme,
// configured market-cap floor) and deduplicated against pump.raw_signals
// by the caller's InsertRawSignal.
func (p *Postgres) DetectSpikes(ctx context.Context, marketSide domain.MarketSide, minSpikeRatio float64, from, to time.Time, universe store.UniverseParams) ([]store.SpikeCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	const q = `
		WITH recent_candles AS (
			SELECT
				c.trading_pair_id,
				tp.symbol,
				to_timestamp(c.open_time_ms / 1000) AS candle_time,
				c.close,
				c.quote_volume AS volume,
				CASE WHEN COUNT(*) OVER (
					PARTITION BY c.trading_pair_id ORDER BY c.open_time_ms
					ROWS BETWEEN 42 PRECEDING AND 1 PRECEDING
				) = 42 THEN AVG(c.quote_volume) OVER (
					PARTITION BY c.trading_pair_id ORDER BY c.open_time_ms
					ROWS BETWEEN 42 PRECEDING AND 1 PRECEDING
				) END AS baseline_7d,
				AVG(c.quote_volume) OVER (
					PARTITION BY c.trading_pair_id ORDER BY c.open_time_ms
					ROWS BETWEEN 84 PRECEDING AND 1 PRECEDING
				) AS baseline_14d,
				AVG(c.quote_volume) OVER (
					PARTITION BY c.trading_pair_id ORDER BY c.open_time_ms
					ROWS BETWEEN 180 PRECEDING AND 1 PRECEDING
				) AS baseline_30d
			FROM public.candles c
			JOIN public.trading_pairs tp ON tp.id = c.trading_pair_id
			JOIN public.tokens tok ON tok.id = tp.token_id
			WHERE tp.contract_type = $1
			  AND tp.is_active = true
			  AND c.interval_hours = 4
			  AND c.is_closed = true
			  AND NOT tok.is_meme_coin
			  AND ($6 = 0 OR tp.exchange_id = $6)
			  AND EXISTS (SELECT 1 FROM public.market_cap mc WHERE mc.token_id = tok.id AND mc.market_cap >= $7)
			  AND to_timestamp(c.open_time_ms / 1000) >= $2 - INTERVAL '30 days'
			  AND to_timestamp(c.open_time_ms / 1000) < $3
		),
		spikes AS (
			SELECT *,
				CASE WHEN baseline_7d > 0 THEN volume / baseline_7d ELSE 0 END AS spike_ratio_7d,
				CASE WHEN baseline_14d > 0 THEN volume / baseline_14d ELSE 0 END AS spike_ratio_14d,
				CASE WHEN baseline_30d > 0 THEN volume / baseline_30d ELSE 0 END AS spike_ratio_30d
			FROM recent_candles
			WHERE baseline_7d IS NOT NULL AND candle_time >= $4 AND candle_time < $3
		)
		SELECT trading_pair_id, symbol, candle_time, close AS close_price, volume,
		       baseline_7d, baseline_14d, baseline_30d,
		       spike_ratio_7d, spike_ratio_14d, spike_ratio_30d
		FROM spikes
		WHERE spike_ratio_7d >= $5
		ORDER BY spike_ratio_7d DESC`

	type row struct {
		TradingPairID int64     `db:"trading_pair_id"`
		Symbol        string    `db:"symbol"`
		CandleTime    time.Time `db:"candle_time"`
		ClosePrice    float64   `db:"close_price"`
		Volume        float64   `db:"volume"`
		Baseline7d    float64   `db:"baseline_7d"`
		Baseline14d   float64   `db:"baseline_14d"`
		Baseline30d   float64   `db:"baseline_30d"`
		SpikeRatio7d  float64   `db:"spike_ratio_7d"`
		SpikeRatio14d float64   `db:"spike_ratio_14d"`
		SpikeRatio30d float64   `db:"spike_ratio_30d"`
	}

	var rows []row
	if err := p.db.SelectContext(ctx, &rows, q, marketSide, from, to, from, minSpikeRatio,
		universe.ExchangeID, universe.MinMarketCapUSD); err != nil {
		return nil, apperrors.StorageUnavailable(err)
	}

	out := make([]store.SpikeCandidate, len(rows))
	for i, r := range rows {
		out[i] = store.SpikeCandidate{
			TradingPairID: r.TradingPairID, Symbol: r.Symbol, CandleTime: r.CandleTime,
			ClosePrice: r.ClosePrice, Volume: r.Volume,
			Baseline7d: r.Baseline7d, Baseline14d: r.Baseline14d, Baseline30d: r.Baseline30d,
			SpikeRatio7d: r.SpikeRatio7d, SpikeRatio14d: r.SpikeRatio14d, SpikeRatio30d: r.SpikeRatio30d,
		}
	}
	return out, nil
}

func (p *Postgres) ListSignalsForSymbol(ctx context.Context, symbol string, from, to time.Time) ([]domain.RawSignal, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	const q = `
		SELECT id, trading_pair_id, symbol, market_side, signal_timestamp, detected_at,
		       volume, baseline_7d, baseline_14d, baseline_30d,
		       spike_ratio_7d, spike_ratio_14d, spike_ratio_30d,
		       signal_strength, price_at_signal, detector_version
		FROM pump.raw_signals
		WHERE symbol = $1 AND signal_timestamp >= $2 AND signal_timestamp < $3
		ORDER BY signal_timestamp DESC`

	var rows []signalRow
	if err := p.db.SelectContext(ctx, &rows, q, symbol, from, to); err != nil {
		return nil, apperrors.StorageUnavailable(err)
	}

	out := make([]domain.RawSignal, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// UpsertCandidate implements "update if ACTIVE exists, else insert".
func (p *Postgres) UpsertCandidate(ctx context.Context, c domain.Candidate) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	now := time.Now().UTC()
	const q = `
		INSERT INTO pump.pump_candidates
			(symbol, trading_pair_id, first_detected_at, last_updated_at,
			 confidence, score, pattern_type, total_signals, extreme_signals,
			 critical_window_signals, eta_hours, is_actionable, pump_phase,
			 price_change_from_first, price_change_24h, hours_since_last_pump,
			 status, actual_price, price_updated_at)
		VALUES ($1,$2,$3,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,'ACTIVE',$16,$17)
		ON CONFLICT (symbol) WHERE status = 'ACTIVE' DO UPDATE SET
			last_updated_at = $3, confidence = $4, score = $5, pattern_type = $6,
			total_signals = $7, extreme_signals = $8, critical_window_signals = $9,
			eta_hours = $10, is_actionable = $11, pump_phase = $12,
			price_change_from_first = $13, price_change_24h = $14,
			hours_since_last_pump = $15, actual_price = $16, price_updated_at = $17
		RETURNING id`

	var id int64
	err := p.db.QueryRowxContext(ctx, q,
		c.Symbol, c.TradingPairID, now,
		c.Confidence, c.Score, c.PatternType, c.TotalSignals, c.ExtremeSignals,
		c.CriticalWindowSignals, c.ETAHours, c.IsActionable, c.PumpPhase,
		c.PriceChangeFromFirst, c.PriceChange24h, c.HoursSinceLastPump,
		c.ActualPrice, c.PriceUpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, apperrors.StorageUnavailable(err)
	}
	return id, nil
}

func (p *Postgres) WriteSnapshot(ctx context.Context, candidateID int64, detail domain.AnalysisDetail) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	blob, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshal analysis detail: %w", err)
	}
	const q = `INSERT INTO pump.analysis_snapshots (candidate_id, detail, created_at) VALUES ($1,$2,$3)`
	if _, err := p.db.ExecContext(ctx, q, candidateID, blob, time.Now().UTC()); err != nil {
		return apperrors.StorageUnavailable(err)
	}
	return nil
}

// ReplaceCandidateSignals deletes the existing link set and inserts the new
// one inside a single transaction so readers never observe an empty set
// for an ACTIVE candidate.
func (p *Postgres) ReplaceCandidateSignals(ctx context.Context, candidateID int64, links []domain.CandidateSignal) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.StorageUnavailable(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pump.candidate_signals WHERE candidate_id = $1`, candidateID); err != nil {
		return apperrors.StorageUnavailable(err)
	}

	if len(links) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO pump.candidate_signals (candidate_id, signal_id, relevance_score)
			VALUES ($1,$2,$3)
			ON CONFLICT (candidate_id, signal_id) DO UPDATE SET relevance_score = EXCLUDED.relevance_score`)
		if err != nil {
			return apperrors.StorageUnavailable(err)
		}
		defer stmt.Close()

		for _, l := range links {
			if _, err := stmt.ExecContext(ctx, candidateID, l.SignalID, l.RelevanceScore); err != nil {
				return apperrors.StorageUnavailable(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.StorageUnavailable(err)
	}
	return nil
}

func (p *Postgres) ExpireStaleCandidates(ctx context.Context, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	const q = `
		UPDATE pump.pump_candidates
		SET status = 'EXPIRED'
		WHERE status = 'ACTIVE' AND first_detected_at < $1`
	res, err := p.db.ExecContext(ctx, q, now.Add(-7*24*time.Hour))
	if err != nil {
		return 0, apperrors.StorageUnavailable(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type candidateRow struct {
	ID                    int64      `db:"id"`
	Symbol                string     `db:"symbol"`
	TradingPairID         int64      `db:"trading_pair_id"`
	FirstDetectedAt       time.Time  `db:"first_detected_at"`
	LastUpdatedAt         time.Time  `db:"last_updated_at"`
	Confidence            string     `db:"confidence"`
	Score                 float64    `db:"score"`
	PatternType           string     `db:"pattern_type"`
	TotalSignals          int        `db:"total_signals"`
	ExtremeSignals        int        `db:"extreme_signals"`
	CriticalWindowSignals int        `db:"critical_window_signals"`
	ETAHours              *int       `db:"eta_hours"`
	IsActionable          bool       `db:"is_actionable"`
	PumpPhase             string     `db:"pump_phase"`
	PriceChangeFromFirst  float64    `db:"price_change_from_first"`
	PriceChange24h        float64    `db:"price_change_24h"`
	HoursSinceLastPump    *float64   `db:"hours_since_last_pump"`
	Status                string     `db:"status"`
	ActualPrice           float64    `db:"actual_price"`
	PriceUpdatedAt        *time.Time `db:"price_updated_at"`
}

func (r candidateRow) toDomain() domain.Candidate {
	return domain.Candidate{
		ID: r.ID, Symbol: r.Symbol, TradingPairID: r.TradingPairID,
		FirstDetectedAt: r.FirstDetectedAt, LastUpdatedAt: r.LastUpdatedAt,
		Confidence: domain.Confidence(r.Confidence), Score: r.Score,
		PatternType: domain.PatternType(r.PatternType), TotalSignals: r.TotalSignals,
		ExtremeSignals: r.ExtremeSignals, CriticalWindowSignals: r.CriticalWindowSignals,
		ETAHours: r.ETAHours, IsActionable: r.IsActionable,
		PumpPhase: domain.PumpPhase(r.PumpPhase), PriceChangeFromFirst: r.PriceChangeFromFirst,
		PriceChange24h: r.PriceChange24h, HoursSinceLastPump: r.HoursSinceLastPump,
		Status: domain.CandidateStatus(r.Status), ActualPrice: r.ActualPrice,
		PriceUpdatedAt: r.PriceUpdatedAt,
	}
}

func (p *Postgres) ListActiveCandidates(ctx context.Context, filter store.ActiveCandidateFilter) ([]domain.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	q := `SELECT id, symbol, trading_pair_id, first_detected_at, last_updated_at,
	             confidence, score, pattern_type, total_signals, extreme_signals,
	             critical_window_signals, eta_hours, is_actionable, pump_phase,
	             price_change_from_first, price_change_24h, hours_since_last_pump,
	             status, actual_price, price_updated_at
	      FROM pump.pump_candidates
	      WHERE status = 'ACTIVE'`
	args := []interface{}{}
	if filter.Confidence != "" {
		q += " AND confidence = $1"
		args = append(args, filter.Confidence)
	}
	q += " ORDER BY score DESC"

	var rows []candidateRow
	if err := p.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, apperrors.StorageUnavailable(err)
	}
	out := make([]domain.Candidate, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// SelectAnalysisSymbols selects pairs satisfying the
// universe filter (target exchange, market-cap floor) with >= minSignals
// raw signals in the last 7 days, ordered by (extreme-count, total-count)
// descending.
func (p *Postgres) SelectAnalysisSymbols(ctx context.Context, minSignals int, universe store.UniverseParams) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	const q = `
		SELECT rs.symbol
		FROM pump.raw_signals rs
		JOIN public.trading_pairs tp ON tp.id = rs.trading_pair_id
		JOIN public.tokens tok ON tok.id = tp.token_id
		WHERE rs.signal_timestamp >= $1
		  AND tp.is_active = true
		  AND NOT tok.is_meme_coin
		  AND ($4 = 0 OR tp.exchange_id = $4)
		  AND EXISTS (SELECT 1 FROM public.market_cap mc WHERE mc.token_id = tok.id AND mc.market_cap >= $2)
		GROUP BY rs.symbol
		HAVING COUNT(*) >= $3
		ORDER BY COUNT(*) FILTER (WHERE rs.signal_strength = 'EXTREME') DESC, COUNT(*) DESC`

	var symbols []string
	cutoff := time.Now().UTC().Add(-7 * 24 * time.Hour)
	if err := p.db.SelectContext(ctx, &symbols, q, cutoff, universe.MinMarketCapUSD, minSignals, universe.ExchangeID); err != nil {
		return nil, apperrors.StorageUnavailable(err)
	}
	return symbols, nil
}

type knownPumpRow struct {
	ID                int64     `db:"id"`
	TradingPairID     int64     `db:"trading_pair_id"`
	Symbol            string    `db:"symbol"`
	PumpStart         time.Time `db:"pump_start"`
	StartPrice        float64   `db:"start_price"`
	HighPrice         float64   `db:"high_price"`
	PriceAfter24h     float64   `db:"price_after_24h"`
	MaxGain24h        float64   `db:"max_gain_24h"`
	PumpDurationHours float64   `db:"pump_duration_hours"`
}

func (r knownPumpRow) toDomain() domain.KnownPumpEvent {
	return domain.KnownPumpEvent{
		ID: r.ID, TradingPairID: r.TradingPairID, Symbol: r.Symbol, PumpStart: r.PumpStart,
		StartPrice: r.StartPrice, HighPrice: r.HighPrice, PriceAfter24h: r.PriceAfter24h,
		MaxGain24h: r.MaxGain24h, PumpDurationHours: r.PumpDurationHours,
	}
}

func (p *Postgres) ListKnownPumps(ctx context.Context) ([]domain.KnownPumpEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	const q = `
		SELECT id, trading_pair_id, symbol, pump_start, start_price, high_price,
		       price_after_24h, max_gain_24h, pump_duration_hours
		FROM pump.known_pump_events
		ORDER BY pump_start`

	var rows []knownPumpRow
	if err := p.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, apperrors.StorageUnavailable(err)
	}
	out := make([]domain.KnownPumpEvent, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (p *Postgres) WriteBacktestResult(ctx context.Context, row domain.BacktestResult) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	const q = `
		INSERT INTO pump.backtest_results
			(known_pump_id, hours_before_pump, analysis_time, was_detected,
			 confidence, score, pattern_type, is_actionable, total_signals,
			 extreme_signals, critical_window_signals, classification, config_snapshot)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (known_pump_id, hours_before_pump) DO UPDATE SET
			analysis_time = $3, was_detected = $4, confidence = $5, score = $6,
			pattern_type = $7, is_actionable = $8, total_signals = $9,
			extreme_signals = $10, critical_window_signals = $11,
			classification = $12, config_snapshot = $13`

	_, err := p.db.ExecContext(ctx, q,
		row.KnownPumpID, row.HoursBeforePump, row.AnalysisTime, row.WasDetected,
		row.Confidence, row.Score, row.PatternType, row.IsActionable, row.TotalSignals,
		row.ExtremeSignals, row.CriticalWindowSignals, row.Classification, row.ConfigSnapshot,
	)
	if err != nil {
		return apperrors.StorageUnavailable(err)
	}
	return nil
}

func (p *Postgres) ClearBacktestResults(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if _, err := p.db.ExecContext(ctx, `DELETE FROM pump.backtest_results`); err != nil {
		return apperrors.StorageUnavailable(err)
	}
	return nil
}

func (p *Postgres) LastKnownPumpBefore(ctx context.Context, symbol string, t time.Time) (*domain.LastKnownPump, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	const q = `
		SELECT pump_start, start_price
		FROM pump.known_pump_events
		WHERE symbol = $1 AND pump_start < $2
		ORDER BY pump_start DESC
		LIMIT 1`

	var row struct {
		PumpStart  time.Time `db:"pump_start"`
		StartPrice float64   `db:"start_price"`
	}
	err := p.db.GetContext(ctx, &row, q, symbol, t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.StorageUnavailable(err)
	}
	return &domain.LastKnownPump{PumpStart: row.PumpStart, StartPrice: row.StartPrice}, nil
}

type candleRow struct {
	TradingPairID int64   `db:"trading_pair_id"`
	OpenTimeMS    int64   `db:"open_time_ms"`
	Open          float64 `db:"open"`
	High          float64 `db:"high"`
	Low           float64 `db:"low"`
	Close         float64 `db:"close"`
	QuoteVolume   float64 `db:"quote_volume"`
	IsClosed      bool    `db:"is_closed"`
}

func (r candleRow) toDomain() domain.Candle {
	return domain.Candle{
		TradingPairID: r.TradingPairID, OpenTimeMS: r.OpenTimeMS, Open: r.Open,
		High: r.High, Low: r.Low, Close: r.Close, QuoteVolume: r.QuoteVolume, IsClosed: r.IsClosed,
	}
}

// GetLatestCandles fetches the n latest closed candles for symbol's pair on
// the given market side and interval, newest first.
func (p *Postgres) GetLatestCandles(ctx context.Context, symbol string, marketSide domain.MarketSide, intervalHours int, n int) ([]domain.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	const q = `
		SELECT c.trading_pair_id, c.open_time_ms, c.open, c.high, c.low, c.close,
		       c.quote_volume, c.is_closed
		FROM public.candles c
		JOIN public.trading_pairs tp ON tp.id = c.trading_pair_id
		WHERE tp.symbol = $1 AND tp.contract_type = $2
		  AND c.interval_hours = $3 AND c.is_closed = true
		ORDER BY c.open_time_ms DESC
		LIMIT $4`

	var rows []candleRow
	if err := p.db.SelectContext(ctx, &rows, q, symbol, marketSide, intervalHours, n); err != nil {
		return nil, apperrors.StorageUnavailable(err)
	}
	out := make([]domain.Candle, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (p *Postgres) FindDoubleExtremeSignals(ctx context.Context, lookback time.Duration) ([]store.DoubleExtremeSignal, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	const q = `
		SELECT
			s_spot.symbol,
			s_spot.signal_timestamp,
			s_spot.spike_ratio_7d AS spot_spike,
			s_futures.spike_ratio_7d AS futures_spike,
			s_spot.volume AS spot_volume,
			s_futures.volume AS futures_volume
		FROM pump.raw_signals s_spot
		JOIN pump.raw_signals s_futures
			ON s_spot.symbol = s_futures.symbol
			AND s_spot.signal_timestamp = s_futures.signal_timestamp
		WHERE s_spot.market_side = 'SPOT'
		  AND s_futures.market_side = 'FUTURES'
		  AND s_spot.signal_strength = 'EXTREME'
		  AND s_futures.signal_strength = 'EXTREME'
		  AND (s_spot.detected_at >= NOW() - $1::interval
		       OR s_futures.detected_at >= NOW() - $1::interval)`

	type row struct {
		Symbol        string    `db:"symbol"`
		SignalTime    time.Time `db:"signal_timestamp"`
		SpotSpike     float64   `db:"spot_spike"`
		FuturesSpike  float64   `db:"futures_spike"`
		SpotVolume    float64   `db:"spot_volume"`
		FuturesVolume float64   `db:"futures_volume"`
	}

	var rows []row
	interval := fmt.Sprintf("%d seconds", int64(lookback.Seconds()))
	if err := p.db.SelectContext(ctx, &rows, q, interval); err != nil {
		return nil, apperrors.StorageUnavailable(err)
	}

	out := make([]store.DoubleExtremeSignal, len(rows))
	for i, r := range rows {
		out[i] = store.DoubleExtremeSignal{
			Symbol: r.Symbol, SignalTime: r.SignalTime, SpotSpike: r.SpotSpike,
			FuturesSpike: r.FuturesSpike, SpotVolume: r.SpotVolume, FuturesVolume: r.FuturesVolume,
		}
	}
	return out, nil
}

var _ store.Store = (*Postgres)(nil)
