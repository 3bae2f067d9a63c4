package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elcrypto/pumpguard/internal/apperrors"
	"github.com/elcrypto/pumpguard/internal/domain"
)

func newMocked(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Postgres{db: sqlx.NewDb(db, "postgres"), timeout: 2 * time.Second}, mock
}

func TestHealthCheckOK(t *testing.T) {
	p, mock := newMocked(t)
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	err := p.HealthCheck(context.Background())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthCheckWrapsStorageUnavailable(t *testing.T) {
	p, mock := newMocked(t)
	mock.ExpectQuery("SELECT 1").WillReturnError(assert.AnError)

	err := p.HealthCheck(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindStorageUnavailable))
}

func TestInsertRawSignalReturnsID(t *testing.T) {
	p, mock := newMocked(t)
	mock.ExpectQuery("INSERT INTO pump.raw_signals").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	id, exists, err := p.InsertRawSignal(context.Background(), domain.RawSignal{
		TradingPairID: 1, Symbol: "FOOUSDT", MarketSide: domain.Spot,
		SignalTimestamp: time.Now(), DetectedAt: time.Now(),
		Volume: 100, SpikeRatio7d: 2.0, SignalStrength: domain.StrengthStrong,
		PriceAtSignal: 1.23, DetectorVersion: "2.0",
	})
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, int64(42), id)
}

func TestInsertRawSignalAlreadyExists(t *testing.T) {
	p, mock := newMocked(t)
	mock.ExpectQuery("INSERT INTO pump.raw_signals").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, exists, err := p.InsertRawSignal(context.Background(), domain.RawSignal{
		TradingPairID: 1, Symbol: "FOOUSDT", MarketSide: domain.Spot,
		SignalTimestamp: time.Now(), DetectedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUpsertCandidateReturnsID(t *testing.T) {
	p, mock := newMocked(t)
	mock.ExpectQuery("INSERT INTO pump.pump_candidates").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	id, err := p.UpsertCandidate(context.Background(), domain.Candidate{
		Symbol: "FOOUSDT", TradingPairID: 1, Confidence: domain.ConfidenceHigh,
		Score: 80, PatternType: domain.PatternExtremePrecursor,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestExpireStaleCandidatesReturnsCount(t *testing.T) {
	p, mock := newMocked(t)
	mock.ExpectExec("UPDATE pump.pump_candidates").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := p.ExpireStaleCandidates(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestLastKnownPumpBeforeNoRows(t *testing.T) {
	p, mock := newMocked(t)
	mock.ExpectQuery("SELECT pump_start, start_price").
		WillReturnRows(sqlmock.NewRows([]string{"pump_start", "start_price"}))

	got, err := p.LastKnownPumpBefore(context.Background(), "FOOUSDT", time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClearBacktestResults(t *testing.T) {
	p, mock := newMocked(t)
	mock.ExpectExec("DELETE FROM pump.backtest_results").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := p.ClearBacktestResults(context.Background())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindDoubleExtremeSignalsReturnsJoinedRows(t *testing.T) {
	p, mock := newMocked(t)
	cols := []string{"symbol", "signal_timestamp", "spot_spike", "futures_spike", "spot_volume", "futures_volume"}
	mock.ExpectQuery("FROM pump.raw_signals s_spot").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("FOOUSDT", time.Now(), 6.1, 5.8, 1_000_000.0, 900_000.0))

	got, err := p.FindDoubleExtremeSignals(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "FOOUSDT", got[0].Symbol)
	assert.Equal(t, 6.1, got[0].SpotSpike)
}
