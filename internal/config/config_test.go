package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	errs := cfg.Validate()
	assert.Empty(t, errs)
}

func TestValidateCatchesBadWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.WeightSignalCount = 0
	cfg.Engine.WeightTimeDistribution = 0
	cfg.Engine.WeightSignalStrength = 0
	cfg.Engine.WeightEscalation = 0
	cfg.Engine.WeightSpotFuturesBal = 0

	errs := cfg.Validate()
	require.NotEmpty(t, errs)
	assert.Contains(t, errs, "engine factor weights must sum to a positive value")
}

func TestValidateCatchesInvertedThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.HighConfidenceThreshold = 40
	cfg.Engine.MediumConfidenceThreshold = 50

	errs := cfg.Validate()
	assert.Contains(t, errs, "engine.high_confidence_threshold must exceed medium_confidence_threshold")
}

func TestDatabaseDSNPeerAuthWhenPasswordBlank(t *testing.T) {
	d := DatabaseConfig{Name: "pumpguard", SSLMode: "disable"}
	dsn := d.DSN()
	assert.Contains(t, dsn, "dbname=pumpguard")
	assert.NotContains(t, dsn, "password=")
}

func TestDatabaseDSNIncludesCredentialsWhenPasswordSet(t *testing.T) {
	d := DatabaseConfig{Name: "pumpguard", User: "elcrypto", Password: "secret", Host: "localhost", Port: 5432}
	dsn := d.DSN()
	assert.Contains(t, dsn, "user=elcrypto")
	assert.Contains(t, dsn, "password=secret")
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, int64(30*60), int64(cfg.Runner.Interval().Seconds()))
	assert.Equal(t, int64(60*60), int64(cfg.Watcher.Interval().Seconds()))
	assert.Equal(t, int64(6*60*60), int64(cfg.Watcher.Cooldown().Seconds()))
	assert.Equal(t, int64(60*60), int64(cfg.Coincidence.Lookback().Seconds()))
}
