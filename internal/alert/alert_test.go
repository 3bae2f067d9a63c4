package alert

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elcrypto/pumpguard/internal/config"
	"github.com/elcrypto/pumpguard/internal/domain"
)

func TestSendCandidateAlertDisabledWithoutBotToken(t *testing.T) {
	a := New(config.AlertConfig{MinConfidenceForAlert: 40})
	err := a.SendCandidateAlert(context.Background(), Candidate{Confidence: domain.ConfidenceHigh})
	assert.NoError(t, err, "disabled alerter must not attempt dispatch")
}

func TestSendCandidateAlertSkipsBelowMinConfidence(t *testing.T) {
	a := New(config.AlertConfig{BotToken: "t", ChannelAll: "c", MinConfidenceForAlert: 100})
	err := a.SendCandidateAlert(context.Background(), Candidate{Confidence: domain.ConfidenceLow})
	assert.NoError(t, err)
}

func TestChannelForRoutesByConfidenceAndExtremeCount(t *testing.T) {
	a := New(config.AlertConfig{
		ChannelExtreme: "extreme", ChannelHigh: "high", ChannelMedium: "medium", ChannelAll: "all",
	})

	assert.Equal(t, "extreme", a.channelFor(domain.ConfidenceHigh, 3))
	assert.Equal(t, "high", a.channelFor(domain.ConfidenceHigh, 0))
	assert.Equal(t, "medium", a.channelFor(domain.ConfidenceMedium, 0))
	assert.Equal(t, "all", a.channelFor(domain.ConfidenceLow, 0))
}

func TestFormatCandidateMessageIncludesKeyFields(t *testing.T) {
	eta := 48
	msg := formatCandidateMessage(Candidate{
		Symbol: "FOOUSDT", Confidence: domain.ConfidenceHigh, Score: 82.5,
		PatternType: domain.PatternExtremePrecursor, TotalSignals: 20, ExtremeSignals: 5,
		CriticalWindowSignals: 5, ETAHours: &eta,
	})

	assert.Contains(t, msg, "FOOUSDT")
	assert.Contains(t, msg, "82.5")
	assert.Contains(t, msg, "EXTREME_PRECURSOR")
	assert.Contains(t, msg, "~48h")
}

func TestConfidenceScoreOrdering(t *testing.T) {
	require.Greater(t, confidenceScore(domain.ConfidenceHigh), confidenceScore(domain.ConfidenceMedium))
	require.Greater(t, confidenceScore(domain.ConfidenceMedium), confidenceScore(domain.ConfidenceLow))
}
