// Package alert dispatches fire-and-forget Telegram notifications for
// actionable candidates, grounded in the original TelegramAlerter's
// format/send split, using a plain http.Client with a fixed timeout.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/elcrypto/pumpguard/internal/apperrors"
	"github.com/elcrypto/pumpguard/internal/config"
	"github.com/elcrypto/pumpguard/internal/domain"
)

const dispatchTimeout = 10 * time.Second

// Candidate is the subset of domain.Candidate an alert message needs.
type Candidate struct {
	Symbol                string
	Confidence            domain.Confidence
	Score                 float64
	PatternType           domain.PatternType
	TotalSignals          int
	ExtremeSignals        int
	CriticalWindowSignals int
	ETAHours              *int
}

// Alerter sends Telegram messages, routing to one of four channels by
// confidence tier.
type Alerter struct {
	cfg    config.AlertConfig
	client *http.Client
	apiURL string
}

// New builds an Alerter bound to cfg. Dispatch is a no-op (returns nil
// immediately) when BotToken is blank, mirroring the original's disabled
// mode.
func New(cfg config.AlertConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: dispatchTimeout},
		apiURL: fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", cfg.BotToken),
	}
}

func (a *Alerter) enabled() bool { return a.cfg.BotToken != "" }

// channelFor resolves the confidence-tiered channel routing and returns a
// single channel: the extreme channel when the candidate has at least two
// EXTREME signals and that channel is configured, otherwise the HIGH or
// MEDIUM channel for those tiers and the catch-all channel for any other.
// Messages are not mirrored to a second channel.
func (a *Alerter) channelFor(confidence domain.Confidence, extremeSignals int) string {
	if extremeSignals >= 2 && a.cfg.ChannelExtreme != "" {
		return a.cfg.ChannelExtreme
	}
	switch confidence {
	case domain.ConfidenceHigh:
		return a.cfg.ChannelHigh
	case domain.ConfidenceMedium:
		return a.cfg.ChannelMedium
	default:
		return a.cfg.ChannelAll
	}
}

// SendCandidateAlert dispatches a formatted alert for c. Returns nil
// without dispatching when alerting is disabled or c's confidence falls
// below MinConfidenceForAlert.
func (a *Alerter) SendCandidateAlert(ctx context.Context, c Candidate) error {
	if !a.enabled() {
		return nil
	}
	if confidenceScore(c.Confidence) < a.cfg.MinConfidenceForAlert {
		return nil
	}

	chatID := a.channelFor(c.Confidence, c.ExtremeSignals)
	if chatID == "" {
		return nil
	}

	return a.send(ctx, chatID, formatCandidateMessage(c))
}

// BreakoutCandidate is the payload for a confirmed dual-market volume
// breakout: the candidate's prior confidence/score/pattern from precursor
// scoring, plus the ratios and candle timestamp the breakout check itself
// measured.
type BreakoutCandidate struct {
	Symbol       string
	Confidence   domain.Confidence
	Score        float64
	PatternType  domain.PatternType
	SpotRatio    float64
	FuturesRatio float64
	CandleTime   time.Time
}

// SendBreakoutAlert dispatches a formatted breakout alert for c, routed the
// same way as SendCandidateAlert.
func (a *Alerter) SendBreakoutAlert(ctx context.Context, c BreakoutCandidate) error {
	if !a.enabled() {
		return nil
	}
	if confidenceScore(c.Confidence) < a.cfg.MinConfidenceForAlert {
		return nil
	}

	chatID := a.channelFor(c.Confidence, 0)
	if chatID == "" {
		return nil
	}

	return a.send(ctx, chatID, formatBreakoutMessage(c))
}

// SendRawAlert dispatches a pre-formatted message through the same
// enabled/routing checks as SendCandidateAlert, for callers whose message
// carries data Candidate has no field for (e.g. the coincidence monitor's
// per-pair spike ratios and volumes).
func (a *Alerter) SendRawAlert(ctx context.Context, confidence domain.Confidence, extremeSignals int, text string) error {
	if !a.enabled() {
		return nil
	}
	if confidenceScore(confidence) < a.cfg.MinConfidenceForAlert {
		return nil
	}

	chatID := a.channelFor(confidence, extremeSignals)
	if chatID == "" {
		return nil
	}

	return a.send(ctx, chatID, text)
}

func confidenceScore(c domain.Confidence) int {
	switch c {
	case domain.ConfidenceHigh:
		return 100
	case domain.ConfidenceMedium:
		return 60
	default:
		return 0
	}
}

func formatCandidateMessage(c Candidate) string {
	confEmoji := "🟢"
	switch c.Confidence {
	case domain.ConfidenceHigh:
		confEmoji = "🔴"
	case domain.ConfidenceMedium:
		confEmoji = "🟡"
	}

	patternEmoji := "📊"
	switch c.PatternType {
	case domain.PatternExtremePrecursor:
		patternEmoji = "⚡️"
	case domain.PatternStrongPrecursor:
		patternEmoji = "💥"
	}

	eta := "n/a"
	if c.ETAHours != nil {
		eta = fmt.Sprintf("~%dh", *c.ETAHours)
	}

	return fmt.Sprintf(
		"%s <b>PUMP ALERT: %s</b>\n\n%s <b>Pattern:</b> %s\n📈 <b>Confidence:</b> %s (%.1f/100)\n\n"+
			"<b>Signals:</b>\n├ Total: %d\n├ EXTREME: %d\n└ Critical window (48-72h): %d\n\n"+
			"⏰ <b>ETA:</b> %s\n\n🎯 <b>ACTIONABLE</b>",
		confEmoji, c.Symbol, patternEmoji, c.PatternType, c.Confidence, c.Score,
		c.TotalSignals, c.ExtremeSignals, c.CriticalWindowSignals, eta,
	)
}

func formatBreakoutMessage(c BreakoutCandidate) string {
	return fmt.Sprintf(
		"🚨 <b>BREAKOUT CONFIRMED: %s</b>\n\n"+
			"📈 <b>SPOT volume ratio:</b> %.2fx\n📉 <b>FUTURES volume ratio:</b> %.2fx\n"+
			"🕐 <b>Candle:</b> %s\n\n"+
			"<b>Prior analysis:</b> %s confidence (%.1f/100), pattern %s\n\n"+
			"🎯 <b>PUMP START</b>",
		c.Symbol, c.SpotRatio, c.FuturesRatio, c.CandleTime.Format("2006-01-02 15:04 UTC"),
		c.Confidence, c.Score, c.PatternType,
	)
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

func (a *Alerter) send(ctx context.Context, chatID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	body, err := json.Marshal(sendMessageRequest{
		ChatID: chatID, Text: text, ParseMode: "HTML", DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL, bytes.NewReader(body))
	if err != nil {
		return apperrors.ExternalDispatchFailed(chatID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return apperrors.ExternalDispatchFailed(chatID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.ExternalDispatchFailed(chatID, fmt.Errorf("telegram API returned status %d", resp.StatusCode))
	}
	return nil
}
