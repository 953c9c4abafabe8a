package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Kind distinguishes alert payloads.
type Kind string

const (
	KindPriceMove   Kind = "price_move"
	KindTransaction Kind = "transaction"
)

// Notification carries the alert context.
type Notification struct {
	Kind Kind
	At   time.Time

	Symbol        string
	PriceUSD      decimal.Decimal
	Change24hPct  decimal.Decimal
	ThresholdPct  decimal.Decimal
	Direction     string
	UsingFallback bool

	TxHash        string
	TxStatus      string
	Owner         string
	Confirmations uint64
	TxError       string

	Channels      []string
	AdditionalMsg string
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier builds a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered text.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	n.logger.Info().Str("kind", string(note.Kind)).
		Str("symbol", note.Symbol).
		Str("tx_hash", note.TxHash).
		Msg("alert sent")
	return nil
}

// LogNotifier writes notifications to the log only.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier builds a notifier for deployments without Telegram.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Warn().Str("kind", string(note.Kind)).Msg(strings.ReplaceAll(strings.TrimSpace(renderMessage(note)), "\n", " | "))
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	at := note.At
	if at.IsZero() {
		at = time.Now()
	}

	switch note.Kind {
	case KindTransaction:
		builder.WriteString("[FLD Transaction]\n")
		builder.WriteString(fmt.Sprintf("Hash: %s\n", note.TxHash))
		builder.WriteString(fmt.Sprintf("Status: %s\n", note.TxStatus))
		builder.WriteString(fmt.Sprintf("Confirmations: %d\n", note.Confirmations))
		if note.Owner != "" {
			builder.WriteString(fmt.Sprintf("Owner: %s\n", note.Owner))
		}
		if note.TxError != "" {
			builder.WriteString(fmt.Sprintf("Error: %s\n", note.TxError))
		}
	default:
		builder.WriteString("[FLD Price Alert]\n")
		builder.WriteString(fmt.Sprintf("Symbol: %s\n", note.Symbol))
		builder.WriteString(fmt.Sprintf("Price: %s USD\n", note.PriceUSD.StringFixed(4)))
		builder.WriteString(fmt.Sprintf("24h change: %s%% (threshold %s%%)\n", note.Change24hPct.StringFixed(2), note.ThresholdPct.StringFixed(2)))
		builder.WriteString(fmt.Sprintf("Direction: %s\n", note.Direction))
		if note.UsingFallback {
			builder.WriteString("Source: fallback table\n")
		}
	}
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", at.UTC().Format(time.RFC3339)))
	if len(note.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(note.Channels, ",")))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
