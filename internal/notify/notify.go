// Package notify forwards trade events from the agent's event feed to
// external channels such as webhooks and Telegram.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"nse-agent/internal/config"
	"nse-agent/internal/logging"
	"nse-agent/internal/models"
	"nse-agent/internal/stream"
)

// Channel delivers a notification to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationTrade   NotificationType = "trade"
	NotificationControl NotificationType = "control"
	NotificationError   NotificationType = "error"
	NotificationInfo    NotificationType = "info"
)

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll        NotificationLevel = "all"
	LevelTradesOnly NotificationLevel = "trades_only"
	LevelErrorsOnly NotificationLevel = "errors_only"
)

// MultiNotifier fans notifications out to every configured channel.
type MultiNotifier struct {
	channels []Channel
	level    NotificationLevel
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewMultiNotifier builds the channels enabled in cfg. botToken is the
// Telegram bot secret from the credentials file.
func NewMultiNotifier(cfg config.NotifyConfig, botToken string, logger zerolog.Logger) *MultiNotifier {
	mn := &MultiNotifier{
		level:   NotificationLevel(cfg.Level),
		timeout: cfg.Timeout,
		logger:  logging.WithComponent(logger, "notify"),
	}
	if mn.level == "" {
		mn.level = LevelTradesOnly
	}
	if mn.timeout <= 0 {
		mn.timeout = 10 * time.Second
	}

	if cfg.Webhook.URL != "" {
		mn.channels = append(mn.channels, NewWebhookNotifier(cfg.Webhook.URL, mn.timeout))
	}
	if botToken != "" && cfg.Telegram.ChatID != "" {
		mn.channels = append(mn.channels, NewTelegramNotifier(botToken, cfg.Telegram.ChatID, mn.timeout))
	}
	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch Channel) {
	mn.channels = append(mn.channels, ch)
}

// Channels returns the names of the active channels.
func (mn *MultiNotifier) Channels() []string {
	names := make([]string, len(mn.channels))
	for i, ch := range mn.channels {
		names[i] = ch.Name()
	}
	return names
}

func (mn *MultiNotifier) shouldSend(t NotificationType) bool {
	switch mn.level {
	case LevelTradesOnly:
		return t == NotificationTrade || t == NotificationControl
	case LevelErrorsOnly:
		return t == NotificationError || t == NotificationControl
	default:
		return true
	}
}

// Send delivers n to every channel. A failing channel does not stop the
// others; their errors are joined.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	var errs []string
	for _, ch := range mn.channels {
		if err := ch.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Run forwards events until ctx is done or the feed closes. Delivery
// failures are logged and never block the feed for long.
func (mn *MultiNotifier) Run(ctx context.Context, events <-chan stream.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			n, ok := FromEvent(ev)
			if !ok {
				continue
			}
			sendCtx, cancel := context.WithTimeout(ctx, mn.timeout)
			if err := mn.Send(sendCtx, n); err != nil {
				mn.logger.Warn().Err(err).Str("title", n.Title).Msg("Notification delivery failed")
			}
			cancel()
		}
	}
}

// FromEvent maps a feed event onto a notification. Events nobody needs to
// hear about, like routine skips, report false.
func FromEvent(ev stream.Event) (Notification, bool) {
	switch ev.Type {
	case stream.EventKill:
		return Notification{
			Type:      NotificationControl,
			Title:     "Kill switch engaged",
			Message:   ev.Message,
			Timestamp: ev.Timestamp,
		}, true
	case stream.EventDecision:
		if ev.Decision == nil {
			return Notification{}, false
		}
		return fromDecision(ev.Decision)
	}
	return Notification{}, false
}

func fromDecision(d *models.DecisionLogEntry) (Notification, bool) {
	n := Notification{
		Message:   d.Message,
		Timestamp: d.Timestamp,
		Data: map[string]interface{}{
			"kind":   d.Kind,
			"symbol": d.Symbol,
		},
	}
	if d.SignalID != "" {
		n.Data["signal_id"] = d.SignalID
	}
	if d.PositionID != "" {
		n.Data["position_id"] = d.PositionID
	}

	switch d.Kind {
	case models.DecisionUserApproved, models.DecisionAutoExecuted:
		n.Type = NotificationTrade
		n.Title = "Position opened: " + d.Symbol
	case models.DecisionPositionClosed:
		n.Type = NotificationTrade
		n.Title = "Position closed: " + d.Symbol
	case models.DecisionExecutionFailed:
		n.Type = NotificationError
		n.Title = "Execution declined: " + d.Symbol
	case models.DecisionSignalEvaluated:
		if d.Status != models.SignalQualified {
			return Notification{}, false
		}
		n.Type = NotificationInfo
		n.Title = "Signal qualified: " + d.Symbol
	default:
		return Notification{}, false
	}
	return n, true
}
