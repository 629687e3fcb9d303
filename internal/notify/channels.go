package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const telegramAPI = "https://api.telegram.org"

// WebhookNotifier posts notifications as JSON to a URL.
type WebhookNotifier struct {
	url    string
	client *resty.Client
}

// NewWebhookNotifier creates a new WebhookNotifier.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "nse-agent/1.0")
	return &WebhookNotifier{url: url, client: client}
}

// Name returns the name of the notifier.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// Send posts n to the webhook.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(n).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

// TelegramNotifier sends notifications through a Telegram bot.
type TelegramNotifier struct {
	chatID string
	client *resty.Client
}

// NewTelegramNotifier creates a new TelegramNotifier.
func NewTelegramNotifier(botToken, chatID string, timeout time.Duration) *TelegramNotifier {
	client := resty.New().
		SetTimeout(timeout).
		SetBaseURL(telegramAPI + "/bot" + botToken)
	return &TelegramNotifier{chatID: chatID, client: client}
}

// Name returns the name of the notifier.
func (t *TelegramNotifier) Name() string {
	return "telegram"
}

// Send sends n as an HTML message.
func (t *TelegramNotifier) Send(ctx context.Context, n Notification) error {
	text := fmt.Sprintf("<b>%s</b>\n\n%s", escapeHTML(n.Title), escapeHTML(n.Message))
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"chat_id":    t.chatID,
			"text":       text,
			"parse_mode": "HTML",
		}).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode())
	}
	return nil
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
