// Package telegram adapts the Telegram Bot API to the bot's small needs:
// decoding webhook updates, sending text and showing the typing indicator.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// MaxMessageLength is Telegram's limit for one text message, in UTF-16
// code units. Replies are cut to this many runes, which never exceeds it
// for text in the basic plane.
const MaxMessageLength = 4096

// SecretHeader carries the webhook secret set with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Sender is the outbound half of the transport.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendTyping(ctx context.Context, chatID int64) error
}

// Message is an inbound text message.
type Message struct {
	UpdateID int
	ChatID   int64
	Text     string
	From     string
	Date     time.Time
}

// DecodeUpdate reads one webhook body. It returns ok=false for updates
// that carry no text message, which the bot ignores.
func DecodeUpdate(r io.Reader) (msg Message, ok bool, err error) {
	var u tgbotapi.Update
	if err := json.NewDecoder(r).Decode(&u); err != nil {
		return Message{}, false, fmt.Errorf("decode update: %w", err)
	}
	m := u.Message
	if m == nil || m.Chat == nil || m.Text == "" {
		return Message{}, false, nil
	}
	msg = Message{
		UpdateID: u.UpdateID,
		ChatID:   m.Chat.ID,
		Text:     m.Text,
		Date:     m.Time(),
	}
	if m.From != nil {
		msg.From = m.From.UserName
	}
	return msg, true, nil
}

// Bot sends through the Bot API.
type Bot struct {
	api *tgbotapi.BotAPI
}

// NewBot authenticates token with getMe. apiEndpoint overrides the public
// API URL pattern when non-empty; it must contain two %s verbs for the token
// and the method.
func NewBot(token, apiEndpoint string) (*Bot, error) {
	if apiEndpoint == "" {
		apiEndpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, &http.Client{Timeout: 15 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("telegram getMe: %w", err)
	}
	log.Info().Str("username", api.Self.UserName).Msg("Telegram bot authorized")
	return &Bot{api: api}, nil
}

// Username returns the bot's Telegram handle.
func (b *Bot) Username() string { return b.api.Self.UserName }

// SendText sends text as a plain message, cut to MaxMessageLength.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, Clip(text))
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	return nil
}

// SendTyping shows the typing indicator in chatID.
func (b *Bot) SendTyping(ctx context.Context, chatID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// sendChatAction returns a bool result, so Request rather than Send.
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		return fmt.Errorf("telegram sendChatAction: %w", err)
	}
	return nil
}

// Clip shortens text to MaxMessageLength runes.
func Clip(text string) string {
	r := []rune(text)
	if len(r) <= MaxMessageLength {
		return text
	}
	return string(r[:MaxMessageLength-1]) + "…"
}

// LogSender writes replies to the log instead of Telegram. It stands in
// when no bot token is configured.
type LogSender struct{}

func (LogSender) SendText(_ context.Context, chatID int64, text string) error {
	log.Info().Int64("chat_id", chatID).Str("text", text).Msg("Reply (no bot token)")
	return nil
}

func (LogSender) SendTyping(context.Context, int64) error { return nil }

// SetWebhook points Telegram at url. secret, when set, is echoed back in
// SecretHeader on every delivery.
func (b *Bot) SetWebhook(url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	if _, err := b.api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("telegram setWebhook: %w", err)
	}
	return nil
}

// WebhookInfo reports the registered webhook URL and the delivery backlog.
func (b *Bot) WebhookInfo() (url string, pending int, lastError string, err error) {
	info, err := b.api.GetWebhookInfo()
	if err != nil {
		return "", 0, "", fmt.Errorf("telegram getWebhookInfo: %w", err)
	}
	return info.URL, info.PendingUpdateCount, info.LastErrorMessage, nil
}
