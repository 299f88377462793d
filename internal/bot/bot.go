// Package bot handles one inbound chat message end to end: authorisation,
// regex resolution, the reasoning fallback and the outbound reply.
package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/agentoven/larder/internal/dispatch"
	"github.com/agentoven/larder/internal/metrics"
	"github.com/agentoven/larder/internal/orchestrator"
	"github.com/agentoven/larder/internal/telegram"
)

// DefaultTimeout bounds the whole handling of one message, including every
// reasoning round.
const DefaultTimeout = 3 * time.Minute

// SendTimeout bounds each outbound reply. Replies get their own deadline so
// an answer produced just as DefaultTimeout expires is still delivered.
const SendTimeout = 10 * time.Second

// PanicText is sent when handling a message panicked.
const PanicText = "Something went wrong: internal error"

var tracer = otel.Tracer("larder/bot")

// Reasoner answers messages the regex layers could not resolve.
type Reasoner interface {
	Handle(ctx context.Context, chatID int64, text string, flush orchestrator.Flusher) string
}

// Bot routes messages. A nil Reasoner falls back to dispatch.UnknownText.
type Bot struct {
	sender     telegram.Sender
	dispatcher *dispatch.Dispatcher
	reasoner   Reasoner
	allowed    map[int64]struct{}
	timeout    time.Duration

	inflight sync.WaitGroup
}

// Option configures a Bot.
type Option func(*Bot)

// WithTimeout replaces DefaultTimeout.
func WithTimeout(d time.Duration) Option { return func(b *Bot) { b.timeout = d } }

// New creates a Bot that serves only the allowed chat IDs.
func New(sender telegram.Sender, d *dispatch.Dispatcher, reasoner Reasoner, allowed []int64, opts ...Option) *Bot {
	b := &Bot{
		sender:     sender,
		dispatcher: d,
		reasoner:   reasoner,
		allowed:    make(map[int64]struct{}, len(allowed)),
		timeout:    DefaultTimeout,
	}
	for _, id := range allowed {
		b.allowed[id] = struct{}{}
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Allowed reports whether chatID may use the bot.
func (b *Bot) Allowed(chatID int64) bool {
	_, ok := b.allowed[chatID]
	return ok
}

// Dispatch handles msg on its own goroutine, detached from the caller's
// context so the webhook can answer immediately.
func (b *Bot) Dispatch(msg telegram.Message) {
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		b.Handle(ctx, msg)
	}()
}

// Wait blocks until every dispatched message has been handled.
func (b *Bot) Wait() { b.inflight.Wait() }

// Handle processes msg synchronously. Panics are recovered and reported to
// the chat.
func (b *Bot) Handle(ctx context.Context, msg telegram.Message) {
	ctx, span := tracer.Start(ctx, "bot.Handle")
	defer span.End()
	span.SetAttributes(attribute.Int64("chat_id", msg.ChatID))

	logger := log.With().Int64("chat_id", msg.ChatID).Int("update_id", msg.UpdateID).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("panic", fmt.Sprint(r)).
				Str("stack", string(debug.Stack())).
				Msg("Message handler panicked")
			b.send(ctx, msg.ChatID, PanicText)
		}
	}()

	if !b.Allowed(msg.ChatID) {
		metrics.UnauthorizedMessages.Inc()
		logger.Warn().Msg("Message from unauthorized chat")
		b.send(ctx, msg.ChatID, fmt.Sprintf("Unauthorized. Your chat ID: %d", msg.ChatID))
		return
	}

	if res, ok := b.dispatcher.Resolve(ctx, msg.ChatID, msg.Text); ok {
		metrics.MessagesResolved.WithLabelValues(res.Path).Inc()
		span.SetAttributes(attribute.String("path", res.Path))
		logger.Debug().Str("path", res.Path).Msg("Message resolved")
		b.send(ctx, msg.ChatID, res.Reply)
		return
	}

	if b.reasoner == nil {
		metrics.MessagesResolved.WithLabelValues(metrics.PathUnresolved).Inc()
		b.send(ctx, msg.ChatID, dispatch.UnknownText)
		return
	}

	metrics.MessagesResolved.WithLabelValues(metrics.PathLLM).Inc()
	span.SetAttributes(attribute.String("path", metrics.PathLLM))
	if err := b.sender.SendTyping(ctx, msg.ChatID); err != nil {
		logger.Debug().Err(err).Msg("Typing indicator failed")
	}
	reply := b.reasoner.Handle(ctx, msg.ChatID, msg.Text, func(ctx context.Context, text string) {
		b.send(ctx, msg.ChatID, text)
	})
	b.send(ctx, msg.ChatID, reply)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if text == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SendTimeout)
	defer cancel()
	if err := b.sender.SendText(ctx, chatID, text); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send reply")
	}
}
