// Package orchestrator runs the bounded tool-use conversation with the
// reasoning service for messages no regex could resolve.
package orchestrator

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/agentoven/larder/internal/conversation"
	"github.com/agentoven/larder/internal/reasoning"
)

const DefaultMaxRounds = 7

const (
	// ApologyText is the reply when the reasoning service cannot be reached.
	ApologyText = "Sorry, I couldn't think that through right now. Please try again in a moment."
	// BudgetNotice follows an answer cut short by the token budget.
	BudgetNotice = "(I ran out of room for that answer. Ask me to continue or narrow the question.)"
	// EmptyText is the reply when the model produced no text at all.
	EmptyText = "(No response generated)"

	summarizeInstruction = "You have reached the maximum number of tool calls. Please provide a final text response to the user based on what you have learned so far."
)

var tracer = otel.Tracer("larder/orchestrator")

// Flusher delivers text the model produced ahead of its tool calls so the
// user sees progress before the tools run.
type Flusher func(ctx context.Context, text string)

// Orchestrator owns the tool loop.
type Orchestrator struct {
	client    reasoning.Client
	tools     *Registry
	history   conversation.Store
	system    string
	maxRounds int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxRounds bounds the number of reasoning calls per message.
func WithMaxRounds(n int) Option { return func(o *Orchestrator) { o.maxRounds = n } }

// WithSystemPrompt replaces SystemPrompt().
func WithSystemPrompt(s string) Option { return func(o *Orchestrator) { o.system = s } }

// New creates an Orchestrator. history may be nil to disable short-term
// memory.
func New(client reasoning.Client, tools *Registry, history conversation.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:    client,
		tools:     tools,
		history:   history,
		system:    SystemPrompt(),
		maxRounds: DefaultMaxRounds,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxRounds < 1 {
		o.maxRounds = 1
	}
	return o
}

// Handle answers text for chatID. It always returns a reply; a failed
// reasoning call yields ApologyText and is not retried.
func (o *Orchestrator) Handle(ctx context.Context, chatID int64, text string, flush Flusher) string {
	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "orchestrator.Handle")
	defer span.End()
	span.SetAttributes(attribute.Int64("chat_id", chatID), attribute.String("run_id", runID))
	logger := log.With().Int64("chat_id", chatID).Str("run_id", runID).Logger()

	var transcript []reasoning.Message
	if o.history != nil {
		past, err := o.history.Get(ctx, chatID)
		if err != nil {
			logger.Warn().Err(err).Msg("Conversation history unavailable")
		}
		transcript = past
	}
	start := len(transcript)
	transcript = append(transcript, reasoning.Message{
		Role:    reasoning.RoleUser,
		Content: []reasoning.Block{reasoning.TextBlock(text)},
	})

	for round := 1; round <= o.maxRounds; round++ {
		final := round == o.maxRounds
		req := &reasoning.Request{System: o.system, Messages: transcript}
		if !final {
			req.Tools = o.tools.Specs()
		}

		resp, err := o.client.CreateMessage(ctx, req)
		if err != nil {
			logger.Warn().Err(err).Int("round", round).Msg("Reasoning call failed")
			span.RecordError(err)
			return ApologyText
		}
		transcript = append(transcript, reasoning.Message{Role: reasoning.RoleAssistant, Content: resp.Content})
		reply := strings.TrimSpace(resp.Text())

		uses := resp.ToolUses()
		if final || resp.StopReason != reasoning.StopToolUse || len(uses) == 0 {
			if resp.StopReason == reasoning.StopMaxTokens {
				reply = strings.TrimSpace(reply + "\n\n" + BudgetNotice)
			}
			if reply == "" {
				reply = EmptyText
			}
			logger.Debug().Int("round", round).Str("stop_reason", resp.StopReason).Msg("Reasoning loop finished")
			o.remember(ctx, chatID, transcript[start:])
			return reply
		}

		if reply != "" && flush != nil {
			flush(ctx, reply)
		}

		results := o.runTools(ctx, chatID, round, uses)
		if round+1 == o.maxRounds {
			// The next call is the last one and carries no tool
			// definitions, so the model has to wrap up.
			results = append(results, reasoning.TextBlock(summarizeInstruction))
			logger.Info().Int("round", round).Msg("Tool-call limit reached, asking for a summary")
		}
		transcript = append(transcript, reasoning.Message{Role: reasoning.RoleUser, Content: results})
	}

	// The final round always returns above.
	return EmptyText
}

// runTools executes uses concurrently and returns their results in request
// order.
func (o *Orchestrator) runTools(ctx context.Context, chatID int64, round int, uses []reasoning.Block) []reasoning.Block {
	results := make([]reasoning.Block, len(uses))
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range uses {
		g.Go(func() error {
			tctx, span := tracer.Start(gctx, "tool."+u.Name)
			defer span.End()

			content, isError := o.tools.Call(tctx, chatID, u.Name, u.Input)
			span.SetAttributes(attribute.Bool("tool.error", isError))
			log.Debug().
				Int64("chat_id", chatID).
				Int("round", round).
				Str("tool", u.Name).
				Bool("error", isError).
				Msg("Tool executed")
			results[i] = reasoning.ToolResultBlock(u.ID, content, isError)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) remember(ctx context.Context, chatID int64, msgs []reasoning.Message) {
	if o.history == nil || len(msgs) == 0 {
		return
	}
	if err := o.history.Append(ctx, chatID, msgs...); err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to save conversation")
	}
}
