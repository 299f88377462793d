// Package server composes the larder server from configuration: the
// backing store, the regex and reasoning layers, the Telegram transport,
// the janitor and the HTTP router.
//
// Usage:
//
//	srv, err := server.New(ctx, config.Load())
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
//	defer srv.Shutdown(ctx)
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/agentoven/larder/internal/api"
	"github.com/agentoven/larder/internal/api/handlers"
	"github.com/agentoven/larder/internal/bot"
	"github.com/agentoven/larder/internal/config"
	"github.com/agentoven/larder/internal/conversation"
	"github.com/agentoven/larder/internal/dispatch"
	"github.com/agentoven/larder/internal/engrams"
	"github.com/agentoven/larder/internal/inventory"
	"github.com/agentoven/larder/internal/janitor"
	"github.com/agentoven/larder/internal/orchestrator"
	"github.com/agentoven/larder/internal/pipelines"
	"github.com/agentoven/larder/internal/reasoning"
	"github.com/agentoven/larder/internal/store"
	"github.com/agentoven/larder/internal/telegram"
	"github.com/agentoven/larder/internal/telemetry"
	"github.com/agentoven/larder/internal/websearch"
)

// Server holds the initialized components.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the backing store, PostgreSQL or in-memory.
	Store store.Store

	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	closers []func(context.Context) error
}

// New initializes every component from cfg.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{Config: cfg, Port: cfg.Port}

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	db, err := OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	s.Store = db

	inv := inventory.NewService(db, inventory.NewSnapshotCache(db, cfg.Engrams.SnapshotTTL), nil, nil)
	if err := inv.Bootstrap(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap inventory: %w", err)
	}

	engramStore := engrams.NewStore(db,
		engrams.WithCacheTTL(cfg.Engrams.CacheTTL),
		engrams.WithCapacity(cfg.Engrams.Capacity),
	)
	pipelineStore := pipelines.NewStore(db, cfg.Engrams.PipelineCacheTTL)
	executor := pipelines.NewExecutor(pipelineStore, db, inv.Snapshot())
	dispatcher := dispatch.New(inv, engramStore, executor)

	history, historyJob, closeHistory, err := openHistory(ctx, cfg.History)
	if err != nil {
		db.Close()
		return nil, err
	}

	var reasoner bot.Reasoner
	if cfg.Reasoning.APIKey != "" {
		reasoner = orchestrator.New(newReasoningClient(cfg.Reasoning), orchestrator.NewRegistry(orchestrator.InventoryTools(orchestrator.Deps{
			Inventory: inv,
			Queries:   db,
			Pipelines: pipelineStore,
			Engrams:   engramStore,
			Search:    newSearcher(cfg.Search),
		})...), history, orchestrator.WithMaxRounds(cfg.Reasoning.MaxRounds))
		log.Info().Msg("Reasoning fallback enabled")
	} else {
		log.Warn().Msg("ANTHROPIC_API_KEY not set, unresolved messages get the help text")
	}

	var sender telegram.Sender = telegram.LogSender{}
	if cfg.Telegram.BotToken != "" {
		tg, err := telegram.NewBot(cfg.Telegram.BotToken, cfg.Telegram.APIEndpoint)
		if err != nil {
			closeHistory()
			db.Close()
			return nil, err
		}
		sender = tg
	} else {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set, replies are logged only")
	}
	if cfg.Telegram.WebhookSecret == "" {
		log.Warn().Msg("TELEGRAM_WEBHOOK_SECRET not set, the webhook accepts unauthenticated calls")
	}
	if len(cfg.Telegram.AllowedChatIDs) == 0 {
		log.Warn().Msg("TELEGRAM_ALLOWED_CHAT_IDS is empty, every chat is refused")
	}

	b := bot.New(sender, dispatcher, reasoner, cfg.Telegram.AllowedChatIDs)

	jobs := []janitor.Job{{Name: "engrams", Run: engramStore.Sweep}}
	if historyJob != nil {
		jobs = append(jobs, *historyJob)
	}
	var jan *janitor.Janitor
	if cfg.Janitor.Enabled {
		jan, err = janitor.New(cfg.Janitor.Schedule, jobs...)
		if err != nil {
			closeHistory()
			db.Close()
			return nil, err
		}
		jan.Start()
	}

	s.Handler = api.NewRouter(cfg, &handlers.Handlers{
		Messages:   b,
		Inventory:  inv,
		Dispatcher: dispatcher,
		Engrams:    engramStore,
		Pipelines:  pipelineStore,
		Utterances: db,
	})

	// Closed in reverse order.
	s.closers = []func(context.Context) error{
		shutdownTracing,
		func(context.Context) error { return db.Close() },
		func(context.Context) error { closeHistory(); return nil },
		func(context.Context) error {
			engramStore.Wait()
			executor.Wait()
			return nil
		},
		func(context.Context) error { b.Wait(); return nil },
	}
	if jan != nil {
		s.closers = append(s.closers, func(context.Context) error { jan.Stop(); return nil })
	}
	return s, nil
}

// Shutdown stops background work, drains in-flight messages and closes
// the store.
func (s *Server) Shutdown(ctx context.Context) error {
	var errList []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// OpenStore selects PostgreSQL when a URL is configured and the in-memory
// store otherwise.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	if cfg.URL == "" {
		log.Info().Str("snapshot", cfg.SnapshotPath).Msg("In-memory store initialized")
		return store.NewMemoryStore(cfg.SnapshotPath), nil
	}
	pg, err := store.NewPostgresStore(ctx, cfg.URL, cfg.MaxConnections)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return pg, nil
}

func openHistory(ctx context.Context, cfg config.HistoryConfig) (conversation.Store, *janitor.Job, func(), error) {
	if cfg.RedisURL != "" {
		rs, err := conversation.NewRedisStore(ctx, cfg.RedisURL, cfg.MaxMessages, cfg.TTL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open conversation store: %w", err)
		}
		// Redis expires idle histories itself.
		return rs, nil, func() { rs.Close() }, nil
	}
	ms := conversation.NewMemoryStore(cfg.MaxMessages, cfg.TTL)
	return ms, &janitor.Job{Name: "conversations", Run: ms.Sweep}, func() {}, nil
}

func newReasoningClient(cfg config.ReasoningConfig) *reasoning.AnthropicClient {
	var opts []reasoning.Option
	if cfg.Endpoint != "" {
		opts = append(opts, reasoning.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Model != "" {
		opts = append(opts, reasoning.WithModel(cfg.Model))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, reasoning.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, reasoning.WithTimeout(cfg.Timeout))
	}
	return reasoning.NewAnthropicClient(cfg.APIKey, opts...)
}

func newSearcher(cfg config.SearchConfig) orchestrator.Searcher {
	if cfg.BraveAPIKey == "" {
		return nil
	}
	return websearch.NewBrave(cfg.BraveAPIKey)
}
