package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/agentoven/larder/internal/conversation"
	"github.com/agentoven/larder/internal/engrams"
	"github.com/agentoven/larder/internal/errs"
	"github.com/agentoven/larder/internal/inventory"
	"github.com/agentoven/larder/internal/orchestrator"
	"github.com/agentoven/larder/internal/pipelines"
	"github.com/agentoven/larder/internal/reasoning"
	"github.com/agentoven/larder/internal/store"
	"github.com/agentoven/larder/pkg/models"
)

const chat int64 = 99

// scripted replays canned responses and records every request.
type scripted struct {
	mu        sync.Mutex
	responses []*reasoning.Response
	err       error
	requests  []reasoning.Request
}

func (s *scripted) CreateMessage(_ context.Context, req *reasoning.Request) (*reasoning.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *req
	cp.Messages = append([]reasoning.Message(nil), req.Messages...)
	s.requests = append(s.requests, cp)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return nil, errors.New("script exhausted")
	}
	r := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return r, nil
}

func text(stop, t string) *reasoning.Response {
	return &reasoning.Response{StopReason: stop, Content: []reasoning.Block{reasoning.TextBlock(t)}}
}

func toolUse(preamble string, calls ...reasoning.Block) *reasoning.Response {
	var content []reasoning.Block
	if preamble != "" {
		content = append(content, reasoning.TextBlock(preamble))
	}
	return &reasoning.Response{StopReason: reasoning.StopToolUse, Content: append(content, calls...)}
}

func call(id, name, input string) reasoning.Block {
	return reasoning.Block{Type: reasoning.BlockToolUse, ID: id, Name: name, Input: json.RawMessage(input)}
}

type env struct {
	inv     *inventory.Service
	db      *store.MemoryStore
	engrams *engrams.Store
	history *conversation.MemoryStore
	tools   *orchestrator.Registry
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := store.NewMemoryStore("")
	t.Cleanup(func() { db.Close() })
	inv := inventory.NewService(db, nil, nil, nil)
	require.NoError(t, inv.Bootstrap(context.Background()))
	es := engrams.NewStore(db)

	tools := orchestrator.NewRegistry(orchestrator.InventoryTools(orchestrator.Deps{
		Inventory: inv,
		Queries:   db,
		Pipelines: pipelines.NewStore(db, 0),
		Engrams:   es,
	})...)
	return &env{inv: inv, db: db, engrams: es, history: conversation.NewMemoryStore(0, 0), tools: tools}
}

func (e *env) run(t *testing.T, client reasoning.Client, msg string, opts ...orchestrator.Option) (string, []string) {
	t.Helper()
	var flushed []string
	o := orchestrator.New(client, e.tools, e.history, opts...)
	reply := o.Handle(context.Background(), chat, msg, func(_ context.Context, s string) {
		flushed = append(flushed, s)
	})
	return reply, flushed
}

func lastToolResults(t *testing.T, req reasoning.Request) []reasoning.Block {
	t.Helper()
	require.NotEmpty(t, req.Messages)
	last := req.Messages[len(req.Messages)-1]
	require.Equal(t, reasoning.RoleUser, last.Role)
	return last.Content
}

func TestHandle_EndTurn(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newEnv(t)
	client := &scripted{responses: []*reasoning.Response{text(reasoning.StopEndTurn, "Hey! Nothing to do.")}}

	reply, flushed := e.run(t, client, "hello")
	assert.Equal(t, "Hey! Nothing to do.", reply)
	assert.Empty(t, flushed)

	require.Len(t, client.requests, 1)
	assert.NotEmpty(t, client.requests[0].Tools)
	assert.Contains(t, client.requests[0].System, "N2")

	history, _ := e.history.Get(context.Background(), chat)
	assert.Len(t, history, 2)
}

func TestHandle_ToolRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.inv.Add(ctx, chat, inventory.AddRequest{Name: "Milk", Quantity: 2, Zone: "F1"})
	require.NoError(t, err)

	client := &scripted{responses: []*reasoning.Response{
		toolUse("Checking the fridge...",
			call("t1", "search_items", `{"query":"milk"}`),
			call("t2", "add_item", `{"name":"Oat Milk","zone":"F2"}`),
		),
		text(reasoning.StopEndTurn, "You have 2 Milk in F1 and I added Oat Milk to F2, type u to undo."),
	}}

	reply, flushed := e.run(t, client, "do I have milk? also add oat milk to f2")
	assert.Equal(t, []string{"Checking the fridge..."}, flushed)
	assert.Contains(t, reply, "Oat Milk")

	require.Len(t, client.requests, 2)
	results := lastToolResults(t, client.requests[1])
	require.Len(t, results, 2)
	assert.Equal(t, "t1", results[0].ToolUseID)
	assert.Contains(t, results[0].Content, `"location":"F1"`)
	assert.False(t, results[0].IsError)
	assert.Equal(t, "t2", results[1].ToolUseID)
	assert.Contains(t, results[1].Content, `"action":"added"`)

	items, err := e.inv.Check(ctx, "oat milk")
	require.NoError(t, err)
	assert.Equal(t, "F2", items[0].LocationName)
}

func TestHandle_MaxTokensAddsNotice(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newEnv(t)
	client := &scripted{responses: []*reasoning.Response{text(reasoning.StopMaxTokens, "Here is a very long")}}

	reply, _ := e.run(t, client, "tell me everything")
	assert.Equal(t, "Here is a very long\n\n"+orchestrator.BudgetNotice, reply)
}

func TestHandle_UpstreamFailureApologises(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newEnv(t)
	client := &scripted{err: errs.Upstream(nil, "reasoning service returned 429")}

	reply, _ := e.run(t, client, "what's for dinner")
	assert.Equal(t, orchestrator.ApologyText, reply)
	assert.Len(t, client.requests, 1, "no retry")

	history, _ := e.history.Get(context.Background(), chat)
	assert.Empty(t, history)
}

func TestHandle_RoundLimitForcesSummary(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newEnv(t)
	client := &scripted{responses: []*reasoning.Response{
		toolUse("", call("a", "list_items", `{}`)),
		toolUse("", call("b", "list_items", `{}`)),
		text(reasoning.StopEndTurn, "Summary: the inventory is empty."),
	}}

	reply, _ := e.run(t, client, "audit everything", orchestrator.WithMaxRounds(3))
	assert.Equal(t, "Summary: the inventory is empty.", reply)

	require.Len(t, client.requests, 3)
	assert.NotEmpty(t, client.requests[1].Tools)
	assert.Empty(t, client.requests[2].Tools, "final call carries no tools")

	final := lastToolResults(t, client.requests[2])
	require.Len(t, final, 2)
	assert.Equal(t, reasoning.BlockToolResult, final[0].Type)
	assert.Equal(t, reasoning.BlockText, final[1].Type)
	assert.Contains(t, final[1].Text, "maximum number of tool calls")
}

func TestHandle_FinalRoundIgnoresToolCalls(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newEnv(t)
	client := &scripted{responses: []*reasoning.Response{
		toolUse("Let me look", call("a", "remove_item", `{"name":"milk"}`)),
	}}

	reply, _ := e.run(t, client, "remove milk", orchestrator.WithMaxRounds(1))
	assert.Equal(t, "Let me look", reply)
	assert.Len(t, client.requests, 1)
}

func TestHandle_FailsClosedOnBadToolCalls(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newEnv(t)
	client := &scripted{responses: []*reasoning.Response{
		toolUse("",
			call("x", "drop_everything", `{}`),
			call("y", "add_item", `{"name": 5}`),
			call("z", "run_query", `{"sql":"DROP TABLE items"}`),
		),
		text(reasoning.StopEndTurn, "I can't do that."),
	}}

	_, _ = e.run(t, client, "nuke it")
	results := lastToolResults(t, client.requests[1])
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.IsError, "result %s should be an error", r.ToolUseID)
	}
	assert.Contains(t, results[0].Content, "Unknown tool: drop_everything")
	assert.Contains(t, results[1].Content, "Invalid input for add_item")
	assert.Contains(t, results[2].Content, "SQL rejected: Forbidden keyword: DROP")
}

func TestHandle_LearnsUtterance(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newEnv(t)
	client := &scripted{responses: []*reasoning.Response{
		toolUse("", call("l", "learn_utterance", `{
			"pattern": "got any {item} left",
			"command_type": "check",
			"param_mapping": {"itemName": "{item}"},
			"example_input": "got any cheese left",
			"example_extraction": {"item": "cheese"}
		}`)),
		text(reasoning.StopEndTurn, "Learned it."),
	}}

	_, _ = e.run(t, client, "got any cheese left")
	results := lastToolResults(t, client.requests[1])
	require.Len(t, results, 1)
	assert.False(t, results[0].IsError, results[0].Content)

	entries, err := e.engrams.Cached(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotNil(t, engrams.FindMatch("got any eggs left", entries))
}

func TestRegistry_TruncatesLargeResults(t *testing.T) {
	e := newEnv(t)
	rows := make([]map[string]any, 200)
	for i := range rows {
		rows[i] = map[string]any{"name": strings.Repeat("x", 40)}
	}
	var readOnly bool
	e.db.SetQueryFunc(func(_ context.Context, _ string, _ []string, ro bool) (*models.QueryResult, error) {
		readOnly = ro
		return &models.QueryResult{Rows: rows}, nil
	})

	content, isError := e.tools.Call(context.Background(), chat, "run_query", json.RawMessage(`{"sql":"SELECT name FROM items"}`))
	assert.False(t, isError)
	assert.True(t, readOnly, "SELECT runs on the read-only path")
	assert.LessOrEqual(t, len(content), orchestrator.MaxResultBytes+len("...(truncated)"))
	assert.True(t, strings.HasSuffix(content, "...(truncated)"))
}
