package conversation_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentoven/larder/internal/conversation"
	"github.com/agentoven/larder/internal/reasoning"
)

func user(text string) reasoning.Message {
	return reasoning.Message{Role: reasoning.RoleUser, Content: []reasoning.Block{reasoning.TextBlock(text)}}
}

func assistant(text string) reasoning.Message {
	return reasoning.Message{Role: reasoning.RoleAssistant, Content: []reasoning.Block{reasoning.TextBlock(text)}}
}

func toolResult(id string) reasoning.Message {
	return reasoning.Message{Role: reasoning.RoleUser, Content: []reasoning.Block{reasoning.ToolResultBlock(id, "ok", false)}}
}

func TestMemoryStore_ExpiresAfterInactivity(t *testing.T) {
	s := conversation.NewMemoryStore(0, 0)
	now := time.Now()
	s.SetClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, 1, user("hi"), assistant("hello")))
	got, _ := s.Get(ctx, 1)
	assert.Len(t, got, 2)

	now = now.Add(conversation.DefaultTTL + time.Second)
	got, _ = s.Get(ctx, 1)
	assert.Empty(t, got)
}

func TestMemoryStore_KeepsLastMessages(t *testing.T) {
	s := conversation.NewMemoryStore(4, time.Minute)
	ctx := context.Background()
	for i := range 5 {
		require.NoError(t, s.Append(ctx, 1, user(fmt.Sprint("q", i)), assistant(fmt.Sprint("a", i))))
	}

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "q3", got[0].Content[0].Text)
}

func TestMemoryStore_PerChatAndClear(t *testing.T) {
	s := conversation.NewMemoryStore(0, 0)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, 1, user("one")))
	require.NoError(t, s.Append(ctx, 2, user("two")))

	require.NoError(t, s.Clear(ctx, 1))
	got, _ := s.Get(ctx, 1)
	assert.Empty(t, got)
	got, _ = s.Get(ctx, 2)
	assert.Len(t, got, 1)
}

func TestMemoryStore_Sweep(t *testing.T) {
	s := conversation.NewMemoryStore(0, time.Minute)
	now := time.Now()
	s.SetClock(func() time.Time { return now })
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, 1, user("old")))
	now = now.Add(2 * time.Minute)
	require.NoError(t, s.Append(ctx, 2, user("new")))

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTrim_OpensWithUserTurn(t *testing.T) {
	msgs := []reasoning.Message{
		user("q"),
		{Role: reasoning.RoleAssistant, Content: []reasoning.Block{{Type: reasoning.BlockToolUse, ID: "t1", Name: "search_items"}}},
		toolResult("t1"),
		assistant("answer"),
		user("next"),
		assistant("done"),
	}

	got := conversation.Trim(msgs, 4)
	require.Len(t, got, 2, "orphaned tool result and assistant turn are dropped")
	assert.Equal(t, "next", got[0].Content[0].Text)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("LARDER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("LARDER_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	s, err := conversation.NewRedisStore(ctx, url, 3, time.Minute)
	require.NoError(t, err)
	defer s.Close()

	chat := time.Now().UnixNano()
	defer s.Clear(ctx, chat)

	require.NoError(t, s.Append(ctx, chat, user("a"), assistant("b")))
	require.NoError(t, s.Append(ctx, chat, user("c"), assistant("d")))

	got, err := s.Get(ctx, chat)
	require.NoError(t, err)
	require.Len(t, got, 2, "window of 3 starts at an assistant turn which is trimmed")
	assert.Equal(t, "c", got[0].Content[0].Text)
}
