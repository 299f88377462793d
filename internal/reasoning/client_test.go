package reasoning_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agentoven/larder/internal/errs"
	"github.com/agentoven/larder/internal/reasoning"
)

func TestCreateMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "k" {
			t.Errorf("x-api-key = %q", got)
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("anthropic-version header missing")
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["model"] != "test-model" {
			t.Errorf("model = %v", body["model"])
		}
		if body["max_tokens"] != float64(256) {
			t.Errorf("max_tokens = %v", body["max_tokens"])
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"stop_reason": "tool_use",
			"content": [
				{"type": "text", "text": "Looking. "},
				{"type": "tool_use", "id": "tu_1", "name": "search_items", "input": {"query": "milk"}}
			],
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	c := reasoning.NewAnthropicClient("k",
		reasoning.WithEndpoint(srv.URL),
		reasoning.WithModel("test-model"),
		reasoning.WithMaxTokens(256),
	)
	resp, err := c.CreateMessage(context.Background(), &reasoning.Request{
		System:   "sys",
		Messages: []reasoning.Message{{Role: reasoning.RoleUser, Content: []reasoning.Block{reasoning.TextBlock("hi")}}},
	})
	if err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}
	if resp.StopReason != reasoning.StopToolUse {
		t.Errorf("StopReason = %q", resp.StopReason)
	}
	if resp.Text() != "Looking. " {
		t.Errorf("Text() = %q", resp.Text())
	}
	uses := resp.ToolUses()
	if len(uses) != 1 || uses[0].Name != "search_items" || string(uses[0].Input) != `{"query": "milk"}` {
		t.Errorf("ToolUses() = %+v", uses)
	}
}

func TestCreateMessage_UpstreamFailures(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := reasoning.NewAnthropicClient("k", reasoning.WithEndpoint(srv.URL)).
			CreateMessage(context.Background(), &reasoning.Request{})
		if !errs.Is(err, errs.KindUpstream) {
			t.Fatalf("CreateMessage() error = %v, want upstream", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		_, err := reasoning.NewAnthropicClient("k", reasoning.WithEndpoint(srv.URL), reasoning.WithTimeout(50*time.Millisecond)).
			CreateMessage(context.Background(), &reasoning.Request{})
		if !errs.Is(err, errs.KindUpstream) {
			t.Fatalf("CreateMessage() error = %v, want upstream", err)
		}
	})

	t.Run("no key", func(t *testing.T) {
		_, err := reasoning.NewAnthropicClient("").CreateMessage(context.Background(), &reasoning.Request{})
		if !errs.Is(err, errs.KindUpstream) {
			t.Fatalf("CreateMessage() error = %v, want upstream", err)
		}
	})
}
