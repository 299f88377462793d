// Package reasoning is a client for the Anthropic Messages API with tool
// use. It makes exactly one HTTP call per CreateMessage and never retries.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/agentoven/larder/internal/errs"
	"github.com/agentoven/larder/internal/metrics"
)

const (
	DefaultEndpoint  = "https://api.anthropic.com"
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 1024
	DefaultTimeout   = 25 * time.Second

	apiVersion = "2023-06-01"
)

// Stop reasons returned by the Messages API.
const (
	StopEndTurn   = "end_turn"
	StopSequence  = "stop_sequence"
	StopMaxTokens = "max_tokens"
	StopToolUse   = "tool_use"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Block is one content block of a message. Which fields are set depends
// on Type.
type Block struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// TextBlock returns a text content block.
func TextBlock(text string) Block { return Block{Type: BlockText, Text: text} }

// ToolResultBlock returns a tool_result block answering the tool_use id.
func ToolResultBlock(id, content string, isError bool) Block {
	return Block{Type: BlockToolResult, ToolUseID: id, Content: content, IsError: isError}
}

// Message is one conversation turn.
type Message struct {
	Role    string  `json:"role"`
	Content []Block `json:"content"`
}

// Tool describes a callable tool to the model.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Request is a Messages API call. A zero MaxTokens uses the client default.
type Request struct {
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	Tools     []Tool    `json:"tools,omitempty"`
	MaxTokens int       `json:"max_tokens"`
}

// Usage is the token accounting of one call.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Response is the decoded reply.
type Response struct {
	ID         string  `json:"id"`
	StopReason string  `json:"stop_reason"`
	Content    []Block `json:"content"`
	Usage      Usage   `json:"usage"`
}

// Text concatenates the text blocks.
func (r *Response) Text() string {
	var b bytes.Buffer
	for _, c := range r.Content {
		if c.Type == BlockText {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// ToolUses returns the tool_use blocks in order.
func (r *Response) ToolUses() []Block {
	var out []Block
	for _, c := range r.Content {
		if c.Type == BlockToolUse {
			out = append(out, c)
		}
	}
	return out
}

// Client is what the tool loop needs from the reasoning service.
type Client interface {
	CreateMessage(ctx context.Context, req *Request) (*Response, error)
}

// AnthropicClient calls the Messages API over HTTP.
type AnthropicClient struct {
	endpoint  string
	apiKey    string
	model     string
	maxTokens int
	timeout   time.Duration
	http      *http.Client
}

// Option configures an AnthropicClient.
type Option func(*AnthropicClient)

func WithEndpoint(url string) Option       { return func(c *AnthropicClient) { c.endpoint = url } }
func WithModel(model string) Option        { return func(c *AnthropicClient) { c.model = model } }
func WithMaxTokens(n int) Option           { return func(c *AnthropicClient) { c.maxTokens = n } }
func WithTimeout(d time.Duration) Option   { return func(c *AnthropicClient) { c.timeout = d } }
func WithHTTPClient(h *http.Client) Option { return func(c *AnthropicClient) { c.http = h } }

// NewAnthropicClient creates a client authenticated with apiKey.
func NewAnthropicClient(apiKey string, opts ...Option) *AnthropicClient {
	c := &AnthropicClient{
		endpoint:  DefaultEndpoint,
		apiKey:    apiKey,
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
		timeout:   DefaultTimeout,
		http:      &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type wireRequest struct {
	Model string `json:"model"`
	*Request
}

// CreateMessage sends req. Transport failures, timeouts and non-200
// statuses come back as errs.KindUpstream.
func (c *AnthropicClient) CreateMessage(ctx context.Context, req *Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, errs.Upstream(nil, "reasoning service is not configured")
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.maxTokens
	}

	ctx, span := otel.Tracer("larder/reasoning").Start(ctx, "reasoning.CreateMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("reasoning.model", c.model),
		attribute.Int("reasoning.messages", len(req.Messages)),
		attribute.Int("reasoning.tools", len(req.Tools)),
	)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(wireRequest{Model: c.model, Request: req})
	if err != nil {
		return nil, fmt.Errorf("reasoning: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("reasoning: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	start := time.Now()
	resp, err := c.do(httpReq)
	metrics.ReasoningLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ReasoningCalls.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.ReasoningCalls.WithLabelValues(resp.StopReason).Inc()
	span.SetAttributes(
		attribute.String("reasoning.stop_reason", resp.StopReason),
		attribute.Int64("reasoning.input_tokens", resp.Usage.InputTokens),
		attribute.Int64("reasoning.output_tokens", resp.Usage.OutputTokens),
	)
	log.Debug().
		Str("stop_reason", resp.StopReason).
		Int64("input_tokens", resp.Usage.InputTokens).
		Int64("output_tokens", resp.Usage.OutputTokens).
		Dur("latency", time.Since(start)).
		Msg("Reasoning call completed")
	return resp, nil
}

func (c *AnthropicClient) do(req *http.Request) (*Response, error) {
	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.Upstream(err, "reasoning request failed")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, errs.Upstream(nil, "reasoning service returned %d: %s", httpResp.StatusCode, bytes.TrimSpace(respBody))
	}

	var out Response
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, errs.Upstream(err, "decode reasoning response")
	}
	return &out, nil
}
