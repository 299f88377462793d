package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/agentoven/larder/internal/errs"
	"github.com/agentoven/larder/internal/metrics"
	"github.com/agentoven/larder/internal/reasoning"
)

// MaxResultBytes caps a serialised tool result.
const MaxResultBytes = 4000

const truncatedSuffix = "...(truncated)"

// validator is implemented by tool inputs that check their own shape.
type validator interface {
	validate() error
}

// Tool is one callable tool with a typed executor.
type Tool struct {
	Spec reasoning.Tool
	run  func(ctx context.Context, chatID int64, input json.RawMessage) (any, error)
}

// Define builds a Tool whose input is decoded into In and, when In has a
// validate method, checked before fn runs.
func Define[In any](name, description, schema string, fn func(ctx context.Context, chatID int64, in In) (any, error)) Tool {
	return Tool{
		Spec: reasoning.Tool{Name: name, Description: description, InputSchema: json.RawMessage(schema)},
		run: func(ctx context.Context, chatID int64, raw json.RawMessage) (any, error) {
			var in In
			if len(raw) == 0 {
				raw = json.RawMessage("{}")
			}
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, errs.Validation("Invalid input for %s: %v", name, err)
			}
			if v, ok := any(&in).(validator); ok {
				if err := v.validate(); err != nil {
					return nil, err
				}
			}
			return fn(ctx, chatID, in)
		},
	}
}

// Registry is the closed set of tools offered to the reasoning service.
type Registry struct {
	tools map[string]Tool
	specs []reasoning.Tool
}

// NewRegistry creates a registry. Later tools replace earlier ones with
// the same name.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, dup := r.tools[t.Spec.Name]; !dup {
			r.specs = append(r.specs, t.Spec)
		}
		r.tools[t.Spec.Name] = t
	}
	return r
}

// Specs returns the tool definitions in registration order.
func (r *Registry) Specs() []reasoning.Tool { return r.specs }

// Names returns the registered tool names in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.specs))
	for i, s := range r.specs {
		names[i] = s.Name
	}
	return names
}

// Call runs the named tool and returns its JSON-encoded result, capped at
// MaxResultBytes. Unknown tools, malformed input and tool failures come
// back as an {"error": ...} payload with isError set.
func (r *Registry) Call(ctx context.Context, chatID int64, name string, input json.RawMessage) (content string, isError bool) {
	t, ok := r.tools[name]
	if !ok {
		metrics.ToolInvocations.WithLabelValues("unknown", "error").Inc()
		return errorResult(fmt.Sprintf("Unknown tool: %s", name)), true
	}

	out, err := t.run(ctx, chatID, input)
	if err != nil {
		metrics.ToolInvocations.WithLabelValues(name, "error").Inc()
		return errorResult(toolError(name, err)), true
	}

	b, err := json.Marshal(out)
	if err != nil {
		metrics.ToolInvocations.WithLabelValues(name, "error").Inc()
		return errorResult(fmt.Sprintf("Tool %s failed: encode result: %v", name, err)), true
	}
	metrics.ToolInvocations.WithLabelValues(name, "ok").Inc()
	return truncate(string(b), MaxResultBytes), false
}

func toolError(name string, err error) string {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Reply()
	}
	return fmt.Sprintf("Tool %s failed: %v", name, err)
}

func errorResult(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return truncate(string(b), MaxResultBytes)
}

// truncate cuts s to at most limit bytes on a rune boundary and marks the cut.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	n := limit
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + truncatedSuffix
}
