package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alekspetrov/concierge/internal/llm"
)

func echoTool() *Tool {
	return &Tool{
		Name:        "echo",
		Description: "Echo the input back.",
		Parameters:  json.RawMessage(`{"type":"object"}`),
		Required:    []string{"text"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return args["text"].(string), nil
		},
	}
}

func call(name, args string) llm.ToolCall {
	return llm.ToolCall{
		ID:       "call-1",
		Type:     "function",
		Function: llm.FunctionCall{Name: name, Arguments: args},
	}
}

func TestDispatchExecutesTool(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool())

	got := r.Dispatch(context.Background(), call("echo", `{"text":"hello"}`))
	if got != "hello" {
		t.Errorf("Dispatch() = %q, want hello", got)
	}
}

func TestDispatchUnknownToolReturnsError(t *testing.T) {
	r := NewRegistry()
	got := r.Dispatch(context.Background(), call("nope", `{"x":1}`))
	if !strings.Contains(got, "unknown tool") {
		t.Errorf("Dispatch() = %q, want unknown-tool error", got)
	}
}

func TestDispatchRejectsOversizedArguments(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool())

	big := `{"text":"` + strings.Repeat("x", MaxArgumentBytes) + `"}`
	got := r.Dispatch(context.Background(), call("echo", big))
	if !strings.Contains(got, "exceed") {
		t.Errorf("Dispatch() = %q, want size error", got)
	}
}

func TestDispatchRejectsLongIdentifiers(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool())

	c := call("echo", `{"text":"hi"}`)
	c.ID = strings.Repeat("a", MaxIdentifierLen+1)
	if got := r.Dispatch(context.Background(), c); !strings.Contains(got, "identifier") {
		t.Errorf("Dispatch() = %q, want identifier error", got)
	}
}

func TestDispatchRejectsBadArguments(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool())

	tests := []struct {
		name string
		args string
	}{
		{"empty string", ""},
		{"empty object", `{}`},
		{"malformed", `{"text":`},
		{"missing required", `{"other":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Dispatch(context.Background(), call("echo", tt.args))
			if !strings.Contains(got, "Error:") {
				t.Errorf("Dispatch(%q) = %q, want validation error", tt.args, got)
			}
		})
	}
}

func TestDispatchRejectsNonPositiveNumbers(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{
		Name:     "lines",
		Required: []string{"start_line"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "ok", nil
		},
	})

	if got := r.Dispatch(context.Background(), call("lines", `{"start_line":0}`)); !strings.Contains(got, "positive") {
		t.Errorf("Dispatch() = %q, want positivity error", got)
	}
	if got := r.Dispatch(context.Background(), call("lines", `{"start_line":-4}`)); !strings.Contains(got, "positive") {
		t.Errorf("Dispatch() = %q, want positivity error", got)
	}
	if got := r.Dispatch(context.Background(), call("lines", `{"start_line":1}`)); got != "ok" {
		t.Errorf("Dispatch() = %q, want ok", got)
	}
}

func TestDispatchTruncatesResult(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{
		Name:     "big",
		Required: []string{"n"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return strings.Repeat("z", MaxResultBytes+500), nil
		},
	})

	got := r.Dispatch(context.Background(), call("big", `{"n":1}`))
	if !strings.HasSuffix(got, ResultTruncationSuffix) {
		t.Error("expected truncation suffix on oversized result")
	}
	if len(got) != MaxResultBytes+len(ResultTruncationSuffix) {
		t.Errorf("result length = %d", len(got))
	}
}

func TestSpecsSortedByName(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{Name: "zeta"})
	r.Register(&Tool{Name: "alpha"})

	specs := r.Specs()
	if len(specs) != 2 || specs[0].Function.Name != "alpha" || specs[1].Function.Name != "zeta" {
		t.Errorf("Specs() order = %v", specs)
	}
}
