// Package tools exposes forge operations to the model as callable tools
// and validates every call before it reaches the forge.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alekspetrov/concierge/internal/llm"
	"github.com/alekspetrov/concierge/internal/logging"
)

// Validation limits applied to every tool call before dispatch.
const (
	MaxArgumentBytes = 2000
	MaxIdentifierLen = 100
	MaxResultBytes   = 5000
)

// ResultTruncationSuffix is appended to tool results cut at MaxResultBytes.
const ResultTruncationSuffix = "\n[... result truncated at 5000 bytes ...]"

// Handler executes one tool call with already-decoded arguments.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool is one callable exposed to the model.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Required    []string
	Handler     Handler
}

// Registry holds the tools available to a single mention's tool loop.
type Registry struct {
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logging.WithComponent("tools"),
	}
}

// Register adds a tool, replacing any previous tool of the same name.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Specs returns the tool definitions in wire format, sorted by name so the
// prompt is deterministic.
func (r *Registry) Specs() []llm.Tool {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]llm.Tool, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		specs = append(specs, llm.Tool{
			Type: "function",
			Function: llm.ToolSpec{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return specs
}

// Dispatch validates and executes one tool call. It always returns text:
// validation failures and execution errors become error messages handed
// back to the model rather than aborting the loop.
func (r *Registry) Dispatch(ctx context.Context, call llm.ToolCall) string {
	name := call.Function.Name

	if len(call.ID) > MaxIdentifierLen || len(name) > MaxIdentifierLen {
		return "Error: tool call identifier exceeds the allowed length"
	}
	if len(call.Function.Arguments) > MaxArgumentBytes {
		return fmt.Sprintf("Error: tool arguments exceed %d bytes", MaxArgumentBytes)
	}

	tool, ok := r.tools[name]
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q", name)
	}

	args, err := decodeArgs(call.Function.Arguments)
	if err != nil {
		return fmt.Sprintf("Error: invalid arguments for %s: %v", name, err)
	}
	if err := validateArgs(tool, args); err != nil {
		return fmt.Sprintf("Error: invalid arguments for %s: %v", name, err)
	}

	r.logger.Debug("Dispatching tool call",
		slog.String("tool", name), slog.String("call_id", call.ID))

	result, err := tool.Handler(ctx, args)
	if err != nil {
		return fmt.Sprintf("Error: %s failed: %v", name, err)
	}
	return Truncate(result)
}

// Truncate cuts a tool result at MaxResultBytes and marks the cut.
func Truncate(result string) string {
	if len(result) <= MaxResultBytes {
		return result
	}
	return result[:MaxResultBytes] + ResultTruncationSuffix
}

func decodeArgs(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty argument payload")
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty argument payload")
	}
	return args, nil
}

func validateArgs(tool *Tool, args map[string]any) error {
	for _, name := range tool.Required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("missing required parameter %q", name)
		}
	}
	for name, value := range args {
		if n, ok := value.(float64); ok && n <= 0 {
			return fmt.Errorf("parameter %q must be positive", name)
		}
	}
	return nil
}

// Argument accessors. JSON numbers decode as float64.

func intArg(args map[string]any, key string) (int, error) {
	n, ok := args[key].(float64)
	if !ok {
		return 0, fmt.Errorf("parameter %q must be a number", key)
	}
	return int(n), nil
}

func stringArg(args map[string]any, key string) (string, error) {
	s, ok := args[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return s, nil
}

func optionalStringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func stringSliceArg(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key].([]any)
	if !ok {
		return nil, fmt.Errorf("parameter %q must be an array of strings", key)
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be an array of strings", key)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("parameter %q must not be empty", key)
	}
	return out, nil
}
