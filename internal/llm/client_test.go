package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alekspetrov/concierge/internal/config"
	"github.com/alekspetrov/concierge/internal/testutil"
)

func testConfig(baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.OpenAIAPIKey = testutil.FakeOpenAIKey
	cfg.OpenAICustomURL = baseURL
	cfg.OpenAIModel = "test-model"
	cfg.OpenAIMaxTokens = 512
	return cfg
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://api.example.com/v1", "https://api.example.com/v1/chat/completions"},
		{"https://api.example.com/v1/", "https://api.example.com/v1/chat/completions"},
	}
	for _, tt := range tests {
		if got := joinURL(tt.base, chatCompletionsPath); got != tt.want {
			t.Errorf("joinURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestChatSendsBearerAuthAndTokenMode(t *testing.T) {
	var gotReq map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testutil.FakeOpenAIKey {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotReq)
		_ = json.NewEncoder(w).Encode(ChatResponse{
			Choices: []Choice{{Message: Message{Role: RoleAssistant, Content: "hi"}, FinishReason: "stop"}},
		})
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	resp, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hello"}}, nil)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "hi" {
		t.Errorf("unexpected response: %+v", resp)
	}

	if _, ok := gotReq["max_tokens"]; !ok {
		t.Error("expected max_tokens in request for default token mode")
	}
	if _, ok := gotReq["max_completion_tokens"]; ok {
		t.Error("max_completion_tokens must not be set in max_tokens mode")
	}
}

func TestChatMaxCompletionTokensMode(t *testing.T) {
	var gotReq map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotReq)
		_ = json.NewEncoder(w).Encode(ChatResponse{Choices: []Choice{{Message: Message{Content: "ok"}}}})
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.OpenAITokenMode = config.TokenModeMaxCompletionTokens
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if _, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, nil); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if _, ok := gotReq["max_completion_tokens"]; !ok {
		t.Error("expected max_completion_tokens in request")
	}
	if _, ok := gotReq["max_tokens"]; ok {
		t.Error("max_tokens must not be set in max_completion_tokens mode")
	}
}

func TestChatIncludesTools(t *testing.T) {
	var gotReq map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotReq)
		_ = json.NewEncoder(w).Encode(ChatResponse{Choices: []Choice{{Message: Message{Content: "ok"}}}})
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	opts := &ChatOptions{
		Tools: []Tool{{
			Type: "function",
			Function: ToolSpec{
				Name:        "search_code",
				Description: "Search project code",
				Parameters:  json.RawMessage(`{"type":"object"}`),
			},
		}},
	}
	if _, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, opts); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	tools, ok := gotReq["tools"].([]any)
	if !ok || len(tools) != 1 {
		t.Fatalf("expected 1 tool in request, got %v", gotReq["tools"])
	}
}

func TestChatSurfacesModelError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, nil)
	modelErr, ok := err.(*ModelError)
	if !ok {
		t.Fatalf("expected *ModelError, got %v", err)
	}
	if modelErr.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want 429", modelErr.Status)
	}
}

func TestNewClientRejectsBadCertPath(t *testing.T) {
	cfg := testConfig("https://example.com")
	cfg.ClientCertPath = "/nonexistent/cert.pem"
	cfg.ClientKeyPath = "/nonexistent/key.pem"
	if _, err := NewClient(cfg); err == nil {
		t.Error("expected error for missing certificate files")
	}
}
