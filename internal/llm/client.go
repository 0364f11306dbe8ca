// Package llm is a client for an OpenAI-compatible chat-completions
// endpoint, with optional tool use and mutual-TLS client certificates.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alekspetrov/concierge/internal/config"
	"github.com/alekspetrov/concierge/internal/logging"
)

const (
	defaultBaseURL      = "https://api.openai.com/v1"
	chatCompletionsPath = "chat/completions"
)

// ModelError is a non-2xx response from the chat endpoint.
type ModelError struct {
	Status int
	Body   string
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model API error (status %d): %s", e.Status, e.Body)
}

// Client calls the chat-completions endpoint. It is safe for concurrent use.
type Client struct {
	apiKey      string
	endpoint    string
	model       string
	temperature float64
	maxTokens   int
	tokenMode   string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient builds a model client from configuration. When client
// certificates are configured they are loaded eagerly so a bad cert fails
// at startup rather than on the first mention.
func NewClient(cfg *config.Config) (*Client, error) {
	baseURL := cfg.OpenAICustomURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ClientCertPath != "" && cfg.ClientKeyPath != "" {
		tlsConfig, err := loadClientTLS(cfg.ClientCertPath, cfg.ClientKeyPath, cfg.ClientKeyPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
	}

	return &Client{
		apiKey:      cfg.OpenAIAPIKey,
		endpoint:    joinURL(baseURL, chatCompletionsPath),
		model:       cfg.OpenAIModel,
		temperature: cfg.OpenAITemperature,
		maxTokens:   cfg.OpenAIMaxTokens,
		tokenMode:   cfg.OpenAITokenMode,
		httpClient: &http.Client{
			Timeout:   120 * time.Second,
			Transport: transport,
		},
		logger: logging.WithComponent("llm-client"),
	}, nil
}

// joinURL joins a base URL and a relative path, tolerating a missing
// trailing slash on the base.
func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + path
}

// Chat sends messages (and optional tool specs) to the model and returns
// its response.
func (c *Client) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*ChatResponse, error) {
	req := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	}
	switch c.tokenMode {
	case config.TokenModeMaxCompletionTokens:
		req.MaxCompletionTokens = c.maxTokens
	default:
		req.MaxTokens = c.maxTokens
	}
	if opts != nil {
		req.Tools = opts.Tools
		req.ToolChoice = opts.ToolChoice
		req.ResponseFormat = opts.ResponseFormat
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Debug("Sending chat request",
		slog.String("model", c.model),
		slog.Int("messages", len(messages)),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ModelError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse chat response: %w", err)
	}

	return &chatResp, nil
}
