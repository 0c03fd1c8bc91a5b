package completion

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

	"github.com/tokenledger/tokenledger/internal/model"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 100
)

// Client talks to an OpenAI-compatible chat completions endpoint.
// Works with OpenAI, Together, Ollama and other compatible servers.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Provider = (*Client)(nil)

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithMaxTokens caps the reply length requested from the provider.
func WithMaxTokens(n int) Option {
	return func(cl *Client) { cl.maxTokens = n }
}

// NewClient creates an OpenAI-compatible completion client.
func NewClient(baseURL, apiKey, modelName string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      modelName,
		maxTokens:  defaultMaxTokens,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.With("component", "completion.client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiRequest is the OpenAI chat completion request format.
type apiRequest struct {
	Model     string       `json:"model"`
	Messages  []apiMessage `json:"messages"`
	MaxTokens int          `json:"max_tokens,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// apiResponse is the OpenAI chat completion response format.
type apiResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message      apiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends the history to the provider and returns the reply with
// its reported total token cost. A zero reported cost falls back to the
// character-based estimate of the reply.
func (c *Client) Complete(ctx context.Context, history []model.Turn) (Result, error) {
	msgs := make([]apiMessage, len(history))
	for i, t := range history {
		msgs[i] = apiMessage{Role: string(t.Role), Content: t.Content}
	}

	body, err := json.Marshal(apiRequest{
		Model:     c.model,
		Messages:  msgs,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("provider request failed", "error", err)
		return Result{}, ErrProviderFailure
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		// Read a bounded slice of the body for diagnostics only.
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		c.logger.Error("provider returned error status",
			"status", httpResp.StatusCode,
			"body", string(snippet),
		)
		return Result{}, ErrProviderFailure
	}

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		c.logger.Error("provider response decode failed", "error", err)
		return Result{}, ErrProviderFailure
	}

	if len(resp.Choices) == 0 {
		c.logger.Error("provider returned no choices", "response_id", resp.ID)
		return Result{}, ErrProviderFailure
	}

	content := resp.Choices[0].Message.Content
	tokens := resp.Usage.TotalTokens
	if tokens == 0 {
		tokens = estimateFallback(content)
	}

	return Result{Content: content, Tokens: tokens}, nil
}

// estimateFallback mirrors the conversation package's estimate without
// importing it (keeps this package dependency-free of the store side).
func estimateFallback(text string) int64 {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return int64((n + 3) / 4)
}
