package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dshills/issuematch-mcp/internal/retry"
)

const (
	// DefaultBaseURL is the OpenAI API endpoint
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is the chat model used for overviews
	DefaultModel = "gpt-4o-mini"
	// DefaultMaxTokens bounds the length of an overview
	DefaultMaxTokens = 1024
	// DefaultTimeout bounds one chat completion request
	DefaultTimeout = 60 * time.Second
)

var (
	ErrNoAPIKey      = errors.New("summarizer api key not set")
	ErrEmptyResponse = errors.New("summarizer returned no content")
)

// Summarizer turns a prompt into free text
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// Func adapts a function to the Summarizer interface
type Func func(ctx context.Context, prompt string) (string, error)

// Summarize calls f
func (f Func) Summarize(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ClientConfig configures an OpenAIClient
type ClientConfig struct {
	APIKey     string
	BaseURL    string // Optional: any OpenAI-compatible endpoint
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	Retry      *retry.Config // Optional: defaults to retry.Default()
	HTTPClient *http.Client
}

// OpenAIClient implements Summarizer for OpenAI-compatible chat completion APIs
type OpenAIClient struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	retry     retry.Config
	http      *http.Client
}

// NewOpenAIClient creates a chat completions client
func NewOpenAIClient(cfg ClientConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	rc := retry.Default()
	if cfg.Retry != nil {
		rc = *cfg.Retry
	}

	return &OpenAIClient{
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		retry:     rc,
		http:      cfg.HTTPClient,
	}, nil
}

// Model returns the chat model name
func (c *OpenAIClient) Model() string { return c.model }

// Summarize sends prompt as a single user message and returns the first choice
func (c *OpenAIClient) Summarize(ctx context.Context, prompt string) (string, error) {
	return retry.Do(ctx, c.retry, func() (string, error) {
		return c.complete(ctx, prompt)
	})
}

func (c *OpenAIClient) complete(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens": c.maxTokens,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion: %s: %s", resp.Status, respBody)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return result.Choices[0].Message.Content, nil
}
