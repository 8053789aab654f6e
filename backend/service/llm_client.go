package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bluebridge/termsheet-ingest/backend/config"
	"github.com/bluebridge/termsheet-ingest/backend/pkg/logger"
)

// ErrLLMUnavailable is returned when no API key is configured
var ErrLLMUnavailable = errors.New("llm client unavailable")

// ChatMessage is one message of an OpenAI-compatible chat completion
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool declares a function the model may call
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Tools       []Tool        `json:"tools,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// ChatClient calls an OpenAI-compatible /chat/completions endpoint
type ChatClient struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	retry      RetryConfig
	httpClient *http.Client
}

// NewChatClient creates a client from cfg. A negative MaxRetries means no retries.
func NewChatClient(cfg *config.LLMConfig) *ChatClient {
	return &ChatClient{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: strings.TrimSuffix(cfg.APIURL, "/"),
		timeout: cfg.Timeout,
		retry: RetryConfig{
			MaxRetries:     max(cfg.MaxRetries, 0),
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
		},
		httpClient: &http.Client{},
	}
}

// Available reports whether the client has credentials
func (c *ChatClient) Available() bool {
	return c.apiKey != ""
}

// Complete sends one chat completion request, retrying 429 and 5xx responses
func (c *ChatClient) Complete(ctx context.Context, request ChatRequest) (ChatMessage, error) {
	if !c.Available() {
		return ChatMessage{}, ErrLLMUnavailable
	}

	encoded, err := json.Marshal(request)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("marshal chat request: %w", err)
	}

	lastErr := errors.New("llm request was not attempted")
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		msg, callErr := c.call(ctx, encoded)
		if callErr == nil {
			return msg, nil
		}
		lastErr = callErr

		if !isRetryable(callErr) || attempt == c.retry.MaxRetries {
			break
		}

		backoff := c.backoff(attempt)
		logger.Warn(ctx, "LLM request failed, retrying",
			"attempt", attempt+1,
			"max_retries", c.retry.MaxRetries,
			"backoff", backoff,
			"error", callErr,
		)

		select {
		case <-ctx.Done():
			return ChatMessage{}, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return ChatMessage{}, lastErr
}

func (c *ChatClient) backoff(attempt int) time.Duration {
	backoff := float64(c.retry.InitialBackoff) * math.Pow(2, float64(attempt))
	if backoff > float64(c.retry.MaxBackoff) {
		backoff = float64(c.retry.MaxBackoff)
	}
	return time.Duration(backoff)
}

func (c *ChatClient) call(ctx context.Context, payload []byte) (ChatMessage, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return ChatMessage{}, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ChatMessage{}, fmt.Errorf("llm timeout: %w", err)
		}
		return ChatMessage{}, fmt.Errorf("llm transport error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := truncateText(strings.TrimSpace(string(body)), maxErrorBodyBytes)
		return ChatMessage{}, &llmHTTPError{StatusCode: resp.StatusCode, Message: message}
	}

	var raw chatResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return ChatMessage{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(raw.Choices) == 0 {
		return ChatMessage{}, errors.New("chat response without choices")
	}

	logger.Debug(ctx, "LLM response",
		"model", raw.Model,
		"finish_reason", raw.Choices[0].FinishReason,
		"prompt_tokens", raw.Usage.PromptTokens,
		"completion_tokens", raw.Usage.CompletionTokens,
	)
	return raw.Choices[0].Message, nil
}

// maxErrorBodyBytes bounds the response body quoted in an llmHTTPError
const maxErrorBodyBytes = 700

// truncateText cuts s to at most limit bytes without splitting a UTF-8 sequence
func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

type llmHTTPError struct {
	StatusCode int
	Message    string
}

func (e *llmHTTPError) Error() string {
	return fmt.Sprintf("llm status %d: %s", e.StatusCode, e.Message)
}

func isRetryable(err error) bool {
	var httpErr *llmHTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
