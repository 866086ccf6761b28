package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// ChatBackendError reports a failed completion call. StatusCode is zero when
// the backend could not be reached.
type ChatBackendError struct {
	StatusCode int
	Err        error
}

func (e *ChatBackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("chat backend error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("chat backend error: %v", e.Err)
}

func (e *ChatBackendError) Unwrap() error { return e.Err }

// Config holds LLM client configuration.
type Config struct {
	BaseURL     string // OpenAI-compatible API root, e.g. "http://localhost:11434/v1"
	SocketPath  string // Unix socket path for Docker Model Runner
	Path        string // default "/chat/completions"
	Model       string // Model name (e.g., "ai/gemma3")
	APIKey      string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// Client wraps an OpenAI-compatible chat completions API.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	model       string
	apiKey      string
	maxTokens   int
	temperature float64
}

// New creates a new LLM client.
func New(config Config) (*Client, error) {
	if config.SocketPath == "" && config.BaseURL == "" {
		return nil, fmt.Errorf("base url or socket path is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if config.Path == "" {
		config.Path = "/chat/completions"
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Minute
	}

	transport := http.DefaultTransport
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if config.SocketPath != "" {
		socketPath := config.SocketPath
		transport = &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		}
		if baseURL == "" {
			baseURL = "http://localhost/exp/vDD4.40/engines/llama.cpp/v1"
		}
	}

	return &Client{
		httpClient:  &http.Client{Transport: transport, Timeout: config.Timeout},
		endpoint:    baseURL + "/" + strings.TrimLeft(config.Path, "/"),
		model:       config.Model,
		apiKey:      config.APIKey,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func SystemMessage(content string) Message { return Message{Role: "system", Content: content} }

func UserMessage(content string) Message { return Message{Role: "user", Content: content} }

// chatRequest is the request payload for the chat completions API.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

// chatResponse is the response from the chat completions API.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Chat sends messages and returns the assistant's reply. maxTokens of 0 uses
// the configured limit.
func (c *Client) Chat(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	req := chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", &ChatBackendError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &ChatBackendError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	slog.Debug("chat completion", "model", c.model, "messages", len(messages), "max_tokens", maxTokens)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &ChatBackendError{Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ChatBackendError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &ChatBackendError{StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(respBody)))}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", &ChatBackendError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}

	if chatResp.Error != nil {
		return "", &ChatBackendError{StatusCode: resp.StatusCode, Err: errors.New(chatResp.Error.Message)}
	}

	if len(chatResp.Choices) == 0 {
		return "", &ChatBackendError{StatusCode: resp.StatusCode, Err: errors.New("no response returned")}
	}

	answer := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if answer == "" {
		return "", &ChatBackendError{StatusCode: resp.StatusCode, Err: errors.New("empty completion")}
	}
	return answer, nil
}
