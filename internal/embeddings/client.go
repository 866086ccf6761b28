package embeddings

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

	"golang.org/x/time/rate"

	"github.com/leadai/leadai-rag/internal/index"
)

// Config holds embeddings client configuration.
type Config struct {
	BaseURL    string        // e.g. "http://localhost:11434/v1"; ignored host when SocketPath is set
	SocketPath string        // Unix socket path for Docker Model Runner
	Path       string        // endpoint path appended to BaseURL (default "/embeddings")
	Model      string        // model name (e.g. "nomic-embed-text")
	APIKey     string        // optional bearer token
	Dimension  int           // expected vector length; 0 disables the check
	Timeout    time.Duration // per request
	RateLimit  float64       // requests per second; 0 disables limiting
	Burst      int
	MaxRetries int
}

// Client wraps an OpenAI- or Ollama-compatible embeddings API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	baseURL    string
	model      string
	apiKey     string
	dimension  int
	limiter    *rate.Limiter
	maxRetries int
}

// MaxInputChars limits each input to stay within the model context window.
const MaxInputChars = 20000

// probeText is embedded once to discover the backend's vector length.
const probeText = "dimension probe"

// New creates a new embeddings client.
func New(config Config) (*Client, error) {
	if config.SocketPath == "" && config.BaseURL == "" {
		return nil, fmt.Errorf("base url or socket path is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if config.Path == "" {
		config.Path = "/embeddings"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
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

	c := &Client{
		httpClient: &http.Client{Transport: transport, Timeout: config.Timeout},
		endpoint:   baseURL + "/" + strings.TrimLeft(config.Path, "/"),
		baseURL:    baseURL,
		model:      config.Model,
		apiKey:     config.APIKey,
		dimension:  config.Dimension,
		maxRetries: config.MaxRetries,
	}
	if config.RateLimit > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}
	return c, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Dimension returns the expected vector length, 0 when unchecked.
func (c *Client) Dimension() int { return c.dimension }

// WithDimension returns a copy of the client that enforces the given vector length.
func (c *Client) WithDimension(dim int) *Client {
	cp := *c
	cp.dimension = dim
	return &cp
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// Embed returns one vector per input text, issued as a single request.
// Inputs exceeding MaxInputChars are truncated from the end.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(texts))
	for i, t := range texts {
		if len(t) > MaxInputChars {
			t = strings.ToValidUTF8(t[:MaxInputChars], "")
		}
		inputs[i] = t
	}

	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: inputs})
	if err != nil {
		return nil, &EmbeddingError{Reason: "marshal request", Err: err}
	}

	slog.Debug("generating embeddings", "model", c.model, "inputs", len(inputs))
	respBody, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}

	vectors, err := Normalize(respBody, len(inputs))
	if err != nil {
		return nil, err
	}

	if c.dimension > 0 {
		for _, v := range vectors {
			if len(v) != c.dimension {
				return nil, &index.DimensionMismatchError{Expected: c.dimension, Got: len(v)}
			}
		}
	}
	return vectors, nil
}

// EmbedQuery embeds a single text.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Probe embeds a fixed text and returns the vector length the backend produces.
func (c *Client) Probe(ctx context.Context) (int, error) {
	unchecked := c.WithDimension(0)
	v, err := unchecked.EmbedQuery(ctx, probeText)
	if err != nil {
		return 0, err
	}
	return len(v), nil
}

// Ping checks the backend is reachable. It lists models and falls back to a
// probe embedding when the backend has no models endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create ping request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &EmbeddingError{Reason: "backend unreachable", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed:
		_, err := c.Probe(ctx)
		return err
	default:
		return &EmbeddingError{Reason: fmt.Sprintf("backend returned status %d", resp.StatusCode)}
	}
}

// post sends the request with retries on transport errors, 429 and 5xx.
func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &EmbeddingError{Reason: "request cancelled", Err: ctx.Err()}
			case <-time.After(retryDelay(attempt - 1)):
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, &EmbeddingError{Reason: "rate limiter", Err: err}
			}
		}

		respBody, retry, err := c.do(ctx, body)
		if err == nil {
			return respBody, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
		slog.Debug("retrying embedding request", "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, body []byte) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, &EmbeddingError{Reason: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, &EmbeddingError{Reason: "backend unreachable", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, &EmbeddingError{Reason: "read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retry, &EmbeddingError{
			Reason: fmt.Sprintf("API error (status %d)", resp.StatusCode),
			Err:    errors.New(strings.TrimSpace(string(respBody))),
		}
	}
	return respBody, false, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func retryDelay(attempt int) time.Duration {
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second || d <= 0 {
		d = 5 * time.Second
	}
	return d
}
