package llm

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"no address", Config{Model: "ai/gemma3"}, true},
		{"empty model", Config{SocketPath: "/tmp/test.sock"}, true},
		{"socket", Config{SocketPath: "/tmp/test.sock", Model: "ai/gemma3"}, false},
		{"base url", Config{BaseURL: "http://localhost:11434/v1", Model: "llama3"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestChat_SendsMessages(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Grounded answer [1]. "}}]}`))
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL + "/v1", Model: "m", APIKey: "key", MaxTokens: 256, Temperature: 0.1})
	require.NoError(t, err)

	answer, err := client.Chat(context.Background(), []Message{SystemMessage("rules"), UserMessage("question")}, 0)
	require.NoError(t, err)
	assert.Equal(t, "Grounded answer [1].", answer)

	assert.Equal(t, "m", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	assert.InDelta(t, 0.1, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestChat_MaxTokensOverride(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL, Model: "m", MaxTokens: 256})
	require.NoError(t, err)
	_, err = client.Chat(context.Background(), []Message{UserMessage("q")}, 64)
	require.NoError(t, err)
	assert.Equal(t, 64, got.MaxTokens)
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"http error", http.StatusServiceUnavailable, "model loading", 503, "model loading"},
		{"api error", http.StatusOK, `{"error":{"message":"context length exceeded"}}`, 200, "context length exceeded"},
		{"no choices", http.StatusOK, `{"choices":[]}`, 200, "no response returned"},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"content":"  "}}]}`, 200, "empty completion"},
		{"bad json", http.StatusOK, `not json`, 200, "unmarshal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, err := New(Config{BaseURL: srv.URL, Model: "m"})
			require.NoError(t, err)

			_, err = client.Chat(context.Background(), []Message{UserMessage("q")}, 0)
			var chatErr *ChatBackendError
			require.True(t, errors.As(err, &chatErr))
			assert.Equal(t, tt.wantStatus, chatErr.StatusCode)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestChat_Unreachable(t *testing.T) {
	client, err := New(Config{SocketPath: filepath.Join(t.TempDir(), "missing.sock"), Model: "m"})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), []Message{UserMessage("q")}, 0)
	var chatErr *ChatBackendError
	require.True(t, errors.As(err, &chatErr))
	assert.Zero(t, chatErr.StatusCode)
}

func TestChat_UnixSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "test.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("Failed to create Unix socket: %v", err)
	}
	defer listener.Close()

	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/exp/vDD4.40/engines/llama.cpp/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"hello"}}]}`))
	})}
	go server.Serve(listener)
	defer server.Close()

	client, err := New(Config{SocketPath: socketPath, Model: "ai/gemma3"})
	require.NoError(t, err)

	got, err := client.Chat(context.Background(), []Message{UserMessage("hi")}, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestChat_RequestBuildFailures(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"unencodable temperature", Config{BaseURL: "http://localhost:1", Model: "m", Temperature: math.NaN()}},
		{"malformed base url", Config{BaseURL: "http://bad host", Model: "m"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)
			require.NoError(t, err)

			_, err = client.Chat(context.Background(), []Message{UserMessage("q")}, 0)
			var chatErr *ChatBackendError
			require.True(t, errors.As(err, &chatErr), "got %v", err)
			assert.Zero(t, chatErr.StatusCode)
		})
	}
}
