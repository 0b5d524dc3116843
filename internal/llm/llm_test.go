// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) ObserveLLM(op, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op+":"+outcome)
}

func TestOllamaGenerate(t *testing.T) {
	var got ollamaGenerateRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"response":"Photosynthesis converts light."}`)
	}))
	defer ts.Close()

	rec := &callRecorder{}
	c, err := New(types.LLMConfig{Provider: types.ProviderOllama, Model: "llama3.1:8b", BaseURL: ts.URL + "/", Temperature: 0.7},
		ts.Client(), zaptest.NewLogger(t), rec)
	require.NoError(t, err)

	text := c.Generate(context.Background(), "Explain photosynthesis", GenerateOptions{System: "Be brief", MaxTokens: 100})
	assert.Equal(t, "Photosynthesis converts light.", text)
	assert.Equal(t, "llama3.1:8b", got.Model)
	assert.Equal(t, "Be brief", got.System)
	assert.False(t, got.Stream)
	assert.Equal(t, 0.7, got.Options.Temperature)
	assert.Equal(t, 100, got.Options.NumPredict)
	assert.Equal(t, []string{"generate:ok"}, rec.calls)
}

func TestOllamaChat(t *testing.T) {
	var got ollamaChatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"hi there"}}`)
	}))
	defer ts.Close()

	c, err := New(types.LLMConfig{BaseURL: ts.URL, Model: "m", Temperature: 0.7}, ts.Client(), zaptest.NewLogger(t), nil)
	require.NoError(t, err)

	text := c.Chat(context.Background(), []Message{{Role: "user", Content: "hello"}}, 0.2)
	assert.Equal(t, "hi there", text)
	assert.Equal(t, 0.2, got.Options.Temperature)
	require.Len(t, got.Messages, 1)
}

func TestGatewayFailuresBecomeDiagnostics(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{"http error", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, "model not loaded")
		}, "500"},
		{"api error field", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"error":"model 'x' not found"}`)
		}, "not found"},
		{"empty response", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"response":"   "}`)
		}, "empty response"},
		{"bad json", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{`)
		}, "decoding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			rec := &callRecorder{}
			c, err := New(types.LLMConfig{BaseURL: ts.URL, Model: "m"}, ts.Client(), zaptest.NewLogger(t), rec)
			require.NoError(t, err)

			text := c.Generate(context.Background(), "p", GenerateOptions{})
			assert.True(t, IsDiagnostic(text), text)
			assert.Contains(t, text, tt.want)
			assert.Equal(t, []string{"generate:error"}, rec.calls)
		})
	}
}

func TestGatewayTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	c, err := New(types.LLMConfig{BaseURL: ts.URL, Model: "m", Timeout: 20 * time.Millisecond}, ts.Client(), zaptest.NewLogger(t), nil)
	require.NoError(t, err)

	text := c.Generate(context.Background(), "p", GenerateOptions{})
	assert.True(t, IsDiagnostic(text))
}

func TestGatewayUnreachable(t *testing.T) {
	c, err := New(types.LLMConfig{BaseURL: "http://127.0.0.1:1", Model: "m"}, nil, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	assert.True(t, IsDiagnostic(c.Generate(context.Background(), "p", GenerateOptions{})))
}

func TestAnthropicGenerate(t *testing.T) {
	var got anthropicRequest
	var key, version string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("x-api-key")
		version = r.Header.Get("anthropic-version")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"content":[{"type":"text","text":"part one, "},{"type":"tool_use"},{"type":"text","text":"part two"}]}`)
	}))
	defer ts.Close()

	old := anthropicAPIURL
	anthropicAPIURL = ts.URL
	defer func() { anthropicAPIURL = old }()

	c, err := New(types.LLMConfig{Provider: types.ProviderAnthropic, APIKey: "sk-test", Model: "claude", Temperature: 0.7},
		ts.Client(), zaptest.NewLogger(t), nil)
	require.NoError(t, err)

	text := c.Generate(context.Background(), "question", GenerateOptions{System: "sys"})
	assert.Equal(t, "part one, part two", text)
	assert.Equal(t, "sk-test", key)
	assert.Equal(t, "2023-06-01", version)
	assert.Equal(t, "sys", got.System)
	assert.Equal(t, 4096, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, Message{Role: "user", Content: "question"}, got.Messages[0])
}

func TestAnthropicChatMovesSystemTurns(t *testing.T) {
	var got anthropicRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"content":[{"type":"text","text":"ok"}]}`)
	}))
	defer ts.Close()

	old := anthropicAPIURL
	anthropicAPIURL = ts.URL
	defer func() { anthropicAPIURL = old }()

	c, err := New(types.LLMConfig{Provider: types.ProviderAnthropic, APIKey: "k", Model: "claude"}, ts.Client(), zaptest.NewLogger(t), nil)
	require.NoError(t, err)

	c.Chat(context.Background(), []Message{
		{Role: "system", Content: "You are terse."},
		{Role: "user", Content: "hi"},
	}, 0)
	assert.Equal(t, "You are terse.", got.System)
	assert.Equal(t, []Message{{Role: "user", Content: "hi"}}, got.Messages)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(types.LLMConfig{Provider: types.ProviderAnthropic}, nil, nil, nil)
	assert.Error(t, err)
	_, err = New(types.LLMConfig{Provider: "gpt"}, nil, nil, nil)
	assert.Error(t, err)
}
