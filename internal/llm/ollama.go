// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pdiddy/deep-research/internal/httputil"
)

// ollama talks to a local Ollama server without streaming.
type ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaResponse struct {
	Response string  `json:"response"`
	Message  Message `json:"message"`
	Error    string  `json:"error"`
}

func (o *ollama) complete(ctx context.Context, req request) (string, error) {
	opts := ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens}

	var (
		path string
		body any
	)
	if req.Messages != nil {
		path = "/api/chat"
		body = ollamaChatRequest{Model: o.model, Messages: req.Messages, Options: opts}
	} else {
		path = "/api/generate"
		body = ollamaGenerateRequest{Model: o.model, Prompt: req.Prompt, System: req.System, Options: opts}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httputil.DoWithRetry(ctx, o.client, httpReq, 2)
	if err != nil {
		return "", fmt.Errorf("calling Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("Ollama returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding Ollama response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("Ollama: %s", out.Error)
	}
	if req.Messages != nil {
		return out.Message.Content, nil
	}
	return out.Response, nil
}
