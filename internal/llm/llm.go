// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm is the gateway to the language model used for decomposition,
// synthesis and judgement calls.
//
// Gateway methods never return an error. A failed call yields a diagnostic
// string starting with DiagnosticPrefix so callers can keep going with
// degraded output; IsDiagnostic detects it.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/pkg/types"
)

// DiagnosticPrefix starts every failure string returned by a Gateway.
const DiagnosticPrefix = "Error: LLM generation failed - "

// Message is one turn in a chat.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateOptions tunes a single Generate call. Zero values use the
// gateway defaults.
type GenerateOptions struct {
	System      string
	Temperature float64
	MaxTokens   int
}

// Gateway produces text from a language model.
type Gateway interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) string
	Chat(ctx context.Context, messages []Message, temperature float64) string
}

// IsDiagnostic reports whether text is a failure diagnostic.
func IsDiagnostic(text string) bool {
	return strings.HasPrefix(text, DiagnosticPrefix)
}

// Recorder observes model calls. The metrics package implements it.
type Recorder interface {
	ObserveLLM(op, outcome string, elapsed time.Duration)
}

// request is the provider-neutral form of a call. Prompt is set for
// Generate, Messages for Chat.
type request struct {
	System      string
	Prompt      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// provider sends one request to a model API.
type provider interface {
	complete(ctx context.Context, req request) (string, error)
}

// Client implements Gateway over a provider. It applies defaults and the
// per-call timeout, and turns errors into diagnostics.
type Client struct {
	provider provider
	cfg      types.LLMConfig
	logger   *zap.Logger
	recorder Recorder
}

// New returns a Client for cfg.Provider.
func New(cfg types.LLMConfig, hc *http.Client, logger *zap.Logger, recorder Recorder) (*Client, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	var p provider
	switch cfg.Provider {
	case types.ProviderOllama, "":
		p = &ollama{baseURL: strings.TrimRight(cfg.BaseURL, "/"), model: cfg.Model, client: hc}
	case types.ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider needs an API key (anthropic-api-key secret)")
		}
		p = &anthropic{apiKey: cfg.APIKey, model: cfg.Model, client: hc}
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
	return &Client{provider: p, cfg: cfg, logger: logger, recorder: recorder}, nil
}

// Generate completes a single prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts GenerateOptions) string {
	return c.do(ctx, "generate", request{
		System:      opts.System,
		Prompt:      prompt,
		Temperature: c.temperature(opts.Temperature),
		MaxTokens:   c.maxTokens(opts.MaxTokens),
	})
}

// Chat continues a conversation.
func (c *Client) Chat(ctx context.Context, messages []Message, temperature float64) string {
	if messages == nil {
		messages = []Message{}
	}
	return c.do(ctx, "chat", request{
		Messages:    messages,
		Temperature: c.temperature(temperature),
		MaxTokens:   c.cfg.MaxTokens,
	})
}

func (c *Client) do(ctx context.Context, op string, req request) string {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	text, err := c.provider.complete(ctx, req)
	elapsed := time.Since(start)

	outcome := "ok"
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("empty response")
	}
	if err != nil {
		outcome = "error"
		c.logger.Warn("llm call failed",
			zap.String("op", op), zap.String("model", c.cfg.Model), zap.Error(err), zap.Duration("elapsed", elapsed))
		text = DiagnosticPrefix + err.Error()
	}
	if c.recorder != nil {
		c.recorder.ObserveLLM(op, outcome, elapsed)
	}
	return text
}

func (c *Client) temperature(t float64) float64 {
	if t > 0 {
		return t
	}
	return c.cfg.Temperature
}

func (c *Client) maxTokens(n int) int {
	if n > 0 {
		return n
	}
	return c.cfg.MaxTokens
}
