// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/deep-research/internal/research"
	"github.com/pdiddy/deep-research/internal/secrets"
	"github.com/pdiddy/deep-research/pkg/types"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(viper.New())

	assert.Equal(t, 5, cfg.Search.MaxWorkers)
	assert.Equal(t, 30*time.Second, cfg.Search.BackendTimeout)
	assert.Equal(t, 45*time.Second, cfg.Search.GlobalTimeout)
	assert.Equal(t, 5, cfg.Search.FetchTopK)
	assert.Equal(t, "http://localhost:8080", cfg.Search.SearXNGURL)
	assert.True(t, cfg.Search.EnableSearXNG)
	assert.True(t, cfg.Search.EnableWikipedia)
	assert.True(t, cfg.Search.EnableArxiv)
	assert.True(t, cfg.Search.EnableDuckDuckGo)
	assert.False(t, cfg.Search.EnableGitHub)

	assert.Equal(t, types.ProviderOllama, cfg.LLM.Provider)
	assert.Equal(t, "llama3.1:8b", cfg.LLM.Model)
	assert.Equal(t, 120*time.Second, cfg.LLM.Timeout)

	assert.Equal(t, 3, cfg.Research.MaxIterations)
	assert.Equal(t, 0.85, cfg.Research.ConfidenceThreshold)
	assert.Equal(t, "source-based", cfg.Research.DefaultStrategy)

	assert.Equal(t, 3, cfg.Orchestrator.Workers)
	assert.Equal(t, 1024, cfg.Orchestrator.MaxTasks)
	assert.Equal(t, "data/research.db", cfg.Store.Path)
	assert.Empty(t, cfg.Progress.RedisAddr)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
search:
  max_workers: 8
  enable_duckduckgo: false
llm:
  provider: Anthropic
  model: claude-test
research:
  parallel_timeout: 90s
`)))
	t.Setenv("DEEP_RESEARCH_ORCHESTRATOR_WORKERS", "6")

	cfg := LoadConfig(v)
	assert.Equal(t, 8, cfg.Search.MaxWorkers)
	assert.False(t, cfg.Search.EnableDuckDuckGo)
	assert.Equal(t, types.ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, "claude-test", cfg.LLM.Model)
	assert.Equal(t, 90*time.Second, cfg.Research.ParallelTimeout)
	assert.Equal(t, 6, cfg.Orchestrator.Workers)
}

func TestApplySecrets(t *testing.T) {
	s := map[string]string{
		secrets.GitHubToken:   "ghp_x",
		secrets.OpenAlexEmail: "me@example.com",
	}

	t.Run("credentials enable their backends", func(t *testing.T) {
		v := viper.New()
		cfg := LoadConfig(v)
		ApplySecrets(&cfg, v, s)
		assert.Equal(t, "ghp_x", cfg.Search.GitHubToken)
		assert.True(t, cfg.Search.EnableGitHub)
		assert.True(t, cfg.Search.EnableOpenAlex)
		assert.False(t, cfg.Search.EnableSemanticScholar)
	})

	t.Run("explicit setting wins", func(t *testing.T) {
		v := viper.New()
		v.Set("search.enable_github", false)
		cfg := LoadConfig(v)
		ApplySecrets(&cfg, v, s)
		assert.False(t, cfg.Search.EnableGitHub)
	})
}

func TestNewLogger(t *testing.T) {
	for _, asJSON := range []bool{true, false} {
		logger, err := NewLogger("debug", asJSON)
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(-1))
	}
	_, err := NewLogger("loud", false)
	assert.ErrorContains(t, err, "log level")
}

// testConfig returns a config that talks only to servers started by the
// test and keeps state under t.TempDir.
func testConfig(t *testing.T, searxngURL, ollamaURL string) types.Config {
	t.Helper()
	v := viper.New()
	v.Set("search.searxng_url", searxngURL)
	v.Set("search.enable_wikipedia", false)
	v.Set("search.enable_arxiv", false)
	v.Set("search.enable_duckduckgo", false)
	v.Set("search.requests_per_second", 1000)
	v.Set("llm.base_url", ollamaURL)
	v.Set("store.path", filepath.Join(t.TempDir(), "research.db"))
	return LoadConfig(v)
}

func TestNewSearchOnly(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1", "http://127.0.0.1:1")
	a, err := New(context.Background(), cfg, zaptest.NewLogger(t), Options{})
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.NotNil(t, a.Search)
	assert.Len(t, a.Search.Backends(), 2, "searxng and searxng-news")
	assert.Nil(t, a.LLM)
	assert.Nil(t, a.Store)
	assert.Nil(t, a.Orchestrator)
}

func TestNewWithoutBackends(t *testing.T) {
	cfg := testConfig(t, "", "http://127.0.0.1:1")
	_, err := New(context.Background(), cfg, zaptest.NewLogger(t), Options{})
	assert.ErrorContains(t, err, "no search backends")
}

func TestNewRejectsAnthropicWithoutKey(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1", "")
	cfg.LLM.Provider = types.ProviderAnthropic
	_, err := New(context.Background(), cfg, zaptest.NewLogger(t), Options{Orchestrator: true})
	assert.ErrorContains(t, err, "language model")
}

func TestNewDialsProgressFeed(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, "http://127.0.0.1:1", "http://127.0.0.1:1")
	cfg.Progress.RedisAddr = mr.Addr()

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t), Options{Orchestrator: true})
	require.NoError(t, err)
	require.NotNil(t, a.Feed)
	require.NoError(t, a.Close(context.Background()))
}

func TestDefaultStrategy(t *testing.T) {
	a := &App{Logger: zaptest.NewLogger(t)}
	a.Config.Research.DefaultStrategy = "parallel"
	assert.Equal(t, research.Parallel, a.DefaultStrategy())
	a.Config.Research.DefaultStrategy = "guesswork"
	assert.Equal(t, research.Default, a.DefaultStrategy())
}

// TestResearchEndToEnd runs a rapid task through the real aggregator,
// gateway, orchestrator and SQLite store against fake upstreams.
func TestResearchEndToEnd(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/search":
			w.Header().Set("Content-Type", "application/json")
			results := []map[string]any{}
			for i := 1; i <= 3; i++ {
				results = append(results, map[string]any{
					"title":   fmt.Sprintf("Photosynthesis part %d", i),
					"url":     fmt.Sprintf("%s/page/%d", srv.URL, i),
					"content": "Plants convert light into chemical energy.",
				})
			}
			json.NewEncoder(w).Encode(map[string]any{"results": results})
		case strings.HasPrefix(r.URL.Path, "/page/"):
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html><body><p>Chlorophyll absorbs light.</p></body></html>")
		case r.URL.Path == "/api/generate":
			json.NewEncoder(w).Encode(map[string]any{"response": "Plants turn light into sugar [1]."})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL, srv.URL)
	a, err := New(context.Background(), cfg, zaptest.NewLogger(t), Options{Orchestrator: true, Recover: true})
	require.NoError(t, err)

	id, err := a.Orchestrator.Submit(context.Background(), "What is photosynthesis?", research.Rapid)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, err := a.Orchestrator.Wait(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, snap.Status, snap.Error)

	state, ok := a.Orchestrator.Result(id)
	require.True(t, ok)
	assert.Equal(t, "Plants turn light into sugar [1].", state.KnowledgeSummary)
	assert.Len(t, state.Sources, 3)
	assert.Equal(t, 1, state.TotalSearches, "knowledge query routes to the general backend only")

	require.NoError(t, a.Close(context.Background()))

	// The durable record survives the process.
	b, err := New(context.Background(), cfg, zaptest.NewLogger(t), Options{Orchestrator: true})
	require.NoError(t, err)
	defer b.Close(context.Background())
	rec, err := b.Store.ReadTask(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, rec.Status)
	assert.Equal(t, "Plants turn light into sugar [1].", rec.ResultKnowledge)
	assert.Contains(t, rec.ResultSources, "/page/1")
}
