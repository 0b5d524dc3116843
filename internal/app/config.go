// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package app

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/deep-research/internal/secrets"
	"github.com/pdiddy/deep-research/pkg/types"
)

// EnvPrefix is the prefix of environment overrides, so search.max_workers
// is read from DEEP_RESEARCH_SEARCH_MAX_WORKERS.
const EnvPrefix = "DEEP_RESEARCH"

var defaults = map[string]any{
	"log.level": "info",
	"log.json":  false,

	"http.timeout":    30 * time.Second,
	"http.user_agent": "deep-research/0.1",

	"search.max_workers":         5,
	"search.backend_timeout":     30 * time.Second,
	"search.global_timeout":      45 * time.Second,
	"search.fetch_timeout":       15 * time.Second,
	"search.fetch_top_k":         5,
	"search.max_content_chars":   5000,
	"search.requests_per_second": 2.0,
	"search.searxng_url":         "http://localhost:8080",
	"search.wikipedia_language":  "en",
	"search.enable_searxng":      true,
	"search.enable_wikipedia":    true,
	"search.enable_arxiv":        true,
	"search.enable_duckduckgo":   true,

	"llm.provider":    string(types.ProviderOllama),
	"llm.model":       "llama3.1:8b",
	"llm.base_url":    "http://localhost:11434",
	"llm.temperature": 0.7,
	"llm.max_tokens":  4096,
	"llm.timeout":     120 * time.Second,

	"research.max_iterations":          3,
	"research.questions_per_iteration": 3,
	"research.confidence_threshold":    0.85,
	"research.parallel_workers":        4,
	"research.parallel_timeout":        60 * time.Second,
	"research.default_strategy":        "source-based",

	"orchestrator.workers":         3,
	"orchestrator.queue_size":      64,
	"orchestrator.max_tasks":       1024,
	"orchestrator.max_error_len":   2000,
	"orchestrator.max_message_len": 200,

	"store.path": "data/research.db",

	"progress.ttl": 24 * time.Hour,
}

// SetDefaults registers every default on v and enables environment
// overrides under EnvPrefix.
func SetDefaults(v *viper.Viper) {
	registerDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func registerDefaults(v *viper.Viper) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// LoadConfig reads the component configuration from v. Keys missing from
// v take the built-in defaults.
func LoadConfig(v *viper.Viper) types.Config {
	registerDefaults(v)
	str, num, float, dur, flag := v.GetString, v.GetInt, v.GetFloat64, v.GetDuration, v.GetBool

	http := types.HTTPConfig{
		Timeout:   dur("http.timeout"),
		UserAgent: str("http.user_agent"),
	}

	cfg := types.Config{
		Search: types.SearchConfig{
			HTTPConfig:        http,
			MaxWorkers:        num("search.max_workers"),
			BackendTimeout:    dur("search.backend_timeout"),
			GlobalTimeout:     dur("search.global_timeout"),
			FetchTimeout:      dur("search.fetch_timeout"),
			FetchTopK:         num("search.fetch_top_k"),
			MaxContentChars:   num("search.max_content_chars"),
			RequestsPerSecond: float("search.requests_per_second"),
			SearXNGURL:        str("search.searxng_url"),
			WikipediaLanguage: str("search.wikipedia_language"),

			EnableSearXNG:         flag("search.enable_searxng"),
			EnableWikipedia:       flag("search.enable_wikipedia"),
			EnableArxiv:           flag("search.enable_arxiv"),
			EnableDuckDuckGo:      flag("search.enable_duckduckgo"),
			EnableSemanticScholar: flag("search.enable_semantic_scholar"),
			EnableOpenAlex:        flag("search.enable_openalex"),
			EnableGitHub:          flag("search.enable_github"),

			BraveAPIKey:           str("search.brave_api_key"),
			GitHubToken:           str("search.github_token"),
			SemanticScholarAPIKey: str("search.semantic_scholar_api_key"),
			OpenAlexEmail:         str("search.openalex_email"),
		},
		LLM: types.LLMConfig{
			Provider:    types.LLMProvider(strings.ToLower(str("llm.provider"))),
			Model:       str("llm.model"),
			BaseURL:     str("llm.base_url"),
			APIKey:      str("llm.api_key"),
			Temperature: float("llm.temperature"),
			MaxTokens:   num("llm.max_tokens"),
			Timeout:     dur("llm.timeout"),
		},
		Research: types.ResearchConfig{
			MaxIterations:         num("research.max_iterations"),
			QuestionsPerIteration: num("research.questions_per_iteration"),
			ConfidenceThreshold:   float("research.confidence_threshold"),
			ParallelWorkers:       num("research.parallel_workers"),
			ParallelTimeout:       dur("research.parallel_timeout"),
			DefaultStrategy:       str("research.default_strategy"),
		},
		Orchestrator: types.OrchestratorConfig{
			Workers:       num("orchestrator.workers"),
			QueueSize:     num("orchestrator.queue_size"),
			MaxTasks:      num("orchestrator.max_tasks"),
			MaxErrorLen:   num("orchestrator.max_error_len"),
			MaxMessageLen: num("orchestrator.max_message_len"),
		},
		Store: types.StoreConfig{
			Path: str("store.path"),
		},
		Progress: types.ProgressConfig{
			RedisAddr: str("progress.redis_addr"),
			TTL:       dur("progress.ttl"),
		},
	}
	return cfg
}

// ApplySecrets fills credentials from the .secrets directory and turns on
// each credentialed backend whose key is present, unless its enable_*
// key is set explicitly.
func ApplySecrets(cfg *types.Config, v *viper.Viper, s map[string]string) {
	secrets.Apply(cfg, s)
	auto := func(enabled *bool, key, credential string) {
		if !v.IsSet(key) && credential != "" {
			*enabled = true
		}
	}
	auto(&cfg.Search.EnableSemanticScholar, "search.enable_semantic_scholar", cfg.Search.SemanticScholarAPIKey)
	auto(&cfg.Search.EnableOpenAlex, "search.enable_openalex", cfg.Search.OpenAlexEmail)
	auto(&cfg.Search.EnableGitHub, "search.enable_github", cfg.Search.GitHubToken)
}
