// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make
// network requests.
type HTTPConfig struct {
	// Timeout is the HTTP client timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "deep-research/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// SearchConfig holds settings for the search aggregator and its backends.
type SearchConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxWorkers bounds concurrent backend calls across all searches in the
	// process (default 5).
	MaxWorkers int `json:"max_workers" yaml:"max_workers"`

	// BackendTimeout bounds a single backend call (default 30s).
	BackendTimeout time.Duration `json:"backend_timeout" yaml:"backend_timeout"`

	// GlobalTimeout bounds one aggregation call (default 45s).
	GlobalTimeout time.Duration `json:"global_timeout" yaml:"global_timeout"`

	// FetchTimeout bounds content hydration for one search (default 15s).
	FetchTimeout time.Duration `json:"fetch_timeout" yaml:"fetch_timeout"`

	// FetchTopK is how many top results are hydrated (default 5).
	FetchTopK int `json:"fetch_top_k" yaml:"fetch_top_k"`

	// MaxContentChars truncates fetched page text (default 5000).
	MaxContentChars int `json:"max_content_chars" yaml:"max_content_chars"`

	// RequestsPerSecond is the per-backend rate limit (default 2).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`

	SearXNGURL        string `json:"searxng_url" yaml:"searxng_url"`
	WikipediaLanguage string `json:"wikipedia_language" yaml:"wikipedia_language"`

	EnableSearXNG         bool `json:"enable_searxng" yaml:"enable_searxng"`
	EnableWikipedia       bool `json:"enable_wikipedia" yaml:"enable_wikipedia"`
	EnableArxiv           bool `json:"enable_arxiv" yaml:"enable_arxiv"`
	EnableDuckDuckGo      bool `json:"enable_duckduckgo" yaml:"enable_duckduckgo"`
	EnableSemanticScholar bool `json:"enable_semantic_scholar" yaml:"enable_semantic_scholar"`
	EnableOpenAlex        bool `json:"enable_openalex" yaml:"enable_openalex"`
	EnableGitHub          bool `json:"enable_github" yaml:"enable_github"`

	// Credentials. Brave is registered only when BraveAPIKey is set.
	BraveAPIKey           string `json:"-" yaml:"-"`
	GitHubToken           string `json:"-" yaml:"-"`
	SemanticScholarAPIKey string `json:"-" yaml:"-"`
	OpenAlexEmail         string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty"`
}

// LLMProvider selects the language model gateway implementation.
type LLMProvider string

const (
	ProviderOllama    LLMProvider = "ollama"
	ProviderAnthropic LLMProvider = "anthropic"
)

// LLMConfig holds settings for the language model gateway.
type LLMConfig struct {
	Provider LLMProvider `json:"provider" yaml:"provider"`

	// Model is the model identifier (e.g. "llama3.1:8b").
	Model string `json:"model" yaml:"model"`

	BaseURL string `json:"base_url" yaml:"base_url"`
	APIKey  string `json:"-" yaml:"-"`

	// Temperature is used when a call does not set its own.
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// MaxTokens caps generated tokens when a call does not set its own.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// Timeout bounds one generation call (default 120s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// ResearchConfig holds strategy defaults.
type ResearchConfig struct {
	MaxIterations         int     `json:"max_iterations" yaml:"max_iterations"`
	QuestionsPerIteration int     `json:"questions_per_iteration" yaml:"questions_per_iteration"`
	ConfidenceThreshold   float64 `json:"confidence_threshold" yaml:"confidence_threshold"`

	ParallelWorkers int           `json:"parallel_workers" yaml:"parallel_workers"`
	ParallelTimeout time.Duration `json:"parallel_timeout" yaml:"parallel_timeout"`

	DefaultStrategy string `json:"default_strategy" yaml:"default_strategy"`
}

// OrchestratorConfig holds task scheduling settings.
type OrchestratorConfig struct {
	// Workers is the number of tasks executed concurrently (default 3).
	Workers int `json:"workers" yaml:"workers"`

	// QueueSize bounds tasks waiting for a worker (default 64).
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	// MaxTasks bounds the in-memory task map (default 1024). Oldest
	// terminal tasks are evicted first.
	MaxTasks int `json:"max_tasks" yaml:"max_tasks"`

	// MaxErrorLen and MaxMessageLen truncate stored messages.
	MaxErrorLen   int `json:"max_error_len" yaml:"max_error_len"`
	MaxMessageLen int `json:"max_message_len" yaml:"max_message_len"`
}

// StoreConfig holds durable task store settings.
type StoreConfig struct {
	// Path is the SQLite database file (default "data/research.db").
	Path string `json:"path" yaml:"path"`
}

// ProgressConfig holds settings for the optional Redis progress feed.
type ProgressConfig struct {
	// RedisAddr enables the feed when non-empty.
	RedisAddr string `json:"redis_addr" yaml:"redis_addr"`

	// TTL is how long a progress snapshot outlives its last update.
	TTL time.Duration `json:"ttl" yaml:"ttl"`
}

// Config groups all component configuration.
type Config struct {
	Search       SearchConfig       `json:"search" yaml:"search"`
	LLM          LLMConfig          `json:"llm" yaml:"llm"`
	Research     ResearchConfig     `json:"research" yaml:"research"`
	Orchestrator OrchestratorConfig `json:"orchestrator" yaml:"orchestrator"`
	Store        StoreConfig        `json:"store" yaml:"store"`
	Progress     ProgressConfig     `json:"progress" yaml:"progress"`
}
