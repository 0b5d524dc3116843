// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Backend queries one external search source.
type Backend interface {
	// Name returns the backend identifier (e.g. "arxiv").
	Name() string

	// Capabilities returns the static set of domains the backend serves.
	Capabilities() types.Domain

	// Search returns at most maxResults results for query.
	Search(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error)

	// Healthy reports whether the backend is reachable.
	Healthy(ctx context.Context) bool
}

// NewBackends builds the backends enabled in cfg. Backends that need a
// credential are registered only when it is present.
func NewBackends(cfg types.SearchConfig, hc *http.Client, logger *zap.Logger) []Backend {
	client := func() *httputil.Client {
		return httputil.NewClient(hc, cfg.UserAgent, cfg.RequestsPerSecond)
	}

	var backends []Backend
	if cfg.EnableSearXNG && cfg.SearXNGURL != "" {
		backends = append(backends,
			NewSearXNG(client(), cfg.SearXNGURL),
			NewSearXNGNews(client(), cfg.SearXNGURL))
	}
	if cfg.EnableWikipedia {
		backends = append(backends, &WikipediaBackend{Client: client(), Language: cfg.WikipediaLanguage})
	}
	if cfg.EnableArxiv {
		backends = append(backends, &ArxivBackend{Client: client()})
	}
	if cfg.EnableSemanticScholar {
		backends = append(backends, &SemanticScholarBackend{Client: client(), APIKey: cfg.SemanticScholarAPIKey})
	}
	if cfg.EnableOpenAlex {
		backends = append(backends, &OpenAlexBackend{Client: client(), Email: cfg.OpenAlexEmail})
	}
	if cfg.EnableDuckDuckGo {
		backends = append(backends, &DuckDuckGoBackend{Client: client()})
	}
	if cfg.BraveAPIKey != "" {
		backends = append(backends, &BraveBackend{Client: client(), APIKey: cfg.BraveAPIKey})
	}
	if cfg.EnableGitHub {
		backends = append(backends, NewGitHub(hc, cfg.GitHubToken))
	}

	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = b.Name()
	}
	logger.Debug("search backends registered", zap.Strings("backends", names))
	return backends
}

// decayScore returns start - step*i, floored at 0.1.
func decayScore(start, step float64, i int) float64 {
	s := start - step*float64(i)
	if s < 0.1 {
		return 0.1
	}
	return s
}

// positionScore spreads scores from 1.0 for the first result down to 0.1
// for the last.
func positionScore(i, total int) float64 {
	if total > 1 {
		return 1.0 - float64(i)/float64(total-1)*0.9
	}
	return 1.0
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// getOK performs a GET through client and returns the body when the
// status is 200. The caller closes the body.
func getOK(ctx context.Context, client *httputil.Client, name, reqURL string, header http.Header) (io.ReadCloser, error) {
	resp, err := client.Get(ctx, reqURL, header)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", name, err)
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%s returned HTTP %d", name, resp.StatusCode)
	}
	return resp.Body, nil
}

// probe reports whether a GET on reqURL answers below 500.
func probe(ctx context.Context, client *httputil.Client, reqURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false
	}
	if client.UserAgent != "" {
		req.Header.Set("User-Agent", client.UserAgent)
	}
	resp, err := client.HTTP.Do(req)
	if err != nil {
		return false
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
