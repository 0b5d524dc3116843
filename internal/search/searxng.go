// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

// SearXNGBackend queries a self-hosted SearXNG metasearch instance through
// its JSON API.
type SearXNGBackend struct {
	Client  *httputil.Client
	BaseURL string

	// Categories is passed through as the categories parameter when set.
	Categories string

	name string
	caps types.Domain
}

// NewSearXNG returns the general-purpose SearXNG backend.
func NewSearXNG(client *httputil.Client, baseURL string) *SearXNGBackend {
	return &SearXNGBackend{Client: client, BaseURL: baseURL, name: "searxng", caps: types.DomainGeneral}
}

// NewSearXNGNews returns a SearXNG backend restricted to the news category.
func NewSearXNGNews(client *httputil.Client, baseURL string) *SearXNGBackend {
	return &SearXNGBackend{Client: client, BaseURL: baseURL, Categories: "news", name: "searxng_news", caps: types.DomainNews}
}

// Name returns the backend identifier.
func (b *SearXNGBackend) Name() string { return b.name }

// Capabilities returns the domains the instance serves.
func (b *SearXNGBackend) Capabilities() types.Domain { return b.caps }

// Healthy probes the instance root.
func (b *SearXNGBackend) Healthy(ctx context.Context) bool {
	return probe(ctx, b.Client, strings.TrimRight(b.BaseURL, "/")+"/")
}

// Search queries /search with format=json.
func (b *SearXNGBackend) Search(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error) {
	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"pageno": {"1"},
	}
	if b.Categories != "" {
		params.Set("categories", b.Categories)
	}
	reqURL := strings.TrimRight(b.BaseURL, "/") + "/search?" + params.Encode()

	body, err := getOK(ctx, b.Client, "SearXNG", reqURL, nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var sr searxngResponse
	if err := json.NewDecoder(body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parsing SearXNG response: %w", err)
	}

	var results []types.SearchResult
	for i, item := range sr.Results {
		if len(results) >= maxResults {
			break
		}
		r := types.SearchResult{
			Title:         item.Title,
			URL:           item.URL,
			Snippet:       item.Content,
			SourceEngine:  b.name,
			Rank:          i + 1,
			Score:         decayScore(1.0, 0.05, i),
			PublishedDate: item.PublishedDate,
			Metadata: map[string]any{
				"engines":  item.Engines,
				"category": item.Category,
			},
		}
		results = append(results, r)
	}
	return results, nil
}

type searxngResponse struct {
	Query   string          `json:"query"`
	Results []searxngResult `json:"results"`
}

type searxngResult struct {
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Content       string   `json:"content"`
	Engines       []string `json:"engines"`
	Category      string   `json:"category"`
	PublishedDate string   `json:"publishedDate"`
}
