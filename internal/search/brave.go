// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

// braveAPIBase is the Brave web search endpoint. Declared as a var so tests
// can substitute an httptest server.
var braveAPIBase = "https://api.search.brave.com/res/v1/web/search"

// BraveBackend queries the Brave Search API. It needs a subscription token.
type BraveBackend struct {
	Client *httputil.Client
	APIKey string
}

// Name returns the backend identifier.
func (b *BraveBackend) Name() string { return "brave" }

// Capabilities returns the general and news domains.
func (b *BraveBackend) Capabilities() types.Domain { return types.DomainGeneral | types.DomainNews }

// Healthy reports whether a key is configured.
func (b *BraveBackend) Healthy(context.Context) bool { return b.APIKey != "" }

// Search queries the web search endpoint. Brave caps count at 20.
func (b *BraveBackend) Search(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error) {
	if b.APIKey == "" {
		return nil, fmt.Errorf("brave: no API key configured")
	}
	if maxResults > 20 {
		maxResults = 20
	}
	params := url.Values{
		"q":     {query},
		"count": {fmt.Sprintf("%d", maxResults)},
	}
	header := http.Header{
		"Accept":               {"application/json"},
		"X-Subscription-Token": {b.APIKey},
	}

	body, err := getOK(ctx, b.Client, "Brave API", braveAPIBase+"?"+params.Encode(), header)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var br braveResponse
	if err := json.NewDecoder(body).Decode(&br); err != nil {
		return nil, fmt.Errorf("parsing Brave response: %w", err)
	}

	var results []types.SearchResult
	for i, item := range br.Web.Results {
		if len(results) >= maxResults {
			break
		}
		results = append(results, types.SearchResult{
			Title:         item.Title,
			URL:           item.URL,
			Snippet:       htmlTagRe.ReplaceAllString(item.Description, ""),
			SourceEngine:  b.Name(),
			Rank:          i + 1,
			Score:         decayScore(0.9, 0.04, i),
			PublishedDate: item.Age,
		})
	}
	return results, nil
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
			Age         string `json:"age"`
		} `json:"results"`
	} `json:"web"`
}
