// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

// DuckDuckGo endpoints. Declared as vars so tests can substitute httptest
// servers.
var (
	ddgInstantBase = "https://api.duckduckgo.com/"
	ddgHTMLBase    = "https://html.duckduckgo.com/html/"
)

// DuckDuckGoBackend uses the Instant Answer API and falls back to the HTML
// results page when the instant answer has nothing.
type DuckDuckGoBackend struct {
	Client *httputil.Client
}

// Name returns the backend identifier.
func (b *DuckDuckGoBackend) Name() string { return "duckduckgo" }

// Capabilities returns the general domain.
func (b *DuckDuckGoBackend) Capabilities() types.Domain { return types.DomainGeneral }

// Healthy reports true; there is no status endpoint.
func (b *DuckDuckGoBackend) Healthy(context.Context) bool { return true }

// Search tries the instant answer first.
func (b *DuckDuckGoBackend) Search(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error) {
	results, err := b.instant(ctx, query, maxResults)
	if err == nil && len(results) > 0 {
		return results, nil
	}
	htmlResults, htmlErr := b.html(ctx, query, maxResults)
	if htmlErr != nil {
		if err != nil {
			return nil, fmt.Errorf("instant answer: %v; html: %w", err, htmlErr)
		}
		return nil, htmlErr
	}
	return htmlResults, nil
}

func (b *DuckDuckGoBackend) instant(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error) {
	params := url.Values{
		"q":             {query},
		"format":        {"json"},
		"no_html":       {"1"},
		"skip_disambig": {"1"},
	}
	body, err := getOK(ctx, b.Client, "DuckDuckGo", ddgInstantBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var ia ddgInstantAnswer
	if err := json.NewDecoder(body).Decode(&ia); err != nil {
		return nil, fmt.Errorf("parsing DuckDuckGo response: %w", err)
	}

	var results []types.SearchResult
	if ia.AbstractText != "" && ia.AbstractURL != "" {
		title := ia.Heading
		if title == "" {
			title = query
		}
		results = append(results, types.SearchResult{
			Title:        title,
			URL:          ia.AbstractURL,
			Snippet:      ia.AbstractText,
			Content:      ia.AbstractText,
			SourceEngine: b.Name(),
			Rank:         1,
			Score:        0.9,
			Metadata:     map[string]any{"abstract_source": ia.AbstractSource},
		})
	}
	for _, topic := range flattenTopics(ia.RelatedTopics) {
		if len(results) >= maxResults {
			break
		}
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}
		i := len(results)
		results = append(results, types.SearchResult{
			Title:        topicTitle(topic.Text),
			URL:          topic.FirstURL,
			Snippet:      topic.Text,
			SourceEngine: b.Name(),
			Rank:         i + 1,
			Score:        decayScore(0.8, 0.05, i),
		})
	}
	return results, nil
}

func (b *DuckDuckGoBackend) html(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error) {
	body, err := getOK(ctx, b.Client, "DuckDuckGo HTML", ddgHTMLBase+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parsing DuckDuckGo HTML: %w", err)
	}

	var results []types.SearchResult
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(results) >= maxResults {
			return false
		}
		link := s.Find("a.result__a").First()
		href, ok := link.Attr("href")
		title := strings.TrimSpace(link.Text())
		if !ok || title == "" {
			return true
		}
		i := len(results)
		results = append(results, types.SearchResult{
			Title:        title,
			URL:          decodeDDGRedirect(href),
			Snippet:      strings.TrimSpace(s.Find(".result__snippet").Text()),
			SourceEngine: b.Name(),
			Rank:         i + 1,
			Score:        decayScore(0.85, 0.05, i),
		})
		return true
	})
	return results, nil
}

// decodeDDGRedirect unwraps //duckduckgo.com/l/?uddg=<target> links.
func decodeDDGRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

// topicTitle takes the text before the first " - " as the title.
func topicTitle(text string) string {
	if idx := strings.Index(text, " - "); idx > 0 {
		return text[:idx]
	}
	return truncate(text, 80)
}

func flattenTopics(topics []ddgTopic) []ddgTopic {
	var flat []ddgTopic
	for _, t := range topics {
		if len(t.Topics) > 0 {
			flat = append(flat, flattenTopics(t.Topics)...)
			continue
		}
		flat = append(flat, t)
	}
	return flat
}

type ddgInstantAnswer struct {
	Heading        string     `json:"Heading"`
	AbstractText   string     `json:"AbstractText"`
	AbstractURL    string     `json:"AbstractURL"`
	AbstractSource string     `json:"AbstractSource"`
	RelatedTopics  []ddgTopic `json:"RelatedTopics"`
}

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Name     string     `json:"Name"`
	Topics   []ddgTopic `json:"Topics"`
}
