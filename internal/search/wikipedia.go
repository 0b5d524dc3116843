// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

// wikipediaAPIFormat is the MediaWiki API endpoint with a %s language
// placeholder. Declared as a var so tests can substitute an httptest server.
var wikipediaAPIFormat = "https://%s.wikipedia.org/w/api.php"

// wikipediaExtractCount is how many top hits get their intro extract.
const wikipediaExtractCount = 3

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

// WikipediaBackend searches Wikipedia and fetches plain-text extracts for
// the leading hits.
type WikipediaBackend struct {
	Client   *httputil.Client
	Language string
}

// Name returns the backend identifier.
func (b *WikipediaBackend) Name() string { return "wikipedia" }

// Capabilities returns the knowledge domain.
func (b *WikipediaBackend) Capabilities() types.Domain { return types.DomainKnowledge }

// Healthy reports true; the public API has no cheap probe worth a round trip.
func (b *WikipediaBackend) Healthy(context.Context) bool { return true }

func (b *WikipediaBackend) lang() string {
	if b.Language == "" {
		return "en"
	}
	return b.Language
}

func (b *WikipediaBackend) apiURL() string {
	if strings.Contains(wikipediaAPIFormat, "%s") {
		return fmt.Sprintf(wikipediaAPIFormat, b.lang())
	}
	return wikipediaAPIFormat
}

// Search runs list=search and then prop=extracts for the top hits.
func (b *WikipediaBackend) Search(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {fmt.Sprintf("%d", maxResults)},
		"format":   {"json"},
	}
	body, err := getOK(ctx, b.Client, "Wikipedia", b.apiURL()+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var sr wikiSearchResponse
	if err := json.NewDecoder(body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parsing Wikipedia response: %w", err)
	}

	var results []types.SearchResult
	for i, hit := range sr.Query.Search {
		if len(results) >= maxResults {
			break
		}
		pageURL := fmt.Sprintf("https://%s.wikipedia.org/wiki/%s", b.lang(),
			url.PathEscape(strings.ReplaceAll(hit.Title, " ", "_")))
		results = append(results, types.SearchResult{
			Title:         hit.Title,
			URL:           pageURL,
			Snippet:       strings.TrimSpace(htmlTagRe.ReplaceAllString(hit.Snippet, "")),
			SourceEngine:  b.Name(),
			Rank:          i + 1,
			Score:         decayScore(0.9, 0.05, i),
			PublishedDate: hit.Timestamp,
			Metadata: map[string]any{
				"page_id":    hit.PageID,
				"word_count": hit.WordCount,
			},
		})
	}

	for i := 0; i < len(results) && i < wikipediaExtractCount; i++ {
		extract, err := b.extract(ctx, results[i].Title)
		if err != nil {
			// The hit is still useful without its extract.
			continue
		}
		results[i].Content = extract
	}
	return results, nil
}

func (b *WikipediaBackend) extract(ctx context.Context, title string) (string, error) {
	params := url.Values{
		"action":      {"query"},
		"prop":        {"extracts"},
		"exintro":     {"true"},
		"explaintext": {"true"},
		"titles":      {title},
		"format":      {"json"},
	}
	body, err := getOK(ctx, b.Client, "Wikipedia", b.apiURL()+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var er wikiExtractResponse
	if err := json.NewDecoder(body).Decode(&er); err != nil {
		return "", fmt.Errorf("parsing Wikipedia extract: %w", err)
	}
	for _, page := range er.Query.Pages {
		if page.Extract != "" {
			return truncate(page.Extract, 5000), nil
		}
	}
	return "", nil
}

type wikiSearchResponse struct {
	Query struct {
		Search []wikiHit `json:"search"`
	} `json:"query"`
}

type wikiHit struct {
	Title     string `json:"title"`
	PageID    int    `json:"pageid"`
	Snippet   string `json:"snippet"`
	WordCount int    `json:"wordcount"`
	Timestamp string `json:"timestamp"`
}

type wikiExtractResponse struct {
	Query struct {
		Pages map[string]struct {
			Title   string `json:"title"`
			Extract string `json:"extract"`
		} `json:"pages"`
	} `json:"query"`
}
