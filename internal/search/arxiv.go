// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

const arxivMaxAuthors = 5

// ArxivBackend queries the arXiv Atom API.
type ArxivBackend struct {
	Client *httputil.Client
}

// Name returns the backend identifier.
func (b *ArxivBackend) Name() string { return "arxiv" }

// Capabilities returns the academic domain.
func (b *ArxivBackend) Capabilities() types.Domain { return types.DomainAcademic }

// Healthy reports true; arXiv has no status endpoint.
func (b *ArxivBackend) Healthy(context.Context) bool { return true }

// Search queries all fields sorted by relevance. The abstract is returned
// as both snippet and content.
func (b *ArxivBackend) Search(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error) {
	q := buildArxivQuery(query)
	if q == "" {
		return nil, fmt.Errorf("empty arXiv query")
	}

	reqURL := fmt.Sprintf("%s?search_query=%s&start=0&max_results=%d&sortBy=relevance&sortOrder=descending",
		arxivAPIBase, q, maxResults)

	body, err := getOK(ctx, b.Client, "arXiv API", reqURL, nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var feed arxivFeed
	if err := xml.NewDecoder(body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}

	var results []types.SearchResult
	for i, entry := range feed.Entries {
		arxivID := extractArxivID(entry.ID)
		if arxivID == "" {
			continue
		}
		summary := strings.Join(strings.Fields(entry.Summary), " ")

		r := types.SearchResult{
			Title:         strings.Join(strings.Fields(entry.Title), " "),
			URL:           "https://arxiv.org/abs/" + arxivID,
			Snippet:       truncate(summary, 300),
			Content:       summary,
			SourceEngine:  b.Name(),
			Rank:          i + 1,
			Score:         decayScore(0.85, 0.05, i),
			PublishedDate: entry.Published,
			Metadata: map[string]any{
				"arxiv_id": arxivID,
				"pdf_url":  "https://arxiv.org/pdf/" + arxivID,
			},
		}
		for _, a := range entry.Authors {
			if len(r.Authors) >= arxivMaxAuthors {
				break
			}
			r.Authors = append(r.Authors, strings.TrimSpace(a.Name))
		}
		var cats []string
		for _, c := range entry.Categories {
			cats = append(cats, c.Term)
		}
		if len(cats) > 0 {
			r.Metadata["categories"] = cats
		}

		results = append(results, r)
	}
	return results, nil
}

// buildArxivQuery turns free text into an all: field query.
func buildArxivQuery(q string) string {
	terms := strings.Fields(q)
	if len(terms) == 0 {
		return ""
	}
	for i, t := range terms {
		terms[i] = url.QueryEscape(t)
	}
	return "all:" + strings.Join(terms, "+")
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID         string          `xml:"id"`
	Title      string          `xml:"title"`
	Summary    string          `xml:"summary"`
	Published  string          `xml:"published"`
	Authors    []arxivAuthor   `xml:"author"`
	Categories []arxivCategory `xml:"category"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivCategory struct {
	Term string `xml:"term,attr"`
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" → "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := idURL[idx+len(prefix):]

	// Strip version suffix (e.g. "v1", "v2").
	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}
