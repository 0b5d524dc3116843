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

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "title,abstract,authors,externalIds,year,publicationDate,url,venue,citationCount"

// SemanticScholarBackend queries the Semantic Scholar Graph API.
type SemanticScholarBackend struct {
	Client *httputil.Client
	APIKey string
}

// Name returns the backend identifier.
func (b *SemanticScholarBackend) Name() string { return "semantic_scholar" }

// Capabilities returns the academic domain.
func (b *SemanticScholarBackend) Capabilities() types.Domain { return types.DomainAcademic }

// Healthy reports true; the API has no status endpoint.
func (b *SemanticScholarBackend) Healthy(context.Context) bool { return true }

// Search queries the paper search endpoint.
func (b *SemanticScholarBackend) Search(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("empty Semantic Scholar query")
	}

	params := url.Values{
		"query":  {query},
		"limit":  {fmt.Sprintf("%d", maxResults)},
		"fields": {semanticFields},
	}

	var header http.Header
	if b.APIKey != "" {
		header = http.Header{"x-api-key": {b.APIKey}}
	}

	body, err := getOK(ctx, b.Client, "Semantic Scholar API", semanticAPIBase+"?"+params.Encode(), header)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var sr semanticResponse
	if err := json.NewDecoder(body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parsing Semantic Scholar response: %w", err)
	}

	total := len(sr.Data)
	var results []types.SearchResult
	for i, paper := range sr.Data {
		r := types.SearchResult{
			Title:        paper.Title,
			URL:          semanticPaperURL(paper),
			Snippet:      truncate(paper.Abstract, 300),
			Content:      paper.Abstract,
			SourceEngine: b.Name(),
			Rank:         i + 1,
			Score:        positionScore(i, total),
			Metadata: map[string]any{
				"paper_id":       paper.PaperID,
				"venue":          paper.Venue,
				"citation_count": paper.CitationCount,
			},
		}
		for _, a := range paper.Authors {
			r.Authors = append(r.Authors, a.Name)
		}

		switch {
		case paper.PublicationDate != "":
			r.PublishedDate = paper.PublicationDate
		case paper.Year > 0:
			r.PublishedDate = fmt.Sprintf("%d", paper.Year)
		}

		if paper.ExternalIDs.DOI != "" {
			r.Metadata["doi"] = paper.ExternalIDs.DOI
		}
		if paper.ExternalIDs.ArXiv != "" {
			r.Metadata["arxiv_id"] = paper.ExternalIDs.ArXiv
		}

		results = append(results, r)
	}
	return results, nil
}

// semanticPaperURL prefers the API's own link, then a DOI resolver link.
func semanticPaperURL(p semanticPaper) string {
	switch {
	case p.URL != "":
		return p.URL
	case p.ExternalIDs.DOI != "":
		return "https://doi.org/" + p.ExternalIDs.DOI
	default:
		return "https://www.semanticscholar.org/paper/" + p.PaperID
	}
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total  int             `json:"total"`
	Offset int             `json:"offset"`
	Data   []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID         string              `json:"paperId"`
	Title           string              `json:"title"`
	Abstract        string              `json:"abstract"`
	URL             string              `json:"url"`
	Venue           string              `json:"venue"`
	CitationCount   int                 `json:"citationCount"`
	Year            int                 `json:"year"`
	PublicationDate string              `json:"publicationDate"`
	Authors         []semanticAuthor    `json:"authors"`
	ExternalIDs     semanticExternalIDs `json:"externalIds"`
}

type semanticAuthor struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

type semanticExternalIDs struct {
	DOI      string `json:"DOI"`
	ArXiv    string `json:"ArXiv"`
	CorpusID int    `json:"CorpusId"`
}
