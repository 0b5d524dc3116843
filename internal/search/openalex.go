// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

// openAlexSearchBase is the OpenAlex Works search endpoint. Declared as a
// var so tests can substitute an httptest server.
var openAlexSearchBase = "https://api.openalex.org/works"

// OpenAlexBackend queries the OpenAlex Works API.
type OpenAlexBackend struct {
	Client *httputil.Client
	// Email is sent as mailto parameter for polite pool access.
	Email string
}

// Name returns the backend identifier.
func (b *OpenAlexBackend) Name() string { return "openalex" }

// Capabilities returns the academic domain.
func (b *OpenAlexBackend) Capabilities() types.Domain { return types.DomainAcademic }

// Healthy reports true; OpenAlex has no status endpoint.
func (b *OpenAlexBackend) Healthy(context.Context) bool { return true }

// Search queries /works?search=. OpenAlex caps per_page at 200.
func (b *OpenAlexBackend) Search(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("empty OpenAlex query")
	}
	if maxResults > 200 {
		maxResults = 200
	}

	params := url.Values{
		"search":   {query},
		"per_page": {fmt.Sprintf("%d", maxResults)},
		"page":     {"1"},
	}
	if b.Email != "" {
		params.Set("mailto", b.Email)
	}

	body, err := getOK(ctx, b.Client, "OpenAlex API", openAlexSearchBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var oar openAlexResponse
	if err := json.NewDecoder(body).Decode(&oar); err != nil {
		return nil, fmt.Errorf("parsing OpenAlex response: %w", err)
	}

	total := len(oar.Results)
	var results []types.SearchResult
	for i, work := range oar.Results {
		abstract := reconstructAbstract(work.AbstractInvertedIndex)
		r := types.SearchResult{
			Title:        work.Title,
			URL:          openAlexURL(work),
			Snippet:      truncate(abstract, 300),
			Content:      abstract,
			SourceEngine: b.Name(),
			Rank:         i + 1,
			Score:        positionScore(i, total),
			Metadata: map[string]any{
				"openalex_id":    work.ID,
				"is_oa":          work.OpenAccess.IsOA,
				"cited_by_count": work.CitedByCount,
			},
		}
		for _, authorship := range work.Authorships {
			if authorship.Author.DisplayName != "" {
				r.Authors = append(r.Authors, authorship.Author.DisplayName)
			}
		}
		switch {
		case work.PublicationDate != "":
			r.PublishedDate = work.PublicationDate
		case work.PublicationYear > 0:
			r.PublishedDate = fmt.Sprintf("%d", work.PublicationYear)
		}
		if work.DOI != "" {
			r.Metadata["doi"] = strings.TrimPrefix(work.DOI, "https://doi.org/")
		}

		results = append(results, r)
	}
	return results, nil
}

// openAlexURL prefers the DOI link, then the open access copy, then the
// OpenAlex entity page.
func openAlexURL(w openAlexWork) string {
	switch {
	case w.DOI != "":
		return w.DOI
	case w.OpenAccess.OAURL != "":
		return w.OpenAccess.OAURL
	default:
		return w.ID
	}
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The index maps each word to the positions it occupies.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].pos < pairs[j].pos })

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string               `json:"id"`
	Title                 string               `json:"title"`
	DOI                   string               `json:"doi"`
	PublicationDate       string               `json:"publication_date"`
	PublicationYear       int                  `json:"publication_year"`
	CitedByCount          int                  `json:"cited_by_count"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	OpenAccess            openAlexOpenAccess   `json:"open_access"`
}

type openAlexAuthorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}

type openAlexOpenAccess struct {
	IsOA  bool   `json:"is_oa"`
	OAURL string `json:"oa_url"`
}
