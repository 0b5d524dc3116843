// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"sort"
	"strings"
	"unicode"

	"github.com/pdiddy/deep-research/pkg/types"
)

// Score adjustments applied on top of a backend's native score.
const (
	titleTermBonus   = 0.1
	contentBonus     = 0.1
	snippetTermBonus = 0.05
)

// reliableSources maps backends on the curated allowlist to their bonus.
var reliableSources = map[string]float64{
	"arxiv":            0.05,
	"semantic_scholar": 0.05,
	"openalex":         0.05,
	"pubmed":           0.05,
	"wikipedia":        0.08,
}

// deduplicate drops results whose content hash or normalized URL was
// already seen. The first occurrence wins and keeps its position.
func deduplicate(results []types.SearchResult) ([]types.SearchResult, int) {
	seenHash := make(map[string]bool, len(results))
	seenURL := make(map[string]bool, len(results))
	out := make([]types.SearchResult, 0, len(results))
	removed := 0

	for _, r := range results {
		hash := r.ContentHash()
		u := types.NormalizeURL(r.URL)
		if seenHash[hash] || (u != "" && seenURL[u]) {
			removed++
			continue
		}
		seenHash[hash] = true
		if u != "" {
			seenURL[u] = true
		}
		out = append(out, r)
	}
	return out, removed
}

// queryTerms returns the distinct lowercase words of query with surrounding
// punctuation removed. '+' and '#' are kept so "c++" and "c#" survive.
func queryTerms(query string) []string {
	seen := map[string]bool{}
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		f = strings.TrimFunc(f, trimTermRune)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

func trimTermRune(r rune) bool {
	if r == '+' || r == '#' {
		return false
	}
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

// rawScore is the unclipped policy score of r.
func rawScore(r types.SearchResult, terms []string) float64 {
	score := r.Score
	title := strings.ToLower(r.Title)
	snippet := strings.ToLower(r.Snippet)
	for _, t := range terms {
		if strings.Contains(title, t) {
			score += titleTermBonus
		}
		if strings.Contains(snippet, t) {
			score += snippetTermBonus
		}
	}
	if r.Content != "" {
		score += contentBonus
	}
	score += reliableSources[r.SourceEngine]
	return score
}

// rank scores, sorts and renumbers results. Sorting uses the unclipped
// score so results that both clip to 1.0 keep their relative merit; equal
// scores keep input order.
func rank(results []types.SearchResult, query string) []types.SearchResult {
	terms := queryTerms(query)

	type scored struct {
		r   types.SearchResult
		raw float64
	}
	items := make([]scored, len(results))
	for i, r := range results {
		items[i] = scored{r: r, raw: rawScore(r, terms)}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].raw > items[j].raw })

	out := make([]types.SearchResult, len(items))
	for i, it := range items {
		r := it.r
		r.Score = clip(it.raw)
		r.Rank = i + 1
		out[i] = r
	}
	return out
}

func clip(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
