// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the data structures shared by the search aggregator,
// the research strategies and the task orchestrator.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Domain is a bit set of query domains. Backends declare the domains they
// serve; the classifier tags queries with the domains they touch.
type Domain uint8

const (
	DomainGeneral Domain = 1 << iota
	DomainAcademic
	DomainKnowledge
	DomainCode
	DomainNews
)

var domainNames = []struct {
	d    Domain
	name string
}{
	{DomainGeneral, "general"},
	{DomainAcademic, "academic"},
	{DomainKnowledge, "knowledge"},
	{DomainCode, "code"},
	{DomainNews, "news"},
}

// Has reports whether every bit in o is set in d.
func (d Domain) Has(o Domain) bool { return o != 0 && d&o == o }

// Intersects reports whether d and o share any domain.
func (d Domain) Intersects(o Domain) bool { return d&o != 0 }

// Names returns the domain names in a fixed order.
func (d Domain) Names() []string {
	var names []string
	for _, dn := range domainNames {
		if d&dn.d != 0 {
			names = append(names, dn.name)
		}
	}
	return names
}

func (d Domain) String() string {
	if d == 0 {
		return "none"
	}
	return strings.Join(d.Names(), ",")
}

// SearchResult is one hit from a search backend.
type SearchResult struct {
	// Title is the result title as returned by the backend.
	Title string `json:"title" yaml:"title"`

	URL     string `json:"url" yaml:"url"`
	Snippet string `json:"snippet" yaml:"snippet"`

	// Content holds the full page text when it was fetched, either by the
	// backend itself (Wikipedia extracts, arXiv abstracts) or by hydration.
	Content string `json:"content,omitempty" yaml:"content,omitempty"`

	// SourceEngine is the Name() of the backend that produced the result.
	SourceEngine string `json:"source_engine" yaml:"source_engine"`

	// Rank is the 1-based position after aggregation. Backends leave it at
	// their own position; the aggregator reassigns it.
	Rank int `json:"rank" yaml:"rank"`

	// Score is a relevance value in [0,1].
	Score float64 `json:"score" yaml:"score"`

	PublishedDate string         `json:"published_date,omitempty" yaml:"published_date,omitempty"`
	Authors       []string       `json:"authors,omitempty" yaml:"authors,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ContentHash returns the dedup key of the result, derived from the
// normalized title and normalized URL.
func (r SearchResult) ContentHash() string {
	sum := sha256.Sum256([]byte(NormalizeTitle(r.Title) + "\x00" + NormalizeURL(r.URL)))
	return hex.EncodeToString(sum[:])
}

// NormalizeTitle lowercases and trims a title for comparison.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// NormalizeURL lowercases and trims a URL and strips trailing slashes, so
// "https://Example.com/a/" and "https://example.com/a" compare equal.
func NormalizeURL(u string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(u)), "/")
}
