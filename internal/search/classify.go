// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"strings"

	"github.com/pdiddy/deep-research/pkg/types"
)

// vocabulary is one domain's keyword set. A domain fires when at least
// minHits keywords occur in the query, or when any strong phrase occurs.
type vocabulary struct {
	domain   types.Domain
	keywords []string
	phrases  []string
	minHits  int
}

var vocabularies = []vocabulary{
	{
		domain: types.DomainAcademic,
		keywords: []string{
			"research", "paper", "study", "journal", "publication", "thesis",
			"experiment", "hypothesis", "methodology", "peer-reviewed", "arxiv",
			"pubmed", "scientific", "academic", "phd", "algorithm", "theorem",
			"proof", "equation", "neural network", "machine learning",
			"deep learning", "quantum", "biology", "chemistry", "physics",
			"mathematics", "statistics",
		},
		phrases: []string{"arxiv", "research paper", "scientific study"},
		minHits: 2,
	},
	{
		domain: types.DomainKnowledge,
		phrases: []string{
			"what is", "what are", "who is", "who was", "define", "definition",
			"history of", "explain", "how does", "meaning of", "overview",
			"introduction to", "concept of", "theory of", "biography",
			"wikipedia", "encyclopedia",
		},
	},
	{
		domain: types.DomainCode,
		keywords: []string{
			"code", "programming", "github", "repository", "function", "library",
			"api", "sdk", "implementation", "bug", "error", "python",
			"javascript", "java", "c++", "rust", "golang", "docker",
			"kubernetes", "deploy", "devops", "framework",
		},
		phrases: []string{"github", "source code", "open source library"},
		minHits: 2,
	},
	{
		domain: types.DomainNews,
		phrases: []string{
			"news", "latest", "today", "yesterday", "breaking", "announcement",
			"announced", "release", "launch", "this week", "current events",
			"recent", "update on",
		},
	},
}

// Classifier tags queries with the domains they touch.
type Classifier struct{}

// Classify returns the domain set for query. DomainGeneral is included
// whenever no other domain fires, so the result is never empty.
func (Classifier) Classify(query string) types.Domain {
	t := tokenize(strings.ToLower(query))

	var tags types.Domain
	for _, v := range vocabularies {
		if t.matchesAny(v.phrases) || (v.minHits > 0 && t.countHits(v.keywords) >= v.minHits) {
			tags |= v.domain
		}
	}
	if tags == 0 {
		tags = types.DomainGeneral
	}
	return tags
}

type tokens struct {
	set    map[string]bool
	padded string
}

// tokenize splits on anything that is not a letter, digit, '+', '-' or '#'.
func tokenize(q string) tokens {
	fields := strings.FieldsFunc(q, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '+', r == '-', r == '#':
			return false
		}
		return r < 0x80
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return tokens{set: set, padded: " " + strings.Join(fields, " ") + " "}
}

// has matches single words against the token set and phrases against the
// token sequence, so "api" does not match "rapid".
func (t tokens) has(kw string) bool {
	if !strings.Contains(kw, " ") {
		return t.set[kw]
	}
	return strings.Contains(t.padded, " "+kw+" ")
}

func (t tokens) matchesAny(phrases []string) bool {
	for _, p := range phrases {
		if t.has(p) {
			return true
		}
	}
	return false
}

func (t tokens) countHits(keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if t.has(kw) {
			n++
		}
	}
	return n
}
