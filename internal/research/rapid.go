// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/deep-research/internal/citation"
	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/pkg/types"
)

const (
	rapidMaxResults   = 10
	rapidContextItems = 8
	rapidContextChars = 800
)

// rapid does one search pass and one synthesis call.
type rapid struct{ base }

func (s *rapid) ID() ID { return Rapid }

func (s *rapid) Execute(ctx context.Context, query string) (*types.ResearchState, error) {
	r := s.start(Rapid, query, 1)

	r.checkpoint(10, "Searching for information...")
	out := s.search(ctx, query, rapidMaxResults)
	r.record(out, query, 1, snippetFirst)
	r.setIteration(1)

	r.checkpoint(40, fmt.Sprintf("Found %d results, analyzing...", len(out.Results)))
	prompt, err := render(rapidAnswerTmpl, promptData{
		Query:   query,
		Context: buildContext(out.Results),
	})
	if err != nil {
		return nil, err
	}

	r.checkpoint(60, "Generating answer...")
	r.setSummary(s.generate(ctx, "answer", prompt, llm.GenerateOptions{Temperature: 0.3}))
	r.answered(query)
	return r.finish(), nil
}

// buildContext renders the top results as numbered sources. Numbers come
// from the citation handler so they match the bibliography.
func buildContext(results []types.SearchResult) string {
	h := citation.NewHandler()
	var parts []string
	for i, res := range results {
		if i >= rapidContextItems {
			break
		}
		c := h.Add(res)
		text := res.Content
		if text == "" {
			text = res.Snippet
		}
		if text == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("[Source %d: %s]\n%s\nURL: %s\n",
			c.Number, res.Title, clip(text, rapidContextChars), res.URL))
	}
	return strings.Join(parts, "\n---\n")
}
