// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"time"

	"github.com/pdiddy/deep-research/internal/search"
	"github.com/pdiddy/deep-research/pkg/types"
)

// contentFunc picks the finding text for a result.
type contentFunc func(types.SearchResult) string

// contentFirst prefers fetched page text over the snippet.
func contentFirst(r types.SearchResult) string {
	if r.Content != "" {
		return r.Content
	}
	return r.Snippet
}

// snippetFirst prefers the snippet, falling back to the first 500
// characters of content.
func snippetFirst(r types.SearchResult) string {
	if r.Snippet != "" {
		return r.Snippet
	}
	return clip(r.Content, 500)
}

// accumulator appends search evidence to a ResearchState. Sources are
// deduplicated by normalized URL. After complete the state is frozen.
type accumulator struct {
	state *types.ResearchState
	seen  map[string]bool
	done  bool
}

func newAccumulator(state *types.ResearchState) *accumulator {
	return &accumulator{state: state, seen: map[string]bool{}}
}

// attempted counts a search whose results are not recorded. A search that
// failed before reporting its backends counts once.
func (a *accumulator) attempted(out search.Output) {
	if a.done {
		return
	}
	n := len(out.Queried)
	if n == 0 {
		n = 1
	}
	a.state.TotalSearches += n
}

// record adds the findings and new sources from one search. Every backend
// invoked counts toward TotalSearches.
func (a *accumulator) record(out search.Output, subQuestion string, iteration int, content contentFunc) {
	if a.done {
		return
	}
	a.state.TotalSearches += len(out.Queried)
	for _, r := range out.Results {
		a.state.Findings = append(a.state.Findings, types.Finding{
			Content:        content(r),
			SourceTitle:    r.Title,
			SourceURL:      r.URL,
			SourceEngine:   r.SourceEngine,
			RelevanceScore: r.Score,
			SubQuestion:    subQuestion,
			Iteration:      iteration,
		})
		a.addSource(r)
	}
}

func (a *accumulator) addSource(r types.SearchResult) {
	key := types.NormalizeURL(r.URL)
	if key == "" {
		key = "title:" + types.NormalizeTitle(r.Title)
	}
	if a.seen[key] {
		return
	}
	a.seen[key] = true
	a.state.Sources = append(a.state.Sources, r)
}

func (a *accumulator) answered(q string) {
	if a.done {
		return
	}
	a.state.AnsweredQuestions = append(a.state.AnsweredQuestions, q)
}

func (a *accumulator) isAnswered(q string) bool {
	for _, done := range a.state.AnsweredQuestions {
		if done == q {
			return true
		}
	}
	return false
}

func (a *accumulator) addSubQuestions(qs ...string) {
	if a.done {
		return
	}
	a.state.SubQuestions = append(a.state.SubQuestions, qs...)
}

func (a *accumulator) setIteration(i int) {
	if a.done || i < a.state.Iteration {
		return
	}
	a.state.Iteration = i
}

func (a *accumulator) setSummary(s string) {
	if a.done {
		return
	}
	a.state.KnowledgeSummary = s
}

// complete marks the state completed at 100%.
func (a *accumulator) complete() *types.ResearchState {
	if !a.done {
		a.state.Status = types.StatusCompleted
		a.state.Progress = 100
		a.state.CompletedAt = time.Now().UTC()
		a.done = true
	}
	return a.state
}

// clip truncates s to n runes.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
