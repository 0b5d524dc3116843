// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/internal/search"
	"github.com/pdiddy/deep-research/pkg/types"
)

const variationResults = 8

// parallel searches several reformulations of the query at once and
// synthesizes over the union.
type parallel struct{ base }

func (s *parallel) ID() ID { return Parallel }

type variationResult struct {
	query string
	out   search.Output
	err   error
}

func (s *parallel) Execute(ctx context.Context, query string) (*types.ResearchState, error) {
	cfg := s.cfg()
	r := s.start(Parallel, query, 1)

	r.checkpoint(5, "Generating search variations...")
	queries, err := s.variations(ctx, query)
	if err != nil {
		return nil, err
	}
	r.addSubQuestions(queries...)
	r.setIteration(1)

	r.checkpoint(15, fmt.Sprintf("Searching %d queries in parallel...", len(queries)))
	sctx, cancel := context.WithTimeout(ctx, cfg.ParallelTimeout)
	defer cancel()

	// Buffered so searches finishing after the deadline never block.
	ch := make(chan variationResult, len(queries))
	p := pool.New().WithMaxGoroutines(cfg.ParallelWorkers)
	for _, q := range queries {
		p.Go(func() {
			res := variationResult{query: q}
			defer func() {
				if v := recover(); v != nil {
					res.err = fmt.Errorf("search panicked: %v", v)
					s.logger.Error("parallel search panicked",
						zap.String("query", q), zap.Any("panic", v), zap.ByteString("stack", debug.Stack()))
				}
				ch <- res
			}()
			res.out, res.err = s.deps.Search.Search(sctx, q, search.Options{
				MaxResults:   variationResults,
				AutoRoute:    true,
				FetchContent: true,
			})
		})
	}

	completed := 0
collect:
	for completed < len(queries) {
		select {
		case res := <-ch:
			completed++
			r.checkpoint(15+float64(completed)/float64(len(queries))*50,
				fmt.Sprintf("Processing results (%d/%d)...", completed, len(queries)))
			if res.err != nil {
				s.logger.Warn("parallel query failed", zap.String("query", res.query), zap.Error(res.err))
				r.attempted(res.out)
				continue
			}
			r.record(res.out, res.query, 1, contentFirst)
			r.answered(res.query)
		case <-sctx.Done():
			s.logger.Warn("parallel search deadline reached",
				zap.Int("completed", completed), zap.Int("queries", len(queries)))
			break collect
		}
	}
	cancel()
	p.Wait()
	// Searches that missed the deadline still ran.
	for pending := len(queries) - completed; pending > 0; pending-- {
		r.attempted((<-ch).out)
	}

	r.checkpoint(70, "Synthesizing parallel research results...")
	prompt, err := render(parallelSynthesisTmpl, promptData{
		Query:     query,
		Findings:  firstFindings(r.state.Findings, finalSources),
		Citations: citedSources(r.state.Sources, finalSources),
	})
	if err != nil {
		return nil, err
	}
	r.setSummary(s.generate(ctx, "final", prompt, llm.GenerateOptions{Temperature: 0.3, MaxTokens: 4000}))
	return r.finish(), nil
}

// variations returns the query followed by distinct reformulations, at
// most questions_per_iteration+2 in total.
func (s *parallel) variations(ctx context.Context, query string) ([]string, error) {
	n := s.cfg().QuestionsPerIteration + 2
	prompt, err := render(variationsTmpl, promptData{Query: query, N: n})
	if err != nil {
		return nil, err
	}
	queries := []string{query}
	for _, q := range llm.ParseList(s.generate(ctx, "variations", prompt, llm.GenerateOptions{Temperature: 0.5}), 0) {
		if len(queries) == n {
			break
		}
		if q != query && !contains(queries, q) {
			queries = append(queries, q)
		}
	}
	return queries, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
