// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/pkg/types"
)

const (
	broadResults      = 12
	focusResults      = 6
	focusContext      = 8
	confidentProgress = 80
)

// focused seeds findings with a broad search, then deep-dives into focus
// areas proposed by the model until it is confident in the summary.
type focused struct{ iterative }

func (s *focused) Execute(ctx context.Context, query string) (*types.ResearchState, error) {
	cfg := s.cfg()
	r := s.start(FocusedIteration, query, cfg.MaxIterations)

	r.checkpoint(5, "Performing initial broad search...")
	initial := s.search(ctx, query, broadResults)
	r.record(initial, query, 0, contentFirst)

	r.checkpoint(15, "Analyzing initial results...")
	areas, err := s.focusAreas(ctx, query, initial.Results)
	if err != nil {
		return nil, err
	}
	r.addSubQuestions(areas...)

	perIter := 60.0 / float64(cfg.MaxIterations)
	for it := 1; it <= cfg.MaxIterations; it++ {
		from := 20 + float64(it-1)*perIter
		r.setIteration(it)

		if len(areas) > cfg.QuestionsPerIteration {
			areas = areas[:cfg.QuestionsPerIteration]
		}
		for fi, area := range areas {
			r.checkpoint(from+float64(fi)/float64(len(areas))*perIter,
				fmt.Sprintf("Iteration %d: Deep-diving into: %s...", it, clip(area, 60)))
			r.record(s.search(ctx, area, focusResults), area, it, contentFirst)
			r.answered(area)
		}

		r.checkpoint(from+perIter*0.8, fmt.Sprintf("Iteration %d: Evaluating findings...", it))
		if err := s.synthesize(ctx, r); err != nil {
			return nil, err
		}
		if it == cfg.MaxIterations {
			break
		}

		confidence, err := s.confidence(ctx, query, r.state.KnowledgeSummary)
		if err != nil {
			return nil, err
		}
		if confidence > cfg.ConfidenceThreshold {
			s.logger.Debug("confidence threshold reached",
				zap.Int("iteration", it), zap.Float64("confidence", confidence))
			r.checkpoint(confidentProgress, "High confidence achieved, preparing final answer...")
			break
		}

		areas, err = s.identifyGaps(ctx, query, r.state.KnowledgeSummary)
		if err != nil {
			return nil, err
		}
		if len(areas) == 0 {
			break
		}
		r.addSubQuestions(areas...)
	}

	r.checkpoint(85, "Generating comprehensive answer...")
	if err := s.finalPass(ctx, r); err != nil {
		return nil, err
	}
	return r.finish(), nil
}

// focusAreas asks for deep-dive queries from the initial results, falling
// back to the query itself.
func (s *focused) focusAreas(ctx context.Context, query string, results []types.SearchResult) ([]string, error) {
	n := s.cfg().QuestionsPerIteration
	if len(results) > focusContext {
		results = results[:focusContext]
	}
	prompt, err := render(focusTmpl, promptData{Query: query, N: n, Results: results})
	if err != nil {
		return nil, err
	}
	areas := llm.ParseList(s.generate(ctx, "focus", prompt, llm.GenerateOptions{Temperature: 0.3}), n+1)
	if len(areas) == 0 {
		return []string{query}, nil
	}
	return areas, nil
}

// confidence asks the model to score the summary. Unreadable replies score
// llm.NeutralConfidence.
func (s *focused) confidence(ctx context.Context, query, summary string) (float64, error) {
	prompt, err := render(confidenceTmpl, promptData{Query: query, Summary: summary})
	if err != nil {
		return 0, err
	}
	reply := s.generate(ctx, "confidence", prompt, llm.GenerateOptions{Temperature: 0.1, MaxTokens: 10})
	return llm.ParseConfidence(reply), nil
}
