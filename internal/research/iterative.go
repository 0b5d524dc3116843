// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/citation"
	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/pkg/types"
)

const (
	subQuestionResults = 8
	maxGaps            = 3
	synthesisWindow    = 15
	finalSources       = 20
	reportSources      = 25
	findingsPerGroup   = 5
)

// iterative decomposes the query into sub-questions and researches them
// over several iterations, asking for knowledge gaps once the
// sub-questions run out. It also serves source-based, which differs only
// in its final pass.
type iterative struct {
	base
	id      ID
	final   *template.Template
	grouped bool
}

func (s *iterative) ID() ID { return s.id }

func (s *iterative) Execute(ctx context.Context, query string) (*types.ResearchState, error) {
	cfg := s.cfg()
	r := s.start(s.id, query, cfg.MaxIterations)

	r.checkpoint(5, "Analyzing query and generating sub-questions...")
	subs, err := s.decompose(ctx, query)
	if err != nil {
		return nil, err
	}
	r.addSubQuestions(subs...)

	perIter := 70.0 / float64(cfg.MaxIterations)
	for it := 1; it <= cfg.MaxIterations; it++ {
		from := 10 + float64(it-1)*perIter

		var remaining []string
		for _, q := range r.state.SubQuestions {
			if !r.isAnswered(q) {
				remaining = append(remaining, q)
			}
		}
		if len(remaining) == 0 {
			r.checkpoint(from, fmt.Sprintf("Iteration %d: Identifying knowledge gaps...", it))
			gaps, err := s.identifyGaps(ctx, query, r.state.KnowledgeSummary)
			if err != nil {
				return nil, err
			}
			if len(gaps) == 0 {
				s.logger.Debug("no knowledge gaps left", zap.Int("iteration", it))
				break
			}
			remaining = gaps
			r.addSubQuestions(gaps...)
		}
		r.setIteration(it)

		if len(remaining) > cfg.QuestionsPerIteration {
			remaining = remaining[:cfg.QuestionsPerIteration]
		}
		for qi, q := range remaining {
			r.checkpoint(from+float64(qi)/float64(len(remaining))*perIter,
				fmt.Sprintf("Iteration %d/%d: Researching: %s...", it, cfg.MaxIterations, clip(q, 60)))
			r.record(s.search(ctx, q, subQuestionResults), q, it, contentFirst)
			r.answered(q)
		}

		r.checkpoint(from+perIter*0.9, fmt.Sprintf("Iteration %d: Synthesizing findings...", it))
		if err := s.synthesize(ctx, r); err != nil {
			return nil, err
		}
	}

	r.checkpoint(85, "Generating final comprehensive answer...")
	if err := s.finalPass(ctx, r); err != nil {
		return nil, err
	}
	return r.finish(), nil
}

// decompose asks for sub-questions, falling back to the query itself.
func (s *iterative) decompose(ctx context.Context, query string) ([]string, error) {
	n := s.cfg().QuestionsPerIteration
	prompt, err := render(decomposeTmpl, promptData{Query: query, N: n})
	if err != nil {
		return nil, err
	}
	subs := llm.ParseList(s.generate(ctx, "decompose", prompt, llm.GenerateOptions{Temperature: 0.3}), n)
	if len(subs) == 0 {
		s.logger.Info("decomposition empty, researching the query directly")
		return []string{query}, nil
	}
	return subs, nil
}

// identifyGaps returns follow-up questions, or none when the model judges
// the summary complete or cannot answer.
func (s *iterative) identifyGaps(ctx context.Context, query, summary string) ([]string, error) {
	if strings.TrimSpace(summary) == "" {
		return nil, nil
	}
	prompt, err := render(gapsTmpl, promptData{Query: query, Summary: summary})
	if err != nil {
		return nil, err
	}
	reply := s.generate(ctx, "gaps", prompt, llm.GenerateOptions{Temperature: 0.3})
	if llm.IsDiagnostic(reply) || strings.Contains(strings.ToUpper(reply), "COMPLETE") {
		return nil, nil
	}
	var gaps []string
	for _, q := range llm.ParseList(reply, 0) {
		if strings.Contains(strings.ToLower(q), "complete") {
			continue
		}
		gaps = append(gaps, q)
		if len(gaps) == maxGaps {
			break
		}
	}
	return gaps, nil
}

// synthesize refreshes the running summary from the latest findings. A
// degraded reply keeps the previous summary.
func (s *iterative) synthesize(ctx context.Context, r *run) error {
	prompt, err := render(synthesizeTmpl, promptData{
		Query:    r.state.Query,
		Findings: lastFindings(r.state.Findings, synthesisWindow),
		Previous: r.state.KnowledgeSummary,
	})
	if err != nil {
		return err
	}
	text := s.generate(ctx, "synthesize", prompt, llm.GenerateOptions{Temperature: 0.3})
	if !llm.IsDiagnostic(text) {
		r.setSummary(text)
	}
	return nil
}

// finalPass writes the cited report. When the model fails the running
// summary stands; with no summary the diagnostic is kept so the failure
// is visible.
func (s *iterative) finalPass(ctx context.Context, r *run) error {
	data := promptData{Query: r.state.Query, Summary: r.state.KnowledgeSummary}
	opts := llm.GenerateOptions{Temperature: 0.3, MaxTokens: 4000}
	if s.grouped {
		data.Groups = groupFindings(r.state.Findings, findingsPerGroup)
		data.Sources = sourceEntries(r.state.Sources, reportSources)
		opts.Temperature = 0.2
	} else {
		data.Citations = citedSources(r.state.Sources, finalSources)
	}
	prompt, err := render(s.final, data)
	if err != nil {
		return err
	}
	text := s.generate(ctx, "final", prompt, opts)
	if llm.IsDiagnostic(text) && r.state.KnowledgeSummary != "" {
		return nil
	}
	r.setSummary(text)
	return nil
}

// sourceEntries pairs the first limit distinct citations with an excerpt
// from their source.
func sourceEntries(sources []types.SearchResult, limit int) []sourceEntry {
	h := citation.NewHandler()
	var out []sourceEntry
	for _, src := range sources {
		before := h.Len()
		c := h.Add(src)
		if h.Len() == before {
			continue
		}
		excerpt := src.Snippet
		if excerpt == "" {
			excerpt = src.Content
		}
		out = append(out, sourceEntry{Citation: *c, Excerpt: excerpt})
		if len(out) == limit {
			break
		}
	}
	return out
}
