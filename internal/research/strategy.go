// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package research implements the research strategies. A strategy turns a
// query into a ResearchState by calling the search aggregator and the
// language model, reporting progress at each checkpoint.
//
// Strategies are a closed set identified by ID; New is the only
// constructor and dispatches over every ID.
package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/internal/search"
	"github.com/pdiddy/deep-research/pkg/types"
)

// ErrUnknownStrategy is returned for an ID outside the strategy set.
var ErrUnknownStrategy = errors.New("unknown research strategy")

// ID names a strategy.
type ID string

const (
	Rapid            ID = "rapid"
	Iterative        ID = "iterative"
	FocusedIteration ID = "focused-iteration"
	Parallel         ID = "parallel"
	SourceBased      ID = "source-based"
	Smart            ID = "smart"
)

// Default is used when no strategy is requested.
const Default = SourceBased

// Info describes a strategy for listings.
type Info struct {
	ID          ID     `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	BestFor     string `json:"best_for" yaml:"best_for"`
}

var infos = []Info{
	{SourceBased, "Source-Based", "Iterative research with per-source detail in the cited report", "General research with proper citations"},
	{Rapid, "Rapid", "Single search pass and one synthesis", "Quick factual answers"},
	{Parallel, "Parallel", "Concurrent search over query reformulations", "Broad topics needing multiple perspectives"},
	{Iterative, "Iterative", "Sub-question decomposition over several iterations", "Complex topics requiring deep analysis"},
	{FocusedIteration, "Focused Iteration", "Focused deep dives with confidence-based early stop", "High-accuracy deep analysis"},
	{Smart, "Smart", "Lets the model pick one of the other strategies", "Any topic"},
}

// Infos lists every strategy, default first.
func Infos() []Info {
	out := make([]Info, len(infos))
	copy(out, infos)
	return out
}

// ParseID validates s as a strategy ID. Blank input yields Default.
func ParseID(s string) (ID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Default, nil
	}
	for _, info := range infos {
		if string(info.ID) == s {
			return info.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Strategy runs one research task to completion. Execute returns an error
// only for failures that should fail the task; search and model failures
// degrade the result instead.
type Strategy interface {
	ID() ID
	Execute(ctx context.Context, query string) (*types.ResearchState, error)
}

// Searcher is the aggregator as seen by strategies.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) (search.Output, error)
}

// ProgressFunc receives a percentage in [0,100] and a phase message.
type ProgressFunc func(percent float64, message string)

// Deps are the collaborators shared by every strategy.
type Deps struct {
	Search   Searcher
	LLM      llm.Gateway
	Config   types.ResearchConfig
	Progress ProgressFunc
	Logger   *zap.Logger
}

const (
	defaultMaxIterations       = 3
	defaultQuestionsPerIter    = 3
	defaultConfidenceThreshold = 0.85
	defaultParallelWorkers     = 4
	defaultParallelTimeout     = 60 * time.Second
)

func (d Deps) withDefaults() Deps {
	if d.Config.MaxIterations <= 0 {
		d.Config.MaxIterations = defaultMaxIterations
	}
	if d.Config.QuestionsPerIteration <= 0 {
		d.Config.QuestionsPerIteration = defaultQuestionsPerIter
	}
	if d.Config.ConfidenceThreshold <= 0 {
		d.Config.ConfidenceThreshold = defaultConfidenceThreshold
	}
	if d.Config.ParallelWorkers <= 0 {
		d.Config.ParallelWorkers = defaultParallelWorkers
	}
	if d.Config.ParallelTimeout <= 0 {
		d.Config.ParallelTimeout = defaultParallelTimeout
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

// New returns the strategy for id.
func New(id ID, deps Deps) (Strategy, error) {
	if deps.Search == nil || deps.LLM == nil {
		return nil, fmt.Errorf("strategy %s needs a searcher and a language model", id)
	}
	deps = deps.withDefaults()
	b := base{deps: deps, logger: deps.Logger.With(zap.String("strategy", string(id)))}

	switch id {
	case Rapid:
		return &rapid{b}, nil
	case Iterative:
		return &iterative{base: b, id: Iterative, final: finalSynthesisTmpl}, nil
	case SourceBased:
		return &iterative{base: b, id: SourceBased, final: sourceReportTmpl, grouped: true}, nil
	case FocusedIteration:
		return &focused{iterative{base: b, id: FocusedIteration, final: finalSynthesisTmpl}}, nil
	case Parallel:
		return &parallel{b}, nil
	case Smart:
		return &smart{b}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, id)
}

// base holds what every strategy shares.
type base struct {
	deps   Deps
	logger *zap.Logger
}

func (b *base) cfg() types.ResearchConfig { return b.deps.Config }

// search runs one aggregated search with auto-routing and content
// hydration. A failed search is logged and yields an empty Output.
func (b *base) search(ctx context.Context, query string, maxResults int) search.Output {
	out, err := b.deps.Search.Search(ctx, query, search.Options{
		MaxResults:   maxResults,
		AutoRoute:    true,
		FetchContent: true,
	})
	if err != nil {
		b.logger.Warn("search failed", zap.String("query", query), zap.Error(err))
		return search.Output{Queried: out.Queried}
	}
	return out
}

// generate renders a prompt and calls the model.
func (b *base) generate(ctx context.Context, name string, prompt string, opts llm.GenerateOptions) string {
	text := b.deps.LLM.Generate(ctx, prompt, opts)
	if llm.IsDiagnostic(text) {
		b.logger.Warn("model call degraded", zap.String("step", name), zap.String("diagnostic", text))
	}
	return text
}

// newState starts a ResearchState for query.
func (b *base) newState(id ID, query string, maxIterations int) *types.ResearchState {
	return &types.ResearchState{
		Query:         query,
		Strategy:      string(id),
		Status:        types.StatusRunning,
		MaxIterations: maxIterations,
		StartedAt:     time.Now().UTC(),
	}
}
