// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/pkg/types"
)

// smart lets the model pick one of the other strategies and delegates to
// it. Anything outside the vocabulary selects iterative.
type smart struct{ base }

func (s *smart) ID() ID { return Smart }

func (s *smart) Execute(ctx context.Context, query string) (*types.ResearchState, error) {
	rep := newReporter(s.deps.Progress, s.logger)
	rep.report(2, "Analyzing query to select best research strategy...")

	id, err := s.choose(ctx, query)
	if err != nil {
		return nil, err
	}
	rep.report(5, fmt.Sprintf("Selected strategy: %s", id))

	deps := s.deps
	deps.Progress = rep.report
	delegate, err := New(id, deps)
	if err != nil {
		return nil, err
	}
	return delegate.Execute(ctx, query)
}

func (s *smart) choose(ctx context.Context, query string) (ID, error) {
	var candidates []Info
	for _, info := range infos {
		if info.ID != Smart {
			candidates = append(candidates, info)
		}
	}
	prompt, err := render(selectTmpl, promptData{Query: query, Strategies: candidates})
	if err != nil {
		return "", err
	}
	reply := s.generate(ctx, "select", prompt, llm.GenerateOptions{Temperature: 0.1, MaxTokens: 20})
	return selectID(reply, s.logger), nil
}

// selectID maps a model reply onto a delegate strategy.
func selectID(reply string, logger *zap.Logger) ID {
	choice := strings.ToLower(strings.Trim(strings.TrimSpace(reply), "\"'`. "))
	for _, info := range infos {
		if info.ID != Smart && string(info.ID) == choice {
			return info.ID
		}
	}
	logger.Debug("unrecognized strategy choice, using iterative", zap.String("reply", clip(reply, 100)))
	return Iterative
}
