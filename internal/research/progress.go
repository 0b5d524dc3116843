// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/pkg/types"
)

// reporter forwards checkpoints to a ProgressFunc. Percentages never go
// backwards and a panicking sink is contained.
type reporter struct {
	mu     sync.Mutex
	sink   ProgressFunc
	last   float64
	logger *zap.Logger
}

func newReporter(sink ProgressFunc, logger *zap.Logger) *reporter {
	return &reporter{sink: sink, logger: logger}
}

func (r *reporter) report(percent float64, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if math.IsNaN(percent) {
		percent = r.last
	}
	percent = math.Min(100, math.Max(percent, r.last))
	r.last = percent

	r.logger.Debug("progress", zap.Float64("percent", percent), zap.String("message", message))
	if r.sink == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("progress sink panicked", zap.Any("panic", p))
		}
	}()
	r.sink(percent, message)
}

// percent returns the last reported value.
func (r *reporter) percent() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// run ties a state's accumulator to its progress reporter for one
// Execute call.
type run struct {
	*accumulator
	rep *reporter
}

func (b *base) start(id ID, query string, maxIterations int) *run {
	return &run{
		accumulator: newAccumulator(b.newState(id, query, maxIterations)),
		rep:         newReporter(b.deps.Progress, b.logger),
	}
}

// checkpoint reports progress and mirrors it into the state.
func (r *run) checkpoint(percent float64, message string) {
	r.rep.report(percent, message)
	if !r.done {
		r.state.Progress = r.rep.percent()
	}
}

// finish completes the state and reports 100 last.
func (r *run) finish() *types.ResearchState {
	state := r.complete()
	r.rep.report(100, "Research completed")
	return state
}
