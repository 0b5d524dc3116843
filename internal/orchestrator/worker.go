// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/export"
	"github.com/pdiddy/deep-research/internal/research"
	"github.com/pdiddy/deep-research/pkg/types"
)

func (s *Service) worker() {
	defer s.wg.Done()
	for id := range s.queue {
		s.mu.Lock()
		stopping := s.stopping
		s.mu.Unlock()
		if stopping {
			// Left pending in the store for the next Recover.
			continue
		}
		s.run(id)
	}
}

// run executes one task. Exactly one terminal status is recorded per task:
// here for completed and failed, or earlier by Cancel.
func (s *Service) run(id string) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok || t.snap.Status != types.StatusPending {
		s.mu.Unlock()
		return
	}
	started := time.Now().UTC()
	t.snap.Status = types.StatusRunning
	t.snap.StartedAt = &started
	t.snap.Message = "Starting research"
	snap := t.snap
	s.mu.Unlock()

	logger := s.logger.With(zap.String("task_id", id), zap.String("strategy", snap.Strategy))
	logger.Info("task running")
	status := types.StatusRunning
	s.persist(id, types.TaskUpdate{Status: &status, ProgressMessage: &snap.Message})
	s.publish(snap)
	if s.recorder != nil {
		s.recorder.TaskStarted(snap.Strategy)
	}

	state, err := s.execute(t, snap)
	elapsed := time.Since(started)
	s.finish(t, state, err, elapsed, logger)
}

// execute builds and runs the strategy, turning a panic into an error
// carrying the stack.
func (s *Service) execute(t *task, snap Snapshot) (state *types.ResearchState, err error) {
	defer func() {
		if p := recover(); p != nil {
			state = nil
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()

	strategy, err := s.strategies(research.ID(snap.Strategy), s.progressSink(t))
	if err != nil {
		return nil, fmt.Errorf("building strategy: %w", err)
	}
	state, err = strategy.Execute(s.baseCtx, snap.Query)
	if err == nil && state == nil {
		err = fmt.Errorf("strategy %s returned no state", snap.Strategy)
	}
	return state, err
}

// progressSink records strategy checkpoints for t. Updates after t left
// running are dropped.
func (s *Service) progressSink(t *task) research.ProgressFunc {
	return func(percent float64, message string) {
		s.mu.Lock()
		if t.snap.Status != types.StatusRunning {
			s.mu.Unlock()
			return
		}
		if percent > t.snap.Progress {
			t.snap.Progress = percent
		}
		t.snap.Message = truncate(message, s.cfg.MaxMessageLen)
		snap := t.snap
		s.mu.Unlock()

		s.persist(snap.ID, types.TaskUpdate{Progress: &snap.Progress, ProgressMessage: &snap.Message})
		s.publish(snap)
	}
}

func (s *Service) finish(t *task, state *types.ResearchState, runErr error, elapsed time.Duration, logger *zap.Logger) {
	now := time.Now().UTC()

	s.mu.Lock()
	if t.snap.Status != types.StatusRunning {
		// Cancelled while running; the result no longer matters.
		strategy := t.snap.Strategy
		final := t.snap.Status
		s.mu.Unlock()
		logger.Info("discarding result of cancelled task", zap.Duration("elapsed", elapsed))
		if s.recorder != nil {
			s.recorder.TaskFinished(strategy, string(final), elapsed, true)
		}
		return
	}

	var update types.TaskUpdate
	if runErr != nil {
		t.snap.Error = truncate(runErr.Error(), s.cfg.MaxErrorLen)
		t.snap.Message = truncate("Failed: "+runErr.Error(), s.cfg.MaxMessageLen)
		t.terminate(types.StatusFailed, now)
		errMsg := t.snap.Error
		update = types.TaskUpdate{ErrorMessage: &errMsg}
	} else {
		t.result = state
		t.snap.Progress = 100
		t.snap.Message = "Research completed"
		t.terminate(types.StatusCompleted, now)
		knowledge, sources, metadata := resultFields(state, elapsed, logger)
		update = types.TaskUpdate{ResultKnowledge: &knowledge, ResultSources: &sources, ResultMetadata: &metadata}
	}
	snap := t.snap
	s.mu.Unlock()

	update.Status = &snap.Status
	update.Progress = &snap.Progress
	update.ProgressMessage = &snap.Message
	update.CompletedAt = &now
	s.persist(snap.ID, update)
	s.publish(snap)

	if runErr != nil {
		logger.Error("task failed", zap.Error(runErr), zap.Duration("elapsed", elapsed))
	} else {
		logger.Info("task completed",
			zap.Duration("elapsed", elapsed),
			zap.Int("sources", len(state.Sources)),
			zap.Int("total_searches", state.TotalSearches))
	}
	if s.recorder != nil {
		s.recorder.TaskFinished(snap.Strategy, string(snap.Status), elapsed, true)
	}
}

func resultFields(state *types.ResearchState, elapsed time.Duration, logger *zap.Logger) (knowledge, sources, metadata string) {
	src, err := json.Marshal(state.Sources)
	if err != nil {
		logger.Warn("encoding result sources", zap.Error(err))
		src = []byte("[]")
	}
	meta, err := json.Marshal(export.MetadataFor(state, elapsed))
	if err != nil {
		logger.Warn("encoding result metadata", zap.Error(err))
		meta = []byte("{}")
	}
	return state.KnowledgeSummary, string(src), string(meta)
}

// Recover reconciles the store after a restart. Tasks left running by a
// previous process are failed as interrupted; pending ones are queued
// again. It returns how many tasks were requeued and failed.
func (s *Service) Recover(ctx context.Context) (requeued, failed int, err error) {
	if s.store == nil {
		return 0, 0, nil
	}

	running, err := s.store.ListTasks(ctx, types.StatusRunning, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("listing running tasks: %w", err)
	}
	for _, rec := range running {
		s.mu.Lock()
		_, live := s.tasks[rec.ID]
		s.mu.Unlock()
		if live {
			continue
		}
		now := time.Now().UTC()
		status, msg := types.StatusFailed, "Interrupted by restart"
		if err := s.store.UpdateTask(ctx, rec.ID, types.TaskUpdate{
			Status: &status, ProgressMessage: &msg, ErrorMessage: &msg, CompletedAt: &now,
		}); err != nil {
			return requeued, failed, fmt.Errorf("failing interrupted task %s: %w", rec.ID, err)
		}
		failed++
	}

	pending, err := s.store.ListTasks(ctx, types.StatusPending, 0)
	if err != nil {
		return requeued, failed, fmt.Errorf("listing pending tasks: %w", err)
	}
	// Oldest first keeps submission order.
	for i := len(pending) - 1; i >= 0; i-- {
		rec := pending[i]
		if _, err := research.ParseID(rec.Strategy); err != nil {
			s.failRecord(rec.ID, err.Error())
			failed++
			continue
		}
		t := &task{snap: snapshotFromRecord(rec), done: make(chan struct{})}

		s.mu.Lock()
		if _, live := s.tasks[rec.ID]; live || s.stopping {
			s.mu.Unlock()
			continue
		}
		s.insert(t)
		select {
		case s.queue <- rec.ID:
			requeued++
		default:
			s.remove(rec.ID)
			s.mu.Unlock()
			s.logger.Warn("queue full, leaving task pending", zap.String("task_id", rec.ID))
			continue
		}
		s.mu.Unlock()
	}

	if requeued > 0 || failed > 0 {
		s.logger.Info("recovered tasks from store", zap.Int("requeued", requeued), zap.Int("failed", failed))
	}
	return requeued, failed, nil
}
