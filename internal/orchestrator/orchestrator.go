// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package orchestrator schedules research tasks on a bounded worker pool
// and owns their lifecycle:
//
//	pending → running → completed | failed | cancelled
//
// Every transition and progress update lands in an in-memory task map
// first and is then mirrored to the durable store on a best-effort basis.
// Cancellation is cooperative: a cancelled task keeps running until its
// strategy returns, but its updates and result are discarded.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/progress"
	"github.com/pdiddy/deep-research/internal/research"
	"github.com/pdiddy/deep-research/pkg/types"
)

var (
	// ErrTaskNotFound is returned for an id unknown to memory and store.
	ErrTaskNotFound = errors.New("task not found")

	// ErrShuttingDown is returned by Submit after Shutdown.
	ErrShuttingDown = errors.New("orchestrator is shutting down")

	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("task queue is full")
)

const (
	defaultWorkers       = 3
	defaultQueueSize     = 64
	defaultMaxTasks      = 1024
	defaultMaxErrorLen   = 2000
	defaultMaxMessageLen = 200
	storeTimeout         = 5 * time.Second
)

// Store is the durable task record. The orchestrator uses nothing else
// for persistence.
type Store interface {
	CreateTask(ctx context.Context, query, strategy string) (string, error)
	UpdateTask(ctx context.Context, id string, u types.TaskUpdate) error
	ReadTask(ctx context.Context, id string) (types.TaskRecord, error)
	ListTasks(ctx context.Context, status types.Status, limit int) ([]types.TaskRecord, error)
}

// Publisher receives every progress update for live watchers.
type Publisher interface {
	Publish(ctx context.Context, ev progress.Event) error
}

// Recorder observes task lifecycle events. The metrics package
// implements it.
type Recorder interface {
	TaskSubmitted(strategy string)
	TaskStarted(strategy string)
	TaskFinished(strategy, status string, elapsed time.Duration, ran bool)
}

// StrategyFactory builds the strategy for one task, wired to report
// progress through fn.
type StrategyFactory func(id research.ID, fn research.ProgressFunc) (research.Strategy, error)

// Snapshot is the externally visible state of a task.
type Snapshot struct {
	ID          string       `json:"id" yaml:"id"`
	Query       string       `json:"query" yaml:"query"`
	Strategy    string       `json:"strategy" yaml:"strategy"`
	Status      types.Status `json:"status" yaml:"status"`
	Progress    float64      `json:"progress" yaml:"progress"`
	Message     string       `json:"message" yaml:"message"`
	Error       string       `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at" yaml:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// task is the in-memory entry for one research task. Fields are guarded
// by Service.mu.
type task struct {
	snap   Snapshot
	result *types.ResearchState
	done   chan struct{}
	closed bool
}

func (t *task) terminate(status types.Status, at time.Time) {
	t.snap.Status = status
	t.snap.CompletedAt = &at
	if !t.closed {
		t.closed = true
		close(t.done)
	}
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher mirrors progress to a live feed.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithRecorder attaches task metrics.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// Service runs research tasks. Create it with New, call Start once, and
// Shutdown when done.
type Service struct {
	cfg        types.OrchestratorConfig
	store      Store
	strategies StrategyFactory
	publisher  Publisher
	recorder   Recorder
	logger     *zap.Logger

	mu       sync.Mutex
	tasks    map[string]*task
	order    []string
	queue    chan string
	started  bool
	stopping bool

	wg         sync.WaitGroup
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// New returns a Service. Zero config values take their defaults.
func New(cfg types.OrchestratorConfig, store Store, strategies StrategyFactory, logger *zap.Logger, opts ...Option) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxTasks <= 0 {
		cfg.MaxTasks = defaultMaxTasks
	}
	if cfg.MaxErrorLen <= 0 {
		cfg.MaxErrorLen = defaultMaxErrorLen
	}
	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = defaultMaxMessageLen
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:        cfg,
		store:      store,
		strategies: strategies,
		logger:     logger,
		tasks:      make(map[string]*task),
		queue:      make(chan string, cfg.QueueSize),
		baseCtx:    ctx,
		cancelBase: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the worker pool. Calling it again has no effect.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopping {
		return
	}
	s.started = true
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.logger.Info("orchestrator started", zap.Int("workers", s.cfg.Workers), zap.Int("queue_size", s.cfg.QueueSize))
}

// Shutdown stops accepting tasks and waits for running ones to finish.
// Queued tasks stay pending in the store for Recover. If ctx ends first,
// in-flight strategy calls are cancelled and ctx's error is returned.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.stopping {
		s.stopping = true
		close(s.queue)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancelBase()
		return nil
	case <-ctx.Done():
		s.cancelBase()
		<-done
		return fmt.Errorf("waiting for running tasks: %w", ctx.Err())
	}
}

// Submit creates a pending task and queues it.
func (s *Service) Submit(ctx context.Context, query string, strategy research.ID) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("query is empty")
	}
	id, err := research.ParseID(string(strategy))
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	stopping := s.stopping
	s.mu.Unlock()
	if stopping {
		return "", ErrShuttingDown
	}

	taskID, err := s.createRecord(ctx, query, string(id))
	if err != nil {
		return "", err
	}

	t := &task{
		snap: Snapshot{
			ID:        taskID,
			Query:     query,
			Strategy:  string(id),
			Status:    types.StatusPending,
			Message:   "Queued",
			CreatedAt: time.Now().UTC(),
		},
		done: make(chan struct{}),
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		s.failRecord(taskID, ErrShuttingDown.Error())
		return "", ErrShuttingDown
	}
	s.insert(t)
	select {
	case s.queue <- taskID:
	default:
		s.remove(taskID)
		s.mu.Unlock()
		s.failRecord(taskID, ErrQueueFull.Error())
		return "", ErrQueueFull
	}
	snap := t.snap
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.TaskSubmitted(string(id))
	}
	s.publish(snap)
	s.logger.Info("task submitted",
		zap.String("task_id", taskID), zap.String("strategy", string(id)), zap.String("query", query))
	return taskID, nil
}

// createRecord mints the task id in the store. When the store is down the
// task still runs under a locally minted id.
func (s *Service) createRecord(ctx context.Context, query, strategy string) (string, error) {
	if s.store == nil {
		return uuid.NewString(), nil
	}
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	id, err := s.store.CreateTask(sctx, query, strategy)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		id = uuid.NewString()
		s.logger.Warn("durable task create failed, continuing in memory",
			zap.String("task_id", id), zap.Error(err))
	}
	return id, nil
}

// insert adds t to the map, evicting the oldest terminal tasks beyond
// MaxTasks. Caller holds s.mu.
func (s *Service) insert(t *task) {
	s.tasks[t.snap.ID] = t
	s.order = append(s.order, t.snap.ID)
	if len(s.tasks) <= s.cfg.MaxTasks {
		return
	}
	kept := s.order[:0]
	for _, id := range s.order {
		old := s.tasks[id]
		if len(s.tasks) > s.cfg.MaxTasks && old.snap.Status.Terminal() {
			delete(s.tasks, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// remove drops id from the map. Caller holds s.mu.
func (s *Service) remove(id string) {
	delete(s.tasks, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Cancel moves a pending or running task to cancelled. It reports false
// for a task that is already terminal.
func (s *Service) Cancel(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return s.cancelRecord(ctx, id)
	}
	if t.snap.Status.Terminal() {
		s.mu.Unlock()
		return false, nil
	}
	wasPending := t.snap.Status == types.StatusPending
	now := time.Now().UTC()
	t.snap.Message = "Cancelled by user"
	t.terminate(types.StatusCancelled, now)
	snap := t.snap
	s.mu.Unlock()

	s.logger.Info("task cancelled",
		zap.String("task_id", id), zap.String("strategy", snap.Strategy), zap.Bool("was_pending", wasPending))
	status, msg := types.StatusCancelled, snap.Message
	s.persist(id, types.TaskUpdate{Status: &status, ProgressMessage: &msg, CompletedAt: &now})
	s.publish(snap)
	// A running task is counted when its worker lets go of it.
	if wasPending && s.recorder != nil {
		s.recorder.TaskFinished(snap.Strategy, string(types.StatusCancelled), 0, false)
	}
	return true, nil
}

// cancelRecord cancels a task known only to the store, such as one
// evicted from memory or queued by an earlier process.
func (s *Service) cancelRecord(ctx context.Context, id string) (bool, error) {
	rec, err := s.read(ctx, id)
	if err != nil {
		return false, err
	}
	if rec.Status.Terminal() {
		return false, nil
	}
	now := time.Now().UTC()
	status, msg := types.StatusCancelled, "Cancelled by user"
	if err := s.store.UpdateTask(ctx, id, types.TaskUpdate{Status: &status, ProgressMessage: &msg, CompletedAt: &now}); err != nil {
		return false, fmt.Errorf("cancelling task %s: %w", id, err)
	}
	return true, nil
}

// Progress returns the task's current snapshot, from memory when present
// and from the store otherwise.
func (s *Service) Progress(ctx context.Context, id string) (Snapshot, error) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	var snap Snapshot
	if ok {
		snap = t.snap
	}
	s.mu.Unlock()
	if ok {
		return snap, nil
	}

	rec, err := s.read(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return snapshotFromRecord(rec), nil
}

// Wait blocks until the task is terminal or ctx ends. Tasks known only to
// the store are returned as stored.
func (s *Service) Wait(ctx context.Context, id string) (Snapshot, error) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return s.Progress(ctx, id)
	}
	select {
	case <-t.done:
		return s.Progress(ctx, id)
	case <-ctx.Done():
		snap, _ := s.Progress(context.Background(), id)
		return snap, ctx.Err()
	}
}

// Result returns the research state of a completed task still held in
// memory.
func (s *Service) Result(id string) (*types.ResearchState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.result == nil {
		return nil, false
	}
	return t.result, true
}

// Tasks returns snapshots of every task in memory, oldest first.
func (s *Service) Tasks() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id].snap)
	}
	return out
}

func (s *Service) read(ctx context.Context, id string) (types.TaskRecord, error) {
	if s.store == nil {
		return types.TaskRecord{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	rec, err := s.store.ReadTask(ctx, id)
	if err != nil {
		// Any store miss is reported as not found; the cause is logged.
		s.logger.Debug("task read from store failed", zap.String("task_id", id), zap.Error(err))
		return types.TaskRecord{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return rec, nil
}

func snapshotFromRecord(rec types.TaskRecord) Snapshot {
	return Snapshot{
		ID:          rec.ID,
		Query:       rec.Query,
		Strategy:    rec.Strategy,
		Status:      rec.Status,
		Progress:    rec.Progress,
		Message:     rec.ProgressMessage,
		Error:       rec.ErrorMessage,
		CreatedAt:   rec.CreatedAt,
		CompletedAt: rec.CompletedAt,
	}
}

// persist mirrors u to the store. Failures are logged and dropped.
func (s *Service) persist(id string, u types.TaskUpdate) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.store.UpdateTask(ctx, id, u); err != nil {
		s.logger.Warn("durable task update failed", zap.String("task_id", id), zap.Error(err))
	}
}

func (s *Service) failRecord(id, reason string) {
	now := time.Now().UTC()
	status := types.StatusFailed
	s.persist(id, types.TaskUpdate{Status: &status, ErrorMessage: &reason, CompletedAt: &now})
}

func (s *Service) publish(snap Snapshot) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	err := s.publisher.Publish(ctx, progress.Event{
		TaskID:   snap.ID,
		Status:   snap.Status,
		Progress: snap.Progress,
		Message:  snap.Message,
		Error:    snap.Error,
	})
	if err != nil {
		s.logger.Warn("progress publish failed", zap.String("task_id", snap.ID), zap.Error(err))
	}
}

// truncate bounds s to n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
