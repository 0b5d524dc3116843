// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package progress publishes live task progress to Redis. Each update
// overwrites a snapshot key, so late readers see the latest state, and is
// published on a per-task channel for watchers.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/pkg/types"
)

// ErrNoProgress is returned when no snapshot exists for a task.
var ErrNoProgress = errors.New("no progress recorded")

const (
	keyPrefix  = "deep-research:progress:"
	defaultTTL = 24 * time.Hour
)

// Event is one progress update.
type Event struct {
	TaskID    string       `json:"task_id"`
	Status    types.Status `json:"status"`
	Progress  float64      `json:"progress"`
	Message   string       `json:"message"`
	Error     string       `json:"error,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Feed reads and writes progress events in Redis.
type Feed struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewFeed returns a Feed over client. Snapshots expire ttl after their
// last update.
func NewFeed(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Feed {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{client: client, ttl: ttl, logger: logger}
}

// Dial connects to the Redis server at addr and checks it answers.
func Dial(ctx context.Context, cfg types.ProgressConfig, logger *zap.Logger) (*Feed, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	return NewFeed(client, cfg.TTL, logger), nil
}

// Close closes the Redis client.
func (f *Feed) Close() error { return f.client.Close() }

func key(taskID string) string { return keyPrefix + taskID }

// Publish stores ev as the task's snapshot and notifies watchers.
func (f *Feed) Publish(ctx context.Context, ev Event) error {
	if ev.UpdatedAt.IsZero() {
		ev.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding progress event: %w", err)
	}
	k := key(ev.TaskID)
	_, err = f.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, k, data, f.ttl)
		p.Publish(ctx, k, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publishing progress for %s: %w", ev.TaskID, err)
	}
	return nil
}

// Latest returns the task's last snapshot.
func (f *Feed) Latest(ctx context.Context, taskID string) (Event, error) {
	data, err := f.client.Get(ctx, key(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Event{}, fmt.Errorf("%w: %s", ErrNoProgress, taskID)
	}
	if err != nil {
		return Event{}, fmt.Errorf("reading progress for %s: %w", taskID, err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decoding progress for %s: %w", taskID, err)
	}
	return ev, nil
}

// Watch calls fn with the current snapshot, if any, and then with every
// published event until the task reaches a terminal status, fn returns
// false, or ctx ends.
func (f *Feed) Watch(ctx context.Context, taskID string, fn func(Event) bool) error {
	sub := f.client.Subscribe(ctx, key(taskID))
	defer sub.Close()
	// Wait for the subscription so no event between Latest and the first
	// message is lost.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to progress for %s: %w", taskID, err)
	}

	if ev, err := f.Latest(ctx, taskID); err == nil {
		if !fn(ev) || ev.Status.Terminal() {
			return nil
		}
	} else if !errors.Is(err, ErrNoProgress) {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				f.logger.Warn("skipping malformed progress event", zap.String("task_id", taskID), zap.Error(err))
				continue
			}
			if !fn(ev) || ev.Status.Terminal() {
				return nil
			}
		}
	}
}
