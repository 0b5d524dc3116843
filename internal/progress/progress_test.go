// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/deep-research/pkg/types"
)

func testFeed(t *testing.T) (*Feed, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	f := NewFeed(client, time.Hour, zaptest.NewLogger(t))
	t.Cleanup(func() { f.Close() })
	return f, mr
}

func TestPublishStoresSnapshotWithTTL(t *testing.T) {
	f, mr := testFeed(t)
	ctx := context.Background()

	require.NoError(t, f.Publish(ctx, Event{TaskID: "t1", Status: types.StatusRunning, Progress: 40, Message: "Searching"}))
	require.NoError(t, f.Publish(ctx, Event{TaskID: "t1", Status: types.StatusRunning, Progress: 60, Message: "Synthesizing"}))

	ev, err := f.Latest(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 60.0, ev.Progress)
	assert.Equal(t, "Synthesizing", ev.Message)
	assert.False(t, ev.UpdatedAt.IsZero())
	assert.Equal(t, time.Hour, mr.TTL(key("t1")))

	mr.FastForward(2 * time.Hour)
	_, err = f.Latest(ctx, "t1")
	assert.ErrorIs(t, err, ErrNoProgress)
}

func TestLatestUnknownTask(t *testing.T) {
	f, _ := testFeed(t)
	_, err := f.Latest(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNoProgress)
}

func TestWatchReturnsOnTerminalSnapshot(t *testing.T) {
	f, _ := testFeed(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, f.Publish(ctx, Event{TaskID: "done", Status: types.StatusCompleted, Progress: 100}))

	var got []Event
	require.NoError(t, f.Watch(ctx, "done", func(ev Event) bool {
		got = append(got, ev)
		return true
	}))
	require.Len(t, got, 1)
	assert.Equal(t, types.StatusCompleted, got[0].Status)
}

func TestWatchStreamsUntilTerminal(t *testing.T) {
	f, _ := testFeed(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		mu  sync.Mutex
		got []float64
	)
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		first := true
		done <- f.Watch(ctx, "t2", func(ev Event) bool {
			mu.Lock()
			got = append(got, ev.Progress)
			mu.Unlock()
			if first {
				first = false
				close(started)
			}
			return true
		})
	}()

	// The pending snapshot is delivered first once the watcher subscribed.
	require.NoError(t, f.Publish(ctx, Event{TaskID: "t2", Status: types.StatusPending}))
	select {
	case <-started:
	case <-ctx.Done():
		t.Fatal("watcher never started")
	}

	require.NoError(t, f.Publish(ctx, Event{TaskID: "t2", Status: types.StatusRunning, Progress: 50}))
	require.NoError(t, f.Publish(ctx, Event{TaskID: "t2", Status: types.StatusCompleted, Progress: 100}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("watch did not return after terminal event")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 100.0, got[len(got)-1])
	assert.Contains(t, got, 50.0)
}
