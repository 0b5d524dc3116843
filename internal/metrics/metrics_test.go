// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scrape returns the exposition text served by m.
func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestTaskLifecycleCounters(t *testing.T) {
	m := New()

	m.TaskSubmitted("rapid")
	m.TaskSubmitted("rapid")
	m.TaskStarted("rapid")
	assert.Contains(t, scrape(t, m), "deep_research_tasks_running 1")

	m.TaskFinished("rapid", "completed", 3*time.Second, true)
	m.TaskFinished("rapid", "cancelled", 0, false)

	out := scrape(t, m)
	assert.Contains(t, out, `deep_research_tasks_submitted_total{strategy="rapid"} 2`)
	assert.Contains(t, out, `deep_research_tasks_finished_total{status="completed",strategy="rapid"} 1`)
	assert.Contains(t, out, `deep_research_tasks_finished_total{status="cancelled",strategy="rapid"} 1`)
	assert.Contains(t, out, "deep_research_tasks_running 0")
	assert.Contains(t, out, `deep_research_task_duration_seconds_count{strategy="rapid"} 1`)
}

func TestRecorders(t *testing.T) {
	m := New()
	m.ObserveBackend("arxiv", "ok", 200*time.Millisecond)
	m.ObserveBackend("arxiv", "timeout", 30*time.Second)
	m.ObserveLLM("generate", "error", time.Second)

	out := scrape(t, m)
	assert.Contains(t, out, `deep_research_backend_searches_total{backend="arxiv",outcome="timeout"} 1`)
	assert.Contains(t, out, `deep_research_backend_search_seconds_count{backend="arxiv"} 2`)
	assert.Contains(t, out, `deep_research_llm_calls_total{op="generate",outcome="error"} 1`)
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.TaskSubmitted("smart")
	assert.NotContains(t, scrape(t, b), `strategy="smart"`)
}
