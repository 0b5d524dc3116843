// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/deep-research/pkg/types"
)

func sampleState() *types.ResearchState {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &types.ResearchState{
		Query:         "How do heat pumps work?",
		Strategy:      "source-based",
		Status:        types.StatusCompleted,
		Iteration:     2,
		TotalSearches: 7,
		Sources: []types.SearchResult{
			{Title: "Heat pump", URL: "https://en.wikipedia.org/wiki/Heat_pump", SourceEngine: "wikipedia"},
			{Title: "COP measurements", URL: "https://arxiv.org/abs/1234.5678", SourceEngine: "arxiv", Authors: []string{"A. Author"}},
		},
		Findings: []types.Finding{
			{Content: "Heat pumps move heat", SourceURL: "https://en.wikipedia.org/wiki/Heat_pump", SubQuestion: "mechanism", Iteration: 1},
		},
		SubQuestions:      []string{"mechanism", "efficiency"},
		AnsweredQuestions: []string{"mechanism"},
		KnowledgeSummary:  "Heat pumps move heat [1] with COP above 3 [2].",
		StartedAt:         started,
		CompletedAt:       started.Add(90 * time.Second),
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"yaml", FormatYAML, false},
		{"YML", FormatYAML, false},
		{" json ", FormatJSON, false},
		{"markdown", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatForPath("out/report.JSON"))
	assert.Equal(t, FormatYAML, FormatForPath("out/report.yaml"))
	assert.Equal(t, FormatYAML, FormatForPath("report"))
}

func TestFromState(t *testing.T) {
	r := FromState("task-1", sampleState())

	assert.Equal(t, "task-1", r.TaskID)
	assert.Equal(t, "How do heat pumps work?", r.Query)
	require.Len(t, r.Citations, 2)
	assert.Equal(t, 1, r.Citations[0].Number)
	assert.Equal(t, "Heat pump", r.Citations[0].Title)
	assert.Equal(t, 2, r.Citations[1].Number)
	assert.Equal(t, 2, r.Stats.Iterations)
	assert.Equal(t, 7, r.Stats.TotalSearches)
	assert.Equal(t, 1, r.Stats.Findings)
	assert.Equal(t, 2, r.Stats.Sources)
	assert.Equal(t, 90.0, r.Stats.DurationSeconds)
	assert.Nil(t, r.Stats.Citations)
	require.NotNil(t, r.CompletedAt)
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FromState("", sampleState()), FormatYAML))

	out := buf.String()
	assert.Contains(t, out, "query: How do heat pumps work?")
	assert.Contains(t, out, "strategy: source-based")
	assert.Contains(t, out, "total_searches: 7")
	assert.Contains(t, out, "- number: 1")
	assert.NotContains(t, out, "task_id")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FromState("t", sampleState()), FormatJSON))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "t", got["task_id"])
	assert.Len(t, got["citations"], 2)
	stats := got["stats"].(map[string]any)
	assert.NotContains(t, stats, "citations")
}

func TestWriteUnknownFormat(t *testing.T) {
	err := Write(&bytes.Buffer{}, Report{}, "pdf")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestWriteFileAndRead(t *testing.T) {
	for _, name := range []string{"report.yaml", "report.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			want := FromState("t", sampleState())
			require.NoError(t, WriteFile(path, want))

			got, err := Read(path)
			require.NoError(t, err)
			assert.Equal(t, want.Query, got.Query)
			assert.Equal(t, want.Summary, got.Summary)
			assert.Equal(t, want.Citations, got.Citations)
			assert.Equal(t, want.Findings, got.Findings)
			assert.Equal(t, want.Stats.TotalSearches, got.Stats.TotalSearches)
		})
	}
}

func TestFromRecord(t *testing.T) {
	state := sampleState()
	meta, err := json.Marshal(MetadataFor(state, time.Minute))
	require.NoError(t, err)
	sources, err := json.Marshal(state.Sources)
	require.NoError(t, err)
	done := time.Now().UTC()

	t.Run("citations from metadata", func(t *testing.T) {
		r, err := FromRecord(types.TaskRecord{
			ID: "t", Query: state.Query, Strategy: "source-based", Status: types.StatusCompleted,
			ResultKnowledge: state.KnowledgeSummary, ResultSources: string(sources),
			ResultMetadata: string(meta), CompletedAt: &done,
		})
		require.NoError(t, err)
		assert.Equal(t, state.KnowledgeSummary, r.Summary)
		assert.Len(t, r.Citations, 2)
		assert.Nil(t, r.Stats.Citations)
		assert.Equal(t, 60.0, r.Stats.DurationSeconds)
		assert.Empty(t, r.Findings)
	})

	t.Run("citations from sources", func(t *testing.T) {
		r, err := FromRecord(types.TaskRecord{ID: "t", ResultSources: string(sources)})
		require.NoError(t, err)
		require.Len(t, r.Citations, 2)
		assert.Equal(t, "COP measurements", r.Citations[1].Title)
	})

	t.Run("bad metadata", func(t *testing.T) {
		_, err := FromRecord(types.TaskRecord{ID: "t", ResultMetadata: "{"})
		assert.ErrorContains(t, err, "decoding metadata")
	})
}
