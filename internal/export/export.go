// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export writes finished research runs as YAML or JSON reports.
// A report carries the query, the synthesized answer, numbered citations,
// the findings behind them, and run statistics.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/deep-research/internal/citation"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Format is a report encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ErrUnknownFormat is returned for encodings other than YAML and JSON.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts "yaml", "yml" and "json", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatForPath picks the format from a file extension, defaulting to YAML.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Metadata is the statistics block of a report. The orchestrator stores
// it as JSON with every completed task.
type Metadata struct {
	Strategy          string           `json:"strategy" yaml:"strategy"`
	Iterations        int              `json:"iterations" yaml:"iterations"`
	TotalSearches     int              `json:"total_searches" yaml:"total_searches"`
	Findings          int              `json:"findings" yaml:"findings"`
	Sources           int              `json:"sources" yaml:"sources"`
	SubQuestions      []string         `json:"sub_questions" yaml:"sub_questions"`
	AnsweredQuestions []string         `json:"answered_questions" yaml:"answered_questions"`
	DurationSeconds   float64          `json:"duration_seconds" yaml:"duration_seconds"`
	Citations         []types.Citation `json:"citations,omitempty" yaml:"-"`
}

// MetadataFor summarizes state. elapsed is the wall time of the run.
func MetadataFor(state *types.ResearchState, elapsed time.Duration) Metadata {
	return Metadata{
		Strategy:          state.Strategy,
		Iterations:        state.Iteration,
		TotalSearches:     state.TotalSearches,
		Findings:          len(state.Findings),
		Sources:           len(state.Sources),
		SubQuestions:      state.SubQuestions,
		AnsweredQuestions: state.AnsweredQuestions,
		DurationSeconds:   elapsed.Seconds(),
		Citations:         citation.FromSources(state.Sources).Citations(),
	}
}

// Report is the exported form of one research run.
type Report struct {
	TaskID      string           `json:"task_id,omitempty" yaml:"task_id,omitempty"`
	Query       string           `json:"query" yaml:"query"`
	Strategy    string           `json:"strategy" yaml:"strategy"`
	Status      types.Status     `json:"status" yaml:"status"`
	Summary     string           `json:"summary" yaml:"summary"`
	Citations   []types.Citation `json:"citations" yaml:"citations"`
	Findings    []types.Finding  `json:"findings,omitempty" yaml:"findings,omitempty"`
	Stats       Metadata         `json:"stats" yaml:"stats"`
	CompletedAt *time.Time       `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// FromState builds a report from an in-memory research state.
func FromState(taskID string, state *types.ResearchState) Report {
	elapsed := time.Duration(0)
	if !state.StartedAt.IsZero() && !state.CompletedAt.IsZero() {
		elapsed = state.CompletedAt.Sub(state.StartedAt)
	}
	meta := MetadataFor(state, elapsed)
	r := Report{
		TaskID:    taskID,
		Query:     state.Query,
		Strategy:  state.Strategy,
		Status:    state.Status,
		Summary:   state.KnowledgeSummary,
		Citations: meta.Citations,
		Findings:  state.Findings,
		Stats:     meta,
	}
	r.Stats.Citations = nil
	if !state.CompletedAt.IsZero() {
		at := state.CompletedAt
		r.CompletedAt = &at
	}
	return r
}

// FromRecord rebuilds a report from a stored task. Findings are not
// stored, so the report carries citations and statistics only.
func FromRecord(rec types.TaskRecord) (Report, error) {
	r := Report{
		TaskID:      rec.ID,
		Query:       rec.Query,
		Strategy:    rec.Strategy,
		Status:      rec.Status,
		Summary:     rec.ResultKnowledge,
		CompletedAt: rec.CompletedAt,
	}
	if rec.ResultMetadata != "" {
		if err := json.Unmarshal([]byte(rec.ResultMetadata), &r.Stats); err != nil {
			return Report{}, fmt.Errorf("decoding metadata of task %s: %w", rec.ID, err)
		}
		r.Citations = r.Stats.Citations
		r.Stats.Citations = nil
	}
	if len(r.Citations) == 0 && rec.ResultSources != "" {
		var sources []types.SearchResult
		if err := json.Unmarshal([]byte(rec.ResultSources), &sources); err != nil {
			return Report{}, fmt.Errorf("decoding sources of task %s: %w", rec.ID, err)
		}
		r.Citations = citation.FromSources(sources).Citations()
	}
	return r, nil
}

// Write encodes r to w.
func Write(w io.Writer, r Report, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		return enc.Close()
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// WriteFile writes r to path in the format its extension names, creating
// parent directories.
func WriteFile(path string, r Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating export directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	if err := Write(f, r, FormatForPath(path)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read loads a report written by WriteFile.
func Read(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("reading export file: %w", err)
	}
	var r Report
	if FormatForPath(path) == FormatJSON {
		err = json.Unmarshal(data, &r)
	} else {
		err = yaml.Unmarshal(data, &r)
	}
	if err != nil {
		return Report{}, fmt.Errorf("parsing export file: %w", err)
	}
	return r, nil
}
