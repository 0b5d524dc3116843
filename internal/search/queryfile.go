// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"os"
	"sort"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/deep-research/pkg/types"
)

// QueryFile is the on-disk form of a search and its results, so a search
// can be inspected or replayed without querying the backends again.
type QueryFile struct {
	Query   string               `yaml:"query"`
	Options QueryFileOptions     `yaml:"options"`
	Results []types.SearchResult `yaml:"results"`
	Summary QuerySummary         `yaml:"summary"`
}

// QueryFileOptions stores the options that produced the results.
type QueryFileOptions struct {
	MaxResults   int      `yaml:"max_results"`
	Engines      []string `yaml:"engines,omitempty"`
	AutoRoute    bool     `yaml:"auto_route"`
	FetchContent bool     `yaml:"fetch_content"`
}

// QuerySummary stores result statistics and a timestamp.
type QuerySummary struct {
	Total             int       `yaml:"total"`
	Queried           []string  `yaml:"queried"`
	DuplicatesRemoved int       `yaml:"duplicates_removed"`
	BackendErrors     []string  `yaml:"backend_errors,omitempty"`
	Timestamp         time.Time `yaml:"timestamp"`
}

// WriteQueryFile saves a query, its options and its output to a YAML file.
func WriteQueryFile(path, query string, opts Options, out Output) error {
	qf := QueryFile{
		Query: query,
		Options: QueryFileOptions{
			MaxResults:   opts.MaxResults,
			Engines:      opts.Engines,
			AutoRoute:    opts.AutoRoute,
			FetchContent: opts.FetchContent,
		},
		Results: out.Results,
		Summary: QuerySummary{
			Total:             len(out.Results),
			Queried:           out.Queried,
			DuplicatesRemoved: out.DuplicatesRemoved,
			Timestamp:         time.Now().UTC(),
		},
	}
	for name, reason := range out.Failures {
		qf.Summary.BackendErrors = append(qf.Summary.BackendErrors, name+": "+reason)
	}
	sort.Strings(qf.Summary.BackendErrors)

	data, err := yaml.Marshal(&qf)
	if err != nil {
		return fmt.Errorf("marshaling query file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadQueryFile loads a previously saved query file from disk.
func ReadQueryFile(path string) (*QueryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading query file: %w", err)
	}
	var qf QueryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, fmt.Errorf("parsing query file: %w", err)
	}
	return &qf, nil
}

// SearchOptions converts the stored options back to Options.
func (qf *QueryFile) SearchOptions() Options {
	return Options{
		MaxResults:   qf.Options.MaxResults,
		Engines:      qf.Options.Engines,
		AutoRoute:    qf.Options.AutoRoute,
		FetchContent: qf.Options.FetchContent,
	}
}

// Output rebuilds the aggregated output from the stored results.
func (qf *QueryFile) Output() Output {
	return Output{
		Results:           qf.Results,
		Queried:           qf.Summary.Queried,
		DuplicatesRemoved: qf.Summary.DuplicatesRemoved,
	}
}
