// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search fans a query out to multiple search backends, merges and
// deduplicates their results, and ranks them with a fixed scoring policy.
//
// Backends are selected by the Classifier unless the caller names them.
// Each backend call runs under its own timeout and a process-wide
// concurrency bound; one backend failing never fails the aggregated call.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/pdiddy/deep-research/pkg/types"
)

// ErrEmptyQuery is returned when the query is blank.
var ErrEmptyQuery = errors.New("search query is empty")

const (
	defaultMaxResults     = 10
	minPerBackendResults  = 5
	defaultMaxWorkers     = 5
	defaultBackendTimeout = 30 * time.Second
	defaultGlobalTimeout  = 45 * time.Second
	defaultFetchTimeout   = 15 * time.Second
	defaultFetchTopK      = 5
)

// Options controls one aggregated search.
type Options struct {
	// MaxResults caps the ranked output (default 10).
	MaxResults int

	// Engines names the backends to query. Empty means route.
	Engines []string

	// AutoRoute selects backends from the query's domains. When false and
	// Engines is empty, every backend is queried.
	AutoRoute bool

	// FetchContent hydrates the top results that lack content.
	FetchContent bool
}

// Output is the result of an aggregated search.
type Output struct {
	Results []types.SearchResult `json:"results"`

	// Queried lists the backends invoked, in selection order.
	Queried []string `json:"queried"`

	// Failures maps a backend name to the reason it returned nothing.
	Failures map[string]string `json:"failures,omitempty"`

	DuplicatesRemoved int `json:"duplicates_removed"`
}

// Recorder observes backend calls. The metrics package implements it.
type Recorder interface {
	ObserveBackend(backend, outcome string, elapsed time.Duration)
}

// Aggregator runs searches across a fixed set of backends. It is safe for
// concurrent use; the worker bound is shared by every caller.
type Aggregator struct {
	backends   []Backend
	byName     map[string]Backend
	classifier Classifier
	fetcher    Fetcher
	cfg        types.SearchConfig
	sem        *semaphore.Weighted
	logger     *zap.Logger
	recorder   Recorder
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithRecorder attaches a Recorder for backend call metrics.
func WithRecorder(r Recorder) AggregatorOption {
	return func(a *Aggregator) { a.recorder = r }
}

// WithFetcher sets the content fetcher used for hydration.
func WithFetcher(f Fetcher) AggregatorOption {
	return func(a *Aggregator) { a.fetcher = f }
}

// NewAggregator returns an Aggregator over backends. Zero config values
// take their defaults.
func NewAggregator(backends []Backend, cfg types.SearchConfig, logger *zap.Logger, opts ...AggregatorOption) *Aggregator {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = defaultMaxWorkers
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = defaultBackendTimeout
	}
	if cfg.GlobalTimeout <= 0 {
		cfg.GlobalTimeout = defaultGlobalTimeout
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.FetchTopK <= 0 {
		cfg.FetchTopK = defaultFetchTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Aggregator{
		backends: backends,
		byName:   make(map[string]Backend, len(backends)),
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		logger:   logger,
	}
	for _, b := range backends {
		a.byName[b.Name()] = b
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Backends returns the registered backends in registration order.
func (a *Aggregator) Backends() []Backend { return a.backends }

type backendResult struct {
	idx     int
	results []types.SearchResult
	err     error
}

// Search queries the selected backends concurrently and returns deduped,
// ranked results. It returns an error only for a blank query; backend
// failures are logged and reported in Output.Failures.
func (a *Aggregator) Search(ctx context.Context, query string, opts Options) (Output, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Output{}, ErrEmptyQuery
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	selected := a.selectBackends(query, opts)
	out := Output{Failures: map[string]string{}}
	if len(selected) == 0 {
		a.logger.Warn("no search backends selected", zap.String("query", query))
		return out, nil
	}

	perBackend := maxResults / len(selected)
	if perBackend < minPerBackendResults {
		perBackend = minPerBackendResults
	}

	gctx, cancel := context.WithTimeout(ctx, a.cfg.GlobalTimeout)
	defer cancel()

	// Buffered so late backends can finish after the deadline without
	// blocking.
	ch := make(chan backendResult, len(selected))
	for i, b := range selected {
		out.Queried = append(out.Queried, b.Name())
		go a.call(gctx, i, b, query, perBackend, ch)
	}

	perIdx := make([][]types.SearchResult, len(selected))
	done := make([]bool, len(selected))
collect:
	for received := 0; received < len(selected); received++ {
		select {
		case r := <-ch:
			done[r.idx] = true
			if r.err != nil {
				out.Failures[selected[r.idx].Name()] = r.err.Error()
				continue
			}
			perIdx[r.idx] = r.results
		case <-gctx.Done():
			break collect
		}
	}
	for i, ok := range done {
		if !ok {
			name := selected[i].Name()
			out.Failures[name] = "global search deadline exceeded"
			a.logger.Warn("search backend missed global deadline",
				zap.String("backend", name), zap.Duration("deadline", a.cfg.GlobalTimeout))
		}
	}

	// Selection order, not arrival order, keeps the merge deterministic.
	var merged []types.SearchResult
	for _, rs := range perIdx {
		merged = append(merged, rs...)
	}

	deduped, removed := deduplicate(merged)
	out.DuplicatesRemoved = removed
	ranked := rank(deduped, query)
	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}
	if opts.FetchContent && a.fetcher != nil {
		a.hydrate(ctx, ranked)
	}
	out.Results = ranked

	a.logger.Debug("search complete",
		zap.String("query", query),
		zap.Strings("backends", out.Queried),
		zap.Int("results", len(out.Results)),
		zap.Int("duplicates_removed", removed),
		zap.Int("failures", len(out.Failures)))
	return out, nil
}

// call runs one backend under the shared worker bound and its own timeout.
func (a *Aggregator) call(ctx context.Context, idx int, b Backend, query string, maxResults int, ch chan<- backendResult) {
	res := backendResult{idx: idx}
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res.results = nil
			res.err = fmt.Errorf("backend panicked: %v", p)
			a.logger.Error("search backend panicked",
				zap.String("backend", b.Name()), zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
		}
		a.observe(b.Name(), res.err, time.Since(start))
		ch <- res
	}()

	if err := a.sem.Acquire(ctx, 1); err != nil {
		res.err = fmt.Errorf("waiting for search worker: %w", err)
		return
	}
	defer a.sem.Release(1)

	bctx, cancel := context.WithTimeout(ctx, a.cfg.BackendTimeout)
	defer cancel()

	res.results, res.err = b.Search(bctx, query, maxResults)
	if res.err != nil {
		a.logger.Warn("search backend failed",
			zap.String("backend", b.Name()),
			zap.Error(res.err),
			zap.Duration("elapsed", time.Since(start)))
		res.results = nil
		return
	}
	for i := range res.results {
		if res.results[i].SourceEngine == "" {
			res.results[i].SourceEngine = b.Name()
		}
	}
}

func (a *Aggregator) observe(backend string, err error, elapsed time.Duration) {
	if a.recorder == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	a.recorder.ObserveBackend(backend, outcome, elapsed)
}

// selectBackends resolves the backends to query. Explicit names win; then
// routing by domain with at least one general backend; then everything.
func (a *Aggregator) selectBackends(query string, opts Options) []Backend {
	if len(opts.Engines) > 0 {
		var selected []Backend
		seen := map[string]bool{}
		for _, name := range opts.Engines {
			b, ok := a.byName[name]
			if !ok {
				a.logger.Warn("unknown search engine ignored", zap.String("engine", name))
				continue
			}
			if !seen[name] {
				seen[name] = true
				selected = append(selected, b)
			}
		}
		return selected
	}
	if !opts.AutoRoute {
		return a.backends
	}

	tags := a.classifier.Classify(query)
	var selected []Backend
	hasGeneral := false
	for _, b := range a.backends {
		if b.Capabilities().Intersects(tags) {
			selected = append(selected, b)
			hasGeneral = hasGeneral || b.Capabilities().Has(types.DomainGeneral)
		}
	}
	if !hasGeneral {
		for _, b := range a.backends {
			if b.Capabilities().Has(types.DomainGeneral) {
				selected = append(selected, b)
				break
			}
		}
	}
	if len(selected) == 0 {
		selected = a.backends
	}

	names := make([]string, len(selected))
	for i, b := range selected {
		names[i] = b.Name()
	}
	a.logger.Debug("routed query",
		zap.String("query", query), zap.Stringer("domains", tags), zap.Strings("backends", names))
	return selected
}

// FormatTable writes results as a human-readable table to w.
func FormatTable(out Output, w io.Writer) {
	if len(out.Results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-60s  %-20s  %-6s  %s\n", "Rank", "Title", "Authors", "Score", "Source")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for _, r := range out.Results {
		title := r.Title
		if len([]rune(title)) > 60 {
			title = truncate(title, 57) + "..."
		}
		fmt.Fprintf(w, "%-4d  %-60s  %-20s  %-6.2f  %s\n",
			r.Rank, title, formatAuthors(r.Authors), r.Score, r.SourceEngine)
	}

	fmt.Fprintf(w, "\n%d results from %s", len(out.Results), strings.Join(out.Queried, ", "))
	if out.DuplicatesRemoved > 0 {
		fmt.Fprintf(w, " (%d duplicates removed)", out.DuplicatesRemoved)
	}
	fmt.Fprintln(w)
	for name, reason := range out.Failures {
		fmt.Fprintf(w, "warning: %s: %s\n", name, reason)
	}
}

// FormatJSON writes the output as indented JSON to w.
func FormatJSON(out Output, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 20)
	default:
		return truncate(authors[0], 14) + " et al."
	}
}
