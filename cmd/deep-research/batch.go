// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/app"
	"github.com/pdiddy/deep-research/internal/export"
	"github.com/pdiddy/deep-research/internal/research"
	"github.com/pdiddy/deep-research/pkg/types"
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Research every query in a file",
	Long: `Batch reads one query per line (blank lines and lines starting with #
are skipped; "-" reads stdin), runs them as concurrent tasks, and writes one
report per query into the output directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

type batchResult struct {
	index  int
	query  string
	taskID string
	status types.Status
	path   string
	err    error
}

func runBatch(cmd *cobra.Command, args []string) error {
	strategyFlag, _ := cmd.Flags().GetString("strategy")
	outDir, _ := cmd.Flags().GetString("out-dir")
	format, _ := cmd.Flags().GetString("format")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	ext, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	queries, err := readQueryList(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}
	if len(queries) == 0 {
		return fmt.Errorf("no queries in %s", args[0])
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", outDir, err)
	}

	a, done, err := setup(cmd, app.Options{Orchestrator: true})
	if err != nil {
		return err
	}
	defer done()

	id := a.DefaultStrategy()
	if strategyFlag != "" {
		if id, err = research.ParseID(strategyFlag); err != nil {
			return err
		}
	}
	if concurrency <= 0 {
		concurrency = a.Config.Orchestrator.Workers
	}

	ctx := cmd.Context()
	p := pool.NewWithResults[batchResult]().WithMaxGoroutines(concurrency)
	for i, q := range queries {
		p.Go(func() batchResult {
			r := batchResult{index: i, query: q}
			r.taskID, r.err = a.Orchestrator.Submit(ctx, q, id)
			if r.err != nil {
				return r
			}
			snap, err := follow(ctx, a.Orchestrator, r.taskID, nil)
			r.status = snap.Status
			if err != nil {
				a.Orchestrator.Cancel(context.Background(), r.taskID)
				r.err = err
				return r
			}
			if snap.Status != types.StatusCompleted {
				msg := snap.Error
				if msg == "" {
					msg = string(snap.Status)
				}
				r.err = errors.New(msg)
				return r
			}
			state, ok := a.Orchestrator.Result(r.taskID)
			if !ok {
				r.err = fmt.Errorf("result of task %s was evicted", r.taskID)
				return r
			}
			r.path = filepath.Join(outDir, fmt.Sprintf("%03d-%s.%s", i+1, slug(q), ext))
			r.err = export.WriteFile(r.path, export.FromState(r.taskID, state))
			a.Logger.Info("batch query finished",
				zap.Int("index", i+1), zap.String("task_id", r.taskID), zap.String("status", string(r.status)))
			return r
		})
	}
	results := p.Wait()

	failed := printBatch(cmd.OutOrStdout(), results)
	if failed > 0 {
		return fmt.Errorf("%d of %d queries failed", failed, len(results))
	}
	return nil
}

// printBatch writes a summary table in input order and returns the number
// of failed queries.
func printBatch(w io.Writer, results []batchResult) int {
	ordered := make([]batchResult, len(results))
	for _, r := range results {
		ordered[r.index] = r
	}

	failed := 0
	fmt.Fprintf(w, "%-4s  %-10s  %-50s  %s\n", "#", "Status", "Query", "Report")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, r := range ordered {
		status, detail := string(r.status), r.path
		if r.err != nil {
			failed++
			if status == "" {
				status = "error"
			}
			detail = r.err.Error()
		}
		fmt.Fprintf(w, "%-4d  %-10s  %-50s  %s\n", r.index+1, status, clip(r.query, 50), detail)
	}
	return failed
}

// readQueryList reads queries from path, or from stdin when path is "-".
func readQueryList(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening query list: %w", err)
		}
		defer f.Close()
		r = f
	}

	var queries []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading query list: %w", err)
	}
	return queries, nil
}

// slug turns a query into a short file name.
func slug(q string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(q) {
		if b.Len() >= 50 {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		return "query"
	}
	return s
}

// clip shortens s to n runes, marking the cut with "...".
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	batchCmd.Flags().StringP("strategy", "s", "", "research strategy for every query")
	batchCmd.Flags().String("out-dir", "output/reports", "directory for the reports")
	batchCmd.Flags().String("format", "yaml", "report format: yaml or json")
	batchCmd.Flags().Int("concurrency", 0, "queries in flight at once (default: orchestrator workers)")

	rootCmd.AddCommand(batchCmd)
}
