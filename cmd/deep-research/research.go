// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/app"
	"github.com/pdiddy/deep-research/internal/citation"
	"github.com/pdiddy/deep-research/internal/export"
	"github.com/pdiddy/deep-research/internal/orchestrator"
	"github.com/pdiddy/deep-research/internal/research"
	"github.com/pdiddy/deep-research/pkg/types"
)

// followInterval is how often a waiting command polls task progress.
const followInterval = 500 * time.Millisecond

var researchCmd = &cobra.Command{
	Use:   "research <query>",
	Short: "Research a question and print a cited answer",
	Long: `Research runs one query as a task with the chosen strategy, printing
progress to stderr and the cited answer to stdout. Interrupting the command
cancels the task.

Strategies: source-based (default), iterative, focused-iteration, parallel,
rapid and smart. Run "deep-research strategies" for details.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

func runResearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	strategyFlag, _ := cmd.Flags().GetString("strategy")
	out, _ := cmd.Flags().GetString("out")
	asJSON, _ := cmd.Flags().GetBool("json")
	quiet, _ := cmd.Flags().GetBool("quiet")
	timeout, _ := cmd.Flags().GetDuration("timeout")

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

	ctx := cmd.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	taskID, err := a.Orchestrator.Submit(ctx, query, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Task %s (%s)\n", taskID, id)

	var progressOut io.Writer
	if !quiet {
		progressOut = cmd.ErrOrStderr()
	}
	snap, err := follow(ctx, a.Orchestrator, taskID, progressOut)
	if err != nil {
		if _, cerr := a.Orchestrator.Cancel(context.Background(), taskID); cerr != nil {
			a.Logger.Warn("cancelling task failed", zap.String("task_id", taskID), zap.Error(cerr))
		}
		return fmt.Errorf("research stopped: %w", err)
	}
	if snap.Status != types.StatusCompleted {
		return fmt.Errorf("research %s: %s", snap.Status, snap.Error)
	}

	state, ok := a.Orchestrator.Result(taskID)
	if !ok {
		return errors.New("research completed but its result is no longer held")
	}
	report := export.FromState(taskID, state)

	if out != "" {
		if err := export.WriteFile(out, report); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", out)
	}
	if asJSON {
		return export.Write(cmd.OutOrStdout(), report, export.FormatJSON)
	}
	printReport(cmd.OutOrStdout(), report)
	return nil
}

// follow polls the task until it is terminal, writing each new progress
// line to w when w is non-nil.
func follow(ctx context.Context, o *orchestrator.Service, id string, w io.Writer) (orchestrator.Snapshot, error) {
	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()

	var last string
	for {
		snap, err := o.Progress(ctx, id)
		if err != nil {
			return snap, err
		}
		if line := progressLine(snap.Progress, snap.Message); w != nil && line != last {
			fmt.Fprintln(w, line)
			last = line
		}
		if snap.Status.Terminal() {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}

func progressLine(percent float64, message string) string {
	return fmt.Sprintf("[%3.0f%%] %s", percent, message)
}

// printReport writes the answer, its numbered sources and run statistics.
func printReport(w io.Writer, r export.Report) {
	fmt.Fprintf(w, "# %s\n\n", r.Query)
	fmt.Fprintln(w, strings.TrimSpace(r.Summary))

	if len(r.Citations) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, c := range r.Citations {
			fmt.Fprintln(w, citation.Format(c))
		}
	}

	fmt.Fprintf(w, "\n%s strategy, %d iteration(s), %d search(es), %d finding(s), %.1fs\n",
		r.Strategy, r.Stats.Iterations, r.Stats.TotalSearches, r.Stats.Findings, r.Stats.DurationSeconds)
}

func init() {
	researchCmd.Flags().StringP("strategy", "s", "", "research strategy (default from config, source-based)")
	researchCmd.Flags().StringP("out", "o", "", "write the report to this file (.yaml or .json)")
	researchCmd.Flags().Bool("json", false, "print the report as JSON")
	researchCmd.Flags().BoolP("quiet", "q", false, "do not print progress")
	researchCmd.Flags().Duration("timeout", 0, "give up and cancel after this long (0 = no limit)")

	rootCmd.AddCommand(researchCmd)
}
