// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/app"
	"github.com/pdiddy/deep-research/internal/export"
	"github.com/pdiddy/deep-research/internal/progress"
	"github.com/pdiddy/deep-research/internal/store"
	"github.com/pdiddy/deep-research/pkg/types"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List, inspect, watch and resume research tasks",
	Long: `Tasks reads the task database shared by every deep-research process.
Subcommands list recent tasks, show or export one task, follow a task's
progress live, and resume tasks left pending by an earlier process.`,
}

// --- list subcommand ---

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent tasks, newest first",
	RunE:  runTasksList,
}

func runTasksList(cmd *cobra.Command, args []string) error {
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	st, logger, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	defer logger.Sync()

	recs, err := st.ListTasks(cmd.Context(), types.Status(status), limit)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	printTaskTable(cmd.OutOrStdout(), recs)
	return nil
}

func printTaskTable(w io.Writer, recs []types.TaskRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No tasks found.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-10s  %-17s  %5s  %-19s  %s\n",
		"ID", "Status", "Strategy", "Prog", "Created", "Query")
	fmt.Fprintln(w, strings.Repeat("-", 130))
	for _, r := range recs {
		fmt.Fprintf(w, "%-36s  %-10s  %-17s  %4.0f%%  %-19s  %s\n",
			r.ID, r.Status, r.Strategy, r.Progress,
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"), clip(r.Query, 40))
	}
	fmt.Fprintf(w, "\n%d tasks\n", len(recs))
}

// --- show subcommand ---

var tasksShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one task and its result",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksShow,
}

func runTasksShow(cmd *cobra.Command, args []string) error {
	exportPath, _ := cmd.Flags().GetString("export")
	asJSON, _ := cmd.Flags().GetBool("json")

	st, logger, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	defer logger.Sync()

	rec, err := st.ReadTask(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	report, err := export.FromRecord(rec)
	if err != nil {
		return err
	}
	if exportPath != "" {
		if err := export.WriteFile(exportPath, report); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", exportPath)
	}
	if asJSON {
		return export.Write(cmd.OutOrStdout(), report, export.FormatJSON)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Task:     %s\n", rec.ID)
	fmt.Fprintf(w, "Status:   %s (%.0f%%) %s\n", rec.Status, rec.Progress, rec.ProgressMessage)
	fmt.Fprintf(w, "Strategy: %s\n", rec.Strategy)
	fmt.Fprintf(w, "Created:  %s\n", rec.CreatedAt.Local().Format(time.RFC3339))
	if rec.CompletedAt != nil {
		fmt.Fprintf(w, "Finished: %s\n", rec.CompletedAt.Local().Format(time.RFC3339))
	}
	if rec.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:    %s\n", rec.ErrorMessage)
	}
	if rec.Status == types.StatusCompleted {
		fmt.Fprintln(w)
		printReport(w, report)
	}
	return nil
}

// --- watch subcommand ---

var tasksWatchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Follow a task's progress until it finishes",
	Long: `Watch prints progress updates for a task running in any process. With a
Redis progress feed configured (--redis or progress.redis_addr) updates
arrive as they are published; otherwise the task database is polled.`,
	Args: cobra.ExactArgs(1),
	RunE: runTasksWatch,
}

func runTasksWatch(cmd *cobra.Command, args []string) error {
	id := args[0]
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()
	w := cmd.OutOrStdout()

	if cfg.Progress.RedisAddr != "" {
		feed, err := progress.Dial(cmd.Context(), cfg.Progress, logger.Named("progress"))
		if err != nil {
			return err
		}
		defer feed.Close()

		var final progress.Event
		err = feed.Watch(cmd.Context(), id, func(ev progress.Event) bool {
			fmt.Fprintln(w, progressLine(ev.Progress, ev.Message))
			final = ev
			return true
		})
		if err != nil {
			return err
		}
		return finalStatus(final.Status, final.Error)
	}

	st, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()
	return pollRecord(cmd.Context(), st, id, w)
}

// pollRecord prints progress from the store until the task is terminal.
func pollRecord(ctx context.Context, st *store.Store, id string, w io.Writer) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	var last string
	for {
		rec, err := st.ReadTask(ctx, id)
		if err != nil {
			return err
		}
		if line := progressLine(rec.Progress, rec.ProgressMessage); line != last {
			fmt.Fprintln(w, line)
			last = line
		}
		if rec.Status.Terminal() {
			return finalStatus(rec.Status, rec.ErrorMessage)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func finalStatus(status types.Status, errMsg string) error {
	switch status {
	case types.StatusCompleted:
		return nil
	case types.StatusFailed:
		return fmt.Errorf("task failed: %s", errMsg)
	default:
		return fmt.Errorf("task %s", status)
	}
}

// --- resume subcommand ---

var tasksResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Run tasks left pending by an earlier process",
	Long: `Resume marks tasks left running by a crashed process as failed, queues
every pending task again, and waits for them to finish.`,
	RunE: runTasksResume,
}

func runTasksResume(cmd *cobra.Command, args []string) error {
	a, done, err := setup(cmd, app.Options{Orchestrator: true})
	if err != nil {
		return err
	}
	defer done()

	requeued, failed, err := a.Orchestrator.Recover(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Requeued %d task(s), marked %d interrupted task(s) failed\n", requeued, failed)

	var errs []error
	for _, snap := range a.Orchestrator.Tasks() {
		final, err := a.Orchestrator.Wait(cmd.Context(), snap.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s  %s\n", final.ID, final.Status, clip(final.Query, 60))
		if final.Status != types.StatusCompleted {
			errs = append(errs, fmt.Errorf("task %s %s", final.ID, final.Status))
		}
	}
	return errors.Join(errs...)
}

// openStore opens the task database without building the rest of the
// application.
func openStore() (*store.Store, *zap.Logger, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.NewStore(cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	return st, logger, nil
}

func init() {
	tasksListCmd.Flags().String("status", "", "only tasks with this status")
	tasksListCmd.Flags().Int("limit", 20, "maximum tasks to list (0 = all)")
	tasksListCmd.Flags().Bool("json", false, "output tasks as JSON")

	tasksShowCmd.Flags().String("export", "", "write the task report to this file (.yaml or .json)")
	tasksShowCmd.Flags().Bool("json", false, "print the report as JSON")

	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksShowCmd)
	tasksCmd.AddCommand(tasksWatchCmd)
	tasksCmd.AddCommand(tasksResumeCmd)

	rootCmd.AddCommand(tasksCmd)
}
