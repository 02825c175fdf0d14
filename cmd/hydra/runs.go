package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hydra/internal/state"
)

var (
	runsLimit        int
	runsPurge        time.Duration
	runsInteractions bool
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "Show recorded dispatch runs",
	Long: `Display runs from the state database.

Without arguments, lists the most recent runs.
With a run id, shows that run's assignments and classification failures.

Shows:
  - Run status and duration
  - Classified, delivered and undelivered task counts
  - Per-task device assignments`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 10, "Number of runs to list")
	runsCmd.Flags().DurationVar(&runsPurge, "purge", 0, "Delete runs older than this duration, e.g. 720h")
	runsCmd.Flags().BoolVar(&runsInteractions, "interactions", false, "Include model interactions for a run")
}

func runRuns(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.State.Disabled {
		fmt.Println("State database is disabled (state.disabled = true).")
		return nil
	}
	if a.cfg.State.Path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		if _, err := os.Stat(state.ProjectDBPath(cwd)); os.IsNotExist(err) {
			fmt.Println("No runs recorded. Run 'hydra run <tasks.json>' to start.")
			return nil
		}
	}

	db, err := a.openState()
	if err != nil {
		return err
	}
	defer db.Close()

	if runsPurge > 0 {
		n, err := db.PurgeOldRuns(runsPurge)
		if err != nil {
			return fmt.Errorf("purge runs: %w", err)
		}
		printStatus("✓", fmt.Sprintf("Purged %d runs older than %s", n, runsPurge), color.FgGreen)
		fmt.Println()
	}

	if len(args) == 1 {
		return displayRun(db, args[0])
	}
	return displayRecentRuns(db, runsLimit)
}

func displayRecentRuns(db *state.DB, limit int) error {
	runs, err := db.ListRuns(limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Println("Recent Runs:")
	for _, r := range runs {
		fmt.Printf("  %s: %s, %d/%d delivered (%s ago)\n",
			r.ID, statusColor(r.Status), r.Delivered, r.Classified, formatDuration(time.Since(r.StartedAt)))
	}
	return nil
}

func displayRun(db *state.DB, id string) error {
	run, err := db.GetRun(id)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found", id)
	}

	fmt.Printf("Run: %s\n", run.ID)
	fmt.Printf("  Status: %s\n", statusColor(run.Status))
	fmt.Printf("  Started: %s ago\n", formatDuration(time.Since(run.StartedAt)))
	if run.FinishedAt != nil {
		fmt.Printf("  Took: %s\n", formatDuration(run.FinishedAt.Sub(run.StartedAt)))
	}
	fmt.Printf("  Tasks: %d (%d classified in %d rounds)\n", run.Tasks, run.Classified, run.ClassifyAttempts)
	fmt.Printf("  Delivered: %d, undelivered: %d\n", run.Delivered, run.Undelivered)
	if run.Error != "" {
		fmt.Printf("  Error: %s\n", run.Error)
	}

	assignments, err := db.ListAssignments(id)
	if err != nil {
		return fmt.Errorf("list assignments: %w", err)
	}
	if len(assignments) > 0 {
		fmt.Println()
		fmt.Println("Assignments:")
		for _, as := range assignments {
			symbol := color.GreenString("✓")
			suffix := ""
			if !as.Delivered {
				symbol = color.RedString("✗")
				suffix = " (" + as.Error + ")"
			}
			device := as.DeviceID
			if device == "" {
				device = "-"
			}
			fmt.Printf("  %s %s [%s #%d] -> %s%s\n", symbol, as.TaskID, as.Class, as.QueueIndex, device, suffix)
		}
	}

	failures, err := db.ListClassificationFailures(id)
	if err != nil {
		return fmt.Errorf("list classification failures: %w", err)
	}
	if len(failures) > 0 {
		fmt.Println()
		fmt.Println("Unclassified:")
		for _, f := range failures {
			fmt.Printf("  %s %s: %s (%d attempts)\n", color.YellowString("⚠"), f.TaskID, f.Reason, f.Attempts)
		}
	}

	if runsInteractions {
		interactions, err := db.ListInteractions(id)
		if err != nil {
			return fmt.Errorf("list interactions: %w", err)
		}
		fmt.Println()
		fmt.Printf("Interactions: %d\n", len(interactions))
		for _, in := range interactions {
			outcome := "ok"
			if in.Error != "" {
				outcome = in.Error
			}
			fmt.Printf("  #%d %s/%s attempt %d, %dms: %s\n", in.ID, in.Agent, in.Model, in.Attempt, in.DurationMS, outcome)
		}
	}
	return nil
}

func statusColor(s state.RunStatus) string {
	switch s {
	case state.RunSucceeded:
		return color.GreenString(string(s))
	case state.RunFailed:
		return color.RedString(string(s))
	case state.RunCanceled:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
