package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hydra/internal/orchestrator"
	"github.com/ShayCichocki/hydra/internal/prompts"
	"github.com/ShayCichocki/hydra/pkg/models"
)

var classifyOutput string

var classifyCmd = &cobra.Command{
	Use:   "classify <tasks.json>",
	Short: "Classify tasks without dispatching them",
	Long: `Run a single classification round and write the class queues.

The output file holds {"regular_model": [...], "thinking_model": [...]}.
Tasks the model could not place are listed on stdout and left out of the file.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVarP(&classifyOutput, "output", "o", "model_assignment.json", "Where to write the class queues")
}

func runClassify(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tasks, err := orchestrator.LoadTasks(args[0])
	if err != nil {
		return err
	}
	set, err := prompts.Load(a.cfg.PromptsFile)
	if err != nil {
		return err
	}
	client, err := a.client()
	if err != nil {
		return err
	}
	clf, err := a.classifier(client, set, nil)
	if err != nil {
		return err
	}

	report := clf.Classify(cmd.Context(), tasks)

	for _, class := range models.Classes {
		fmt.Printf("%s:\n", class)
		for _, t := range report.Result.Queue(class) {
			fmt.Printf("  %s %s: %s\n", color.GreenString("✓"), t.ID, t.Description)
		}
	}
	for _, f := range report.Failures {
		fmt.Printf("%s %s: %s\n", color.YellowString("⚠"), f.TaskID, f.Reason)
	}
	fmt.Printf("\n%d of %d classified (%d model calls, %d cached)\n",
		report.Result.Len(), len(tasks), report.Calls, report.CacheHits)
	reportUsage(client)

	if err := writeJSON(classifyOutput, report.Result); err != nil {
		return err
	}
	fmt.Printf("Queues written to %s\n", classifyOutput)

	if report.Result.Empty() {
		return fmt.Errorf("no task was classified")
	}
	return nil
}
