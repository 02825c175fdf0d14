package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hydra/internal/analyze"
	"github.com/ShayCichocki/hydra/internal/prompts"
)

var (
	analyzeTask string
	analyzeTree string
	analyzeRoot string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Ask the model about a code base",
	Long: `Model-backed helpers for the work around a dispatch cycle.

  files   list the files relevant to a task
  plan    list the files a task will modify, create and delete
  review  judge whether files correctly implement a task

The file tree is read from --tree, or built by walking --root.`,
}

var analyzeFilesCmd = &cobra.Command{
	Use:   "files",
	Short: "List the files relevant to a task",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		an, tree, done, err := newAnalyzer()
		if err != nil {
			return err
		}
		defer done()

		files, err := an.RelevantFiles(cmd.Context(), tree, analyzeTask)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No relevant files.")
			return nil
		}
		for _, f := range files {
			fmt.Println(f)
		}
		return nil
	},
}

var analyzePlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "List the files a task will modify, create and delete",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		an, tree, done, err := newAnalyzer()
		if err != nil {
			return err
		}
		defer done()

		plan, err := an.PlanChanges(cmd.Context(), tree, analyzeTask)
		if err != nil {
			return err
		}
		if plan.Empty() {
			fmt.Println("No changes planned.")
			return nil
		}
		printPaths("Modify", plan.Modify, color.FgYellow)
		printPaths("Create", plan.Create, color.FgGreen)
		printPaths("Delete", plan.Delete, color.FgRed)
		return nil
	},
}

var analyzeReviewCmd = &cobra.Command{
	Use:   "review <file>...",
	Short: "Judge whether files correctly implement a task",
	Long: `Review each file against the task and print the verdict.

The command fails unless every file is approved.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		an, _, done, err := newAnalyzer()
		if err != nil {
			return err
		}
		defer done()

		verdicts := make([]analyze.Verdict, 0, len(args))
		for _, path := range args {
			code, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			v, err := an.Review(cmd.Context(), analyzeTask, path, string(code))
			if err != nil {
				printStatus("✗", fmt.Sprintf("%s: %v", path, err), color.FgRed)
			} else if v.Approved {
				printStatus("✓", path, color.FgGreen)
			} else {
				printStatus("✗", fmt.Sprintf("%s: %s", path, v.Problem), color.FgRed)
			}
			verdicts = append(verdicts, v)
		}

		if !analyze.ShouldMerge(verdicts) {
			return fmt.Errorf("changes not approved")
		}
		fmt.Println("\nAll files approved.")
		return nil
	},
}

func init() {
	analyzeCmd.PersistentFlags().StringVar(&analyzeTask, "task", "", "Task description (required)")
	analyzeCmd.PersistentFlags().StringVar(&analyzeTree, "tree", "", "File holding the code base's file tree")
	analyzeCmd.PersistentFlags().StringVar(&analyzeRoot, "root", ".", "Directory to walk when --tree is not given")
	_ = analyzeCmd.MarkPersistentFlagRequired("task")

	analyzeCmd.AddCommand(analyzeFilesCmd)
	analyzeCmd.AddCommand(analyzePlanCmd)
	analyzeCmd.AddCommand(analyzeReviewCmd)
}

// newAnalyzer wires an analyzer and loads the file tree. The returned func
// releases the logger.
func newAnalyzer() (*analyze.Analyzer, string, func(), error) {
	a, err := loadApp()
	if err != nil {
		return nil, "", nil, err
	}
	done := func() { a.Close() }

	set, err := prompts.Load(a.cfg.PromptsFile)
	if err != nil {
		done()
		return nil, "", nil, err
	}
	client, err := a.client()
	if err != nil {
		done()
		return nil, "", nil, err
	}

	tree, err := loadTree(analyzeTree, analyzeRoot)
	if err != nil {
		done()
		return nil, "", nil, err
	}

	an := analyze.New(client,
		analyze.WithPrompts(set),
		analyze.WithMaxAttempts(a.cfg.Classifier.MaxAttempts),
		analyze.WithLogger(a.logger),
	)
	return an, tree, func() {
		reportUsage(client)
		done()
	}, nil
}

// loadTree returns the content of treeFile, or a listing of root.
func loadTree(treeFile, root string) (string, error) {
	if treeFile != "" {
		data, err := os.ReadFile(treeFile)
		if err != nil {
			return "", fmt.Errorf("read tree: %w", err)
		}
		return string(data), nil
	}
	return buildTree(root)
}

// skipDirs are never listed in a generated tree.
var skipDirs = map[string]bool{".git": true, ".hydra": true, "node_modules": true, "vendor": true}

// buildTree lists every file under root, one slash-separated relative path
// per line.
func buildTree(root string) (string, error) {
	var b strings.Builder
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		b.WriteString(filepath.ToSlash(rel))
		b.WriteByte('\n')
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk %s: %w", root, err)
	}
	return b.String(), nil
}

func printPaths(title string, paths []string, c color.Attribute) {
	if len(paths) == 0 {
		return
	}
	fmt.Printf("%s:\n", title)
	for _, p := range paths {
		fmt.Printf("  %s\n", color.New(c).Sprint(p))
	}
}
