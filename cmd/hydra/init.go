package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hydra/internal/config"
)

var (
	initForce   bool
	initBackend string
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a hydra project",
	Long: `Initialize a directory for use with hydra.

This command sets up everything needed to run hydra:
  - Creates the .hydra directory structure
  - Writes a .hydra.yaml template
  - Writes a sample device file (ip.json)
  - Adds hydra entries to .gitignore

Existing files are left alone unless --force is given.

Examples:
  hydra init              # Initialize current directory
  hydra init ./cluster    # Initialize specific directory
  hydra init --backend anthropic`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing project files")
	initCmd.Flags().StringVar(&initBackend, "backend", "ollama", "Model backend for the template (ollama, huggingface, anthropic)")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing hydra in %s...\n\n", absPath)

	hydraDir := filepath.Join(absPath, ".hydra")
	if _, err := os.Stat(hydraDir); err == nil && !initForce {
		fmt.Printf("Directory already initialized. Use --force to reinitialize.\n")
		return nil
	}

	for _, dir := range []string{hydraDir, filepath.Join(hydraDir, "logs"), filepath.Join(hydraDir, "signals")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	printStatus("✓", "Created .hydra directory structure", color.FgGreen)

	wrote, err := writeProjectFile(filepath.Join(absPath, ".hydra.yaml"), projectConfigTemplate(initBackend))
	if err != nil {
		return fmt.Errorf("creating project config: %w", err)
	}
	reportWrite(wrote, ".hydra.yaml")

	wrote, err = writeProjectFile(filepath.Join(absPath, "ip.json"), sampleDevices)
	if err != nil {
		return fmt.Errorf("creating device file: %w", err)
	}
	reportWrite(wrote, "ip.json")

	if err := updateGitignore(absPath); err != nil {
		return fmt.Errorf("updating .gitignore: %w", err)
	}
	printStatus("✓", "Updated .gitignore with hydra entries", color.FgGreen)

	env := config.KeyEnvVar(initBackend)
	if env != "" {
		if os.Getenv(env) == "" {
			printStatus("⚠", env+" not set (you can set it later)", color.FgYellow)
		} else {
			printStatus("✓", env+" is set", color.FgGreen)
		}
	}

	fmt.Printf("\n%s hydra initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit ip.json with your sender and worker devices")
	fmt.Println("  2. Start a worker on each device:")
	fmt.Println("     hydra listen --role thinking-1")
	fmt.Println("  3. Dispatch a task list:")
	fmt.Println("     hydra run tasks.json")
	fmt.Println()
	return nil
}

// writeProjectFile writes content unless path exists and --force is off.
func writeProjectFile(path, content string) (bool, error) {
	if _, err := os.Stat(path); err == nil && !initForce {
		return false, nil
	}
	return true, os.WriteFile(path, []byte(content), 0644)
}

func reportWrite(wrote bool, name string) {
	if wrote {
		printStatus("✓", "Created "+name, color.FgGreen)
		return
	}
	printStatus("-", name+" exists; left unchanged", color.FgHiBlack)
}

// updateGitignore adds hydra entries to .gitignore if not present
func updateGitignore(repoPath string) error {
	gitignorePath := filepath.Join(repoPath, ".gitignore")

	var existingContent string
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existingContent = string(data)
	}

	hydraEntries := []string{
		".hydra/state.db*",
		".hydra/logs/",
		".hydra/signals/",
	}

	var missing []string
	for _, entry := range hydraEntries {
		if !strings.Contains(existingContent, entry) {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var newContent strings.Builder
	newContent.WriteString(existingContent)
	if len(existingContent) > 0 && !strings.HasSuffix(existingContent, "\n") {
		newContent.WriteString("\n")
	}
	newContent.WriteString("\n# hydra\n")
	for _, entry := range missing {
		newContent.WriteString(entry + "\n")
	}

	return os.WriteFile(gitignorePath, []byte(newContent.String()), 0644)
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

func projectConfigTemplate(backend string) string {
	d := config.Default()
	model := d.Model.Name
	if backend != "" && backend != d.Model.Backend {
		model = `""  # set the model name for ` + backend
	}
	return fmt.Sprintf(`# hydra project configuration
# This file overrides defaults from ~/.config/hydra/config.yaml

model:
  backend: %s
  name: %s
#  base_url: http://localhost:11434

classifier:
  mode: %s
  max_attempts: %d

transport:
  mode: %s
  publish_port: %d
  handshake_timeout: %s
  inactivity_timeout: %s

devices_file: ip.json
# default_class: regular_model

# status:
#   addr: ":8080"
`, backend, model, d.Classifier.Mode, d.Classifier.MaxAttempts,
		d.Transport.Mode, d.Transport.PublishPort,
		d.Transport.HandshakeTimeout, d.Transport.InactivityTimeout)
}

const sampleDevices = `{
  "devices": {
    "sender": {"ip": "192.168.1.10", "port": 5555},
    "regular-1": {"ip": "192.168.1.21", "port": 5556, "handshake_port": 5557, "class": "regular_model"},
    "thinking-1": {"ip": "192.168.1.31", "port": 5556, "handshake_port": 5557, "class": "thinking_model"}
  }
}
`
