package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hydra/internal/transport"
)

var killCmd = &cobra.Command{
	Use:   "kill [directory]",
	Short: "Stop workers started with 'hydra listen' in a directory",
	Long: `Write the kill signal file watched by 'hydra listen'.

Every listener started in the directory stops after collecting what it has
received so far. The directory defaults to the current directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolving absolute path: %w", err)
		}
		if err := transport.SendKill(abs); err != nil {
			return fmt.Errorf("send kill signal: %w", err)
		}
		printStatus("✓", "Kill signal written to "+transport.KillSignalPath(abs), color.FgGreen)
		return nil
	},
}
