package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagLogLevel string
	flagDevices  string
)

var rootCmd = &cobra.Command{
	Use:   "hydra",
	Short: "Capability-aware task dispatch to worker devices",
	Long: `Hydra classifies a list of coding tasks with a language model and hands
each one to a worker device that can run it.

Tasks are split into two capability classes:
- regular_model: setup, layout and other low-reasoning work
- thinking_model: logic-heavy work that needs a reasoning model

Each class queue is spread round-robin over the devices of that class and
delivered over a ZeroMQ publish socket, one topic per device.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: ~/.config/hydra/config.yaml and .hydra.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagDevices, "devices", "", "Override devices_file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(handshakeCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
