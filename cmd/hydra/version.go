package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hydra/internal/version"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout(), versionShort)
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print only the version")
}

// printVersion writes the release, plus the Go toolchain and platform unless
// short is set.
func printVersion(w io.Writer, short bool) {
	if short {
		fmt.Fprintln(w, version.Get())
		return
	}
	fmt.Fprintf(w, "hydra version %s (%s %s/%s)\n", version.Get(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
