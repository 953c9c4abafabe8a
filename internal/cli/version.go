package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"fluid-gateway/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "fldgate %s\n", version.Version)
		fmt.Fprintf(out, "commit: %s\nbuilt: %s\ngo: %s %s/%s\n", version.Commit, version.BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
