package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/haivivi/melograph/cmd/melograph/internal/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(build.String())
		if IsVerbose() {
			fmt.Printf("  go:     %s\n", runtime.Version())
			if configPath == "" {
				fmt.Printf("  config: (built-in defaults)\n")
			} else {
				fmt.Printf("  config: %s\n", configPath)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
