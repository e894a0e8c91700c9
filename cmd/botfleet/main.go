// cmd/botfleet/main.go
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/keshon/botfleet/internal/version"
)

var verbose bool

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          version.AppName,
		Short:        version.AppDescription,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFleet(cmd.Context())
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(runCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(versionCmd())
	return root
}
