package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keshon/botfleet/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", version.AppName, version.Version, version.GoVersion)
			if version.BuildDate != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "built %s\n", version.BuildDate)
			}
		},
	}
}
