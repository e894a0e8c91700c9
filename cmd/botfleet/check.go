package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keshon/botfleet/internal/config"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate every configured bot file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup()
			if err != nil {
				return err
			}
			bots, err := config.LoadBots(env)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, b := range bots {
				fmt.Fprintf(out, "%s: %s\n", b.Name, summary(b))
			}
			return nil
		},
	}
}

func summary(b *config.Bot) string {
	var behaviors []string
	for _, beh := range []config.Behavior{config.BehaviorOnMention, config.BehaviorOnMessage, config.BehaviorTimed, config.BehaviorBackground} {
		if b.Enabled(beh) {
			behaviors = append(behaviors, string(beh))
		}
	}
	if len(behaviors) == 0 {
		behaviors = []string{"none"}
	}
	programs := make([]string, 0, len(b.Programs))
	for name := range b.Programs {
		programs = append(programs, name)
	}
	slices.Sort(programs)
	return fmt.Sprintf("ok (behaviors: %s; programs: %s)", strings.Join(behaviors, ", "), strings.Join(programs, ", "))
}
