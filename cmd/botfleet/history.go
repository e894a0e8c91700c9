package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/keshon/botfleet/internal/storage"
)

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <bot>",
		Short: "Print the recent program dispatches of a bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup()
			if err != nil {
				return err
			}
			store, err := storage.New(cmd.Context(), env.StoragePath, log.Logger)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Dispatches(args[0])
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no dispatches recorded for %s\n", args[0])
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tPROGRAM\tKIND\tTRIGGER\tCHANNEL\tTOOK\tSTATUS")
			for _, r := range records {
				status := r.Status
				if r.Error != "" {
					status += ": " + r.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.Started.Local().Format(time.DateTime), r.Program, r.Kind, r.Trigger, r.ChannelID,
					r.Finished.Sub(r.Started).Round(time.Millisecond), status)
			}
			return w.Flush()
		},
	}
}
