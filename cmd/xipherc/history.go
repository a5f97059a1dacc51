package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xipher-messenger/chatcore/internal/core"
)

func init() {
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [peer-id]",
	Short: "Print the message history with a peer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := signedInApp()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		records, err := a.API().FetchHistory(ctx, args[0])
		if err != nil {
			return fmt.Errorf("fetch history (%s): %w", core.Classify(err), err)
		}

		self := a.Session().UserID()
		out := cmd.OutOrStdout()
		for _, rec := range records {
			who := rec.SenderLabel
			if core.DirectionFor(rec, self) == core.DirectionOutgoing {
				who = "you"
			} else if who == "" {
				who = rec.SenderID
			}
			fmt.Fprintf(out, "#%s %s %s: %s\n", rec.ServerID, rec.CreatedAt, who, rec.Content)
		}
		fmt.Fprintf(out, "%d messages\n", len(records))
		return nil
	},
}
