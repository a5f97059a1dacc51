package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xipher-messenger/chatcore/internal/core"
)

var sendFlags struct {
	chatType string
	replyTo  string
	timeout  time.Duration
}

func init() {
	sendCmd.Flags().StringVar(&sendFlags.chatType, "chat-type", "chat", "conversation type")
	sendCmd.Flags().StringVar(&sendFlags.replyTo, "reply-to", "", "server id of the message to quote")
	sendCmd.Flags().DurationVar(&sendFlags.timeout, "timeout", 10*time.Second, "how long to wait for the server ack")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send [peer-id] [text]",
	Short: "Send one message and wait until the server confirms it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := signedInApp()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), sendFlags.timeout)
		defer cancel()
		runErr := make(chan error, 1)
		go func() { runErr <- a.Run(ctx) }()
		defer func() {
			cancel()
			<-runErr
		}()

		conv := a.Open(args[0], sendFlags.chatType)
		if err := waitFor(ctx, conv, func(s core.Snapshot) bool { return s.Version >= 2 }); err != nil {
			return fmt.Errorf("history did not load: %w", err)
		}
		if sendFlags.replyTo != "" {
			conv.SelectReply(sendFlags.replyTo)
		}
		before := len(conv.Snapshot().Messages)
		conv.Compose(args[1])
		conv.Send()

		var sent core.Message
		err = waitFor(ctx, conv, func(s core.Snapshot) bool {
			for _, m := range s.Messages[min(before, len(s.Messages)):] {
				if m.Direction == core.DirectionOutgoing && m.Content == args[1] && m.Status != core.StatusPending {
					sent = m
					return true
				}
			}
			return false
		})
		if err != nil {
			return fmt.Errorf("no ack: %w", err)
		}
		if sent.Status == core.StatusFailed {
			return fmt.Errorf("send failed: %s", sent.FailReason)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent #%s (%s)\n", sent.ServerID, sent.Status)
		return nil
	},
}

// waitFor blocks until a snapshot satisfies cond or ctx ends.
func waitFor(ctx context.Context, conv *core.Conversation, cond func(core.Snapshot) bool) error {
	if cond(conv.Snapshot()) {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap := <-conv.Updates():
			if cond(snap) {
				return nil
			}
		}
	}
}
