package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xipher-messenger/chatcore/internal/app"
	"github.com/xipher-messenger/chatcore/internal/core"
)

var chatFlags struct {
	chatType    string
	metricsAddr string
}

func init() {
	chatCmd.Flags().StringVar(&chatFlags.chatType, "chat-type", "chat", "conversation type")
	chatCmd.Flags().StringVar(&chatFlags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat [peer-id]",
	Short: "Open a live conversation with a peer",
	Long: `Open a live conversation. Every line typed is sent as a message.

Commands:
  /reply <id>      quote message <id> in the next send (/reply alone clears)
  /attach <path>   attach a file to the next send
  /resend <local>  retry a failed message
  /logout          sign out, purge the cache and exit
  /quit            exit`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, logger, err := signedInApp()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if chatFlags.metricsAddr != "" {
			srv := &stdhttp.Server{
				Addr:              chatFlags.metricsAddr,
				Handler:           a.Metrics().Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
					logger.Warn().Err(err).Msg("metrics server stopped")
				}
			}()
			defer srv.Close()
		}

		runErr := make(chan error, 1)
		go func() { runErr <- a.Run(ctx) }()

		conv := a.Open(args[0], chatFlags.chatType)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Conversation with %s. Type messages and press Enter to send. /quit to exit.\n", args[0])

		var mu sync.Mutex
		emit := func(line string) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintln(out, line)
		}
		go printUpdates(ctx, conv, emit)
		readInput(ctx, a, conv, cmd.InOrStdin(), emit)

		stop()
		return <-runErr
	},
}

func printUpdates(ctx context.Context, conv *core.Conversation, emit func(string)) {
	r := newRenderer()
	for _, line := range r.diff(conv.Snapshot()) {
		emit(line)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-conv.Updates():
			for _, line := range r.diff(snap) {
				emit(line)
			}
		}
	}
}

func readInput(ctx context.Context, a *app.App, conv *core.Conversation, in io.Reader, emit func(string)) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !handleLine(ctx, a, conv, strings.TrimSpace(line), emit) {
				return
			}
		}
	}
}

// handleLine applies one input line and reports whether to keep reading.
func handleLine(ctx context.Context, a *app.App, conv *core.Conversation, line string, emit func(string)) bool {
	if line == "" {
		return true
	}
	if !strings.HasPrefix(line, "/") {
		conv.Compose(line)
		conv.Send()
		return true
	}

	verb, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch verb {
	case "/quit", "/exit":
		return false
	case "/logout":
		if err := a.Logout(ctx); err != nil {
			emit("logout: " + err.Error())
		}
		return false
	case "/reply":
		conv.SelectReply(strings.TrimPrefix(arg, "#"))
	case "/attach":
		info, err := os.Stat(arg)
		if err != nil {
			emit("attach: " + err.Error())
			return true
		}
		conv.Attach(core.AttachmentRef{Path: arg, Name: filepath.Base(arg), SizeBytes: info.Size()})
		emit("attached " + filepath.Base(arg))
	case "/resend":
		conv.Resend(arg)
	default:
		emit("unknown command " + verb)
	}
	return true
}
