package main

import (
	"errors"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xipher-messenger/chatcore/internal/auth"
	xlog "github.com/xipher-messenger/chatcore/internal/log"
	"github.com/xipher-messenger/chatcore/internal/testserver"
)

var devFlags struct {
	addr       string
	secret     string
	users      []string
	echo       bool
	frameLimit int
}

func init() {
	f := devserverCmd.Flags()
	f.StringVar(&devFlags.addr, "addr", ":8080", "HTTP listen address")
	f.StringVar(&devFlags.secret, "jwt-secret", "dev-secret", "HMAC secret for session tokens")
	f.StringSliceVar(&devFlags.users, "user", []string{"1:alice", "2:bob"}, "id:name pairs to print tokens for")
	f.BoolVar(&devFlags.echo, "echo", true, "push new_message back to the sender")
	f.IntVar(&devFlags.frameLimit, "frame-limit", 0, "max socket frames per minute (0 = unlimited)")
	rootCmd.AddCommand(devserverCmd)
}

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run an in-memory chat backend for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := xlog.New(globalFlags.logLevel, "console")
		srv := testserver.New(testserver.Options{
			JWT:          &auth.JWTConfig{Secret: []byte(devFlags.secret), Issuer: "xipher-dev", TTL: 24 * time.Hour},
			FrameLimit:   devFlags.frameLimit,
			EchoToSender: devFlags.echo,
		}, logger)

		out := cmd.OutOrStdout()
		for _, pair := range devFlags.users {
			id, name, ok := strings.Cut(pair, ":")
			if !ok {
				return fmt.Errorf("bad --user %q, want id:name", pair)
			}
			token, err := srv.Token(id, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s (%s): %s\n", name, id, token)
		}

		httpSrv := &stdhttp.Server{
			Addr:              devFlags.addr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		serverErr := make(chan error, 1)
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				serverErr <- err
				return
			}
			serverErr <- nil
		}()
		logger.Info().Str("addr", devFlags.addr).Msg("dev server listening")

		select {
		case err := <-serverErr:
			return err
		case <-ctx.Done():
			logger.Info().Msg("shutting down dev server")
			return httpSrv.Close()
		}
	},
}
