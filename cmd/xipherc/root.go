package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/xipher-messenger/chatcore/internal/app"
	"github.com/xipher-messenger/chatcore/internal/config"
	xlog "github.com/xipher-messenger/chatcore/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "xipherc",
	Short: "Terminal client for the Xipher chat backend",
	Long: `xipherc drives the chat delivery engine from a terminal: open a direct
conversation, send and receive messages live, or dump a history page.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var globalFlags struct {
	configPath string
	token      string
	userID     string
	username   string
	apiURL     string
	wsURL      string
	logLevel   string
	cachePath  string
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&globalFlags.configPath, "config", "c", "", "config file path (default ./xipherc.yaml)")
	pf.StringVar(&globalFlags.token, "token", os.Getenv("XIPHER_TOKEN"), "session token (or XIPHER_TOKEN)")
	pf.StringVar(&globalFlags.userID, "user-id", "", "own user id when the token does not carry it")
	pf.StringVar(&globalFlags.username, "username", "", "own display name")
	pf.StringVar(&globalFlags.apiURL, "api", "", "REST base URL override")
	pf.StringVar(&globalFlags.wsURL, "ws", "", "WebSocket URL override")
	pf.StringVar(&globalFlags.logLevel, "log-level", "", "log level override (debug, info, warn, error, off)")
	pf.StringVar(&globalFlags.cachePath, "cache", "", "timeline cache path override")
}

// loadConfig resolves configuration with command-line overrides on top.
func loadConfig() (config.Config, *zerolog.Logger, error) {
	bootstrap := xlog.New("warn", "console")
	cfg, path, err := config.Load(bootstrap, globalFlags.configPath)
	if err != nil {
		return cfg, nil, err
	}
	cfg.UpdateFrom(config.Config{
		APIBaseURL: globalFlags.apiURL,
		WSURL:      globalFlags.wsURL,
		LogLevel:   globalFlags.logLevel,
		CachePath:  globalFlags.cachePath,
	})
	logger := xlog.New(cfg.LogLevel, cfg.LogFormat)
	logger.Debug().Str("config", path).Str("api", cfg.APIBaseURL).Str("ws", cfg.WSURL).Msg("configuration loaded")
	return cfg, logger, nil
}

// signedInApp builds the engine and installs the session from flags.
func signedInApp() (*app.App, *zerolog.Logger, error) {
	if globalFlags.token == "" {
		return nil, nil, errors.New("a session token is required (--token or XIPHER_TOKEN)")
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(&cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := a.Login(globalFlags.token, globalFlags.userID, globalFlags.username); err != nil {
		return nil, nil, fmt.Errorf("login: %w", err)
	}
	return a, logger, nil
}
