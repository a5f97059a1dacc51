package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "XIPHER"
	envConfigDefaultPath = "XIPHER_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "xipherc.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars (.env included) < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	// A missing .env is normal; real environment variables still win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) && logger != nil {
		logger.Warn().Err(err).Msg("failed to read .env")
	}

	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("api_base_url", cfg.APIBaseURL)
	v.SetDefault("ws_url", cfg.WSURL)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("request_timeout", cfg.RequestTimeout)
	v.SetDefault("max_retries", cfg.MaxRetries)
	v.SetDefault("retry_base_delay", cfg.RetryBaseDelay)
	v.SetDefault("ws_reconnect_base", cfg.WSReconnectBase)
	v.SetDefault("ws_reconnect_max", cfg.WSReconnectMax)
	v.SetDefault("ws_ping_interval", cfg.WSPingInterval)
	v.SetDefault("ws_auth_timeout", cfg.WSAuthTimeout)
	v.SetDefault("typing_cooldown", cfg.TypingCooldown)
	v.SetDefault("typing_quiet", cfg.TypingQuiet)
	v.SetDefault("typing_display_timeout", cfg.TypingDisplayTimeout)
	v.SetDefault("cache_path", cfg.CachePath)
	v.SetDefault("max_upload_bytes", cfg.MaxUploadBytes)
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

// configFile is the on-disk form: durations as "1.5s" rather than nanoseconds.
type configFile struct {
	APIBaseURL           string `yaml:"api_base_url"`
	WSURL                string `yaml:"ws_url"`
	LogLevel             string `yaml:"log_level"`
	LogFormat            string `yaml:"log_format"`
	RequestTimeout       string `yaml:"request_timeout"`
	MaxRetries           int    `yaml:"max_retries"`
	RetryBaseDelay       string `yaml:"retry_base_delay"`
	WSReconnectBase      string `yaml:"ws_reconnect_base"`
	WSReconnectMax       string `yaml:"ws_reconnect_max"`
	WSPingInterval       string `yaml:"ws_ping_interval"`
	WSAuthTimeout        string `yaml:"ws_auth_timeout"`
	TypingCooldown       string `yaml:"typing_cooldown"`
	TypingQuiet          string `yaml:"typing_quiet"`
	TypingDisplayTimeout string `yaml:"typing_display_timeout"`
	CachePath            string `yaml:"cache_path"`
	MaxUploadBytes       int64  `yaml:"max_upload_bytes"`
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(configFile{
		APIBaseURL:           cfg.APIBaseURL,
		WSURL:                cfg.WSURL,
		LogLevel:             cfg.LogLevel,
		LogFormat:            cfg.LogFormat,
		RequestTimeout:       cfg.RequestTimeout.String(),
		MaxRetries:           cfg.MaxRetries,
		RetryBaseDelay:       cfg.RetryBaseDelay.String(),
		WSReconnectBase:      cfg.WSReconnectBase.String(),
		WSReconnectMax:       cfg.WSReconnectMax.String(),
		WSPingInterval:       cfg.WSPingInterval.String(),
		WSAuthTimeout:        cfg.WSAuthTimeout.String(),
		TypingCooldown:       cfg.TypingCooldown.String(),
		TypingQuiet:          cfg.TypingQuiet.String(),
		TypingDisplayTimeout: cfg.TypingDisplayTimeout.String(),
		CachePath:            cfg.CachePath,
		MaxUploadBytes:       cfg.MaxUploadBytes,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
