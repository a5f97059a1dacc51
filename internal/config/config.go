package config

import "time"

// Config holds client engine configuration values.
type Config struct {
	APIBaseURL           string        `mapstructure:"api_base_url" yaml:"api_base_url"`
	WSURL                string        `mapstructure:"ws_url" yaml:"ws_url"`
	LogLevel             string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat            string        `mapstructure:"log_format" yaml:"log_format"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxRetries           int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBaseDelay       time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
	WSReconnectBase      time.Duration `mapstructure:"ws_reconnect_base" yaml:"ws_reconnect_base"`
	WSReconnectMax       time.Duration `mapstructure:"ws_reconnect_max" yaml:"ws_reconnect_max"`
	WSPingInterval       time.Duration `mapstructure:"ws_ping_interval" yaml:"ws_ping_interval"`
	WSAuthTimeout        time.Duration `mapstructure:"ws_auth_timeout" yaml:"ws_auth_timeout"`
	TypingCooldown       time.Duration `mapstructure:"typing_cooldown" yaml:"typing_cooldown"`
	TypingQuiet          time.Duration `mapstructure:"typing_quiet" yaml:"typing_quiet"`
	TypingDisplayTimeout time.Duration `mapstructure:"typing_display_timeout" yaml:"typing_display_timeout"`
	CachePath            string        `mapstructure:"cache_path" yaml:"cache_path"`
	MaxUploadBytes       int64         `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		APIBaseURL:           "http://localhost:8080",
		WSURL:                "ws://localhost:8080/ws",
		LogLevel:             "info",
		LogFormat:            "console",
		RequestTimeout:       15 * time.Second,
		MaxRetries:           3,
		RetryBaseDelay:       time.Second,
		WSReconnectBase:      time.Second,
		WSReconnectMax:       30 * time.Second,
		WSPingInterval:       25 * time.Second,
		WSAuthTimeout:        10 * time.Second,
		TypingCooldown:       2 * time.Second,
		TypingQuiet:          1500 * time.Millisecond,
		TypingDisplayTimeout: 4500 * time.Millisecond,
		CachePath:            "",
		MaxUploadBytes:       10 << 20,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.APIBaseURL != "" {
		c.APIBaseURL = other.APIBaseURL
	}
	if other.WSURL != "" {
		c.WSURL = other.WSURL
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.RequestTimeout != 0 {
		c.RequestTimeout = other.RequestTimeout
	}
	if other.MaxRetries != 0 {
		c.MaxRetries = other.MaxRetries
	}
	if other.RetryBaseDelay != 0 {
		c.RetryBaseDelay = other.RetryBaseDelay
	}
	if other.WSReconnectBase != 0 {
		c.WSReconnectBase = other.WSReconnectBase
	}
	if other.WSReconnectMax != 0 {
		c.WSReconnectMax = other.WSReconnectMax
	}
	if other.WSPingInterval != 0 {
		c.WSPingInterval = other.WSPingInterval
	}
	if other.WSAuthTimeout != 0 {
		c.WSAuthTimeout = other.WSAuthTimeout
	}
	if other.TypingCooldown != 0 {
		c.TypingCooldown = other.TypingCooldown
	}
	if other.TypingQuiet != 0 {
		c.TypingQuiet = other.TypingQuiet
	}
	if other.TypingDisplayTimeout != 0 {
		c.TypingDisplayTimeout = other.TypingDisplayTimeout
	}
	if other.CachePath != "" {
		c.CachePath = other.CachePath
	}
	if other.MaxUploadBytes != 0 {
		c.MaxUploadBytes = other.MaxUploadBytes
	}
}
