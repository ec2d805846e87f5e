// Package config provides configuration management for the OAuth callback server.
// It handles loading the optional YAML configuration file and applying environment
// overrides so the callback listener receives a fully resolved host, port and data
// directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultHost is the advertised host used in redirect URIs.
	DefaultHost = "localhost"
	// DefaultPort is the port the callback listener binds to.
	DefaultPort = 8888
	// DefaultDataDir is the data root. Records live in its accounts directory and logs next to them.
	DefaultDataDir = "~/.antigravity-agent"
	// AccountsDirName is the record directory below the data root.
	AccountsDirName = "accounts"
	// DefaultAuthDir is where credential records are written by the file store.
	DefaultAuthDir = DefaultDataDir + "/" + AccountsDirName
	// DefaultExchangeTimeoutSeconds bounds each provider round trip.
	DefaultExchangeTimeoutSeconds = 10
)

// Config represents the application's configuration, loaded from a YAML file
// and overridden by environment variables.
type Config struct {
	// Host is the advertised host used in the redirect URI. It may differ from the
	// bind address so the listener can sit behind a container port mapping.
	Host string `yaml:"host" json:"host"`

	// Port is the callback listener port. The listener always binds 0.0.0.0:<port>.
	Port int `yaml:"port" json:"port"`

	// AuthDir is the directory used by the file-backed credential store.
	AuthDir string `yaml:"auth-dir" json:"auth-dir"`

	// Debug enables debug level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile writes logs to rotating files instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogsMaxTotalSizeMB limits the size of the log directory. <= 0 disables the cleaner.
	LogsMaxTotalSizeMB int `yaml:"logs-max-total-size-mb" json:"logs-max-total-size-mb"`

	// ProxyURL is an optional socks5/http/https proxy for calls to the identity provider.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	// ExchangeTimeoutSeconds bounds the token exchange and the userinfo lookup individually.
	ExchangeTimeoutSeconds int `yaml:"exchange-timeout-seconds" json:"exchange-timeout-seconds"`

	// ClientID overrides the built-in OAuth client identifier.
	ClientID string `yaml:"client-id" json:"client-id"`

	// ClientSecret is the OAuth client secret. It is never embedded in source.
	ClientSecret string `yaml:"client-secret" json:"-"`
}

// ExchangeTimeout returns the configured per-call timeout as a duration.
func (cfg *Config) ExchangeTimeout() time.Duration {
	if cfg == nil || cfg.ExchangeTimeoutSeconds <= 0 {
		return DefaultExchangeTimeoutSeconds * time.Second
	}
	return time.Duration(cfg.ExchangeTimeoutSeconds) * time.Second
}

// LoadConfig reads the YAML configuration file. A missing file is an error.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional reads the YAML configuration file. When optional is true a
// missing or empty file yields a default configuration instead of an error.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(configFile)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", configFile, err)
	}
	if len(strings.TrimSpace(string(data))) > 0 {
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", configFile, err)
		}
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills zero values with their defaults.
func (cfg *Config) ApplyDefaults() {
	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if strings.TrimSpace(cfg.AuthDir) == "" {
		cfg.AuthDir = DefaultAuthDir
	}
	if cfg.ExchangeTimeoutSeconds <= 0 {
		cfg.ExchangeTimeoutSeconds = DefaultExchangeTimeoutSeconds
	}
}

// ApplyEnv overrides configuration values from the environment. lookup is usually
// os.LookupEnv; tests pass a map-backed function. Invalid numeric values are reported
// and leave the current value untouched.
func (cfg *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(keys ...string) (string, bool) {
		for _, key := range keys {
			if value, ok := lookup(key); ok {
				if trimmed := strings.TrimSpace(value); trimmed != "" {
					return trimmed, true
				}
			}
		}
		return "", false
	}

	var errs []error
	if v, ok := get("OAUTH_REDIRECT_HOST", "oauth_redirect_host"); ok {
		cfg.Host = v
	}
	if v, ok := get("OAUTH_REDIRECT_PORT", "oauth_redirect_port"); ok {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("config: invalid OAUTH_REDIRECT_PORT %q", v))
		} else {
			cfg.Port = port
		}
	}
	if v, ok := get("ANTIGRAVITY_DATA_DIR", "antigravity_data_dir"); ok {
		cfg.AuthDir = filepath.Join(v, AccountsDirName)
	}
	if v, ok := get("OAUTH_CLIENT_ID", "oauth_client_id"); ok {
		cfg.ClientID = v
	}
	if v, ok := get("OAUTH_CLIENT_SECRET", "oauth_client_secret"); ok {
		cfg.ClientSecret = v
	}
	if v, ok := get("PROXY_URL", "proxy_url"); ok {
		cfg.ProxyURL = v
	}
	if v, ok := get("OAUTH_EXCHANGE_TIMEOUT", "oauth_exchange_timeout"); ok {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds <= 0 {
			errs = append(errs, fmt.Errorf("config: invalid OAUTH_EXCHANGE_TIMEOUT %q", v))
		} else {
			cfg.ExchangeTimeoutSeconds = seconds
		}
	}
	if v, ok := get("LOG_LEVEL", "log_level"); ok {
		cfg.Debug = strings.EqualFold(v, "debug")
	}
	return errors.Join(errs...)
}
