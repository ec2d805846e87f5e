package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigOptional_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigOptional(filepath.Join(t.TempDir(), "missing.yaml"), true)
	require.NoError(t, err)
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultAuthDir, cfg.AuthDir)
	assert.Equal(t, 10*time.Second, cfg.ExchangeTimeout())
}

func TestLoadConfig_MissingFileFails(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadConfigOptional_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `host: agent.example.com
port: 9999
auth-dir: /data/accounts
debug: true
exchange-timeout-seconds: 3
client-secret: shh
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfigOptional(path, true)
	require.NoError(t, err)
	assert.Equal(t, "agent.example.com", cfg.Host)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "/data/accounts", cfg.AuthDir)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 3*time.Second, cfg.ExchangeTimeout())
	assert.Equal(t, "shh", cfg.ClientSecret)
}

func TestLoadConfigOptional_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0o600))

	cfg, err := LoadConfigOptional(path, false)
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"OAUTH_REDIRECT_HOST":    "192.168.1.10",
		"OAUTH_REDIRECT_PORT":    "9090",
		"ANTIGRAVITY_DATA_DIR":   "/srv/agent",
		"OAUTH_CLIENT_SECRET":    " secret ",
		"OAUTH_EXCHANGE_TIMEOUT": "5",
		"LOG_LEVEL":              "DEBUG",
	}
	cfg := &Config{}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.ApplyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}))

	assert.Equal(t, "192.168.1.10", cfg.Host)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, filepath.Join("/srv/agent", "accounts"), cfg.AuthDir)
	assert.Equal(t, "secret", cfg.ClientSecret)
	assert.Equal(t, 5*time.Second, cfg.ExchangeTimeout())
	assert.True(t, cfg.Debug)
}

func TestApplyEnv_InvalidPortKeepsValue(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	err := cfg.ApplyEnv(func(key string) (string, bool) {
		if key == "OAUTH_REDIRECT_PORT" {
			return "not-a-port", true
		}
		return "", false
	})
	require.Error(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
}

func TestApplyEnv_DataDirIsRootOfAccounts(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.ApplyEnv(func(key string) (string, bool) {
		if key == "ANTIGRAVITY_DATA_DIR" {
			return "/data", true
		}
		return "", false
	}))
	assert.Equal(t, filepath.Join("/data", AccountsDirName), cfg.AuthDir)
	assert.Equal(t, "/data", filepath.Dir(cfg.AuthDir))
	assert.Equal(t, DefaultDataDir, filepath.Dir(DefaultAuthDir))
}
