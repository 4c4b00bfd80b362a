package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.Timeout())
	assert.Equal(t, 10*time.Second, cfg.Dispatch.ProbeTimeout())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `{
		"db": {"dsn": "test.db"},
		"server": {"app_port": "9000", "alert_port": "9001", "webhook_token": "hook"},
		"connectors": {"dir": "/etc/alertbridge/connectors", "watch": true},
		"logging": {"level": "debug", "format": "text"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test.db", cfg.DB.DSN)
	assert.Equal(t, "9000", cfg.Server.AppPort)
	assert.Equal(t, "hook", cfg.Server.WebhookToken)
	assert.True(t, cfg.Connectors.Watch)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 30, cfg.Dispatch.TimeoutSeconds)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `{"server": {"app_port": "9000", "alert_port": "9001"}}`)

	t.Setenv("ALERTBRIDGE_SERVER_APP_PORT", "7000")
	t.Setenv("ALERTBRIDGE_DISPATCH_PROBE_INTERVAL_SECONDS", "60")
	t.Setenv("ALERTBRIDGE_TELEGRAM_ALERT_CHANNEL_ID", "-100123")
	t.Setenv("TELEGRAM_BOT_TOKEN", "bot-token")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Server.AppPort)
	assert.Equal(t, "9001", cfg.Server.AlertPort)
	assert.Equal(t, time.Minute, cfg.Dispatch.ProbeInterval())
	assert.Equal(t, int64(-100123), cfg.Telegram.AlertChannelID)
	assert.Equal(t, "bot-token", cfg.Telegram.BotToken)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ALERTBRIDGE_SERVER_API_TOKEN=from-dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("ALERTBRIDGE_SERVER_API_TOKEN") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Server.APIToken)
}

func TestLoad_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load(writeConfig(t, `{"db": `))
	assert.ErrorContains(t, err, "decode")

	_, err = Load(writeConfig(t, `{"dispatch": {"timeout_seconds": 0}, "logging": {"format": "xml"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispatch timeouts must be positive")
	assert.Contains(t, err.Error(), "logging.format")
}
