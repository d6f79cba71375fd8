package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeebeeCoder/slack-intel/pkg/apierr"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoadFromWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	content := `
channels:
  - name: engineering
    id: C9876543210
  - name: general
    id: C0123456789
storage:
  bucket: intel-cache
  prefix: team/
jira:
  server: https://issues.example.com
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
	chdir(t, dir)

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Channels, 2)
	assert.Equal(t, "engineering", cfg.Channels[0].Name)
	assert.Equal(t, "intel-cache", cfg.Storage.Bucket)
	assert.Equal(t, "https://issues.example.com", cfg.Jira.Server)

	channels := cfg.ChatChannels()
	require.Len(t, channels, 2)
	assert.Equal(t, "C9876543210", channels[0].ID)
}

func TestLoadMissingFileIsEmptyConfig(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Channels)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("channels: [unclosed"), 0o644))
	chdir(t, dir)

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, apierr.KindConfig, apierr.KindOf(err))
}

func TestChatTokenPrecedence(t *testing.T) {
	t.Setenv("USER_TOKEN", "xoxp-user")
	t.Setenv("BOT_TOKEN", "xoxb-bot")

	token, kind, err := ChatToken()
	require.NoError(t, err)
	assert.Equal(t, "xoxp-user", token)
	assert.Equal(t, "user", kind)
}

func TestChatTokenBotFallback(t *testing.T) {
	t.Setenv("USER_TOKEN", "")
	t.Setenv("BOT_TOKEN", "xoxb-bot")

	token, kind, err := ChatToken()
	require.NoError(t, err)
	assert.Equal(t, "xoxb-bot", token)
	assert.Equal(t, "bot", kind)
}

func TestChatTokenMissingFailsStartup(t *testing.T) {
	t.Setenv("USER_TOKEN", "")
	t.Setenv("BOT_TOKEN", "")

	_, _, err := ChatToken()
	require.Error(t, err)
	assert.Equal(t, apierr.KindConfig, apierr.KindOf(err))
}

func TestJiraCredentials(t *testing.T) {
	t.Setenv("ISSUE_SERVER", "https://issues.example.com")
	t.Setenv("ISSUE_USER", "svc-account")
	t.Setenv("ISSUE_TOKEN", "secret")

	cfg := &Config{}
	server, user, token, err := cfg.JiraCredentials()
	require.NoError(t, err)
	assert.Equal(t, "https://issues.example.com", server)
	assert.Equal(t, "svc-account", user)
	assert.Equal(t, "secret", token)
}

func TestJiraCredentialsServerFromFileFallback(t *testing.T) {
	t.Setenv("ISSUE_SERVER", "")
	t.Setenv("ISSUE_USER", "svc-account")
	t.Setenv("ISSUE_TOKEN", "secret")

	cfg := &Config{Jira: JiraConfig{Server: "https://fallback.example.com"}}
	server, _, _, err := cfg.JiraCredentials()
	require.NoError(t, err)
	assert.Equal(t, "https://fallback.example.com", server)
}

func TestJiraCredentialsMissing(t *testing.T) {
	t.Setenv("ISSUE_SERVER", "")
	t.Setenv("ISSUE_USER", "")
	t.Setenv("ISSUE_TOKEN", "")

	cfg := &Config{}
	_, _, _, err := cfg.JiraCredentials()
	require.Error(t, err)
	assert.Equal(t, apierr.KindConfig, apierr.KindOf(err))
}
