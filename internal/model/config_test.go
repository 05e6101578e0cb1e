package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhle/mailai/internal/failure"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	require.Equal(t, "imap.gmail.com", cfg.IMAP.Host)
	require.Equal(t, 993, cfg.IMAP.Port)
	require.Equal(t, "INBOX", cfg.IMAP.Mailbox)
	require.Equal(t, 5*time.Minute, cfg.Loop.Interval)
	require.Equal(t, KnownProviders, cfg.AI.Order)
	require.Equal(t, DefaultKeywords, cfg.Filter.Keywords)
	require.True(t, cfg.AI.Fallback)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
imap:
  host: mail.example.com
  username: bot@example.com
  password: secret
filter:
  keywords: ["  ask ", "", "question"]
loop:
  interval: 300
  cycle_timeout: 2m
ai:
  default_provider: Gemini
  order: [Ollama, chatgpt]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "mail.example.com", cfg.IMAP.Host)
	require.Equal(t, []string{"ask", "question"}, cfg.Filter.Keywords)
	require.Equal(t, 5*time.Minute, cfg.Loop.Interval)
	require.Equal(t, 2*time.Minute, cfg.Loop.CycleTimeout)
	require.Equal(t, ProviderGemini, cfg.AI.DefaultProvider)
	require.Equal(t, []string{ProviderOllama, ProviderChatGPT}, cfg.AI.Order)

	// SMTP falls back to the IMAP account.
	require.Equal(t, "bot@example.com", cfg.SMTP.Username)
	require.Equal(t, "secret", cfg.SMTP.Password)
	require.Equal(t, "bot@example.com", cfg.SMTP.From)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("MAILAI_IMAP_HOST", "imap.example.org")
	t.Setenv("EMAIL_ADDRESS", "me@example.org")
	t.Setenv("EMAIL_PASSWORD", "pw")
	t.Setenv("CHECK_INTERVAL", "60")
	t.Setenv("ENABLE_FALLBACK", "false")
	t.Setenv("FALLBACK_ORDER", "ollama, gemini")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	require.Equal(t, "imap.example.org", cfg.IMAP.Host)
	require.Equal(t, "me@example.org", cfg.IMAP.Username)
	require.Equal(t, "pw", cfg.IMAP.Password)
	require.Equal(t, time.Minute, cfg.Loop.Interval)
	require.False(t, cfg.AI.Fallback)
	require.Equal(t, []string{ProviderOllama, ProviderGemini}, cfg.AI.Order)
	require.Equal(t, "sk-test", cfg.AI.Providers.ChatGPT.APIKey)
}

func TestLoadConfigPrefixedEnvWins(t *testing.T) {
	t.Setenv("MAILAI_IMAP_USERNAME", "prefixed@example.org")
	t.Setenv("EMAIL_ADDRESS", "legacy@example.org")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, "prefixed@example.org", cfg.IMAP.Username)
}

func TestLoadConfigRejectsMalformedFile(t *testing.T) {
	path := writeConfig(t, "imap: [unclosed")

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func validConfig() *AppConfig {
	cfg := DefaultAppConfig()
	cfg.IMAP.Username = "bot@example.com"
	cfg.IMAP.Password = "secret"
	cfg.normalize()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		reason string
	}{
		{"valid", func(*AppConfig) {}, ""},
		{"no credentials", func(c *AppConfig) { c.IMAP.Password = "" }, "imap credentials are required"},
		{"no keywords", func(c *AppConfig) { c.Filter.Keywords = nil }, "filter.keywords is empty"},
		{"zero interval", func(c *AppConfig) { c.Loop.Interval = 0 }, "loop.interval must be positive"},
		{"bad security", func(c *AppConfig) { c.SMTP.Security = "ssl" }, `unknown security mode "ssl"`},
		{"unknown order entry", func(c *AppConfig) { c.AI.Order = []string{"bard"} }, `unknown provider "bard" in ai.order`},
		{"unknown default", func(c *AppConfig) { c.AI.DefaultProvider = "bard" }, `unknown default provider "bard"`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.reason == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.True(t, failure.Is(err, failure.KindConfiguration))
			require.Contains(t, err.Error(), tc.reason)
		})
	}
}

func TestSaveConfigTemplateLoadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveConfig(path, DefaultAppConfig()))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, cfg.Loop.Interval)
	require.Equal(t, 30*time.Second, cfg.SMTP.Timeout)
	require.Equal(t, KnownProviders, cfg.AI.Order)
	require.Equal(t, "http://localhost:11434", cfg.AI.Providers.Ollama.BaseURL)
}
