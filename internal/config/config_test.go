package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ERRORDECODE_DOTENV", filepath.Join(dir, "missing.env"))
	t.Setenv("ERRORDECODE_CONFIG", "")
	return dir
}

// unsetEnv removes keys for the test and restores their prior state afterwards.
// An empty value still counts as set for env overlays, so t.Setenv(k, "") is not enough.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		prev, had := os.LookupEnv(k)
		key := k
		t.Cleanup(func() {
			if had {
				_ = os.Setenv(key, prev)
				return
			}
			_ = os.Unsetenv(key)
		})
		_ = os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "2024-02-15-preview", cfg.Inference.APIVersion)
	assert.Equal(t, 20*time.Second, cfg.Inference.Timeout)
	assert.Equal(t, 400, cfg.Inference.MaxTokens)
	assert.InDelta(t, 0.6, cfg.Inference.DefaultConfidence, 1e-9)
	assert.Equal(t, 10*time.Second, cfg.Teams.Timeout)
	assert.Equal(t, 15*time.Second, cfg.Email.Timeout)
	assert.Equal(t, SinkNone, cfg.LogSink.ActiveBackend())
	assert.False(t, cfg.Inference.Configured())
	assert.False(t, cfg.Email.Configured())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "errordecode.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`server:
  httpAddress: ":9090"
inference:
  endpoint: "https://yaml.example.com/"
  deployment: "gpt-yaml"
teams:
  webhookURL: "https://hooks.example.com/yaml"
logSink:
  enableFile: true
  filePath: "/tmp/from-yaml.csv"
`), 0o644))

	t.Setenv("AZURE_OPENAI_DEPLOYMENT", "gpt-env")
	t.Setenv("AZURE_OPENAI_API_KEY", "secret")
	t.Setenv("ALERT_EMAILS", "a@example.com; b@example.com,c@example.com ,")
	t.Setenv("DISABLE_NOTIFICATIONS", "True")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.HTTPAddress)
	assert.Equal(t, "https://yaml.example.com/", cfg.Inference.Endpoint)
	assert.Equal(t, "gpt-env", cfg.Inference.Deployment)
	assert.True(t, cfg.Inference.Configured())
	assert.Equal(t, "https://hooks.example.com/yaml", cfg.Teams.WebhookURL)
	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, cfg.Email.Recipients)
	assert.Equal(t, "a@example.com", cfg.Email.SenderAddress())
	assert.True(t, cfg.Notifications.Disabled)
	assert.Equal(t, SinkFile, cfg.LogSink.ActiveBackend())
	assert.Equal(t, "/tmp/from-yaml.csv", cfg.LogSink.ResolvedFilePath())
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("TEAMS_WEBHOOK_URL=https://hooks.example.com/dotenv\n"), 0o644))
	t.Setenv("ERRORDECODE_DOTENV", dotenv)
	t.Setenv("ERRORDECODE_CONFIG", "")
	unsetEnv(t, "TEAMS_WEBHOOK_URL")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/dotenv", cfg.Teams.WebhookURL)
}

func TestLoadMissingFile(t *testing.T) {
	isolateEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	isolateEnv(t)
	t.Setenv("LOG_SINK_BACKEND", "kafka")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadRejectsZeroConfidence(t *testing.T) {
	isolateEnv(t)
	t.Setenv("DEFAULT_CONFIDENCE", "0")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defaultConfidence")
}

func TestActiveBackendPriority(t *testing.T) {
	cases := []struct {
		name string
		cfg  LogSinkConfig
		want string
	}{
		{name: "nothing", cfg: LogSinkConfig{}, want: SinkNone},
		{name: "file flag", cfg: LogSinkConfig{EnableFile: true}, want: SinkFile},
		{name: "blob beats file", cfg: LogSinkConfig{EnableFile: true, EnableBlob: true}, want: SinkBlob},
		{name: "explicit wins", cfg: LogSinkConfig{Backend: "SQL", EnableBlob: true}, want: SinkSQL},
		{name: "explicit none", cfg: LogSinkConfig{Backend: "none", EnableFile: true}, want: SinkNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cfg.ActiveBackend())
		})
	}
}

func TestSplitRecipients(t *testing.T) {
	assert.Equal(t, []string{"a@x", "b@x"}, SplitRecipients(" a@x ;; b@x,"))
	assert.Empty(t, SplitRecipients(""))
}

func TestHolderReloadSwapsSnapshot(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("teams:\n  webhookURL: \"https://one\"\n"), 0o644))
	unsetEnv(t, "TEAMS_WEBHOOK_URL")

	holder, err := NewHolder(path)
	require.NoError(t, err)
	first := holder.Current()
	assert.Equal(t, "https://one", first.Teams.WebhookURL)

	require.NoError(t, os.WriteFile(path, []byte("teams:\n  webhookURL: \"https://two\"\n"), 0o644))
	_, err = holder.Reload()
	require.NoError(t, err)

	assert.Equal(t, "https://two", holder.Current().Teams.WebhookURL)
	assert.Equal(t, "https://one", first.Teams.WebhookURL, "old snapshot must stay intact")
}

func TestHolderReloadFailureKeepsSnapshot(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("teams:\n  webhookURL: \"https://one\"\n"), 0o644))
	unsetEnv(t, "TEAMS_WEBHOOK_URL")

	holder, err := NewHolder(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("teams: [broken"), 0o644))
	_, err = holder.Reload()
	require.Error(t, err)
	assert.Equal(t, "https://one", holder.Current().Teams.WebhookURL)
}

func TestHolderConcurrentReadsDuringReload(t *testing.T) {
	cfg := defaultConfig()
	holder := NewStaticHolder(&cfg)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = holder.Current().Inference.Configured()
			}
		}()
		go func() {
			defer wg.Done()
			_, _ = holder.Reload()
		}()
	}
	wg.Wait()
	assert.Same(t, &cfg, holder.Current())
}
