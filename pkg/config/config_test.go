package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("applies defaults to an empty document", func(t *testing.T) {
		cfg, err := Parse([]byte("{}"))
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Server.Port)
		assert.Equal(t, 5*time.Minute, cfg.Session.Timeout)
		assert.Equal(t, 3, cfg.Session.SubmitRetries)
		assert.Equal(t, "webhook", cfg.Events.Source)
		assert.Empty(t, cfg.Payment.ProjectID)
	})

	t.Run("decodes durations and payment credentials", func(t *testing.T) {
		cfg, err := Parse([]byte(`
payment:
  project_id: proj-1
  api_key: key-1
  backend_url: http://backend.local
  timeout: 3s
session:
  timeout: 90s
  submit_retries: 5
events:
  source: poll
  poll_interval: 500ms
`))
		require.NoError(t, err)

		assert.Equal(t, "proj-1", cfg.Payment.ProjectID)
		assert.Equal(t, "key-1", cfg.Payment.APIKey)
		assert.Equal(t, 3*time.Second, cfg.Payment.Timeout)
		assert.Equal(t, 90*time.Second, cfg.Session.Timeout)
		assert.Equal(t, 5, cfg.Session.SubmitRetries)
		assert.Equal(t, 500*time.Millisecond, cfg.Events.PollInterval)
	})

	t.Run("rejects kafka source without brokers", func(t *testing.T) {
		_, err := Parse([]byte("events:\n  source: kafka\n"))
		assert.Error(t, err)
	})

	t.Run("wallet redis store requires an address", func(t *testing.T) {
		_, err := Parse([]byte("wallet:\n  secret_store: redis\n"))
		assert.Error(t, err)

		cfg, err := Parse([]byte("wallet:\n  secret_store: redis\nredis:\n  addr: localhost:6379\n"))
		require.NoError(t, err)
		assert.Equal(t, "wallet:mnemonic", cfg.Wallet.SecretKey)
	})

	t.Run("rejects unknown event source", func(t *testing.T) {
		_, err := Parse([]byte("events:\n  source: carrier-pigeon\n"))
		assert.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("payment:\n  project_id: from-file\n"), 0o600))

	t.Setenv("PAYLINK_API_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Payment.ProjectID)
	assert.Equal(t, "from-env", cfg.Payment.APIKey)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv("PAYLINK_PROJECT_ID", "env-project")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-project", cfg.Payment.ProjectID)
	assert.Equal(t, "file", cfg.Wallet.SecretStore)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("events:\n  source: nope\n"), 0o600))
	_, err = LoadOrDefault(bad)
	assert.Error(t, err)
}
