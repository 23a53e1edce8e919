package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBundledConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "textbook-ingest", cfg.Kafka.Topic)
	assert.Equal(t, 168*time.Hour, cfg.Cache.TTL())
	assert.Equal(t, 30*time.Minute, cfg.Session.Timeout())
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout())
	assert.Equal(t, "gemini", cfg.LLM.Primary.Provider)
	assert.Equal(t, "standard", cfg.Adaptive.Bounds["9-10"].Floor)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, int64(3), cfg.Kafka.MaxAttempts)
	assert.Equal(t, 0.4, cfg.Adaptive.StepDownRatio)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, 60*time.Minute, cfg.MinIO.PresignExpiry())
	assert.Equal(t, 500, cfg.Speech.MaxChars)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("admin:\n  username: \"yaml-admin\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TUTOR_ADMIN_USERNAME=dotenv-admin\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("TUTOR_ADMIN_USERNAME") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dotenv-admin", cfg.Admin.Username)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
