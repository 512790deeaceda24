package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9090
database:
  url: postgres://app:secret@db:5432/bulkmailer?sslmode=disable
delivery:
  provider: sparkpost
  from_name: Acme
  from_email: news@acme.com
sparkpost:
  api_key: sk-test
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
	assert.Equal(t, "postgres://app:secret@db:5432/bulkmailer?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, "sparkpost", cfg.Delivery.Provider)
	assert.Equal(t, "sk-test", cfg.SparkPost.APIKey)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/bulkmailer
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "log", cfg.Delivery.Provider)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "us-east-1", cfg.SES.Region)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/bulkmailer
delivery:
  provider: log
`)

	t.Setenv("DATABASE_URL", "postgres://prod-db/bulkmailer")
	t.Setenv("DELIVERY_PROVIDER", "ses")
	t.Setenv("AWS_SES_ACCESS_KEY", "AKIATEST")
	t.Setenv("PORT", "3000")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://prod-db/bulkmailer", cfg.Database.URL)
	assert.Equal(t, "ses", cfg.Delivery.Provider)
	assert.Equal(t, "AKIATEST", cfg.SES.AccessKey)
	assert.Equal(t, 3000, cfg.Server.Port)
}
