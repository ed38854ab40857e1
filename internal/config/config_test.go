package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"PORT", "FILE_PATH", "UPLOADER_TOKEN_FILE", "UPLOADER_STORAGE", "UPLOADER_S3_BUCKET", "UPLOADER_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "uploads", cfg.FilePath)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "uploader.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 8080
file_path: /srv/photos
max_upload_bytes: 1048576
shutdown_timeout: 3s
tokens:
  backend: sqlite
  sqlite_path: /srv/tokens.db
storage:
  backend: fs
`), 0o644))

	t.Setenv("PORT", "9090")
	t.Setenv("UPLOADER_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/srv/photos", cfg.FilePath)
	assert.Equal(t, uint64(1048576), cfg.MaxUploadBytes)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "sqlite", cfg.Tokens.Backend)
	assert.Equal(t, "/srv/tokens.db", cfg.Tokens.SQLitePath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 64*1024, cfg.ChunkSize)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("PORT", "http")
	_, err = Load("")
	assert.ErrorContains(t, err, "invalid PORT")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "s3"
	assert.ErrorContains(t, cfg.Validate(), "s3_bucket")

	cfg.Storage.S3Bucket = "photos"
	assert.NoError(t, cfg.Validate())

	cfg.Tokens.CacheTTL = 0
	assert.ErrorContains(t, cfg.Validate(), "cache_ttl")
	cfg.Tokens.CacheSize = 0
	assert.NoError(t, cfg.Validate())

	cfg.Tokens.Backend = "ldap"
	cfg.Port = 0
	err := cfg.Validate()
	assert.ErrorContains(t, err, "tokens.backend")
	assert.ErrorContains(t, err, "port 0")
}
