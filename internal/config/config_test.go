package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_OverridesDefaultsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
pool:
  max_size: 40
validator:
  batch_size: 999
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, int32(40), cfg.Pool.MaxSize)
	assert.Equal(t, int32(2), cfg.Pool.MinSize, "untouched default survives partial override")
	assert.Equal(t, 999, cfg.Validator.BatchSize)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadSecrets_RequiresPasswords(t *testing.T) {
	t.Setenv("DB_ADMIN_PASSWORD", "")
	t.Setenv("DB_WRITER_PASSWORD", "")
	_, err := LoadSecrets("")
	assert.Error(t, err)
}

func TestLoadSecrets_ReadsFromEnvironment(t *testing.T) {
	t.Setenv("DB_ADMIN_PASSWORD", "adminpw")
	t.Setenv("DB_WRITER_PASSWORD", "writerpw")
	t.Setenv("DB_HOST", "db.internal")

	s, err := LoadSecrets("")
	require.NoError(t, err)
	assert.Equal(t, "adminpw", s.DBAdminPassword)
	assert.Equal(t, "writerpw", s.DBWriterPassword)
	assert.Equal(t, "db.internal", s.DBHost)
}
