package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	content := `
database:
  type: sqlite
`
	err := os.WriteFile(configFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := Load(configFile)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 150, cfg.Tree.NCRIT)
	assert.False(t, cfg.Tree.Balanced)
	assert.Equal(t, 2, cfg.Hyksort.K)
}

func TestLoad_CustomValues(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	content := `
tree:
  ncrit: 64
  balanced: true
hyksort:
  k: 4
database:
  type: postgres
  host: db.example.com
  port: 5432
  database: octree
  user: admin
  password: secret
`
	err := os.WriteFile(configFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Tree.NCRIT)
	assert.True(t, cfg.Tree.Balanced)
	assert.Equal(t, 4, cfg.Hyksort.K)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "octree", cfg.Database.Database)
}

func TestLoad_InvalidDatabaseType(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	content := `
database:
  type: mongodb
`
	err := os.WriteFile(configFile, []byte(content), 0644)
	require.NoError(t, err)

	_, err = Load(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestValidate_InvalidNCRIT(t *testing.T) {
	cfg := &Config{
		Tree:     TreeConfig{NCRIT: 0},
		Hyksort:  HyksortConfig{K: 2},
		Database: DatabaseConfig{Type: "sqlite"},
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ncrit must be positive")
}

func TestValidate_HyksortKNotPowerOfTwo(t *testing.T) {
	cfg := &Config{
		Tree:     TreeConfig{NCRIT: 150},
		Hyksort:  HyksortConfig{K: 3},
		Database: DatabaseConfig{Type: "sqlite"},
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "power of two")
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, 150, cfg.Tree.NCRIT)
}

func TestLoadFromReader(t *testing.T) {
	content := []byte(`
database:
  type: mysql
  host: mysql.local
tree:
  ncrit: 200
`)
	cfg, err := LoadFromReader("yaml", content)
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Database.Type)
	assert.Equal(t, "mysql.local", cfg.Database.Host)
	assert.Equal(t, 200, cfg.Tree.NCRIT)
}
