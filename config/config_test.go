package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/embedkit/embedkit/config"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(cwd) })
}

func TestLoadFindsConfigInCurrentDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module tmp\n"), 0o644))
	toml := `
[manager]
database_path = "app.db"
use_pool = true

[pool]
max_connections = 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "embedkit.toml"), []byte(toml), 0o644))
	chdir(t, dir)

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "app.db", cfg.Manager.DatabasePath)
	require.True(t, cfg.Manager.UsePool)
	require.Equal(t, 5, cfg.Pool.MaxConnections)
}

func TestLoadWalksUpToProjectRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module tmp\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "embedkit.toml"), []byte(`
[manager]
database_path = "root.db"
`), 0o644))
	sub := filepath.Join(root, "cmd", "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	chdir(t, sub)

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "root.db", cfg.Manager.DatabasePath)
}

func TestLoadOverlaysDotenv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module tmp\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "embedkit.toml"), []byte(`
[manager]
database_path = "app.db"
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(
		"EMBEDKIT_DATABASE_PATH=override.db\nEMBEDKIT_POOL_MAX_CONNECTIONS=20\n"), 0o644))
	chdir(t, dir)

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "override.db", cfg.Manager.DatabasePath)
	require.Equal(t, 20, cfg.Pool.MaxConnections)
}

func TestLoadMissingConfigReturnsError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module tmp\n"), 0o644))
	chdir(t, dir)

	_, err := config.Load()
	require.Error(t, err)
}
