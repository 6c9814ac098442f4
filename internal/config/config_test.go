package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "./cache", cfg.Store.Path)
	require.False(t, cfg.Store.CompressBlobs)
	require.Equal(t, "localhost", cfg.Server.Host)
	require.Equal(t, 8080, cfg.Server.Port)
	require.True(t, cfg.CacheInfo.WantMassQuery)
	require.Equal(t, 50, cfg.CacheInfo.Priority)
}

func TestLoadMergesOnlyFieldsPresentInFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relaycache.yaml")
	// Deliberately sets compress_blobs explicitly false (same as the
	// default) to prove presence-detection, not zero-value comparison,
	// drives the merge; also overrides port only.
	require.NoError(t, os.WriteFile(path, []byte("store:\n  compress_blobs: false\nserver:\n  port: 9090\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "localhost", cfg.Server.Host, "host was not present in the override file, so the default survives")
	require.Equal(t, "./cache", cfg.Store.Path)
}

func TestLoadToleratesMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
}

func TestEnvOverridesWinOverDefaultsAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relaycache.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))
	t.Setenv("RELAYCACHE_SERVER__PORT", "7777")
	t.Setenv("RELAYCACHE_STORE__COMPRESS_BLOBS", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7777, cfg.Server.Port)
	require.True(t, cfg.Store.CompressBlobs)
}
