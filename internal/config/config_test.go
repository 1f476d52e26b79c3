package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, WhitenoiseConfig{}, cfg)
}

func TestLoadParsesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir = "/var/lib/whitenoise"
logs_dir = "/var/log/whitenoise"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/whitenoise", cfg.DataDir)
	assert.Equal(t, "/var/log/whitenoise", cfg.LogsDir)
}

func TestForProfileSuffixesDirs(t *testing.T) {
	cfg := WhitenoiseConfig{DataDir: "/data", LogsDir: "/logs"}
	dev := cfg.ForProfile(Debug)
	assert.Equal(t, filepath.Join("/data", "dev"), dev.DataDir)
	assert.Equal(t, filepath.Join("/logs", "dev"), dev.LogsDir)

	release := cfg.ForProfile(Release)
	assert.Equal(t, filepath.Join("/data", "release"), release.DataDir)
}

func TestEnsureDirsCreatesDataAndLogsDirs(t *testing.T) {
	root := t.TempDir()
	cfg := WhitenoiseConfig{
		DataDir: filepath.Join(root, "data"),
		LogsDir: filepath.Join(root, "logs"),
	}
	require.NoError(t, cfg.EnsureDirs())

	for _, dir := range []string{cfg.DataDir, cfg.LogsDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := WhitenoiseConfig{DataDir: "/data"}
	assert.Equal(t, filepath.Join("/data", "whitenoise.sqlite"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join("/data", "mls"), cfg.MLSDir())
	assert.Equal(t, filepath.Join("/data", "media_cache"), cfg.MediaCacheDir())
	assert.Equal(t, filepath.Join("/data", "nostr_lmdb"), cfg.RelayCacheDir())
}
