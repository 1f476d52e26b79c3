// Package config defines the engine's configuration surface: a data
// directory and a logs directory, suffixed by build profile the way a
// desktop app keeps dev and release state apart. Loaded from TOML with
// BurntSushi/toml.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// BuildProfile selects the suffix appended to DataDir/LogsDir.
type BuildProfile string

const (
	Debug   BuildProfile = "dev"
	Release BuildProfile = "release"
)

// WhitenoiseConfig is the struct form of "Config as a
// struct, not ambient state" design note.
type WhitenoiseConfig struct {
	DataDir string `toml:"data_dir"`
	LogsDir string `toml:"logs_dir"`
}

// DefaultRelays are the hard-coded fallback relays used
// when an account has no configured relays of a given type yet.
var DefaultRelays = []string{
	"ws://localhost:8080",
	"ws://localhost:7777",
}

// DefaultBlossomServers are the fallback Blossom media servers used when
// an account has not configured any.
var DefaultBlossomServers = []string{
	"https://blossom.primal.net",
}

// ForProfile returns cfg with DataDir/LogsDir suffixed by profile, the
// way debug builds append "/dev" and release builds append "/release".
func (cfg WhitenoiseConfig) ForProfile(profile BuildProfile) WhitenoiseConfig {
	return WhitenoiseConfig{
		DataDir: filepath.Join(cfg.DataDir, string(profile)),
		LogsDir: filepath.Join(cfg.LogsDir, string(profile)),
	}
}

// Load reads a TOML config file at path. A missing file is not an error —
// the zero-value WhitenoiseConfig (caller-supplied defaults) is returned.
func Load(path string) (WhitenoiseConfig, error) {
	var cfg WhitenoiseConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// EnsureDirs creates DataDir and LogsDir (and their parents) if absent.
func (cfg WhitenoiseConfig) EnsureDirs() error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}
	return os.MkdirAll(cfg.LogsDir, 0o755)
}

// DatabasePath returns the path to the sqlite database file, following the
// persistent state layout ("<data_dir>/whitenoise.sqlite").
func (cfg WhitenoiseConfig) DatabasePath() string {
	return filepath.Join(cfg.DataDir, "whitenoise.sqlite")
}

// MLSDir returns the per-account group-engine storage directory root
// ("<data_dir>/mls/").
func (cfg WhitenoiseConfig) MLSDir() string {
	return filepath.Join(cfg.DataDir, "mls")
}

// MediaCacheDir returns the media cache directory ("<data_dir>/media_cache/").
func (cfg WhitenoiseConfig) MediaCacheDir() string {
	return filepath.Join(cfg.DataDir, "media_cache")
}

// RelayCacheDir returns the relay client's local event cache directory
// ("<data_dir>/nostr_lmdb/").
func (cfg WhitenoiseConfig) RelayCacheDir() string {
	return filepath.Join(cfg.DataDir, "nostr_lmdb")
}
