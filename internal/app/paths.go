package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Paths stores resolved runtime file locations for user config, logs, and cache.
type Paths struct {
	RootDir    string
	ConfigFile string
	DBFile     string
	LogFile    string
	CacheDir   string
}

// ResolvePaths uses the per-user config and cache directories. A non-empty
// configFile replaces the default config location.
func ResolvePaths(configFile string) (Paths, error) {
	cfgRoot, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve config dir: %w", err)
	}
	cacheRoot, err := os.UserCacheDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve cache dir: %w", err)
	}

	root := filepath.Join(cfgRoot, Name)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return Paths{}, fmt.Errorf("create app config dir: %w", err)
	}
	cache := filepath.Join(cacheRoot, Name)
	if err := os.MkdirAll(cache, 0o750); err != nil {
		return Paths{}, fmt.Errorf("create app cache dir: %w", err)
	}

	paths := Paths{
		RootDir:    root,
		ConfigFile: filepath.Join(root, ConfigFilename),
		DBFile:     filepath.Join(cache, DBFilename),
		LogFile:    filepath.Join(cache, LogFilename),
		CacheDir:   cache,
	}
	if configFile = strings.TrimSpace(configFile); configFile != "" {
		paths.ConfigFile = filepath.Clean(configFile)
	}

	return paths, nil
}
