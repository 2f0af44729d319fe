// Package config provides configuration management for clipfix.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths holds all the path configurations for clipfix.
type Paths struct {
	// ConfigDir is the directory for configuration files (~/.config/clipfix)
	ConfigDir string

	// DataDir is the directory for data files (~/.local/share/clipfix)
	DataDir string

	// CacheDir is the directory for cache files (~/.cache/clipfix)
	CacheDir string
}

// DefaultPaths returns the default paths based on XDG Base Directory spec.
// On Windows, it uses %APPDATA% instead.
func DefaultPaths() *Paths {
	home := homeDir()

	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			localAppData = filepath.Join(home, "AppData", "Local")
		}

		return &Paths{
			ConfigDir: filepath.Join(appData, "clipfix"),
			DataDir:   filepath.Join(localAppData, "clipfix"),
			CacheDir:  filepath.Join(localAppData, "clipfix", "cache"),
		}
	}

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = filepath.Join(home, ".config")
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = filepath.Join(home, ".local", "share")
	}

	cacheHome := os.Getenv("XDG_CACHE_HOME")
	if cacheHome == "" {
		cacheHome = filepath.Join(home, ".cache")
	}

	return &Paths{
		ConfigDir: filepath.Join(configHome, "clipfix"),
		DataDir:   filepath.Join(dataHome, "clipfix"),
		CacheDir:  filepath.Join(cacheHome, "clipfix"),
	}
}

// ForConfig returns the default paths with the directories cfg overrides.
func ForConfig(cfg *Config) *Paths {
	p := DefaultPaths()
	if cfg != nil && cfg.Cache.Dir != "" {
		p.CacheDir = cfg.Cache.Dir
	}
	return p
}

// ConfigFile returns the path to the main configuration file.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.ConfigDir, "config.yaml")
}

// CacheDatabase returns the path to the SQLite result cache.
func (p *Paths) CacheDatabase() string {
	return filepath.Join(p.CacheDir, "cache.db")
}

// KnowledgeDir returns the directory searched for knowledge profile overrides.
func (p *Paths) KnowledgeDir() string {
	return filepath.Join(p.ConfigDir, "knowledge")
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback
		if runtime.GOOS == "windows" {
			return os.Getenv("USERPROFILE")
		}
		return os.Getenv("HOME")
	}
	return home
}
