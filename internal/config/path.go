package config

import (
	"os"
	"path/filepath"
)

const (
	DefaultConfigDir  = "/etc/bits3"
	DefaultConfigName = "config.yaml"
)

const (
	EnvPrefix     = "BITS3"
	EnvConfigPath = "BITS3_CONFIG"
)

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir, DefaultConfigName)
}

// ResolveConfigPath prefers an explicit path, then BITS3_CONFIG, then the default location.
func ResolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return DefaultConfigPath()
}
