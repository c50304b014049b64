package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

var ErrInsecurePermissions = errors.New("config file is readable by group or others")

// Load builds a viper instance with defaults, BITS3_* environment variables and the YAML
// config file. A missing file is an error only when the path was given explicitly.
func Load(explicitPath string, checkPerms bool) (*viper.Viper, error) {
	path := ResolveConfigPath(explicitPath)
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if checkPerms {
		if err := CheckPermissions(path); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if explicitPath != "" || os.Getenv(EnvConfigPath) != "" {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return v, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return v, nil
}

// CheckPermissions fails when the file at path is accessible by group or others.
// A missing file passes.
func CheckPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	mode := info.Mode().Perm()

	if mode&0077 != 0 {
		return fmt.Errorf("%w: %s has mode %s (recommended: 0600)", ErrInsecurePermissions, path, mode)
	}
	return nil
}
