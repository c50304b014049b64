package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"Bits3/internal/config"
	"Bits3/internal/engine/archive"
)

var (
	initForce bool
	initYes   bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	initCmd.Flags().BoolVarP(&initYes, "yes", "y", false, "Do not prompt; use flags, environment and defaults")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file, interactively by default",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := config.ResolveConfigPath(cfgFile)
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	// Start from defaults merged with flags and environment, ignoring any existing file.
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		cfg = config.Default()
	}

	if !initYes {
		reader := bufio.NewReader(cmd.InOrStdin())
		cfg.Bucket = prompt(cmd, reader, "Bucket", cfg.Bucket)
		cfg.Backend = strings.ToLower(prompt(cmd, reader, "Backend (s3/gcs)", cfg.Backend))
		if cfg.Backend == config.BackendS3 {
			cfg.S3.Endpoint = prompt(cmd, reader, "S3 endpoint (Enter for AWS)", cfg.S3.Endpoint)
			if cfg.S3.Endpoint != "" {
				cfg.S3.PathStyle = confirm(cmd, reader, "Use path-style addressing (MinIO)?", true)
			}
			cfg.S3.Region = prompt(cmd, reader, "S3 region", cfg.S3.Region)
		}
		cfg.PassphraseFile = prompt(cmd, reader, "Passphrase file", firstNonEmpty(cfg.PassphraseFile, "/etc/bits3/passphrase"))
		cfg.UploadInterval = promptInt(cmd, reader, "Upload interval in days", cfg.UploadInterval)
		cfg.Keep = promptInt(cmd, reader, "Archives to keep", cfg.Keep)
		cfg.StorageClass = prompt(cmd, reader, "Storage class ("+strings.Join(archive.StorageClassNames(), ", ")+")", cfg.StorageClass)
		cfg.Schedule.Time = prompt(cmd, reader, "Daily check time (HH:MM)", cfg.Schedule.Time)
	}

	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.Write(cfg, path); err != nil {
		return err
	}
	cmd.Printf("Configuration written to %s\n", path)
	if cfg.Passphrase == "" && cfg.PassphraseFile != "" {
		if _, err := os.Stat(cfg.PassphraseFile); err != nil {
			cmd.Printf("Create %s with mode 0600 holding the passphrase before the first run.\n", cfg.PassphraseFile)
		}
	}
	return nil
}

func promptInt(cmd *cobra.Command, reader *bufio.Reader, label string, defaultVal int) int {
	for {
		s := prompt(cmd, reader, label, strconv.Itoa(defaultVal))
		n, err := strconv.Atoi(s)
		if err == nil {
			return n
		}
		cmd.Printf("  %q is not a number\n", s)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
