package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/api/option"

	"Bits3/internal/config"
	"Bits3/internal/engine/archive"
	"Bits3/internal/gcs"
	"Bits3/internal/s3"
)

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"bucket":          "bucket",
	"backend":         "backend",
	"log-level":       "log_level",
	"passphrase-file": "passphrase_file",
	"gpg":             "gpg",
	"lock-dir":        "lock_dir",
	"endpoint":        "s3.endpoint",
	"region":          "s3.region",
	"upload-interval": "upload_interval",
	"keep":            "keep",
	"storage-class":   "storage_class",
	"progress":        "progress",
	"compression":     "compression",
	"work-dir":        "work_dir",
	"part-size-mb":    "part_size_mb",
	"metrics-file":    "metrics_file",
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// loadConfig merges defaults, config file, environment and flags. Usage output is silenced
// from here on, since any later error is not a usage error.
func loadConfig(cmd *cobra.Command, checkPerms bool) (*config.Config, error) {
	cmd.SilenceUsage = true
	v, err := config.Load(cfgFile, checkPerms)
	if err != nil {
		return nil, err
	}
	if err := bindFlags(cmd, v); err != nil {
		return nil, err
	}
	return config.Unmarshal(v)
}

func loadValidConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// store is what both backends implement.
type store interface {
	archive.RemoteStore
	archive.Downloader
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store, func(), error) {
	switch cfg.Backend {
	case config.BackendGCS:
		var opts []option.ClientOption
		if cfg.GCS.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.GCS.CredentialsFile))
		}
		c := gcs.New(gcs.Options{
			Bucket:        cfg.Bucket,
			Endpoint:      cfg.GCS.Endpoint,
			ClientOptions: opts,
		}, log)
		return c, func() { _ = c.Close() }, nil
	default:
		c, err := s3.New(ctx, s3.Options{
			Bucket:             cfg.Bucket,
			Region:             cfg.S3.Region,
			Endpoint:           cfg.S3.Endpoint,
			PathStyle:          cfg.S3.PathStyle,
			InsecureSkipVerify: cfg.S3.InsecureSkipVerify,
			PartSizeMB:         cfg.PartSizeMB,
		}, log)
		if err != nil {
			return nil, func() {}, err
		}
		return c, func() {}, nil
	}
}

func newGPG(cfg *config.Config) (*archive.GPG, error) {
	pass, err := cfg.ResolvePassphrase()
	if err != nil {
		return nil, err
	}
	return &archive.GPG{Path: cfg.GPG, Passphrase: pass}, nil
}

func prompt(cmd *cobra.Command, reader *bufio.Reader, label, defaultVal string) string {
	if defaultVal != "" {
		cmd.Printf("%s [%s]: ", label, defaultVal)
	} else {
		cmd.Printf("%s: ", label)
	}
	line, _ := reader.ReadString('\n')
	s := strings.TrimSpace(line)
	if s == "" {
		return defaultVal
	}
	return s
}

func confirm(cmd *cobra.Command, reader *bufio.Reader, label string, defaultYes bool) bool {
	def := "y/N"
	if defaultYes {
		def = "Y/n"
	}
	cmd.Printf("%s [%s]: ", label, def)
	line, _ := reader.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	}
	return defaultYes
}
