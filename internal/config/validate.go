package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"Bits3/internal/engine/archive"
	"Bits3/internal/schedule"
)

var (
	ErrMissingBucket     = errors.New("bucket is required")
	ErrMissingPassphrase = errors.New("passphrase is required (set passphrase or passphrase_file)")
	ErrInvalidValue      = errors.New("invalid configuration value")
)

var discordEvents = map[string]bool{
	"success": true,
	"skipped": true,
	"failed":  true,
	"prune":   true,
	"restore": true,
}

// Validate checks every setting the backup cycle depends on. The passphrase is checked by
// ResolvePassphrase, since only commands that encrypt or decrypt need it.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return ErrMissingBucket
	}
	switch cfg.Backend {
	case BackendS3, BackendGCS:
	default:
		return fmt.Errorf("%w: backend must be %q or %q, got %q", ErrInvalidValue, BackendS3, BackendGCS, cfg.Backend)
	}
	if cfg.Keep < 1 {
		return fmt.Errorf("%w: keep must be at least 1, got %d", ErrInvalidValue, cfg.Keep)
	}
	if cfg.UploadInterval < 0 {
		return fmt.Errorf("%w: upload_interval must not be negative, got %d", ErrInvalidValue, cfg.UploadInterval)
	}
	if _, err := archive.ParseStorageClass(cfg.StorageClass); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if _, err := archive.ParseCompression(cfg.Compression); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if cfg.PartSizeMB != 0 && cfg.PartSizeMB < 5 {
		return fmt.Errorf("%w: part_size_mb must be at least 5, got %d", ErrInvalidValue, cfg.PartSizeMB)
	}
	if strings.TrimSpace(cfg.GPG) == "" {
		return fmt.Errorf("%w: gpg executable must not be empty", ErrInvalidValue)
	}
	if _, err := schedule.ParseDaily(cfg.Schedule.Time); err != nil {
		return fmt.Errorf("%w: schedule.time: %v", ErrInvalidValue, err)
	}
	if cfg.Schedule.JitterMinutes < 0 {
		return fmt.Errorf("%w: schedule.jitter_minutes must not be negative", ErrInvalidValue)
	}
	d := cfg.Notifications.Discord
	if d.Enabled && strings.TrimSpace(d.WebhookURL) == "" {
		return fmt.Errorf("%w: notifications.discord.webhook_url is required when discord is enabled", ErrInvalidValue)
	}
	for _, e := range d.Events {
		if !discordEvents[e] {
			return fmt.Errorf("%w: unknown discord event %q", ErrInvalidValue, e)
		}
	}
	return nil
}

// ResolvePassphrase returns the inline passphrase or the first line of passphrase_file.
func (c *Config) ResolvePassphrase() (string, error) {
	if c.Passphrase != "" {
		return c.Passphrase, nil
	}
	if c.PassphraseFile == "" {
		return "", ErrMissingPassphrase
	}
	data, err := os.ReadFile(c.PassphraseFile)
	if err != nil {
		return "", fmt.Errorf("read passphrase file: %w", err)
	}
	pass, _, _ := strings.Cut(string(data), "\n")
	pass = strings.TrimSuffix(pass, "\r")
	if pass == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrMissingPassphrase, c.PassphraseFile)
	}
	return pass, nil
}
