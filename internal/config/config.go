package config

import (
	"github.com/spf13/viper"
)

const (
	BackendS3  = "s3"
	BackendGCS = "gcs"
)

type Config struct {
	Bucket         string `mapstructure:"bucket" yaml:"bucket"`
	Backend        string `mapstructure:"backend" yaml:"backend"`
	Passphrase     string `mapstructure:"passphrase" yaml:"passphrase,omitempty"`
	PassphraseFile string `mapstructure:"passphrase_file" yaml:"passphrase_file,omitempty"`

	UploadInterval int    `mapstructure:"upload_interval" yaml:"upload_interval"`
	Keep           int    `mapstructure:"keep" yaml:"keep"`
	StorageClass   string `mapstructure:"storage_class" yaml:"storage_class"`

	GPG              string `mapstructure:"gpg" yaml:"gpg"`
	Compression      string `mapstructure:"compression" yaml:"compression"`
	CompressionLevel int    `mapstructure:"compression_level" yaml:"compression_level,omitempty"`
	WorkDir          string `mapstructure:"work_dir" yaml:"work_dir,omitempty"`
	PartSizeMB       int    `mapstructure:"part_size_mb" yaml:"part_size_mb"`

	Progress    bool   `mapstructure:"progress" yaml:"progress"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file,omitempty"`
	LockDir     string `mapstructure:"lock_dir" yaml:"lock_dir,omitempty"`

	S3            S3Config            `mapstructure:"s3" yaml:"s3"`
	GCS           GCSConfig           `mapstructure:"gcs" yaml:"gcs"`
	Schedule      ScheduleConfig      `mapstructure:"schedule" yaml:"schedule"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
}

type S3Config struct {
	Endpoint           string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Region             string `mapstructure:"region" yaml:"region,omitempty"`
	PathStyle          bool   `mapstructure:"path_style" yaml:"path_style"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

type GCSConfig struct {
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file,omitempty"`
}

// ScheduleConfig drives the generated systemd timer. The cycle itself decides whether an
// upload is due, so a daily timer is enough.
type ScheduleConfig struct {
	Time          string `mapstructure:"time" yaml:"time"`
	JitterMinutes int    `mapstructure:"jitter_minutes" yaml:"jitter_minutes"`
}

type NotificationsConfig struct {
	Discord DiscordConfig `mapstructure:"discord" yaml:"discord"`
}

type DiscordConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled"`
	WebhookURL     string   `mapstructure:"webhook_url" yaml:"webhook_url,omitempty"`
	Events         []string `mapstructure:"events" yaml:"events,omitempty"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds" yaml:"timeout_seconds,omitempty"`
	Mention        string   `mapstructure:"mention" yaml:"mention,omitempty"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Backend:        BackendS3,
		UploadInterval: 90,
		Keep:           1,
		StorageClass:   "infrequent-access",
		GPG:            "gpg",
		Compression:    "none",
		PartSizeMB:     8,
		LogLevel:       "info",
		Schedule:       ScheduleConfig{Time: "02:00"},
	}
}

// SetDefaults registers every key so that environment variables are seen by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("bucket", d.Bucket)
	v.SetDefault("backend", d.Backend)
	v.SetDefault("passphrase", d.Passphrase)
	v.SetDefault("passphrase_file", d.PassphraseFile)
	v.SetDefault("upload_interval", d.UploadInterval)
	v.SetDefault("keep", d.Keep)
	v.SetDefault("storage_class", d.StorageClass)
	v.SetDefault("gpg", d.GPG)
	v.SetDefault("compression", d.Compression)
	v.SetDefault("compression_level", d.CompressionLevel)
	v.SetDefault("work_dir", d.WorkDir)
	v.SetDefault("part_size_mb", d.PartSizeMB)
	v.SetDefault("progress", d.Progress)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("metrics_file", d.MetricsFile)
	v.SetDefault("lock_dir", d.LockDir)
	v.SetDefault("s3.endpoint", d.S3.Endpoint)
	v.SetDefault("s3.region", d.S3.Region)
	v.SetDefault("s3.path_style", d.S3.PathStyle)
	v.SetDefault("s3.insecure_skip_verify", d.S3.InsecureSkipVerify)
	v.SetDefault("gcs.endpoint", d.GCS.Endpoint)
	v.SetDefault("gcs.credentials_file", d.GCS.CredentialsFile)
	v.SetDefault("schedule.time", d.Schedule.Time)
	v.SetDefault("schedule.jitter_minutes", d.Schedule.JitterMinutes)
	v.SetDefault("notifications.discord.enabled", false)
	v.SetDefault("notifications.discord.webhook_url", "")
	v.SetDefault("notifications.discord.events", []string{})
	v.SetDefault("notifications.discord.timeout_seconds", 0)
	v.SetDefault("notifications.discord.mention", "")
}

func Unmarshal(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}
