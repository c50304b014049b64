// Package systemd renders the service and timer units that run the backup cycle daily.
package systemd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"Bits3/internal/schedule"
)

const (
	DefaultUnitDir    = "/etc/systemd/system"
	DefaultBinary     = "/usr/local/bin/bits3"
	DefaultConfigPath = "/etc/bits3/config.yaml"
	unitPrefix        = "bits3-"
)

type GeneratorOptions struct {
	Binary      string
	ConfigPath  string
	Hardening   bool
	BackupRoot  string
	WorkDir     string
	MetricsFile string
}

type GeneratedUnits struct {
	Name    string
	Service string
	Timer   string
}

// UnitFileNames returns the service and timer file names for a bucket.
func UnitFileNames(bucket string) (service, timer string) {
	base := unitPrefix + sanitizeUnitName(bucket)
	return base + ".service", base + ".timer"
}

// Generate builds the units that run `bits3 run <backupRoot>` every day at daily. The cycle
// itself decides whether an upload is due, so the timer never needs to know the interval.
func Generate(bucket string, daily schedule.Daily, jitterMinutes int, opts GeneratorOptions) (*GeneratedUnits, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if opts.BackupRoot == "" {
		return nil, fmt.Errorf("backup root is required")
	}
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = DefaultConfigPath
	}

	execStart := fmt.Sprintf("%s run %s", opts.Binary, systemdQuote(opts.BackupRoot))
	svcName, _ := UnitFileNames(bucket)

	return &GeneratedUnits{
		Name:    strings.TrimSuffix(svcName, ".service"),
		Service: buildService(bucket, execStart, opts),
		Timer:   buildTimer(bucket, svcName, daily, jitterMinutes),
	}, nil
}

func buildService(bucket, execStart string, opts GeneratorOptions) string {
	var b strings.Builder

	b.WriteString("[Unit]\n")
	fmt.Fprintf(&b, "Description=Bits3 backup upload to bucket %s\n", bucket)
	b.WriteString("After=network-online.target\n")
	b.WriteString("Wants=network-online.target\n\n")

	b.WriteString("[Service]\n")
	b.WriteString("Type=oneshot\n")
	fmt.Fprintf(&b, "ExecStart=%s\n", execStart)
	b.WriteString("Environment=BITS3_CONFIG=" + opts.ConfigPath + "\n")
	b.WriteString("Nice=10\n")
	b.WriteString("IOSchedulingClass=idle\n")

	if opts.Hardening {
		b.WriteString("ProtectSystem=strict\n")
		b.WriteString("PrivateTmp=yes\n")
		b.WriteString("NoNewPrivileges=yes\n")
		b.WriteString("ProtectKernelTunables=yes\n")
		b.WriteString("ProtectKernelModules=yes\n")
		b.WriteString("ProtectControlGroups=yes\n")
		b.WriteString("RestrictRealtime=yes\n")
		b.WriteString("RestrictSUIDSGID=yes\n")
		b.WriteString("LockPersonality=yes\n")
		b.WriteString("ProtectClock=yes\n")
		b.WriteString("ProtectHostname=yes\n")
		b.WriteString("ProtectKernelLogs=yes\n")
		b.WriteString("RestrictNamespaces=yes\n")
		b.WriteString("RestrictAddressFamilies=AF_UNIX AF_INET AF_INET6\n")
		// A marker directly below the root puts the artifact in the root's parent.
		rw := filepath.Dir(filepath.Clean(opts.BackupRoot))
		if opts.WorkDir != "" {
			rw = opts.WorkDir
		}
		paths := []string{systemdQuote(rw)}
		if opts.MetricsFile != "" {
			paths = append(paths, systemdQuote(filepath.Dir(opts.MetricsFile)))
		}
		b.WriteString("ReadWritePaths=" + strings.Join(paths, " ") + "\n")
	}

	b.WriteString("\n[Install]\n")
	b.WriteString("WantedBy=multi-user.target\n")
	return b.String()
}

func buildTimer(bucket, svcName string, daily schedule.Daily, jitterMinutes int) string {
	var b strings.Builder

	b.WriteString("[Unit]\n")
	fmt.Fprintf(&b, "Description=Daily Bits3 backup check for bucket %s\n", bucket)
	b.WriteString("Requires=" + svcName + "\n\n")

	b.WriteString("[Timer]\n")
	b.WriteString("OnCalendar=" + daily.OnCalendar() + "\n")
	if jitterMinutes > 0 {
		fmt.Fprintf(&b, "RandomizedDelaySec=%d\n", jitterMinutes*60)
	}
	b.WriteString("Persistent=yes\n\n")

	b.WriteString("[Install]\n")
	b.WriteString("WantedBy=timers.target\n")
	return b.String()
}

// WriteUnits writes both unit files into dir and returns their paths.
func WriteUnits(dir, bucket string, units *GeneratedUnits) (servicePath, timerPath string, err error) {
	svcName, timerName := UnitFileNames(bucket)
	servicePath = filepath.Join(dir, svcName)
	timerPath = filepath.Join(dir, timerName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("create unit dir: %w", err)
	}
	if err := os.WriteFile(servicePath, []byte(units.Service), 0644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", servicePath, err)
	}
	if err := os.WriteFile(timerPath, []byte(units.Timer), 0644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", timerPath, err)
	}
	return servicePath, timerPath, nil
}

// systemdQuote quotes a path for ExecStart and ReadWritePaths when it contains spaces.
func systemdQuote(s string) string {
	if !strings.ContainsAny(s, " \t\"\\") {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func sanitizeUnitName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else if r == ' ' || r == '.' {
			b.WriteRune('-')
		}
	}
	s := b.String()
	if s == "" {
		return "default"
	}
	return s
}
