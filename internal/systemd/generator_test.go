package systemd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"Bits3/internal/schedule"
)

func TestGenerate_ServiceAndTimer(t *testing.T) {
	opts := GeneratorOptions{
		Binary:     "/usr/bin/bits3",
		ConfigPath: "/etc/bits3/config.yaml",
		Hardening:  true,
		BackupRoot: "/srv/backups",
	}

	units, err := Generate("my.bucket", schedule.Daily{Hour: 3, Minute: 30}, 5, opts)
	if err != nil {
		t.Fatal(err)
	}
	if units.Name != "bits3-my-bucket" {
		t.Errorf("Name = %q", units.Name)
	}

	for _, want := range []string{
		"[Unit]",
		"[Service]",
		"Type=oneshot",
		"ExecStart=/usr/bin/bits3 run /srv/backups\n",
		"Environment=BITS3_CONFIG=/etc/bits3/config.yaml",
		"ProtectSystem=strict",
		"ReadWritePaths=/srv\n",
	} {
		if !strings.Contains(units.Service, want) {
			t.Errorf("service missing %q:\n%s", want, units.Service)
		}
	}

	for _, want := range []string{
		"[Timer]",
		"OnCalendar=*-*-* 03:30:00\n",
		"RandomizedDelaySec=300\n",
		"Persistent=yes",
		"Requires=bits3-my-bucket.service",
	} {
		if !strings.Contains(units.Timer, want) {
			t.Errorf("timer missing %q:\n%s", want, units.Timer)
		}
	}
}

func TestGenerate_Variants(t *testing.T) {
	units, err := Generate("b", schedule.Daily{Hour: 2}, 0, GeneratorOptions{BackupRoot: "/data/my backups"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(units.Service, "ProtectSystem") {
		t.Error("hardening disabled but ProtectSystem present")
	}
	if !strings.Contains(units.Service, `ExecStart=`+DefaultBinary+` run "/data/my backups"`) {
		t.Errorf("ExecStart should quote the root:\n%s", units.Service)
	}
	if strings.Contains(units.Timer, "RandomizedDelaySec") {
		t.Error("no jitter configured but RandomizedDelaySec present")
	}

	units, err = Generate("b", schedule.Daily{Hour: 2}, 0, GeneratorOptions{BackupRoot: "/srv/backups", WorkDir: "/var/spool/bits3", MetricsFile: "/var/lib/node_exporter/bits3.prom", Hardening: true})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(units.Service, "ReadWritePaths=/var/spool/bits3 /var/lib/node_exporter\n") {
		t.Errorf("work_dir should be the writable path:\n%s", units.Service)
	}
}

func TestGenerate_Errors(t *testing.T) {
	if _, err := Generate("", schedule.Daily{}, 0, GeneratorOptions{BackupRoot: "/x"}); err == nil {
		t.Error("expected error for empty bucket")
	}
	if _, err := Generate("b", schedule.Daily{}, 0, GeneratorOptions{}); err == nil {
		t.Error("expected error for empty backup root")
	}
}

func TestWriteUnits(t *testing.T) {
	dir := t.TempDir()
	units, err := Generate("b", schedule.Daily{Hour: 2}, 0, GeneratorOptions{BackupRoot: "/x"})
	if err != nil {
		t.Fatal(err)
	}
	svc, timer, err := WriteUnits(dir, "b", units)
	if err != nil {
		t.Fatal(err)
	}
	if svc != filepath.Join(dir, "bits3-b.service") || timer != filepath.Join(dir, "bits3-b.timer") {
		t.Errorf("paths = %s, %s", svc, timer)
	}
	data, err := os.ReadFile(timer)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != units.Timer {
		t.Error("timer file content mismatch")
	}
}

func TestSanitizeUnitName(t *testing.T) {
	if got := sanitizeUnitName("web-prod"); got != "web-prod" {
		t.Errorf("sanitize web-prod = %q", got)
	}
	if got := sanitizeUnitName("my bucket"); got != "my-bucket" {
		t.Errorf("sanitize 'my bucket' = %q", got)
	}
	if got := sanitizeUnitName(""); got != "default" {
		t.Errorf("sanitize empty = %q", got)
	}
}
