package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"Bits3/internal/engine"
	"Bits3/internal/engine/archive"
)

func readMetrics(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestWriteTextfile_Success(t *testing.T) {
	c := NewCollector()
	c.Observe("b", &engine.Result{
		Outcome:  engine.Success,
		Artifact: &archive.Artifact{Key: "snap.tar.gpg", Size: 4096},
		Deleted:  []string{"old-1.tar.gpg", "old-2.tar.gpg"},
		Started:  time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC),
		Duration: 30 * time.Second,
	})

	path := filepath.Join(t.TempDir(), "textfile", "bits3.prom")
	if err := WriteTextfile(path, c); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	out := readMetrics(t, path)
	for _, line := range []string{
		`bits3_last_run_outcome{bucket="b",outcome="success"} 1`,
		`bits3_last_run_outcome{bucket="b",outcome="skipped"} 0`,
		`bits3_last_run_outcome{bucket="b",outcome="failed"} 0`,
		`bits3_last_artifact_bytes{bucket="b"} 4096`,
		`bits3_last_run_duration_seconds{bucket="b"} 30`,
		`bits3_last_run_pruned_objects{bucket="b"} 2`,
		`bits3_last_run_prune_failures{bucket="b"} 0`,
		`bits3_days_since_upload{bucket="b"} 0`,
	} {
		if !strings.Contains(out, line+"\n") {
			t.Errorf("missing %q in:\n%s", line, out)
		}
	}
}

func TestWriteTextfile_Skipped(t *testing.T) {
	c := NewCollector()
	c.Observe("b", &engine.Result{
		Outcome:    engine.Skipped,
		LastUpload: time.Date(2025, 5, 29, 2, 0, 0, 0, time.UTC),
		DaysSince:  3,
		Started:    time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC),
	})

	path := filepath.Join(t.TempDir(), "bits3.prom")
	if err := WriteTextfile(path, c); err != nil {
		t.Fatal(err)
	}
	out := readMetrics(t, path)
	if !strings.Contains(out, `bits3_last_run_outcome{bucket="b",outcome="skipped"} 1`) {
		t.Errorf("skipped outcome not set:\n%s", out)
	}
	if !strings.Contains(out, `bits3_days_since_upload{bucket="b"} 3`) {
		t.Errorf("days since upload not set:\n%s", out)
	}
	if strings.Contains(out, "bits3_last_artifact_bytes{") {
		t.Errorf("no artifact size expected for a skipped cycle:\n%s", out)
	}
}

func TestWriteTextfile_Failed(t *testing.T) {
	c := NewCollector()
	c.Observe("b", &engine.Result{
		Outcome: engine.Failed,
		State:   engine.StateUpload,
		Started: time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC),
	})

	path := filepath.Join(t.TempDir(), "bits3.prom")
	if err := WriteTextfile(path, c); err != nil {
		t.Fatal(err)
	}
	out := readMetrics(t, path)
	if !strings.Contains(out, `bits3_last_run_outcome{bucket="b",outcome="failed"} 1`) {
		t.Errorf("failed outcome not set:\n%s", out)
	}
	if strings.Contains(out, "bits3_last_upload_timestamp_seconds{") {
		t.Errorf("no upload timestamp expected without a known upload:\n%s", out)
	}
}
