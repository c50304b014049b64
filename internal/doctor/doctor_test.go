package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"Bits3/internal/config"
	"Bits3/internal/engine/archive"
)

type fakeVerifier struct{ err error }

func (f fakeVerifier) Bucket() string                     { return "backups" }
func (f fakeVerifier) VerifyBucket(context.Context) error { return f.err }

func foundGPG(file string) (string, error) { return "/usr/bin/" + file, nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Bucket = "backups"
	cfg.Passphrase = "secret"
	cfg.LockDir = t.TempDir()
	return cfg
}

func byName(results []CheckResult) map[string]CheckResult {
	m := make(map[string]CheckResult)
	for _, r := range results {
		m[r.Name] = r
	}
	return m
}

func makeBackupRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	snap := filepath.Join(root, "host", "20250601-020000")
	if err := os.MkdirAll(snap, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(snap, filepath.Join(root, "host", "last_snapshot")); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestRun_AllOK(t *testing.T) {
	results := Run(context.Background(), Options{
		Config:     testConfig(t),
		Store:      fakeVerifier{},
		BackupRoot: makeBackupRoot(t),
		LookPath:   foundGPG,
	})
	if Failed(results) {
		t.Fatalf("unexpected failure: %+v", results)
	}
	got := byName(results)
	for _, name := range []string{"config", "passphrase", "gpg", "bucket", "snapshot", "artifact dir", "lock"} {
		if _, ok := got[name]; !ok {
			t.Errorf("missing check %q", name)
		}
	}
	if got["gpg"].Detail != "/usr/bin/gpg" {
		t.Errorf("gpg detail = %q", got["gpg"].Detail)
	}
}

func TestRun_ReportsEveryFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Passphrase = ""
	results := Run(context.Background(), Options{
		Config:     cfg,
		Store:      fakeVerifier{err: fmt.Errorf("%w: 403", archive.ErrBucketUnavailable)},
		BackupRoot: t.TempDir(),
		LookPath:   func(string) (string, error) { return "", errors.New("not in PATH") },
	})
	got := byName(results)
	for _, name := range []string{"passphrase", "gpg", "bucket", "snapshot"} {
		if got[name].OK {
			t.Errorf("check %q should fail: %+v", name, got[name])
		}
	}
	if !got["config"].OK || !got["lock"].OK {
		t.Errorf("config and lock should pass: %+v", results)
	}
	if !Failed(results) {
		t.Error("Failed should be true")
	}
}

func TestRun_StoreInitError(t *testing.T) {
	results := Run(context.Background(), Options{
		Config:   testConfig(t),
		StoreErr: archive.ErrNoCredentials,
		LookPath: foundGPG,
	})
	b := byName(results)["bucket"]
	if b.OK {
		t.Fatal("bucket check should fail without a store")
	}
	if _, ok := byName(results)["snapshot"]; ok {
		t.Error("snapshot check should be skipped without a backup root")
	}
}

func TestRun_NilConfig(t *testing.T) {
	results := Run(context.Background(), Options{})
	if len(results) != 1 || results[0].OK {
		t.Errorf("results = %+v", results)
	}
}
