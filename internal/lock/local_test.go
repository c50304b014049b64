package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
)

func TestLocalLocker_Exclusive(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a := NewLocal(LocalOptions{Dir: dir, Name: "backups"})
	b := NewLocal(LocalOptions{Dir: dir, Name: "backups"})

	if err := a.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := b.Acquire(ctx); !errors.Is(err, ErrHeld) {
		t.Fatalf("second Acquire = %v, want ErrHeld", err)
	}
	if err := a.Acquire(ctx); err == nil {
		t.Error("re-acquiring from the same locker should fail")
	}
	if err := a.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(a.Path()); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed, stat err = %v", err)
	}
	if err := b.Acquire(ctx); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	if err := b.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if err := b.Release(ctx); err != nil {
		t.Errorf("second Release should be a no-op: %v", err)
	}
}

func TestLocalLocker_DifferentNamesIndependent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a := NewLocal(LocalOptions{Dir: dir, Name: "one"})
	b := NewLocal(LocalOptions{Dir: dir, Name: "two"})
	if err := a.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	defer a.Release(ctx)
	if err := b.Acquire(ctx); err != nil {
		t.Fatalf("lock for another bucket should not block: %v", err)
	}
	_ = b.Release(ctx)
}

func TestLocalLocker_StaleTakeover(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "backups.lock")
	if err := os.WriteFile(path, []byte("12345\n"), 0640); err != nil {
		t.Fatal(err)
	}
	written, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	clk := testclock.NewClock(written.ModTime().Add(30 * time.Minute))
	fresh := NewLocal(LocalOptions{Dir: dir, Name: "backups", TTL: time.Hour, Clock: clk})
	if err := fresh.Acquire(ctx); !errors.Is(err, ErrHeld) {
		t.Fatalf("lock younger than TTL: got %v, want ErrHeld", err)
	}

	clk.Advance(2 * time.Hour)
	if err := fresh.Acquire(ctx); err != nil {
		t.Fatalf("stale lock should be taken over: %v", err)
	}
	_ = fresh.Release(ctx)
}

func TestLockName(t *testing.T) {
	tests := map[string]string{
		"":             "default",
		"..":           "default",
		"my-bucket":    "my-bucket",
		"a/b":          "a_b",
		"../etc/pwd":   ".._etc_pwd",
		"bucket.v2_ok": "bucket.v2_ok",
	}
	for in, want := range tests {
		if got := lockName(in); got != want {
			t.Errorf("lockName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDefaultDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got := DefaultDir(); got != "/run/user/1000/bits3" {
		t.Errorf("DefaultDir = %q", got)
	}
	t.Setenv("XDG_RUNTIME_DIR", "")
	if got := DefaultDir(); got != filepath.Join(os.TempDir(), "bits3") {
		t.Errorf("DefaultDir fallback = %q", got)
	}
}
