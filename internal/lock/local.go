package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
)

// ErrHeld is returned when another process holds the lock.
var ErrHeld = errors.New("lock held by another process")

// DefaultDir is $XDG_RUNTIME_DIR/bits3, falling back to the system temp directory.
func DefaultDir() string {
	if d := os.Getenv("XDG_RUNTIME_DIR"); d != "" {
		return filepath.Join(d, "bits3")
	}
	return filepath.Join(os.TempDir(), "bits3")
}

type LocalLocker struct {
	path  string
	ttl   time.Duration
	clock clock.Clock
	file  *os.File
	mu    sync.Mutex
	held  bool
}

type LocalOptions struct {
	Dir string
	// Name is usually the bucket, so runs against different buckets do not block each other.
	Name string
	// TTL, when positive, lets a lock file older than TTL be taken over.
	TTL   time.Duration
	Clock clock.Clock
}

func NewLocal(opts LocalOptions) *LocalLocker {
	dir := opts.Dir
	if dir == "" {
		dir = DefaultDir()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	return &LocalLocker{
		path:  filepath.Join(dir, lockName(opts.Name)+".lock"),
		ttl:   opts.TTL,
		clock: clk,
	}
}

func lockName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, name)
	if name == "" || strings.Trim(name, ".") == "" {
		return "default"
	}
	return name
}

// Path returns the lock file location.
func (l *LocalLocker) Path() string {
	return l.path
}

func (l *LocalLocker) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return fmt.Errorf("lock already held by this process")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}

	tryAcquire := func() (*os.File, error) {
		return os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0640)
	}

	file, err := tryAcquire()
	if err != nil {
		if !os.IsExist(err) {
			return fmt.Errorf("create lock file: %w", err)
		}
		if l.ttl <= 0 {
			return fmt.Errorf("%w: %s", ErrHeld, l.path)
		}
		info, statErr := os.Stat(l.path)
		if statErr != nil {
			return fmt.Errorf("lock file exists and stat failed: %w", statErr)
		}
		if l.clock.Now().Sub(info.ModTime()) < l.ttl {
			return fmt.Errorf("%w: %s", ErrHeld, l.path)
		}
		if removeErr := os.Remove(l.path); removeErr != nil {
			return fmt.Errorf("stale lock file exists, remove failed: %w", removeErr)
		}
		file, err = tryAcquire()
		if err != nil {
			return fmt.Errorf("retry acquire after stale remove: %w", err)
		}
	}

	if _, err := fmt.Fprintf(file, "%d\n", os.Getpid()); err != nil {
		_ = file.Close()
		_ = os.Remove(l.path)
		return fmt.Errorf("write lock file: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(l.path)
		return fmt.Errorf("sync lock file: %w", err)
	}

	l.file = file
	l.held = true
	return nil
}

func (l *LocalLocker) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	var errs []error
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			errs = append(errs, err)
		}
		l.file = nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	l.held = false
	if len(errs) > 0 {
		return fmt.Errorf("release lock: %w", errors.Join(errs...))
	}
	return nil
}
