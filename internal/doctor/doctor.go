// Package doctor runs the preflight checks behind `bits3 doctor`.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"Bits3/internal/config"
	"Bits3/internal/engine/archive"
	"Bits3/internal/lock"
	"Bits3/internal/snapshot"
)

type CheckResult struct {
	Name   string
	OK     bool
	Detail string
}

// Verifier is the part of a RemoteStore the bucket check needs.
type Verifier interface {
	Bucket() string
	VerifyBucket(ctx context.Context) error
}

type Options struct {
	Config *config.Config
	// Store is nil when the client could not be built; StoreErr then says why.
	Store    Verifier
	StoreErr error
	// BackupRoot is optional; without it the snapshot check is skipped.
	BackupRoot string
	LookPath   func(file string) (string, error)
}

// Run executes every check and returns them in a stable order. It never stops early.
func Run(ctx context.Context, opts Options) []CheckResult {
	cfg := opts.Config
	var results []CheckResult
	add := func(name string, ok bool, detail string) {
		results = append(results, CheckResult{Name: name, OK: ok, Detail: detail})
	}

	if err := config.Validate(cfg); err != nil {
		add("config", false, err.Error())
	} else {
		add("config", true, fmt.Sprintf("configuration valid (backend=%s, bucket=%s)", cfg.Backend, cfg.Bucket))
	}
	if cfg == nil {
		return results
	}

	if _, err := cfg.ResolvePassphrase(); err != nil {
		add("passphrase", false, err.Error())
	} else {
		add("passphrase", true, "passphrase available")
	}

	lookPath := opts.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if p, err := lookPath(cfg.GPG); err != nil {
		add("gpg", false, fmt.Sprintf("%s not found: %v", cfg.GPG, err))
	} else {
		add("gpg", true, p)
	}

	ok, detail := checkBucket(ctx, opts.Store, opts.StoreErr)
	add("bucket", ok, detail)

	if opts.BackupRoot != "" {
		snap, err := snapshot.Locate(opts.BackupRoot)
		if err != nil {
			add("snapshot", false, err.Error())
		} else {
			add("snapshot", true, snap)
			format, _ := archive.ParseCompression(cfg.Compression)
			dir := filepath.Dir(archive.ArtifactPath(snap, cfg.WorkDir, format))
			ok, detail := checkWritable(dir)
			add("artifact dir", ok, detail)
		}
	} else if cfg.WorkDir != "" {
		ok, detail := checkWritable(cfg.WorkDir)
		add("artifact dir", ok, detail)
	}

	ok, detail = checkLock(ctx, cfg.LockDir)
	add("lock", ok, detail)

	return results
}

// Failed reports whether any check failed.
func Failed(results []CheckResult) bool {
	for _, r := range results {
		if !r.OK {
			return true
		}
	}
	return false
}

func checkBucket(ctx context.Context, store Verifier, storeErr error) (bool, string) {
	if store == nil {
		if storeErr == nil {
			storeErr = errors.New("no store configured")
		}
		return false, fmt.Sprintf("client init failed: %v", storeErr)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.VerifyBucket(ctx); err != nil {
		return false, err.Error()
	}
	return true, fmt.Sprintf("bucket %s reachable", store.Bucket())
}

func checkLock(ctx context.Context, dir string) (bool, string) {
	l := lock.NewLocal(lock.LocalOptions{Dir: dir, Name: "doctor"})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := l.Acquire(ctx); err != nil {
		return false, fmt.Sprintf("lock acquire failed: %v", err)
	}
	if err := l.Release(context.Background()); err != nil {
		return false, fmt.Sprintf("lock release failed: %v", err)
	}
	return true, fmt.Sprintf("lock dir writable (%s)", filepath.Dir(l.Path()))
}

func checkWritable(dir string) (bool, string) {
	f, err := os.CreateTemp(dir, ".bits3-doctor-*")
	if err != nil {
		return false, fmt.Sprintf("create temp file failed in %s: %v", dir, err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString("test"); err != nil {
		_ = f.Close()
		return false, fmt.Sprintf("write temp file failed: %v", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Sprintf("close temp file failed: %v", err)
	}
	return true, fmt.Sprintf("%s writable", dir)
}
