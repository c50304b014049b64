// Package restore downloads an artifact, decrypts it and unpacks the tar stream.
package restore

import (
	"archive/tar"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"Bits3/internal/engine/archive"
)

var (
	ErrDigestMismatch = errors.New("artifact digest mismatch")
	ErrUnsafePath     = errors.New("archive entry leaves the target directory")
)

type Options struct {
	// DryRun decrypts and reads the whole archive without writing anything.
	DryRun bool
}

type Stats struct {
	Files    int
	Dirs     int
	Symlinks int
	Bytes    int64
	Digest   string
}

// RestoreArchive streams key from the store through the decryptor and unpacks it below
// targetDir. When the object carries a digest, the downloaded ciphertext must match it.
func RestoreArchive(ctx context.Context, store archive.Downloader, dec archive.Decryptor, key, targetDir string, opts Options, log zerolog.Logger) (Stats, error) {
	var stats Stats
	if targetDir == "" && !opts.DryRun {
		return stats, fmt.Errorf("target directory is required")
	}

	rc, info, err := store.Download(ctx, key)
	if err != nil {
		return stats, fmt.Errorf("download %s: %w", key, err)
	}
	defer rc.Close()

	hasher := blake3.New()
	ciphertext := io.TeeReader(rc, hasher)
	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	var decErr, extractErr error
	g.Go(func() error {
		decErr = dec.Decrypt(gctx, ciphertext, pw)
		if decErr == nil {
			// Trailing bytes the decryptor left unread still count towards the digest.
			_, decErr = io.Copy(io.Discard, ciphertext)
		}
		_ = pw.CloseWithError(decErr)
		return decErr
	})
	g.Go(func() error {
		extractErr = extract(pr, key, targetDir, opts, &stats)
		_ = pr.CloseWithError(extractErr)
		return extractErr
	})
	_ = g.Wait()

	// A decryptor failure reaches the extractor through the pipe, so it shows up in both.
	switch {
	case extractErr != nil && errors.Is(extractErr, archive.ErrEncryptionFailed):
		return stats, decErr
	case extractErr != nil:
		return stats, extractErr
	case decErr != nil:
		return stats, decErr
	}

	stats.Digest = hex.EncodeToString(hasher.Sum(nil))
	if info.Digest != "" && !strings.EqualFold(info.Digest, stats.Digest) {
		return stats, fmt.Errorf("%w: %s: stored %s, downloaded %s", ErrDigestMismatch, key, info.Digest, stats.Digest)
	}
	log.Info().
		Str("key", key).
		Str("target", targetDir).
		Int("files", stats.Files).
		Int64("bytes", stats.Bytes).
		Bool("dry_run", opts.DryRun).
		Msg("archive restored")
	return stats, nil
}

func extract(r io.Reader, key, targetDir string, opts Options, stats *Stats) error {
	plain, err := archive.NewDecompressReader(r, key)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", key, err)
	}
	defer plain.Close()

	tr := tar.NewReader(plain)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar %s: %w", key, err)
		}
		if err := restoreTarEntry(tr, hdr, targetDir, opts, stats); err != nil {
			return fmt.Errorf("restore %s: %w", hdr.Name, err)
		}
	}
	// Drain tar padding so the decryptor can finish writing.
	_, err = io.Copy(io.Discard, r)
	return err
}

func restoreTarEntry(tr *tar.Reader, hdr *tar.Header, targetDir string, opts Options, stats *Stats) error {
	name := cleanTarName(hdr.Name)
	if name == "" {
		return nil
	}
	dstPath := filepath.Join(targetDir, filepath.FromSlash(name))
	if !opts.DryRun {
		if err := checkParents(targetDir, name); err != nil {
			return err
		}
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		stats.Dirs++
		if opts.DryRun {
			return nil
		}
		return os.MkdirAll(dstPath, dirMode(hdr.Mode))
	case tar.TypeReg:
		stats.Files++
		if opts.DryRun {
			n, err := io.Copy(io.Discard, tr)
			stats.Bytes += n
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
			return err
		}
		// Replace a link restored earlier instead of writing through it.
		if fi, err := os.Lstat(dstPath); err == nil && fi.Mode()&os.ModeSymlink != 0 {
			if err := os.Remove(dstPath); err != nil {
				return err
			}
		}
		f, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
		if err != nil {
			return err
		}
		n, err := io.Copy(f, tr)
		stats.Bytes += n
		if err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	case tar.TypeSymlink:
		stats.Symlinks++
		if opts.DryRun {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
			return err
		}
		_ = os.Remove(dstPath)
		return os.Symlink(hdr.Linkname, dstPath)
	default:
		return nil
	}
}

// checkParents rejects name when a directory between targetDir and the entry is a symlink,
// which would let a later entry land outside targetDir.
func checkParents(targetDir, name string) error {
	dir := targetDir
	parts := strings.Split(name, "/")
	for _, part := range parts[:len(parts)-1] {
		dir = filepath.Join(dir, part)
		fi, err := os.Lstat(dir)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s is below the symlink %s", ErrUnsafePath, name, dir)
		}
	}
	return nil
}

// dirMode keeps extracted directories traversable by their owner.
func dirMode(mode int64) os.FileMode {
	return os.FileMode(mode).Perm() | 0o700
}

func cleanTarName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = path.Clean(name)
	name = strings.TrimLeft(name, "/")
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, "../") {
		return ""
	}
	return name
}
