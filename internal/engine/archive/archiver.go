package archive

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
)

// Artifact is the encrypted archive of one snapshot. Key is the object key it is uploaded
// under, which is the file name. Digest is the hex BLAKE3 digest of the ciphertext.
type Artifact struct {
	Path   string
	Key    string
	Size   int64
	Digest string
}

const partSuffix = ".part"

type ArchiverOptions struct {
	Compression CompressionFormat
	Level       int
	// WorkDir overrides the directory the artifact is written to.
	WorkDir string
}

type Archiver struct {
	enc  Encryptor
	opts ArchiverOptions
	log  zerolog.Logger
}

func NewArchiver(enc Encryptor, opts ArchiverOptions, log zerolog.Logger) *Archiver {
	if opts.Compression == "" {
		opts.Compression = FormatNone
	}
	return &Archiver{enc: enc, opts: opts, log: log}
}

// ArtifactPath names the artifact after the snapshot directory and places it next to the
// snapshot's parent directory unless workDir is set.
func ArtifactPath(snapshotDir, workDir string, format CompressionFormat) string {
	dir := workDir
	if dir == "" {
		dir = filepath.Dir(filepath.Dir(snapshotDir))
	}
	return filepath.Join(dir, filepath.Base(snapshotDir)+formatExtension(format)+CipherExtension)
}

// Path returns where Archive would write the artifact for snapshotDir.
func (a *Archiver) Path(snapshotDir string) string {
	return ArtifactPath(snapshotDir, a.opts.WorkDir, a.opts.Compression)
}

// Archive tars snapshotDir and pipes it through the encryptor into the artifact file.
// The ciphertext is written to a ".part" file that is renamed into place only once it is
// complete, so an artifact left behind by a failed upload is whole and is reused as is.
// On failure the partial file is removed.
func (a *Archiver) Archive(ctx context.Context, snapshotDir string) (*Artifact, error) {
	outPath := a.Path(snapshotDir)
	log := a.log.With().Str("snapshot", snapshotDir).Str("artifact", outPath).Logger()

	if info, err := os.Stat(outPath); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
		log.Info().Msg("reusing artifact left by a previous run")
		return a.reuse(outPath)
	}

	log.Info().Msg("creating encrypted archive")
	start := time.Now()

	partPath := outPath + partSuffix
	out, err := os.OpenFile(partPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("create artifact %s: %w", outPath, err)
	}
	hasher := blake3.New()
	var size countingWriter

	err = a.stream(ctx, snapshotDir, io.MultiWriter(out, hasher, &size))
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close artifact %s: %w", outPath, closeErr)
	}
	if err == nil {
		if err = os.Rename(partPath, outPath); err != nil {
			err = fmt.Errorf("finalize artifact %s: %w", outPath, err)
		}
	}
	if err != nil {
		if rmErr := os.Remove(partPath); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn().Err(rmErr).Msg("could not remove partial artifact")
		}
		return nil, err
	}

	artifact := &Artifact{
		Path:   outPath,
		Key:    filepath.Base(outPath),
		Size:   int64(size),
		Digest: hex.EncodeToString(hasher.Sum(nil)),
	}
	log.Info().
		Str("size", humanize.IBytes(uint64(artifact.Size))).
		Dur("took", time.Since(start)).
		Msg("artifact created")
	return artifact, nil
}

func (a *Archiver) reuse(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", path, err)
	}
	defer f.Close()
	hasher := blake3.New()
	n, err := io.Copy(hasher, f)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}
	return &Artifact{
		Path:   path,
		Key:    filepath.Base(path),
		Size:   n,
		Digest: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// stream runs the tar producer and the encryptor concurrently, connected by an in-memory
// pipe, and waits for both.
func (a *Archiver) stream(ctx context.Context, dir string, ciphertext io.Writer) error {
	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	var tarErr, encErr error
	g.Go(func() error {
		tarErr = a.produce(gctx, pw, dir)
		_ = pw.CloseWithError(tarErr)
		return tarErr
	})
	g.Go(func() error {
		encErr = a.enc.Encrypt(gctx, pr, ciphertext)
		// Unblocks the producer if the encryptor stopped reading early.
		_ = pr.Close()
		return encErr
	})
	_ = g.Wait()

	producerGaveUp := tarErr == nil || errors.Is(tarErr, io.ErrClosedPipe) || errors.Is(tarErr, context.Canceled)
	switch {
	case encErr != nil && producerGaveUp:
		return encErr
	case tarErr != nil && errors.Is(tarErr, io.ErrClosedPipe):
		return fmt.Errorf("%w: encryptor stopped reading before the archive was complete", ErrEncryptionFailed)
	case tarErr != nil:
		return fmt.Errorf("%w: %s: %v", ErrArchiveFailed, dir, tarErr)
	}
	return nil
}

func (a *Archiver) produce(ctx context.Context, w io.Writer, dir string) error {
	cw, err := NewCompressWriter(w, a.opts.Compression, a.opts.Level)
	if err != nil {
		return err
	}
	if err := WriteTar(ctx, cw, dir); err != nil {
		_ = cw.Close()
		return err
	}
	return cw.Close()
}

type countingWriter int64

func (c *countingWriter) Write(p []byte) (int, error) {
	*c += countingWriter(len(p))
	return len(p), nil
}
