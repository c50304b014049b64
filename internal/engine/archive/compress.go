package archive

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

type CompressionFormat string

const (
	FormatNone CompressionFormat = "none"
	FormatGzip CompressionFormat = "gz"
	FormatZstd CompressionFormat = "zst"
)

func ParseCompression(s string) (CompressionFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "tar":
		return FormatNone, nil
	case "gz", "gzip":
		return FormatGzip, nil
	case "zst", "zstd":
		return FormatZstd, nil
	default:
		return "", fmt.Errorf("unknown compression %q (want none, gz or zst)", s)
	}
}

// NewCompressWriter wraps w so that bytes written are compressed in the given format.
// Closing the returned writer flushes the compressor but never closes w.
func NewCompressWriter(w io.Writer, format CompressionFormat, level int) (io.WriteCloser, error) {
	switch format {
	case FormatGzip:
		if level < 1 {
			level = gzip.DefaultCompression
		}
		if level > 9 {
			level = 9
		}
		return gzip.NewWriterLevel(w, level)
	case FormatZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	default:
		return nopWriteCloser{w}, nil
	}
}

// NewDecompressReader picks the decompressor from the artifact name.
func NewDecompressReader(r io.Reader, name string) (io.ReadCloser, error) {
	switch formatFromName(name) {
	case FormatGzip:
		return gzip.NewReader(r)
	case FormatZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	default:
		return io.NopCloser(r), nil
	}
}

func formatExtension(f CompressionFormat) string {
	switch f {
	case FormatGzip:
		return ".tar.gz"
	case FormatZstd:
		return ".tar.zst"
	default:
		return ".tar"
	}
}

func formatFromName(name string) CompressionFormat {
	lower := strings.ToLower(strings.TrimSuffix(name, CipherExtension))
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatGzip
	case strings.HasSuffix(lower, ".tar.zst"):
		return FormatZstd
	default:
		return FormatNone
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
