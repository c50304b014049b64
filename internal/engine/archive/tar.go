package archive

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
)

// WriteTar streams dir into w as a tar archive. Entry names are prefixed with the base name of
// dir, so extracting recreates the snapshot directory itself. Symlinks are stored as links and
// never followed; sockets, devices and fifos are skipped.
func WriteTar(ctx context.Context, w io.Writer, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(w)
	name := filepath.Base(dir)

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name + "/"
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if err := walk(ctx, tw, dir, name); err != nil {
		return err
	}
	return tw.Close()
}

func walk(ctx context.Context, tw *tar.Writer, dir, tarDir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		full := filepath.Join(dir, e.Name())
		tarName := path.Join(tarDir, e.Name())

		info, err := e.Info()
		if err != nil {
			return err
		}
		mode := info.Mode()

		switch {
		case mode&os.ModeSymlink != 0:
			link, err := os.Readlink(full)
			if err != nil {
				return err
			}
			hdr, err := tar.FileInfoHeader(info, link)
			if err != nil {
				return err
			}
			hdr.Name = tarName
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}

		case info.IsDir():
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = tarName + "/"
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if err := walk(ctx, tw, full, tarName); err != nil {
				return err
			}

		case mode.IsRegular():
			if err := writeFile(tw, full, tarName, info); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeFile(tw *tar.Writer, full, tarName string, info os.FileInfo) error {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = tarName
	f, err := os.Open(full)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	// tar.Writer rejects bytes beyond hdr.Size.
	_, err = io.CopyN(tw, f, hdr.Size)
	return err
}
