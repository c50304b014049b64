// Package snapshot finds the latest snapshot inside a backup root maintained by
// Back In Time, which keeps a "last_snapshot" symlink next to its snapshots.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const MarkerName = "last_snapshot"

var ErrNotABackupRoot = errors.New("not a backup root")

// Locate resolves the latest snapshot directory below root using the default marker.
func Locate(root string) (string, error) {
	return LocateMarker(root, MarkerName)
}

// LocateMarker searches root breadth first, lexically within a directory, for an entry named
// marker. The first one found decides: it must be a symlink to a directory, and its fully
// resolved absolute target is returned. Symlinked directories are not descended into.
func LocateMarker(root, marker string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotABackupRoot, root, err)
	}

	queue := []string{absRoot}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir)
		if err != nil {
			if dir == absRoot {
				return "", fmt.Errorf("%w: %s: %v", ErrNotABackupRoot, root, err)
			}
			// Unreadable subdirectories cannot hold the marker we are allowed to see.
			continue
		}
		for _, e := range entries {
			if e.Name() == marker {
				return resolveMarker(root, filepath.Join(dir, e.Name()), e.Type())
			}
		}
		for _, e := range entries {
			if e.IsDir() {
				queue = append(queue, filepath.Join(dir, e.Name()))
			}
		}
	}
	return "", fmt.Errorf("%w: no %q entry below %s", ErrNotABackupRoot, marker, root)
}

func resolveMarker(root, path string, mode os.FileMode) (string, error) {
	if mode&os.ModeSymlink == 0 {
		return "", fmt.Errorf("%w: %s is not a symbolic link (below %s)", ErrNotABackupRoot, path, root)
	}
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("%w: resolve %s: %v", ErrNotABackupRoot, path, err)
	}
	target, err = filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("%w: resolve %s: %v", ErrNotABackupRoot, path, err)
	}
	info, err := os.Stat(target)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotABackupRoot, target, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s does not point to a directory", ErrNotABackupRoot, path)
	}
	return target, nil
}
