package remote

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
)

// ScanLocal expands root into the regular files below it. A file root yields
// itself. Symlinks to files are kept; symlinks to directories and broken
// links are skipped since Walk does not descend into them.
func ScanLocal(ctx context.Context, root string) ([]string, int64, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, 0, err
	}
	if !info.IsDir() {
		return []string{root}, info.Size(), nil
	}

	var files []string
	var totalSize int64
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}

		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return nil
		}

		files = append(files, path)
		totalSize += info.Size()
		return nil
	})
	return files, totalSize, err
}
