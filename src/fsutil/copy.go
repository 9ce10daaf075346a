// Package fsutil holds the small filesystem helpers shared by the cache,
// executor, and composer.
package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
)

// CopyTree recursively copies a directory, preserving file modes and
// recreating symlinks rather than following them. Existing directories in
// dst are reused, so trees can be merged.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		fi, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, fi.Mode().Perm())
		case fi.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			os.Remove(target)
			return os.Symlink(link, target)
		default:
			return CopyFile(path, target, fi.Mode().Perm())
		}
	})
}

// CopyFile copies a single file with the given permissions.
func CopyFile(src, dst string, perm fs.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, perm)
}
