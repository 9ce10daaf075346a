package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// KeyInput captures everything that may legitimately change a stage's
// output: the content of its declared source inputs, the descriptor fields
// its actions condition on, and the version of the action list itself.
// Fields a stage does not read must stay out so unrelated flag changes do
// not invalidate its entries.
type KeyInput struct {
	// Files are paths (files or directories) fingerprinted by content.
	Files []string
	// Fields is the relevant subset of the resolved variant descriptor.
	Fields map[string]string
	// ActionsVersion is bumped whenever the stage's action list changes.
	ActionsVersion string
}

// Key computes the content-addressed cache key for a stage.
// Absent input paths are recorded as absent rather than erroring, so a
// deleted manifest deterministically produces a different key instead of
// failing the lookup.
func Key(in KeyInput) (string, error) {
	h := sha256.New()

	fmt.Fprintf(h, "actions:%s\n", in.ActionsVersion)

	names := make([]string, 0, len(in.Fields))
	for name := range in.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(h, "field:%s=%s\n", name, in.Fields[name])
	}

	files := append([]string(nil), in.Files...)
	sort.Strings(files)
	for _, path := range files {
		digest, err := fingerprint(path)
		if err != nil {
			return "", fmt.Errorf("fingerprinting %s: %w", path, err)
		}
		fmt.Fprintf(h, "input:%s=%s\n", filepath.ToSlash(filepath.Base(path)), digest)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// fingerprint hashes a file's content, or a directory's relative paths and
// file contents. A nonexistent path hashes to a stable absence marker.
func fingerprint(path string) (string, error) {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "absent", nil
	}
	if err != nil {
		return "", err
	}

	h := sha256.New()
	if !fi.IsDir() {
		if err := hashFile(h, path); err != nil {
			return "", err
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		fmt.Fprintf(h, "%s\n", filepath.ToSlash(rel))
		if d.Type()&fs.ModeSymlink != 0 {
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			fmt.Fprintf(h, "link:%s\n", link)
			return nil
		}
		return hashFile(h, p)
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(h io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(h, f)
	return err
}
