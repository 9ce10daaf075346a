// Package normalize assigns the owning identity of the composed output
// tree and, for hardened builds, widens group access so the image runs
// correctly under an externally-assigned, unpredictable UID.
//
// Normalization runs after composition, never per stage: intermediate
// stage artifacts may be produced under whatever identity the invoking
// tools used, and only the final tree carries the declared owner.
package normalize

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/atelierhq/stagecraft/src/variant"
)

// groupRW is the group read/write widening applied under hardening.
const groupRW = 0o060

// Normalize chowns every entry under root to the descriptor's owner
// identity. With permission hardening it additionally widens group
// permission to rwX (execute only where a directory or an already
// executable file) and sets the setgid bit on directories so files created
// at runtime inherit the group.
func Normalize(root string, d variant.Descriptor) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if err := os.Lchown(path, d.OwnerUID, d.OwnerGID); err != nil {
			return fmt.Errorf("normalizing owner of %s: %w", path, err)
		}

		if !d.PermissionHardening {
			return nil
		}

		fi, err := entry.Info()
		if err != nil {
			return err
		}
		// Symlink modes are meaningless on Linux; the target is handled on
		// its own visit.
		if fi.Mode()&fs.ModeSymlink != 0 {
			return nil
		}

		mode := fi.Mode().Perm() | groupRW
		if entry.IsDir() || fi.Mode().Perm()&0o111 != 0 {
			mode |= 0o010
		}

		var extra fs.FileMode
		if entry.IsDir() {
			extra = fs.ModeSetgid
		}

		if err := os.Chmod(path, mode|extra); err != nil {
			return fmt.Errorf("hardening %s: %w", path, err)
		}
		return nil
	})
}
