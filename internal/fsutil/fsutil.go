// Package fsutil holds the small filesystem primitives the backup engine
// relies on for durability: directory creation, atomic writes and copies,
// and the cross-process directory lock.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// TmpSuffix marks files that are still being staged.
const TmpSuffix = ".tmp"

func EnsureDirectoryExist(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %q: %w", dirPath, err)
	}
	return nil
}

// RemoveIfExists deletes path and treats "already gone" as success.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// WriteFileAtomic writes data to path via path+".tmp" and a rename, so
// readers see either the old content or the complete new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	tmp := path + TmpSuffix
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create %q: %w", tmp, err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("write %q: %w", tmp, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("sync %q: %w", tmp, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close %q: %w", tmp, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %q: %w", tmp, err)
	}
	syncDir(filepath.Dir(path))
	return nil
}

// StagingGlob matches the temporary files CopyFileAtomic creates for dst,
// including those of sibling destinations such as dst+".pre-restore".
func StagingGlob(dst string) string {
	return filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".*"+TmpSuffix)
}

// CopyFileAtomic copies src over dst. The bytes are staged in a temporary
// file in dst's directory and renamed into place, which is atomic on the
// same filesystem.
func CopyFileAtomic(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source %q: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source %q: %w", src, err)
	}

	out, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*"+TmpSuffix)
	if err != nil {
		return fmt.Errorf("create temp for %q: %w", dst, err)
	}
	tmp := out.Name()
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(tmp)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %q to %q: %w", src, tmp, err)
	}
	if err = out.Chmod(info.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod %q: %w", tmp, err)
	}
	if err = out.Sync(); err != nil {
		return fmt.Errorf("sync %q: %w", tmp, err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close %q: %w", tmp, err)
	}
	if err = os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("rename %q to %q: %w", tmp, dst, err)
	}
	syncDir(filepath.Dir(dst))
	return nil
}

// syncDir flushes directory metadata so a rename survives a crash.
// Not every platform supports it; errors are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
