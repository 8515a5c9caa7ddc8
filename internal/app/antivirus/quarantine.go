package antivirus

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// quarantine moves the package directory to <root>/<workflow>/<package name>
// and returns the destination.
func (c *ClamAV) quarantine(sipPath, workflowExternalID string) (string, error) {
	dir := filepath.Join(c.cfg.QuarantineRoot, workflowExternalID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create quarantine directory: %w", err)
	}
	dest := filepath.Join(dir, filepath.Base(filepath.Clean(sipPath)))
	if _, err := os.Lstat(dest); err == nil {
		return "", fmt.Errorf("quarantine destination already exists: %s", dest)
	}

	err := os.Rename(sipPath, dest)
	if err == nil {
		return dest, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return "", fmt.Errorf("move to quarantine: %w", err)
	}

	// Different filesystems: copy, then remove the source.
	if err := copyTree(sipPath, dest); err != nil {
		_ = os.RemoveAll(dest)
		return "", fmt.Errorf("copy to quarantine: %w", err)
	}
	if err := os.RemoveAll(sipPath); err != nil {
		return "", fmt.Errorf("remove quarantined package: %w", err)
	}
	return dest, nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			return fmt.Errorf("unsupported file type: %s", path)
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
