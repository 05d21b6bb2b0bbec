package cachemover

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"
)

// ErrCollision is returned when the target of a move already exists.
var ErrCollision = errors.New("target already exists")

// moveFile moves src to dst, creating dst's directory. An existing dst is a
// collision and is left alone. If rename fails due to a cross-device link it
// falls back to copy then delete.
func moveFile(fsys afero.Fs, src, dst string) error {
	if _, err := fsys.Stat(dst); err == nil {
		return fmt.Errorf("move %s: %w: %s", src, ErrCollision, dst)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("move %s: stat target: %w", src, err)
	}
	if err := fsys.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("move %s: mkdir target dir: %w", src, err)
	}

	err := fsys.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("move %s: %w", src, err)
	}

	if err := copyFile(fsys, src, dst); err != nil {
		return fmt.Errorf("move %s: copy fallback: %w", src, err)
	}
	if err := fsys.Remove(src); err != nil {
		_ = fsys.Remove(dst)
		return fmt.Errorf("move %s: remove src after copy: %w", src, err)
	}
	return nil
}

func copyFile(fsys afero.Fs, src, dst string) (err error) {
	sf, err := fsys.Open(src)
	if err != nil {
		return fmt.Errorf("open src: %w", err)
	}
	defer sf.Close()

	info, err := sf.Stat()
	if err != nil {
		return fmt.Errorf("stat src: %w", err)
	}

	df, err := fsys.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create dst: %w", err)
	}
	defer func() {
		if cerr := df.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			_ = fsys.Remove(dst)
		}
	}()

	if _, err := io.Copy(df, sf); err != nil {
		return fmt.Errorf("copy data: %w", err)
	}
	if err := df.Sync(); err != nil {
		return fmt.Errorf("sync dst: %w", err)
	}
	return nil
}
