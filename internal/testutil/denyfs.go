// Package testutil holds filesystem doubles shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// DenyFs wraps an afero.Fs and fails every mutating call on a denied path
// (or anything below a denied directory) with os.ErrPermission. Reads pass
// through unless the path was also passed to DenyRead.
type DenyFs struct {
	afero.Fs

	mu         sync.Mutex
	denied     []string
	unreadable []string
}

func NewDenyFs(base afero.Fs, denied ...string) *DenyFs {
	d := &DenyFs{Fs: base}
	d.Deny(denied...)
	return d
}

// Deny adds paths to the deny list.
func (d *DenyFs) Deny(paths ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range paths {
		d.denied = append(d.denied, filepath.Clean(p))
	}
}

// DenyRead makes opening paths for reading fail as well.
func (d *DenyFs) DenyRead(paths ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range paths {
		d.unreadable = append(d.unreadable, filepath.Clean(p))
	}
}

// Allow clears both deny lists.
func (d *DenyFs) Allow() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.denied = nil
	d.unreadable = nil
}

func (d *DenyFs) isDenied(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return under(d.denied, name)
}

func (d *DenyFs) isUnreadable(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return under(d.unreadable, name)
}

func under(list []string, name string) bool {
	name = filepath.Clean(name)
	for _, p := range list {
		if name == p || strings.HasPrefix(name, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func denied(op, name string) error {
	return &os.PathError{Op: op, Path: name, Err: os.ErrPermission}
}

func (d *DenyFs) Name() string { return "DenyFs" }

func (d *DenyFs) Create(name string) (afero.File, error) {
	if d.isDenied(name) {
		return nil, denied("open", name)
	}
	return d.Fs.Create(name)
}

func (d *DenyFs) Mkdir(name string, perm os.FileMode) error {
	if d.isDenied(name) {
		return denied("mkdir", name)
	}
	return d.Fs.Mkdir(name, perm)
}

func (d *DenyFs) MkdirAll(name string, perm os.FileMode) error {
	if d.isDenied(name) {
		// an existing directory is not an error for MkdirAll
		if ok, _ := afero.DirExists(d.Fs, name); ok {
			return nil
		}
		return denied("mkdir", name)
	}
	return d.Fs.MkdirAll(name, perm)
}

func (d *DenyFs) Open(name string) (afero.File, error) {
	if d.isUnreadable(name) {
		return nil, denied("open", name)
	}
	return d.Fs.Open(name)
}

func (d *DenyFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 && d.isDenied(name) {
		return nil, denied("open", name)
	}
	if d.isUnreadable(name) {
		return nil, denied("open", name)
	}
	return d.Fs.OpenFile(name, flag, perm)
}

func (d *DenyFs) Remove(name string) error {
	if d.isDenied(name) {
		return denied("remove", name)
	}
	return d.Fs.Remove(name)
}

func (d *DenyFs) RemoveAll(name string) error {
	if d.isDenied(name) {
		return denied("remove", name)
	}
	return d.Fs.RemoveAll(name)
}

func (d *DenyFs) Rename(oldname, newname string) error {
	if d.isDenied(oldname) {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: os.ErrPermission}
	}
	if d.isDenied(newname) {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: os.ErrPermission}
	}
	return d.Fs.Rename(oldname, newname)
}

func (d *DenyFs) Chmod(name string, mode os.FileMode) error {
	if d.isDenied(name) {
		return denied("chmod", name)
	}
	return d.Fs.Chmod(name, mode)
}

func (d *DenyFs) Chown(name string, uid, gid int) error {
	if d.isDenied(name) {
		return denied("chown", name)
	}
	return d.Fs.Chown(name, uid, gid)
}

func (d *DenyFs) Chtimes(name string, atime, mtime time.Time) error {
	if d.isDenied(name) {
		return denied("chtimes", name)
	}
	return d.Fs.Chtimes(name, atime, mtime)
}
