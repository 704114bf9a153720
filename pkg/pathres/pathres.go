// Package pathres validates the path and file-descriptor arguments a
// caller hands to the launcher's mount directives before any side
// effect runs: every FD must still be open (F_GETFD), and every
// destination paired with an FD must be absolute.
package pathres

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ValidFd probes fd with fcntl(F_GETFD), returning the same fd if it
// is open and an error otherwise. Doing this before any side effect
// means a bad --bind-fd/--file argument is rejected as a ConfigError,
// not discovered mid-mount.
func ValidFd(fd int) (int, error) {
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
		return -1, errors.Wrapf(err, "invalid file descriptor (%d)", fd)
	}
	return fd, nil
}

// RequireAbs rejects a relative destination path paired with an FD
// argument -- the fd has no directory of its own to resolve a relative
// path against.
func RequireAbs(path string) error {
	if !filepath.IsAbs(path) {
		return errors.Errorf("path %q must be absolute", path)
	}
	return nil
}

// IsSymlink reports whether path is a symlink, without following it.
func IsSymlink(path string) (bool, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return false, err
	}
	return fi.Mode()&os.ModeSymlink != 0, nil
}

// ResolveFdPath returns the /proc/self/fd/<n> path used to bind-mount
// an already-open file descriptor by path.
func ResolveFdPath(fd int) string {
	return filepath.Join("/proc/self/fd", strconv.Itoa(fd))
}
