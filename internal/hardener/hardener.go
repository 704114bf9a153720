// Package hardener wraps the handful of privileged syscalls the jail
// preparation sequence needs -- mount, pivot_root, umount2, fchdir,
// prctl(NO_NEW_PRIVS), setfsuid -- each as a thin, contract-precise
// function with no hidden retries or fallbacks.
package hardener

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ApplyNoNewPrivs sets PR_SET_NO_NEW_PRIVS, permanently preventing the
// calling task and its descendants from gaining privileges through
// execve. Fatal on failure: there is no degraded mode.
func ApplyNoNewPrivs() error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return errors.Wrap(err, "setting PR_SET_NO_NEW_PRIVS")
	}
	return nil
}

// SetuidRestrictFs sets fsuid to target, then reads it back with
// setfsuid(-1) and fails if the kernel did not honor the request (e.g.
// because the caller lacked CAP_SETUID).
func SetuidRestrictFs(target int) error {
	unix.Setfsuid(target)
	current := unix.Setfsuid(-1)
	if current != target {
		return errors.Errorf("fsuid: failed to set fsuid to %d (current fsuid is %d)", target, current)
	}
	return nil
}

// MountSlaveRecursive recursively marks base as a mount propagation
// slave, preventing mount/unmount events in the new namespace from
// propagating back to the host.
func MountSlaveRecursive(base string) error {
	if err := unix.Mount("", base, "", unix.MS_REC|unix.MS_SLAVE|unix.MS_SILENT, ""); err != nil {
		return errors.Wrapf(err, "marking %s mount propagation slave", base)
	}
	return nil
}

// MountTmpfs mounts a NODEV|NOSUID tmpfs at base.
func MountTmpfs(base string) error {
	if err := unix.Mount("tmpfs", base, "tmpfs", unix.MS_NODEV|unix.MS_NOSUID, ""); err != nil {
		return errors.Wrapf(err, "mounting tmpfs at %s", base)
	}
	return nil
}

// BindSelf recursively bind-mounts src onto itself, the usual first
// step before pivot_root requires its target to be a mount point.
func BindSelf(src string) error {
	if err := unix.Mount(src, src, "", unix.MS_BIND|unix.MS_REC|unix.MS_SILENT, ""); err != nil {
		return errors.Wrapf(err, "bind-mounting %s onto itself", src)
	}
	return nil
}

// PivotRoot swaps the calling task's root filesystem to new, stashing
// the previous root at putOld (which must be a subdirectory of new).
func PivotRoot(newRoot, putOld string) error {
	if err := unix.PivotRoot(newRoot, putOld); err != nil {
		return errors.Wrapf(err, "pivot_root(%s, %s)", newRoot, putOld)
	}
	return nil
}

// Chdir changes the calling task's working directory.
func Chdir(path string) error {
	if err := unix.Chdir(path); err != nil {
		return errors.Wrapf(err, "chdir(%s)", path)
	}
	return nil
}

// Fchdir changes the calling task's working directory to the directory
// referenced by fd.
func Fchdir(fd int) error {
	if err := unix.Fchdir(fd); err != nil {
		return errors.Wrap(err, "fchdir")
	}
	return nil
}

// Remount re-mounts the filesystem at path with flags, e.g. adding
// MS_RDONLY.
func Remount(path string, flags uintptr) error {
	if err := unix.Mount(path, path, "", flags|unix.MS_REMOUNT, ""); err != nil {
		return errors.Wrapf(err, "remount(%s, %#x)", path, flags)
	}
	return nil
}

// MakePrivateRecursive recursively marks path as a propagation-private
// mount point, severing it from its peer group before it is lazily
// unmounted -- used on the old root once pivot_root has stashed it
// underneath the new one.
func MakePrivateRecursive(path string) error {
	if err := unix.Mount("", path, "", unix.MS_REC|unix.MS_PRIVATE|unix.MS_SILENT, ""); err != nil {
		return errors.Wrapf(err, "marking %s mount propagation private", path)
	}
	return nil
}

// OpenDir opens path as an O_DIRECTORY|O_RDONLY|O_CLOEXEC descriptor, for
// the saved-root-fd step of the pivot_root(".", ".") dance.
func OpenDir(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_DIRECTORY|unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, errors.Wrapf(err, "opening %s as a directory", path)
	}
	return fd, nil
}

// UnmountDetach performs a lazy (MNT_DETACH) unmount of target.
func UnmountDetach(target string) error {
	if err := unix.Unmount(target, unix.MNT_DETACH); err != nil {
		return errors.Wrapf(err, "umount2(%s, MNT_DETACH)", target)
	}
	return nil
}
