// Package idmap writes uid_map, gid_map and setgroups for a target task
// through a pre-opened /proc/<pid> directory file descriptor, so the
// writer never has to re-resolve a path that could be raced out from
// under it.
package idmap

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"
)

// Flags tunes how the maps are emitted.
type Flags struct {
	// DenyGroups writes "deny" to setgroups before the gid_map write,
	// required by the kernel for an unprivileged user namespace to be
	// allowed to write an unprivileged gid_map.
	DenyGroups bool
	// MapRoot additionally maps container uid/gid 0 to the overflow
	// id, so that a sandboxed root can still be denied real root
	// privileges on the host.
	MapRoot bool
}

// Identity is the (uid, gid) pair of a task, real or sandboxed.
type Identity struct {
	Uid int
	Gid int
}

// Writer emits uid_map, gid_map and (optionally) setgroups for one
// target process, reached through procDirFd -- an O_PATH descriptor
// open on /proc/<pid> or /proc/self.
type Writer struct {
	procDirFd int
	sandbox   Identity
	real      Identity
	overflow  Identity
	flags     Flags
}

// OpenProcDir opens an O_PATH | O_DIRECTORY | O_CLOEXEC descriptor on
// /proc/<pid>, or /proc/self when pid <= 0.
func OpenProcDir(pid int) (int, error) {
	path := "/proc/self"
	if pid > 0 {
		path = "/proc/" + strconv.Itoa(pid)
	}
	fd, err := unix.Open(path, unix.O_PATH|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, errors.Wrapf(err, "opening %s as O_PATH directory", path)
	}
	return fd, nil
}

// OpenProcRoot opens an O_PATH | O_DIRECTORY | O_CLOEXEC descriptor on
// /proc itself, taken before a clone so that a per-pid subdirectory can
// later be resolved with OpenProcDirAt against this same filesystem
// instance rather than a freshly path-resolved "/proc".
func OpenProcRoot() (int, error) {
	fd, err := unix.Open("/proc", unix.O_PATH|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, errors.Wrap(err, "opening /proc as O_PATH directory")
	}
	return fd, nil
}

// OpenProcDirAt resolves "<pid>" relative to rootFd (as returned by
// OpenProcRoot), for use once a cloned child's pid is known.
func OpenProcDirAt(rootFd, pid int) (int, error) {
	name := strconv.Itoa(pid)
	fd, err := unix.Openat(rootFd, name, unix.O_PATH|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, errors.Wrapf(err, "opening %s relative to proc root", name)
	}
	return fd, nil
}

// NewWriter builds a Writer targeting the process behind procDirFd.
func NewWriter(procDirFd int, sandbox, real, overflow Identity, flags Flags) *Writer {
	return &Writer{
		procDirFd: procDirFd,
		sandbox:   sandbox,
		real:      real,
		overflow:  overflow,
		flags:     flags,
	}
}

// Write performs the full sequence: setgroups-deny (if requested), then
// uid_map, then gid_map. Order matters: the kernel requires setgroups
// to be written (or already denied) before an unprivileged process may
// write a gid_map containing anything other than its own gid.
func (w *Writer) Write() error {
	if w.flags.DenyGroups {
		if err := w.writeFile("setgroups", []byte("deny\n")); err != nil {
			return errors.Wrap(err, "writing setgroups")
		}
	}

	uidMap := w.renderMap(w.sandbox.Uid, w.real.Uid, w.overflow.Uid)
	if err := w.writeFile("uid_map", uidMap); err != nil {
		return errors.Wrap(err, "writing uid_map")
	}

	gidMap := w.renderMap(w.sandbox.Gid, w.real.Gid, w.overflow.Gid)
	if err := w.writeFile("gid_map", gidMap); err != nil {
		return errors.Wrap(err, "writing gid_map")
	}

	return nil
}

// renderMap builds the uid_map/gid_map contents for one (sandboxID,
// realID, overflowID) triple, following the normal and map-root rules
// from the id-map writer's contract.
func (w *Writer) renderMap(sandboxID, realID, overflowID int) []byte {
	if w.flags.MapRoot && realID != 0 && sandboxID != 0 {
		return []byte(fmt.Sprintf("0 %d 1\n%d %d 1\n", overflowID, sandboxID, realID))
	}
	return []byte(fmt.Sprintf("%d %d 1\n", sandboxID, realID))
}

// writeFile opens name relative to procDirFd and performs exactly one
// write, retried only when interrupted by a signal.
func (w *Writer) writeFile(name string, contents []byte) error {
	fd, err := unix.Openat(w.procDirFd, name, unix.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return errors.Wrapf(err, "opening %s", name)
	}
	defer unix.Close(fd)

	for {
		_, err := unix.Write(fd, contents)
		if err == nil {
			return nil
		}
		if err == unix.EINTR {
			continue
		}
		return errors.Wrapf(err, "writing %s", name)
	}
}

// Mapping renders a single Identity pairing as an
// specs.LinuxIDMapping triple, for callers (e.g. the runtime-spec-aware
// parts of the launcher) that want the structured form rather than the
// rendered text.
func Mapping(sandboxID, realID uint32) specs.LinuxIDMapping {
	return specs.LinuxIDMapping{
		ContainerID: sandboxID,
		HostID:      realID,
		Size:        1,
	}
}
