// Package checks probes which namespace kinds and clone flags the
// running kernel actually supports, so the launcher can fail fast on an
// unsupported host instead of discovering it mid-clone.
package checks

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// NamespaceKind names one of the /proc/self/ns/* entries.
type NamespaceKind string

const (
	Cgroup NamespaceKind = "cgroup"
	IPC    NamespaceKind = "ipc"
	Net    NamespaceKind = "net"
	Mount  NamespaceKind = "mnt"
	PID    NamespaceKind = "pid"
	User   NamespaceKind = "user"
	UTS    NamespaceKind = "uts"
	Time   NamespaceKind = "time"
)

// NamespaceSupported reports whether the kernel exposes the given
// namespace kind under /proc/self/ns.
func NamespaceSupported(kind NamespaceKind) bool {
	_, err := os.Stat("/proc/self/ns/" + string(kind))
	return err == nil
}

// CloneFlagSupported reports whether a given unix.CLONE_* flag can be
// requested on this kernel. Namespace flags defer to NamespaceSupported;
// CLONE_FILES, CLONE_FS and CLONE_SYSVSEM have been supported since
// kernels old enough that this module does not target anything older,
// so they report true unconditionally.
func CloneFlagSupported(flag uintptr) bool {
	switch flag {
	case unix.CLONE_FILES, unix.CLONE_FS:
		return true
	case unix.CLONE_SYSVSEM:
		return true
	case unix.CLONE_NEWCGROUP:
		return NamespaceSupported(Cgroup)
	case unix.CLONE_NEWIPC:
		return NamespaceSupported(IPC)
	case unix.CLONE_NEWNET:
		return NamespaceSupported(Net)
	case unix.CLONE_NEWNS:
		return NamespaceSupported(Mount)
	case unix.CLONE_NEWPID:
		return NamespaceSupported(PID)
	case unix.CLONE_NEWUSER:
		return NamespaceSupported(User)
	case unix.CLONE_NEWUTS:
		return NamespaceSupported(UTS)
	case unix.CLONE_NEWTIME:
		return NamespaceSupported(Time)
	default:
		return false
	}
}

// KernelRelease returns the running kernel's release string, e.g. "6.5.0".
func KernelRelease() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", errors.Wrap(err, "uname")
	}
	n := bytes.IndexByte(uts.Release[:], 0)
	if n < 0 {
		n = len(uts.Release)
	}
	return string(uts.Release[:n]), nil
}

// KernelAtLeast reports whether the running kernel's major.minor is
// greater than or equal to the given major.minor.
func KernelAtLeast(major, minor int) (bool, error) {
	release, err := KernelRelease()
	if err != nil {
		return false, err
	}

	curMajor, curMinor, err := parseRelease(release)
	if err != nil {
		return false, errors.Wrapf(err, "parsing kernel release %q", release)
	}

	if curMajor != major {
		return curMajor > major, nil
	}
	return curMinor >= minor, nil
}

func parseRelease(release string) (int, int, error) {
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected kernel release format %q", release)
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}

	minor, err := strconv.Atoi(onlyDigits(parts[1]))
	if err != nil {
		return 0, 0, err
	}

	return major, minor, nil
}

func onlyDigits(s string) string {
	for i, r := range s {
		if r < '0' || r > '9' {
			return s[:i]
		}
	}
	return s
}

// CgroupsSupported reports whether the kernel was built with cgroup
// namespace support.
func CgroupsSupported() bool {
	return NamespaceSupported(Cgroup)
}
