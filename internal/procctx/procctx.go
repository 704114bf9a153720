// Package procctx snapshots the real/effective identity of the calling
// process once at startup and classifies its privilege level. Nothing
// downstream re-reads uid/gid/capability state; everyone reads the
// cached snapshot through Current.
package procctx

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/nestybox/sysbox-libs/enclave/pkg/capability"
)

// PrivilegeLevel classifies how the running binary arrived at its
// current identity.
type PrivilegeLevel int

const (
	// Root is a process that was invoked with ruid == euid == 0.
	Root PrivilegeLevel = iota
	// Rootless is a process with a non-zero euid and no permitted
	// capabilities beyond what an unprivileged task always has.
	Rootless
	// Setuid is a process invoked by a non-root real uid but running
	// with an effective uid of 0 via the setuid bit.
	Setuid
	// RootlessWithCapabilities denotes a non-root euid process that
	// nonetheless holds permitted capabilities (e.g. via file
	// capabilities). This combination is rejected: see Init.
	RootlessWithCapabilities
)

func (l PrivilegeLevel) String() string {
	switch l {
	case Root:
		return "root"
	case Rootless:
		return "rootless"
	case Setuid:
		return "setuid"
	case RootlessWithCapabilities:
		return "rootless-with-capabilities"
	default:
		return "unknown"
	}
}

// Context is the immutable identity snapshot of the calling process,
// captured once at startup.
type Context struct {
	Ruid        int
	Euid        int
	Gid         int
	Level       PrivilegeLevel
	OverflowUid int
	OverflowGid int
}

const (
	overflowUidPath = "/proc/sys/kernel/overflowuid"
	overflowGidPath = "/proc/sys/kernel/overflowgid"
)

var (
	once    sync.Once
	current Context
	initErr error
)

// Init captures the process-wide Context. It is idempotent: only the
// first call does any work, later calls return the same error (nil on
// success). internal/enclosure's New calls it and returns a non-nil
// result as its own error.
func Init() error {
	once.Do(func() {
		current, initErr = build()
	})
	return initErr
}

// Reinit rebuilds the Context unconditionally, bypassing the Init guard.
// A process that clones into new namespaces (new uid/gid mappings, a new
// mount namespace, ...) must call this once it is running inside them --
// the snapshot taken before clone no longer reflects reality, and Init's
// sync.Once would otherwise silently keep serving the stale one.
//
// Reinit is for ordinary, fully-running-Go-runtime contexts. It is not
// safe to call from the jailed child's prep sequence between clone(2)
// and exec(2): build() opens a file and runs it through bufio/strconv,
// and its rootless branch pulls in a full capability.Current() snapshot
// -- all of it real allocation and real syscalls that may block, none
// of it safe in a task that was raw-cloned without CLONE_VM and so has
// none of the other OS threads the Go runtime normally relies on. Use
// ReinitMinimal there instead.
func Reinit() error {
	current, initErr = build()
	return initErr
}

// errUnsupportedIdentity is allocated once at package init so
// ReinitMinimal's failure path never allocates.
var errUnsupportedIdentity = errors.New("procctx: unsupported identity after entering new namespaces (non-root euid with ruid != euid)")

// ReinitMinimal re-validates ruid/euid consistency after a clone into
// new namespaces, using only unix.Getuid/unix.Geteuid -- no file reads,
// no capability snapshot, no allocation on the success path. It does
// not update the Context returned by Current: nothing downstream reads
// that snapshot inside the jailed child (the Id-Map Writer already
// consumed OverflowUid/OverflowGid from the pre-clone snapshot), so the
// only thing worth re-checking here, under the allocation/syscall
// discipline internal/jail's prep sequence requires, is the same
// fatal-mismatch condition classify checks for a plain build().
func ReinitMinimal() error {
	euid := unix.Geteuid()
	if euid == 0 {
		return nil
	}
	if unix.Getuid() != euid {
		return errUnsupportedIdentity
	}
	return nil
}

// Current returns the Context captured by Init. Callers must not invoke
// Current before a successful call to Init; doing so returns the zero
// Context, which is indistinguishable from a (bogus) fully-root
// snapshot, so this is treated as a programming error rather than
// something to recover from at the call site.
func Current() Context {
	return current
}

func build() (Context, error) {
	ruid := os.Getuid()
	euid := os.Geteuid()
	gid := os.Getgid()

	overflowUid, err := readOverflowID(overflowUidPath)
	if err != nil {
		return Context{}, errors.Wrap(err, "reading overflow uid")
	}

	overflowGid, err := readOverflowID(overflowGidPath)
	if err != nil {
		return Context{}, errors.Wrap(err, "reading overflow gid")
	}

	level, err := classify(ruid, euid)
	if err != nil {
		return Context{}, err
	}

	return Context{
		Ruid:        ruid,
		Euid:        euid,
		Gid:         gid,
		Level:       level,
		OverflowUid: overflowUid,
		OverflowGid: overflowGid,
	}, nil
}

func readOverflowID(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, err
		}
		return 0, errors.Errorf("%s is empty", path)
	}

	n, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %s", path)
	}
	return n, nil
}

// classify derives a PrivilegeLevel from (ruid, euid) and the calling
// task's permitted capability set. A non-zero euid with ruid != euid
// that is not the setuid pattern, or a rootless process that somehow
// holds permitted capabilities, is fatal: this binary only supports
// running as root, as a setuid-root binary, or as a plain unprivileged
// process.
func classify(ruid, euid int) (PrivilegeLevel, error) {
	if euid == 0 {
		if ruid == euid {
			return Root, nil
		}
		return Setuid, nil
	}

	if ruid != euid {
		return 0, errors.Errorf("unsupported identity: ruid=%d euid=%d (non-root euid with ruid != euid is only valid for setuid-root binaries)", ruid, euid)
	}

	snapshot, err := capability.Current()
	if err != nil {
		return 0, errors.Wrap(err, "reading capability snapshot to classify privilege level")
	}

	if snapshot.Permitted.Cardinality() > 0 {
		return RootlessWithCapabilities, errors.Errorf("unsupported identity: euid=%d holds permitted capabilities %v; file-capability rootless execution is not supported", euid, snapshot.Permitted)
	}

	return Rootless, nil
}
