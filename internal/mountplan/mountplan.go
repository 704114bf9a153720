// Package mountplan models the declarative filesystem-setup plan
// derived from user directives: a deterministically ordered list of
// mount, file and system operations that either the jailed child or
// the privileged supervisor executes verbatim. Plan construction is
// pure data -- no I/O happens until Execute runs.
package mountplan

import "fmt"

// OverlayMode selects whether an overlay mount is mounted read-only or
// read-write.
type OverlayMode int

const (
	OverlayReadOnly OverlayMode = iota
	OverlayReadWrite
)

// MountOp is one of the mount-syscall-backed operations: Bind, Overlay
// or Special.
type MountOp interface {
	isMountOp()
	fmt.Stringer
}

// Bind is a bind mount from src to dst, optionally read-only and with
// device nodes enabled.
type Bind struct {
	Src      string
	Dst      string
	ReadOnly bool
	MountDev bool
}

func (Bind) isMountOp() {}
func (b Bind) String() string {
	return fmt.Sprintf("bind(%s -> %s, ro=%v, dev=%v)", b.Src, b.Dst, b.ReadOnly, b.MountDev)
}

// Overlay is an overlayfs mount combining lower (and optionally upper
// and work) directories at Target.
type Overlay struct {
	Lower  []string
	Upper  string
	Work   string
	Target string
	Mode   OverlayMode
}

func (Overlay) isMountOp() {}
func (o Overlay) String() string {
	return fmt.Sprintf("overlay(lower=%v upper=%q work=%q -> %s)", o.Lower, o.Upper, o.Work, o.Target)
}

// SpecialKind names one of the pseudo-filesystem mounts.
type SpecialKind int

const (
	SpecialProc SpecialKind = iota
	SpecialDev
	SpecialTmpfs
	SpecialMqueue
	SpecialOverlaySource
)

// Special covers the pseudo-filesystem and helper mounts: proc, dev,
// tmpfs (with optional size/mode), mqueue, and an overlay source mount
// used internally to stage lower/upper/work directories.
type Special struct {
	Kind      SpecialKind
	Target    string
	SizeKb    int
	Mode      uint32
	HasSizeKb bool
	HasMode   bool
	Lower     string
	Upper     string
	Work      string
}

func (Special) isMountOp() {}
func (s Special) String() string {
	return fmt.Sprintf("special(%d @ %s)", s.Kind, s.Target)
}

// FileOp is one of the plain filesystem operations that do not go
// through mount(2): creating a directory, a file, a bind-mounted file,
// a symlink, or remounting a path read-only.
type FileOp interface {
	isFileOp()
	fmt.Stringer
}

type CreateDir struct {
	Path string
	Mode uint32
}

func (CreateDir) isFileOp()        {}
func (c CreateDir) String() string { return fmt.Sprintf("mkdir(%s, %#o)", c.Path, c.Mode) }

// CreateFile creates an empty file at Dst with mode 0644. Fd and Mode
// are carried through the plan and the codec, but the executor does not
// read Fd's contents or permissions and does not apply Mode.
type CreateFile struct {
	Dst  string
	Fd   int
	Mode uint32
}

func (CreateFile) isFileOp()        {}
func (c CreateFile) String() string { return fmt.Sprintf("touch(%s)", c.Dst) }

type CreateBindFile struct {
	Src      string
	Dst      string
	ReadOnly bool
}

func (CreateBindFile) isFileOp() {}
func (c CreateBindFile) String() string {
	return fmt.Sprintf("bind-file(%s -> %s, ro=%v)", c.Src, c.Dst, c.ReadOnly)
}

type CreateSymlink struct {
	Link   string
	Target string
}

func (CreateSymlink) isFileOp() {}
func (c CreateSymlink) String() string {
	return fmt.Sprintf("symlink(%s -> %s)", c.Link, c.Target)
}

type RemountReadOnly struct {
	Path string
}

func (RemountReadOnly) isFileOp()        {}
func (r RemountReadOnly) String() string { return fmt.Sprintf("remount-ro(%s)", r.Path) }

// SystemOp is a non-mount, non-file system call: setting the hostname
// or chmod'ing a path.
type SystemOp interface {
	isSystemOp()
	fmt.Stringer
}

type SetHostname struct {
	Hostname string
}

func (SetHostname) isSystemOp()        {}
func (s SetHostname) String() string   { return fmt.Sprintf("sethostname(%s)", s.Hostname) }

type Chmod struct {
	Path string
	Mode uint32
}

func (Chmod) isSystemOp()        {}
func (c Chmod) String() string   { return fmt.Sprintf("chmod(%s, %#o)", c.Path, c.Mode) }

// Command is one entry in a Plan: exactly one of Mount, File or System
// is non-nil. This stands in for a closed sum type (Rust's
// MountCommand enum); Kind reports which field is populated.
type Command struct {
	Mount MountOp
	File  FileOp
	Sys   SystemOp
}

// Kind identifies the populated variant of a Command.
type Kind int

const (
	KindMount Kind = iota
	KindFile
	KindSystem
)

func (c Command) Kind() Kind {
	switch {
	case c.Mount != nil:
		return KindMount
	case c.File != nil:
		return KindFile
	default:
		return KindSystem
	}
}

func (c Command) String() string {
	switch c.Kind() {
	case KindMount:
		return c.Mount.String()
	case KindFile:
		return c.File.String()
	default:
		return c.Sys.String()
	}
}

func mountCmd(op MountOp) Command { return Command{Mount: op} }
func fileCmd(op FileOp) Command   { return Command{File: op} }
func sysCmd(op SystemOp) Command  { return Command{Sys: op} }

// Plan is the ordered sequence of commands a Builder produced.
type Plan []Command
