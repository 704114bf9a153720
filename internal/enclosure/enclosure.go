// Package enclosure is the top-level orchestrator (C12): it derives the
// calling process's privilege level, applies that level's capability
// program, resolves the requested clone flags against what the kernel
// actually supports, and drives a Jailer through one spawn of the
// sandboxed task.
package enclosure

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/nestybox/sysbox-libs/enclave/internal/capprogram"
	"github.com/nestybox/sysbox-libs/enclave/internal/checks"
	"github.com/nestybox/sysbox-libs/enclave/internal/errkind"
	"github.com/nestybox/sysbox-libs/enclave/internal/hardener"
	"github.com/nestybox/sysbox-libs/enclave/internal/idmap"
	"github.com/nestybox/sysbox-libs/enclave/internal/jail"
	"github.com/nestybox/sysbox-libs/enclave/internal/jailer"
	"github.com/nestybox/sysbox-libs/enclave/internal/mountplan"
	"github.com/nestybox/sysbox-libs/enclave/internal/procctx"
	"github.com/nestybox/sysbox-libs/enclave/pkg/capability"
)

// Options is the fully-resolved request for one spawn: CLI parsing and
// validation (config errors) have already happened by the time an
// Options reaches Spawn.
type Options struct {
	UnshareAll                                                                bool
	UnshareIPC, UnsharePID, UnshareNet, UnshareUTS, UnshareCgroup, UnshareUser bool
	UnshareFiles, UnshareFS, UnshareNS, UnshareTime, UnshareSysvsem           bool

	UsernsFd        int
	HasUserns       bool
	SwitchUsernsFd  int
	HasSwitchUserns bool

	Uid, Gid       int
	HasUid, HasGid bool
	Hostname       string
	HasHostname    bool

	Base  string
	Plan  mountplan.Plan
	Chdir string

	Argv []string
	Envp []string
}

// Enclosure holds the identity snapshot and derived privilege level for
// one run of the launcher.
type Enclosure struct {
	ctx procctx.Context
}

// New captures the process context, applies the level-specific
// capability program from the table in the design, and sets
// NO_NEW_PRIVS. A RootlessWithCapabilities identity is refused here --
// procctx.Init itself fails with the canonical diagnostic for that case.
func New() (*Enclosure, error) {
	if err := procctx.Init(); err != nil {
		return nil, errkind.New(errkind.Privilege, err)
	}
	ctx := procctx.Current()

	if err := applyCapabilityProgram(ctx); err != nil {
		return nil, err
	}

	if err := hardener.ApplyNoNewPrivs(); err != nil {
		return nil, errkind.New(errkind.Privilege, err)
	}

	return &Enclosure{ctx: ctx}, nil
}

// applyCapabilityProgram runs the Root/Rootless/Setuid row of the
// capability-program table. RootlessWithCapabilities is unreachable here
// -- New never gets this far for that level.
func applyCapabilityProgram(ctx procctx.Context) error {
	switch ctx.Level {
	case procctx.Root, procctx.Rootless:
		return nil

	case procctx.Setuid:
		if err := hardener.SetuidRestrictFs(ctx.Ruid); err != nil {
			return errkind.New(errkind.Privilege, err)
		}
		m := capability.NewManager(capability.Program{
			ValidateAfter: true,
			Required:      capprogram.SetuidCapSet(),
		})
		if _, err := m.ConfigureWith(capprogram.ApplySetuid); err != nil {
			return errkind.New(errkind.Capability, err)
		}
		return nil

	default:
		return errkind.New(errkind.Privilege, errors.Errorf("unsupported privilege level %s", ctx.Level))
	}
}

// Spawn resolves clone flags, opens /proc for later id-map writes, joins
// a pre-existing user namespace if one was given, then builds and runs a
// Jailer. It returns the sandboxed task's exit code.
func (e *Enclosure) Spawn(o Options) (int, error) {
	flags := ResolveCloneFlags(o)

	procRootFd, err := idmap.OpenProcRoot()
	if err != nil {
		return -1, errkind.New(errkind.Environment, err)
	}
	defer unix.Close(procRootFd)

	if o.HasUserns {
		if err := unix.Setns(o.UsernsFd, unix.CLONE_NEWUSER); err != nil {
			return -1, errkind.New(errkind.Environment, errors.Wrap(err, "joining existing user namespace"))
		}
	}

	j, err := jailer.NewBuilder().Build()
	if err != nil {
		return -1, errkind.New(errkind.Clone, err)
	}

	plan := o.Plan
	if o.HasHostname {
		plan = append(plan, mountplan.Command{Sys: mountplan.SetHostname{Hostname: o.Hostname}})
	}

	cfg := jail.Config{
		Base:        o.Base,
		NewUserNS:   flags&unix.CLONE_NEWUSER != 0,
		Setuid:      e.ctx.Level == procctx.Setuid,
		Plan:        plan,
		NewRootPath: o.Base + "/newroot",
		OldRootPath: o.Base + "/oldroot",
		Chdir:       o.Chdir,
		Argv:        o.Argv,
		Envp:        o.Envp,
	}

	handle, err := j.SpawnBlocking(cfg, flags)
	if err != nil {
		return -1, errkind.New(errkind.Clone, err)
	}
	defer handle.Close()

	code, err := handle.Execute(func() error {
		return e.parentSetup(o, flags, procRootFd, handle)
	})
	if err != nil {
		return code, errkind.New(errkind.Wait, err)
	}
	return code, nil
}

// parentSetup implements the closure the design hands to Jailer.Execute:
// write id maps (setuid + user namespace only), optionally join a
// switch-userns fd, then shed what the parent itself no longer needs.
func (e *Enclosure) parentSetup(o Options, flags uintptr, procRootFd int, handle *jailer.JailHandle) error {
	if e.ctx.Level == procctx.Setuid && flags&unix.CLONE_NEWUSER != 0 {
		if err := e.writeIDMaps(o, procRootFd, handle.Pid()); err != nil {
			return err
		}
	}

	if o.HasSwitchUserns {
		if err := unix.Setns(o.SwitchUsernsFd, unix.CLONE_NEWUSER); err != nil {
			return errors.Wrap(err, "joining switch-userns")
		}
	}

	m := capability.NewManager(capability.Program{})
	if err := m.ClearUnprivileged(); err != nil {
		return errors.Wrap(err, "clearing parent capability sets")
	}

	return nil
}

func (e *Enclosure) writeIDMaps(o Options, procRootFd, childPid int) error {
	childProcFd, err := idmap.OpenProcDirAt(procRootFd, childPid)
	if err != nil {
		return errors.Wrap(err, "opening child proc directory for id-map write")
	}
	defer unix.Close(childProcFd)

	sandboxUid, sandboxGid := e.ctx.Ruid, e.ctx.Gid
	if o.HasUid {
		sandboxUid = o.Uid
	}
	if o.HasGid {
		sandboxGid = o.Gid
	}

	w := idmap.NewWriter(
		childProcFd,
		idmap.Identity{Uid: sandboxUid, Gid: sandboxGid},
		idmap.Identity{Uid: e.ctx.Ruid, Gid: e.ctx.Gid},
		idmap.Identity{Uid: e.ctx.OverflowUid, Gid: e.ctx.OverflowGid},
		idmap.Flags{DenyGroups: true, MapRoot: true},
	)
	return w.Write()
}

// cloneFlagCandidate pairs a requested-namespace bit from Options with
// the CLONE_* flag it maps to.
type cloneFlagCandidate struct {
	requested bool
	flag      uintptr
}

func candidates(o Options) []cloneFlagCandidate {
	return []cloneFlagCandidate{
		{o.UnshareIPC, unix.CLONE_NEWIPC},
		{o.UnsharePID, unix.CLONE_NEWPID},
		{o.UnshareNet, unix.CLONE_NEWNET},
		{o.UnshareUTS, unix.CLONE_NEWUTS},
		{o.UnshareCgroup, unix.CLONE_NEWCGROUP},
		{o.UnshareUser, unix.CLONE_NEWUSER},
		{o.UnshareFiles, unix.CLONE_FILES},
		{o.UnshareFS, unix.CLONE_FS},
		{o.UnshareNS, unix.CLONE_NEWNS},
		{o.UnshareTime, unix.CLONE_NEWTIME},
		{o.UnshareSysvsem, unix.CLONE_SYSVSEM},
	}
}

// ResolveCloneFlags implements the clone-flag resolution algorithm from
// the design: unshare_all selects every supported flag; an empty
// selection also defaults to every supported flag; otherwise the result
// is CLONE_NEWNS plus each requested flag the kernel supports.
func ResolveCloneFlags(o Options) uintptr {
	if o.UnshareAll {
		return AllCloneFlags()
	}

	var anyRequested bool
	for _, c := range candidates(o) {
		if c.requested {
			anyRequested = true
			break
		}
	}
	if !anyRequested {
		return AllCloneFlags()
	}

	flags := uintptr(unix.CLONE_NEWNS)
	for _, c := range candidates(o) {
		if c.requested && checks.CloneFlagSupported(c.flag) {
			flags |= c.flag
		}
	}
	return flags
}

// AllCloneFlags returns every namespace/clone flag this kernel supports,
// used both for --unshare-all and for the empty-selection default.
func AllCloneFlags() uintptr {
	all := []uintptr{
		unix.CLONE_NEWIPC, unix.CLONE_NEWPID, unix.CLONE_NEWNET, unix.CLONE_NEWUTS,
		unix.CLONE_NEWCGROUP, unix.CLONE_NEWUSER, unix.CLONE_FILES, unix.CLONE_FS,
		unix.CLONE_NEWNS, unix.CLONE_NEWTIME, unix.CLONE_SYSVSEM,
	}

	var flags uintptr
	for _, f := range all {
		if checks.CloneFlagSupported(f) {
			flags |= f
		}
	}
	return flags
}
