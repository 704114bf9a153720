// Package jail implements the twelve-step sequence the cloned sandboxed
// task runs between waking from its C4 notifier wait and handing control
// to the target program: re-establish process context inside the new
// namespaces, apply the mount plan, and pivot into a freshly built root.
package jail

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/nestybox/sysbox-libs/enclave/internal/hardener"
	"github.com/nestybox/sysbox-libs/enclave/internal/mountplan"
	"github.com/nestybox/sysbox-libs/enclave/internal/privsep"
	"github.com/nestybox/sysbox-libs/enclave/internal/procctx"
	"github.com/nestybox/sysbox-libs/enclave/internal/report"
	"github.com/nestybox/sysbox-libs/enclave/pkg/capability"
	"github.com/nestybox/sysbox-libs/enclave/pkg/mountutil"
)

const (
	newRootMode = 0o755
	oldRootMode = 0o755
)

// Config carries everything the in-child sequence needs. It is built by
// the caller (the jailer's child entry point) from already-resolved,
// already-validated data -- Run does no flag parsing of its own.
type Config struct {
	// Base is the directory the new root is built under (default /tmp,
	// see the --base flag).
	Base string

	// NewUserNS is true when the clone requested CLONE_NEWUSER: step 2
	// drops all Bounding capabilities only in that case, since without a
	// user namespace the dropped capabilities could never be regained by
	// the real root the launcher may still need outside the namespace.
	NewUserNS bool

	// Setuid is true when PrivilegeLevel is Setuid: the mount plan is
	// relayed to a privsep supervisor instead of executed directly.
	Setuid bool

	// Plan is the fully built mount plan (C7) to apply before the root
	// is pivoted.
	Plan mountplan.Plan

	// NewRootPath and OldRootPath are the full paths of the newroot/
	// oldroot directories the pivot builds under Base, pre-rendered by
	// the caller before the clone, so prepare builds neither path
	// itself and hands these strings straight to unix.Mkdir and the
	// pivot.
	NewRootPath string
	OldRootPath string

	// Chdir, if non-empty, is resolved inside the new root immediately
	// before the final exec (the --chdir flag).
	Chdir string

	// Argv/Envp describe the target program to exec in the final step.
	// Argv[0] is the executable path.
	Argv []string
	Envp []string
}

// Run executes the full C10 sequence. On success it execs the target and
// never returns. On failure it reports the cause through writer (if
// non-nil) and returns the same error, leaving the exit decision to the
// caller -- mirroring the "report via C5 before exiting non-zero"
// contract from the design notes.
func Run(cfg Config, writer *report.ChildErrorWriter) error {
	if err := prepare(cfg); err != nil {
		if writer != nil {
			_ = writer.ReportError(err.Error())
		}
		return err
	}

	// execTarget only returns at all when the exec itself failed -- a
	// successful execve replaces this process image and never returns.
	err := execTarget(cfg)
	if writer != nil {
		_ = writer.ReportError(err.Error())
	}
	return err
}

// prepare runs steps 1 through 11: everything up to (but not including)
// the final exec.
func prepare(cfg Config) error {
	if err := procctx.ReinitMinimal(); err != nil {
		return errors.Wrap(err, "re-initializing process context inside new namespaces")
	}

	if cfg.NewUserNS {
		if err := capability.DropAllBounding(); err != nil {
			return errors.Wrap(err, "dropping bounding capabilities before jail setup")
		}
	}

	if err := applyMountPlan(cfg); err != nil {
		return err
	}

	if err := hardener.MountSlaveRecursive(cfg.Base); err != nil {
		return err
	}

	if err := hardener.MountTmpfs(cfg.Base); err != nil {
		return err
	}
	if mounted, err := mountutil.IsMountPoint(cfg.Base); err != nil {
		return errors.Wrapf(err, "verifying %s became a mount point", cfg.Base)
	} else if !mounted {
		return errors.Errorf("tmpfs mount at %s did not take effect", cfg.Base)
	}
	if err := hardener.Chdir(cfg.Base); err != nil {
		return err
	}

	if err := unix.Mkdir(cfg.NewRootPath, newRootMode); err != nil {
		return errors.Wrapf(err, "creating %s", cfg.NewRootPath)
	}
	if err := hardener.BindSelf(cfg.NewRootPath); err != nil {
		return err
	}

	if err := unix.Mkdir(cfg.OldRootPath, oldRootMode); err != nil {
		return errors.Wrapf(err, "creating %s", cfg.OldRootPath)
	}

	if err := hardener.PivotRoot(cfg.Base, cfg.OldRootPath); err != nil {
		return err
	}
	if err := hardener.Chdir("/"); err != nil {
		return err
	}

	pivotedOldRoot := "/oldroot"
	if err := hardener.MakePrivateRecursive(pivotedOldRoot); err != nil {
		return err
	}
	if err := hardener.UnmountDetach(pivotedOldRoot); err != nil {
		return err
	}

	return finishPivot()
}

// applyMountPlan runs the user-directive mount plan: directly, or --
// under the setuid path -- relayed to a privileged privsep supervisor
// while the relaying worker has already shed its own effective
// capabilities. Only the mount plan is split this way; the rest of the
// sequence runs in the calling process.
func applyMountPlan(cfg Config) error {
	if !cfg.Setuid {
		return mountplan.Execute(cfg.Plan)
	}

	return privsep.Fork(
		func(w privsep.Worker) error {
			defer w.Close()

			if err := capability.ClearUnprivileged(); err != nil {
				return errors.Wrap(err, "dropping worker capabilities before relaying mount plan")
			}

			for _, cmd := range cfg.Plan {
				if err := w.Send(cmd); err != nil {
					return errors.Wrapf(err, "relaying %s to supervisor", cmd)
				}
			}
			return nil
		},
		func(s privsep.Supervisor) error {
			defer s.Close()
			return s.Listen(func(cmd mountplan.Command) error {
				return mountplan.Execute(mountplan.Plan{cmd})
			})
		},
	)
}

// finishPivot performs step 11: the pivot_root(".", ".") dance that
// stacks the detached old root underneath /newroot so it can be unmounted
// from a path outside of it, leaving only /newroot's content visible at
// "/".
func finishPivot() error {
	savedRootFd, err := hardener.OpenDir("/")
	if err != nil {
		return err
	}
	defer unix.Close(savedRootFd)

	if err := hardener.Chdir("/newroot"); err != nil {
		return err
	}
	if err := hardener.PivotRoot(".", "."); err != nil {
		return err
	}
	if err := hardener.Fchdir(savedRootFd); err != nil {
		return err
	}
	if err := hardener.UnmountDetach("."); err != nil {
		return err
	}
	return hardener.Chdir("/")
}

// execTarget performs step 12: exec the target program. A failure here
// is always fatal -- there is no fallback path once the root has already
// been pivoted.
func execTarget(cfg Config) error {
	if len(cfg.Argv) == 0 {
		return errors.New("jail: no target program to exec")
	}

	if cfg.Chdir != "" {
		if err := hardener.Chdir(cfg.Chdir); err != nil {
			return errors.Wrapf(err, "--chdir %s", cfg.Chdir)
		}
	}

	path := cfg.Argv[0]
	if err := unix.Exec(path, cfg.Argv, cfg.Envp); err != nil {
		return errors.Wrapf(err, "exec(%s)", path)
	}
	return nil
}
