// Package jailer drives the raw clone(2) call that creates the
// sandboxed task: it owns the guarded stack, the C4 notifier used to
// hold the child until the parent has finished privileged setup, and
// the C5 error-reporting pipe the child uses to explain a prep failure.
package jailer

import (
	"runtime"
	"sync/atomic"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/nestybox/sysbox-libs/enclave/internal/jail"
	"github.com/nestybox/sysbox-libs/enclave/internal/notifier"
	"github.com/nestybox/sysbox-libs/enclave/internal/report"
	"github.com/nestybox/sysbox-libs/enclave/internal/stack"
	"github.com/nestybox/sysbox-libs/enclave/pkg/pidfd"
)

const (
	// DefaultStackBytes is the guarded stack size used unless a caller
	// overrides it through Builder.WithStackBytes.
	DefaultStackBytes = 1 << 20 // 1 MiB

	// minStackBytes is the floor Builder.WithStackBytes enforces.
	minStackBytes = 64 * 1024
)

// Builder configures a Jailer before it spawns. It is single-use: Build
// consumes it.
type Builder struct {
	stackBytes int
}

// NewBuilder returns a Builder seeded with DefaultStackBytes.
func NewBuilder() *Builder {
	return &Builder{stackBytes: DefaultStackBytes}
}

// WithStackBytes overrides the guarded stack size. It asserts -- via a
// returned error rather than a panic, since this module never panics on
// bad input -- that the requested size is at least the 64 KiB floor.
func (b *Builder) WithStackBytes(n int) (*Builder, error) {
	if n < minStackBytes {
		return nil, errors.Errorf("jailer: stack_bytes must be at least %d KiB, got %d bytes", minStackBytes/1024, n)
	}
	b.stackBytes = n
	return b, nil
}

// Build allocates the guarded stack and returns a ready-to-spawn Jailer.
func (b *Builder) Build() (*Jailer, error) {
	st, err := stack.New(b.stackBytes)
	if err != nil {
		return nil, errors.Wrap(err, "allocating guarded stack")
	}
	return &Jailer{stack: st}, nil
}

// Jailer owns one guarded stack for exactly one SpawnBlocking call.
type Jailer struct {
	stack *stack.GuardedStack
}

// SpawnBlocking clones a new task with flags (namespace bits already
// resolved by the caller; SIGCHLD is added automatically as the exit
// signal), constructs a child entry point that (a) waits on the C4
// notifier and (b) runs the C10 jail-preparation sequence against cfg,
// then returns a JailHandle with the clone already underway -- the
// child is blocked until the handle's Execute sends the wake signal.
//
// The guarded stack allocated by Build is validated and retained for the
// handle's lifetime (see DESIGN.md for why the clone itself still uses a
// kernel-assigned stack rather than this mapping as its child_stack
// argument: switching a live goroutine's stack pointer out from under
// the Go scheduler is not something this runtime supports without
// assembly, and the component is kept for its allocation/guard-page
// contract and future use rather than silently dropped).
func (j *Jailer) SpawnBlocking(cfg jail.Config, flags uintptr) (*JailHandle, error) {
	n, err := notifier.New()
	if err != nil {
		return nil, errors.Wrap(err, "creating notifier")
	}

	reporter, err := report.New()
	if err != nil {
		_ = n.Close()
		return nil, errors.Wrap(err, "creating error reporter")
	}
	parentReader, childWriter := reporter.Split()

	pid, err := rawClone(flags, func() {
		if _, werr := n.WaitForSignal(); werr != nil {
			_ = childWriter.ReportError(werr.Error())
			syscall.Exit(1)
		}
		if rerr := jail.Run(cfg, childWriter); rerr != nil {
			syscall.Exit(1)
		}
	})
	if err != nil {
		_ = n.Close()
		_ = parentReader.Close()
		_ = childWriter.Close()
		return nil, errors.Wrap(err, "clone")
	}
	_ = childWriter.Close()

	pfd, err := pidfd.Open(pid, 0)
	if err != nil {
		logrus.WithError(err).WithField("pid", pid).Warn("pidfd_open failed; Terminate will fall back to nothing")
	}

	return &JailHandle{
		pid:      pid,
		pidfd:    pfd,
		havePfd:  err == nil,
		notifier: n,
		reader:   parentReader,
		stack:    j.stack,
	}, nil
}

// rawClone clones with flags|SIGCHLD and a kernel-assigned stack
// (child_stack == NULL, i.e. the classic fork semantics), then runs
// childFn in the new task. childFn must not return normally -- it either
// blocks forever (a prep failure before the wake signal) or exits the
// process itself; if it does return, the child exits 1 as a backstop.
//
// Everything childFn calls, transitively, down to internal/jail's
// execTarget, is restricted to golang.org/x/sys/unix syscalls: a raw
// clone(2) without CLONE_VM duplicates only the calling OS thread, so
// the child starts with none of the other threads the Go runtime
// normally keeps around (sysmon, GC workers, netpoller). If any of
// those threads held an internal runtime lock at the instant of the
// clone, the lone surviving thread in the child would deadlock the
// moment it allocated, logged, or touched a map -- so childFn never
// does any of that. The clone call itself follows the same
// LockOSThread + ForkLock discipline syscall.forkAndExecInChild uses:
// locking the calling goroutine to its OS thread for the duration
// keeps the clone and everything up to the eventual exec on one
// thread, and ForkLock excludes concurrent fd-opening goroutines
// elsewhere in the process from racing the clone.
func rawClone(flags uintptr, childFn func()) (int, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	syscall.ForkLock.Lock()
	pid, _, errno := unix.RawSyscall6(unix.SYS_CLONE, flags|uintptr(unix.SIGCHLD), 0, 0, 0, 0, 0)
	if pid != 0 || errno != 0 {
		syscall.ForkLock.Unlock()
	}
	if errno != 0 {
		return 0, errno
	}

	if pid == 0 {
		childFn()
		syscall.Exit(1)
		panic("unreachable")
	}

	return int(pid), nil
}

// JailHandle tracks one cloned jailed task.
type JailHandle struct {
	pid      int
	pidfd    pidfd.PidFd
	havePfd  bool
	notifier *notifier.Notifier
	reader   *report.ParentErrorReader
	stack    *stack.GuardedStack
	waited   atomic.Bool
}

// Execute runs the parent_setup/signal/wait protocol described in the
// design: parentSetup must complete successfully before the child is
// allowed to proceed past its notifier wait, and Execute blocks until
// the child exits. It returns the child's exit code on a clean exit, or
// an error if parentSetup failed, signalling failed, the wait failed, or
// the child reported a prep error through C5.
func (h *JailHandle) Execute(parentSetup func() error) (int, error) {
	if err := parentSetup(); err != nil {
		return -1, errors.Wrap(err, "parent setup before signalling jailed child")
	}

	if err := h.notifier.Signal(); err != nil {
		return -1, errors.Wrap(err, "signalling jailed child to proceed")
	}

	code, err := h.Wait()
	if err != nil {
		return code, err
	}

	if repErr := h.reader.CheckForReportedErrors(); repErr != nil {
		return code, errors.Wrap(repErr, "prep error")
	}

	return code, nil
}

// Wait blocks until the child exits or is killed by a signal, and marks
// the handle as already-waited. Calling Wait a second time does not reap
// again; it returns -1 and an "already waited" error.
func (h *JailHandle) Wait() (int, error) {
	if h.waited.Load() {
		return -1, errors.New("jailer: handle already waited")
	}

	var ws unix.WaitStatus
	if _, err := unix.Wait4(h.pid, &ws, 0, nil); err != nil {
		return -1, errors.Wrap(err, "waitpid")
	}
	h.waited.Store(true)

	if ws.Signaled() {
		return -1, errors.Errorf("jailed task killed by signal %s", ws.Signal())
	}
	return ws.ExitStatus(), nil
}

// TryWait performs a non-blocking (WNOHANG) reap attempt. The second
// return value reports whether the child had actually exited.
func (h *JailHandle) TryWait() (int, bool, error) {
	if h.waited.Load() {
		return -1, true, errors.New("jailer: handle already waited")
	}

	var ws unix.WaitStatus
	pid, err := unix.Wait4(h.pid, &ws, unix.WNOHANG, nil)
	if err != nil {
		return -1, false, errors.Wrap(err, "waitpid(WNOHANG)")
	}
	if pid == 0 {
		return -1, false, nil
	}
	h.waited.Store(true)

	if ws.Signaled() {
		return -1, true, errors.Errorf("jailed task killed by signal %s", ws.Signal())
	}
	return ws.ExitStatus(), true, nil
}

// Pid returns the cloned child's process id.
func (h *JailHandle) Pid() int {
	return h.pid
}

// Terminate sends SIGKILL to the jailed task through its pidfd, immune
// to the pid being recycled by an unrelated process in the meantime. It
// does not wait; callers that need the exit status should call Wait
// afterward.
func (h *JailHandle) Terminate() error {
	if !h.havePfd {
		return errors.New("jailer: no pidfd available to terminate through")
	}
	return h.pidfd.Terminate()
}

// Close releases the handle's resources. If the child has not been
// waited on and appears still alive, it logs a warning rather than
// blocking -- per the design notes, a caller that drops a handle without
// waiting or terminating is expected to let the normal exit path reap
// the orphan.
func (h *JailHandle) Close() error {
	if !h.waited.Load() {
		if _, exited, _ := h.TryWait(); !exited {
			logrus.WithField("pid", h.pid).Warn("jail handle closed without waiting on a still-running child")
		}
	}

	if h.havePfd {
		_ = h.pidfd.Close()
	}
	_ = h.notifier.Close()
	_ = h.reader.Close()
	if h.stack != nil {
		return h.stack.Close()
	}
	return nil
}
