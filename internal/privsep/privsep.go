// Package privsep forks the unprivileged jailed task into a (worker,
// supervisor) pair connected by a SOCK_SEQPACKET Unix socket: the
// worker runs with capabilities dropped and asks the still-privileged
// supervisor to perform mount-plan operations on its behalf.
package privsep

import (
	"runtime"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/nestybox/sysbox-libs/enclave/internal/mountplan"
)

// Supervisor holds the parent-side (privileged) endpoint.
type Supervisor struct {
	fd int
}

// Worker holds the child-side (unprivileged) endpoint.
type Worker struct {
	fd int
}

// Handler processes one decoded MountCommand. Any error it returns is
// treated as fatal and ends Listen's loop.
type Handler func(mountplan.Command) error

// socketpair creates a close-on-exec SOCK_SEQPACKET pair.
func socketpair() (parentFd, childFd int, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, 0, errors.Wrap(err, "creating socketpair")
	}
	return fds[0], fds[1], nil
}

// Fork creates the socketpair, then raw-clones (SIGCHLD only, no
// namespace flags -- the caller's own namespaces already apply) into a
// supervisor/worker pair. The calling goroutine must not have spawned
// other OS threads that the child needs. The worker side never execs:
// it runs childFn and then exits.
//
// parentFn runs in the original process with a Supervisor; it must not
// return until the worker side is done talking to it (typically until
// Listen returns on EOF). childFn runs in the cloned child with a
// Worker, and its return value becomes the child process's exit code:
// 0 on success, 1 if it returns an error. The worker does not log that
// error.
func Fork(childFn func(Worker) error, parentFn func(Supervisor) error) error {
	parentFd, childFd, err := socketpair()
	if err != nil {
		return err
	}

	// Same LockOSThread + ForkLock discipline as internal/jailer's
	// rawClone: this clone has no CLONE_VM either, so the worker side
	// starts on the one OS thread that made the call, with none of the
	// Go runtime's other threads present to hold a lock childFn might
	// need.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	syscall.ForkLock.Lock()
	pid, _, errno := unix.RawSyscall6(unix.SYS_CLONE, uintptr(unix.SIGCHLD), 0, 0, 0, 0, 0)
	if pid != 0 || errno != 0 {
		syscall.ForkLock.Unlock()
	}
	if errno != 0 {
		unix.Close(parentFd)
		unix.Close(childFd)
		return errors.Wrap(errno, "clone")
	}

	if pid == 0 {
		unix.Close(parentFd)
		worker := Worker{fd: childFd}
		code := 0
		if err := childFn(worker); err != nil {
			code = 1
		}
		unix.Close(childFd)
		syscall.Exit(code)
		panic("unreachable")
	}

	unix.Close(childFd)
	supervisor := Supervisor{fd: parentFd}
	result := parentFn(supervisor)

	var ws unix.WaitStatus
	if _, err := unix.Wait4(int(pid), &ws, 0, nil); err != nil {
		return errors.Wrap(err, "waiting for privsep worker")
	}

	return result
}

// Listen reads one datagram per iteration, decodes it as a
// mountplan.Command, and invokes handler. It returns cleanly when the
// worker closes its end (a zero-length read, i.e. EOF on a SEQPACKET
// socket).
func (s Supervisor) Listen(handler Handler) error {
	buf := make([]byte, 64*1024)
	for {
		n, err := unix.Read(s.fd, buf)
		if err != nil {
			return errors.Wrap(err, "reading from privsep worker")
		}
		if n == 0 {
			return nil
		}

		cmd, err := mountplan.Decode(buf[:n])
		if err != nil {
			return errors.Wrap(err, "decoding mount command from privsep worker")
		}

		if err := handler(cmd); err != nil {
			return errors.Wrap(err, "handling mount command")
		}
	}
}

// Close releases the supervisor's endpoint.
func (s Supervisor) Close() error {
	return unix.Close(s.fd)
}

// Send encodes cmd and writes it in a single syscall; SOCK_SEQPACKET
// preserves the message boundary on the other end.
func (w Worker) Send(cmd mountplan.Command) error {
	buf, err := mountplan.Encode(cmd)
	if err != nil {
		return errors.Wrap(err, "encoding mount command")
	}
	if _, err := unix.Write(w.fd, buf); err != nil {
		return errors.Wrap(err, "sending mount command to supervisor")
	}
	return nil
}

// Close releases the worker's endpoint, signalling EOF to the
// supervisor's Listen loop.
func (w Worker) Close() error {
	return unix.Close(w.fd)
}
