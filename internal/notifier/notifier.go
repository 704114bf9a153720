// Package notifier implements a one-shot, cross-process wake primitive
// built on eventfd(2): a single 64-bit counter with a blocking read,
// used to hand control from parent to child (and vice versa) around a
// clone(2) boundary without races.
package notifier

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Notifier wraps a close-on-exec eventfd. It is safe to Signal from one
// process and WaitForSignal from another, provided the fd survives the
// clone (eventfd descriptors are inherited by a cloned child unless the
// clone flags ask otherwise).
type Notifier struct {
	fd int
}

// New creates a Notifier backed by a fresh eventfd initialized to 0.
func New() (*Notifier, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "creating eventfd")
	}
	return &Notifier{fd: fd}, nil
}

// Fd returns the underlying file descriptor, for cases where a caller
// needs to pass it across a clone/exec boundary explicitly (e.g.
// clearing FD_CLOEXEC for a specific child).
func (n *Notifier) Fd() int {
	return n.fd
}

// ErrShortRead is returned by WaitForSignal when the eventfd read
// returned fewer than 8 bytes. Pre-allocated at package init: Signal
// and WaitForSignal run on both sides of a raw clone(2), including the
// jailed child's side before it has exec'd, where the only allocation
// internal/jailer's call sites can safely afford is one that already
// happened before the clone.
var ErrShortRead = errors.New("notifier: short eventfd read")

// Signal increments the eventfd counter by 1, waking exactly one
// blocked reader (or causing the next read to return immediately).
func (n *Notifier) Signal() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(n.fd, buf[:])
	return err
}

// WaitForSignal blocks until the eventfd counter is non-zero, then
// resets it to 0 and returns the value that was read.
func (n *Notifier) WaitForSignal() (uint64, error) {
	var buf [8]byte
	nread, err := unix.Read(n.fd, buf[:])
	if err != nil {
		return 0, err
	}
	if nread != 8 {
		return 0, ErrShortRead
	}
	return binary.NativeEndian.Uint64(buf[:]), nil
}

// Close releases the underlying file descriptor.
func (n *Notifier) Close() error {
	return unix.Close(n.fd)
}
