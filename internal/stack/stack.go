// Package stack allocates a guarded anonymous memory region sized for a
// cloned child's stack, with an inaccessible guard page immediately past
// the usable end. internal/jailer allocates one per Jailer, but its raw
// clone(2) passes a null child_stack, so the child does not run on it.
package stack

import (
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// GuardedStack owns an mmap'd region of size stackBytes+pageSize, with
// the final page set PROT_NONE. It must be released with Close once the
// clone()'d child has exited; failing to do so leaks the mapping.
type GuardedStack struct {
	mem   []byte
	size  int
	freed bool
}

var pageSize = os.Getpagesize()

// New allocates a GuardedStack of stackBytes usable bytes. stackBytes
// must be a positive multiple of the system page size, and
// stackBytes+pageSize must not overflow an int.
func New(stackBytes int) (*GuardedStack, error) {
	if stackBytes <= 0 || stackBytes%pageSize != 0 {
		return nil, errors.Errorf("stack_bytes must be a positive multiple of the page size (%d bytes), got %d", pageSize, stackBytes)
	}

	total := stackBytes + pageSize
	if total <= stackBytes {
		return nil, errors.New("stack_bytes + page size overflows the address-size word")
	}

	mem, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errors.Wrap(err, "mmap anonymous stack region")
	}

	guard := mem[stackBytes:total]
	if err := unix.Mprotect(guard, unix.PROT_NONE); err != nil {
		_ = unix.Munmap(mem)
		return nil, errors.Wrap(err, "mprotect guard page")
	}

	return &GuardedStack{mem: mem, size: stackBytes}, nil
}

// Slice returns the usable portion of the stack, excluding the guard
// page. Index len(Slice())-1 is the highest usable byte.
func (g *GuardedStack) Slice() []byte {
	return g.mem[:g.size]
}

// Top returns the address one past the last usable byte -- the value a
// clone(2) child_stack argument would take for this region.
func (g *GuardedStack) Top() uintptr {
	s := g.Slice()
	if len(s) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&s[len(s)-1])) + 1
}

// Close unmaps the stack region, guard page included. Safe to call more
// than once.
func (g *GuardedStack) Close() error {
	if g.freed {
		return nil
	}
	g.freed = true
	return unix.Munmap(g.mem)
}
