//
// Copyright 2020 - 2024 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package pidfd provides pidfd_open and pidfd_send_signal support on
// linux 5.3+, used by the jailer to signal a cloned child by an fd
// rather than by (possibly already-recycled) pid.
package pidfd

import "syscall"

const (
	sys_pidfd_send_signal = 424
	sys_pidfd_open        = 434
)

// PidFd is a file descriptor that refers to a process.
type PidFd int

// Open obtains a file descriptor that refers to pid.
//
// The flags argument is reserved for future use; currently, this argument must be specified as 0.
func Open(pid int, flags uint) (PidFd, error) {
	fd, _, errno := syscall.Syscall(sys_pidfd_open, uintptr(pid), uintptr(flags), 0)
	if errno != 0 {
		return 0, errno
	}

	return PidFd(fd), nil
}

// SendSignal sends a signal to the process referenced by fd.
//
// The flags argument is reserved for future use; currently, this argument must be specified as 0.
func (fd PidFd) SendSignal(signal syscall.Signal, flags uint) error {
	_, _, errno := syscall.Syscall6(sys_pidfd_send_signal, uintptr(fd), uintptr(signal), 0, uintptr(flags), 0, 0)
	if errno != 0 {
		return errno
	}

	return nil
}

// Terminate sends SIGKILL through fd -- unlike kill(pid, SIGKILL), this
// cannot be fooled by pid reuse: if the process fd refers to has
// already exited, SendSignal fails with ESRCH instead of hitting
// whatever unrelated process has since reused the pid.
func (fd PidFd) Terminate() error {
	return fd.SendSignal(syscall.SIGKILL, 0)
}

// Close releases the pidfd.
func (fd PidFd) Close() error {
	return syscall.Close(int(fd))
}
