// Package report implements a non-blocking, close-on-exec pipe used by
// a cloned child to surface a single stringified error to its parent
// after clone(2), when the two no longer share a return value.
package report

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// maxMessage bounds a single reported error. A pipe write of at most
// PIPE_BUF (4096 bytes on Linux, guaranteed atomic) never interleaves
// with a concurrent writer, which this package relies on implicitly
// since only one side ever writes.
const maxMessage = 4096

// ErrorReporter owns both ends of the pipe before a fork/clone splits
// it into a ParentErrorReader and a ChildErrorWriter.
type ErrorReporter struct {
	readFd  int
	writeFd int
}

// New creates a non-blocking, close-on-exec pipe for child-to-parent
// error reporting.
func New() (*ErrorReporter, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, errors.Wrap(err, "creating pipe for process error reporting")
	}
	return &ErrorReporter{readFd: fds[0], writeFd: fds[1]}, nil
}

// Split consumes the ErrorReporter and returns the two single-purpose
// halves; each side of a subsequent fork keeps only the half it needs.
func (r *ErrorReporter) Split() (*ParentErrorReader, *ChildErrorWriter) {
	return &ParentErrorReader{fd: r.readFd}, &ChildErrorWriter{fd: r.writeFd}
}

// ChildErrorWriter is the write half of the pipe, held by the cloned
// child.
type ChildErrorWriter struct {
	fd int
}

// ReportError writes a UTF-8 error message to the parent in a single
// write(2) call. Intended to run between clone and exec, so it avoids
// any Go runtime machinery beyond the raw syscall.
func (w *ChildErrorWriter) ReportError(message string) error {
	msg := message
	if len(msg) > maxMessage {
		msg = msg[:maxMessage]
	}
	_, err := unix.Write(w.fd, []byte(msg))
	if err != nil {
		return errors.Wrap(err, "writing error message to parent process")
	}
	return nil
}

// Close releases the write end.
func (w *ChildErrorWriter) Close() error {
	return unix.Close(w.fd)
}

// ParentErrorReader is the read half of the pipe, held by the parent.
type ParentErrorReader struct {
	fd int
}

// CheckForReportedErrors performs a single non-blocking read. It
// returns nil if nothing has been written (EAGAIN while the write end is
// still open, or end of file once it is closed), and a descriptive error carrying the
// decoded message otherwise.
func (r *ParentErrorReader) CheckForReportedErrors() error {
	message, err := r.readErrorMessage()
	if err != nil {
		return err
	}
	if message == "" {
		return nil
	}
	return errors.Errorf("child process reported error: %s", message)
}

func (r *ParentErrorReader) readErrorMessage() (string, error) {
	buf := make([]byte, maxMessage)
	n, err := unix.Read(r.fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return "", nil
		}
		return "", errors.Wrap(err, "checking for reported errors")
	}
	return string(buf[:n]), nil
}

// Close releases the read end.
func (r *ParentErrorReader) Close() error {
	return unix.Close(r.fd)
}
