// Package errkind classifies launcher failures by locus rather than by
// Go type, mirroring the error-kind taxonomy in the design notes:
// config, environment, privilege, capability, clone, prep and wait
// errors each carry a distinct exit-diagnostic shape.
package errkind

import "fmt"

// Kind names one failure locus.
type Kind int

const (
	Config Kind = iota
	Environment
	Privilege
	Capability
	Clone
	Prep
	Wait
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "config error"
	case Environment:
		return "environment error"
	case Privilege:
		return "privilege error"
	case Capability:
		return "capability error"
	case Clone:
		return "clone error"
	case Prep:
		return "prep error"
	case Wait:
		return "wait error"
	default:
		return "error"
	}
}

// Error wraps an underlying cause with a Kind, so callers at the top
// level (cmd/enclave) can pick an exit code and diagnostic prefix
// without type-switching on the wrapped error chain.
type Error struct {
	Kind  Kind
	Cause error
}

func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
