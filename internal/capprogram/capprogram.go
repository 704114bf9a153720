// Package capprogram holds the fixed capability configuration the launcher
// applies to itself at startup, keyed by privilege level.
package capprogram

import (
	mapset "github.com/deckarep/golang-set"
	"github.com/pkg/errors"

	"github.com/nestybox/sysbox-libs/enclave/pkg/capability"
)

// SetuidCaps is the exact set of capabilities a setuid launcher retains
// once it has elevated to euid 0: enough to build the sandbox, nothing
// more.
var SetuidCaps = []capability.Cap{
	capability.CAP_SYS_ADMIN,
	capability.CAP_SYS_CHROOT,
	capability.CAP_NET_ADMIN,
	capability.CAP_SETUID,
	capability.CAP_SETGID,
	capability.CAP_SYS_PTRACE,
}

// SetuidCapSet is SetuidCaps as a set, for use as a Program's Required
// field.
func SetuidCapSet() mapset.Set {
	set := mapset.NewSet()
	for _, c := range SetuidCaps {
		set.Add(c)
	}
	return set
}

// ApplySetuid drops every bounding capability (the Retain pass over
// SetuidCaps that follows then finds nothing left to drop), sets
// Effective and Permitted to exactly SetuidCaps, and clears Inheritable.
// Ambient is left untouched -- it is implicitly empty for a setuid binary
// that has not itself raised ambient capabilities.
func ApplySetuid(m *capability.Manager) error {
	required := SetuidCapSet()

	if err := m.DropAllBounding(); err != nil {
		return errors.Wrap(err, "dropping bounding capabilities before retaining setuid set")
	}

	if err := m.Retain(required); err != nil {
		return errors.Wrap(err, "retaining setuid capability set")
	}

	if err := m.SetExactly(required); err != nil {
		return errors.Wrap(err, "setting effective/permitted to setuid capability set")
	}

	if err := m.ClearSets(capability.Inheritable); err != nil {
		return errors.Wrap(err, "clearing inheritable")
	}

	return nil
}
