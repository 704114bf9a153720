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

package capability

import (
	"fmt"

	mapset "github.com/deckarep/golang-set"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Snapshot holds the membership of every capability set for the calling
// task at the moment it was taken.
type Snapshot struct {
	Effective   mapset.Set
	Permitted   mapset.Set
	Inheritable mapset.Set
	Bounding    mapset.Set
	Ambient     mapset.Set
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"{effective=%d permitted=%d inheritable=%d bounding=%d ambient=%d}",
		s.Effective.Cardinality(), s.Permitted.Cardinality(), s.Inheritable.Cardinality(),
		s.Bounding.Cardinality(), s.Ambient.Cardinality(),
	)
}

// Program configures how Manager.Retain and Manager.ConfigureWith behave.
type Program struct {
	// Permissive suppresses bounding-drop failures whose errno is one of
	// EINVAL, EPERM, ENOTSUP, EACCES -- logged and skipped rather than
	// aborting the whole configuration.
	Permissive bool

	// ValidateAfter, when set, asserts Required is a subset of Effective
	// once ConfigureWith's callback returns.
	ValidateAfter bool

	// Required is the set of capabilities the configuration must retain.
	Required mapset.Set
}

// Manager reads and mutates the calling task's capability sets.
type Manager struct {
	program Program
	log     *logrus.Entry
}

// NewManager builds a Manager governed by program.
func NewManager(program Program) *Manager {
	if program.Required == nil {
		program.Required = mapset.NewSet()
	}
	return &Manager{
		program: program,
		log:     logrus.WithField("component", "capability"),
	}
}

// Current reads a full Snapshot of the calling task's capability sets.
func Current() (Snapshot, error) {
	var hdr capHeader
	hdr.version = linuxCapVersion3

	var data [2]capData
	if err := capget(&hdr, &data); err != nil {
		return Snapshot{}, errors.Wrap(err, "reading capability sets")
	}

	bounding, err := readSet(Bounding)
	if err != nil {
		return Snapshot{}, err
	}

	ambient, err := readSet(Ambient)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		Effective:   bitsToSet(data[0].effective, data[1].effective),
		Permitted:   bitsToSet(data[0].permitted, data[1].permitted),
		Inheritable: bitsToSet(data[0].inheritable, data[1].inheritable),
		Bounding:    bounding,
		Ambient:     ambient,
	}, nil
}

func bitsToSet(low, high uint32) mapset.Set {
	set := mapset.NewSet()
	for i := Cap(0); i <= LastCap(); i++ {
		var bit uint32
		if i < 32 {
			bit = low & (1 << uint(i))
		} else {
			bit = high & (1 << uint(i-32))
		}
		if bit != 0 {
			set.Add(i)
		}
	}
	return set
}

// readSet reads Bounding or Ambient, which are not exposed through
// capget(2) and must be probed one bit at a time via prctl(2).
func readSet(which Type) (mapset.Set, error) {
	set := mapset.NewSet()
	for i := Cap(0); i <= LastCap(); i++ {
		var present bool
		var err error
		switch which {
		case Bounding:
			present, err = readBounding(i)
		case Ambient:
			ret, e := unix.PrctlRetInt(unix.PR_CAP_AMBIENT, unix.PR_CAP_AMBIENT_IS_SET, uintptr(i), 0, 0)
			present, err = ret == 1, e
		default:
			continue
		}
		if err != nil {
			if errno, ok := err.(unix.Errno); ok && errno == unix.EINVAL {
				continue
			}
			return nil, errors.Wrapf(err, "reading %s bit for cap %d", which, i)
		}
		if present {
			set.Add(i)
		}
	}
	return set, nil
}

// ClearSets zeroes out the requested combination of Effective, Permitted
// and Inheritable (Bounding and Ambient are not representable in a
// capset(2) call and are left untouched; use DropAllBounding for
// Bounding).
func (m *Manager) ClearSets(sets Type) error {
	return ClearSets(sets)
}

// ClearSets is the free-function form of (*Manager).ClearSets -- see
// DropAllBounding for why a call site between clone(2) and exec(2)
// needs this instead of constructing a Manager.
func ClearSets(sets Type) error {
	var hdr capHeader
	hdr.version = linuxCapVersion3

	var data [2]capData
	if sets&(Effective|Permitted|Inheritable) != Effective|Permitted|Inheritable {
		current, err := Current()
		if err != nil {
			return err
		}
		if sets&Effective == 0 {
			fillData(&data, current.Effective, setEffective)
		}
		if sets&Permitted == 0 {
			fillData(&data, current.Permitted, setPermitted)
		}
		if sets&Inheritable == 0 {
			fillData(&data, current.Inheritable, setInheritable)
		}
	}

	if err := capset(&hdr, &data); err != nil {
		return errors.Wrapf(err, "clearing capability sets %v", sets)
	}
	return nil
}

// ClearUnprivileged is the free-function form of
// (*Manager).ClearUnprivileged.
func ClearUnprivileged() error {
	return ClearSets(Effective | Permitted | Inheritable)
}

func setEffective(d *capData, bit uint32)   { d.effective |= bit }
func setPermitted(d *capData, bit uint32)   { d.permitted |= bit }
func setInheritable(d *capData, bit uint32) { d.inheritable |= bit }

func fillData(data *[2]capData, set mapset.Set, apply func(*capData, uint32)) {
	for v := range set.Iter() {
		c := v.(Cap)
		i, bit := capIndex(c)
		apply(&data[i], bit)
	}
}

// SetExactly sets Effective and Permitted to exactly caps, and clears
// Inheritable.
func (m *Manager) SetExactly(caps mapset.Set) error {
	var hdr capHeader
	hdr.version = linuxCapVersion3

	var data [2]capData
	for v := range caps.Iter() {
		c := v.(Cap)
		i, bit := capIndex(c)
		data[i].effective |= bit
		data[i].permitted |= bit
	}

	if err := capset(&hdr, &data); err != nil {
		return errors.Wrap(err, "setting effective/permitted capability sets")
	}
	return nil
}

func capIndex(c Cap) (int, uint32) {
	if c < 32 {
		return 0, 1 << uint(c)
	}
	return 1, 1 << uint(c-32)
}

// expectedErrno reports whether errno is one of the "capability not
// supported on this kernel / not permitted to touch it" outcomes that
// Program.Permissive allows a bounding drop to ignore. Matching is done
// on the errno value, not on substrings of an error message, resolving
// the corresponding Open Question in the design notes.
func expectedErrno(err error) bool {
	errno, ok := errors.Cause(err).(unix.Errno)
	if !ok {
		return false
	}
	switch errno {
	case unix.EINVAL, unix.EPERM, unix.ENOTSUP, unix.EACCES:
		return true
	default:
		return false
	}
}

// Retain drops every supported capability from Bounding except those in
// requested.
func (m *Manager) Retain(requested mapset.Set) error {
	for i := Cap(0); i <= LastCap(); i++ {
		if requested.Contains(i) {
			continue
		}

		present, err := readBounding(i)
		if err != nil {
			if errno, ok := err.(unix.Errno); ok && errno == unix.EINVAL {
				continue
			}
			return errors.Wrapf(err, "checking bounding bit for cap %d", i)
		}
		if !present {
			continue
		}

		if err := dropBounding(i); err != nil {
			wrapped := errors.Wrapf(err, "dropping bounding capability %s", i)
			if m.program.Permissive && expectedErrno(wrapped) {
				m.log.WithError(err).WithField("cap", i.String()).Warn("ignoring expected error dropping bounding capability")
				continue
			}
			return wrapped
		}
	}
	return nil
}

// DropAllBounding drops every capability currently present in Bounding.
// Always non-permissive: a failure here means the process cannot trust
// its confinement and must abort.
func (m *Manager) DropAllBounding() error {
	return DropAllBounding()
}

// DropAllBounding is the free-function form of (*Manager).DropAllBounding:
// it touches nothing on a Manager (no Program, no logger), so a caller
// that only needs this one operation -- notably the jailed child's
// post-clone prep, which must avoid constructing a mapset.Set or a
// logrus.Entry in the narrow window between clone(2) and exec(2) -- can
// call it without building a Manager at all.
func DropAllBounding() error {
	for i := Cap(0); i <= LastCap(); i++ {
		present, err := readBounding(i)
		if err != nil {
			if errno, ok := err.(unix.Errno); ok && errno == unix.EINVAL {
				continue
			}
			return errors.Wrapf(err, "checking bounding bit for cap %d", i)
		}
		if !present {
			continue
		}
		if err := dropBounding(i); err != nil {
			return errors.Wrapf(err, "dropping bounding capability %s", i)
		}
	}
	return nil
}

// ConfigureWith runs fn against m, then -- if m.program.ValidateAfter --
// verifies m.program.Required is a subset of the resulting Effective set.
func (m *Manager) ConfigureWith(fn func(*Manager) error) (Snapshot, error) {
	if err := fn(m); err != nil {
		return Snapshot{}, err
	}

	if m.program.ValidateAfter {
		if err := m.validateRequired(); err != nil {
			return Snapshot{}, err
		}
	}

	return Current()
}

func (m *Manager) validateRequired() error {
	snap, err := Current()
	if err != nil {
		return err
	}

	missing := m.program.Required.Difference(snap.Effective)
	if missing.Cardinality() > 0 {
		return errors.Errorf("missing required capabilities: %v (have: %v)", missing, snap.Effective)
	}
	return nil
}

// Required returns the configured set of capabilities to retain.
func (m *Manager) Required() mapset.Set {
	return m.program.Required
}

// ClearUnprivileged sheds Effective, Permitted and Inheritable without
// touching Bounding -- the rootful-flow post-spawn step from spec.md's
// Capability Manager description.
func (m *Manager) ClearUnprivileged() error {
	return m.ClearSets(Effective | Permitted | Inheritable)
}
