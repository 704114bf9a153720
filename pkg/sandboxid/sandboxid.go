// Package sandboxid gives each launched sandbox a unique identifier for
// logging: a random UUID, truncated to the short form used throughout
// the corpus's container tooling.
package sandboxid

import (
	"github.com/docker/docker/pkg/stringid"
	"github.com/google/uuid"
)

// ID identifies one sandbox instance.
type ID struct {
	full string
}

// New generates a fresh random ID.
func New() ID {
	return ID{full: uuid.NewString()}
}

// ShortID returns the truncated form suitable for log lines.
func (id ID) ShortID() string {
	return stringid.TruncateID(id.full)
}

// LongID returns the full UUID.
func (id ID) LongID() string {
	return id.full
}

func (id ID) String() string {
	return id.ShortID()
}
