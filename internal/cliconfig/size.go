package cliconfig

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseSizeKb parses the N[K|M|G] shape used by --size and the optional
// size suffix on --tmpfs, returning the value in kibibytes (the unit
// mountplan.TmpfsDirective.SizeKb already uses).
func ParseSizeKb(s string) (int, error) {
	if s == "" {
		return 0, errors.New("empty size")
	}

	unit := s[len(s)-1]
	digits := s
	multiplier := 1

	switch unit {
	case 'k', 'K':
		digits, multiplier = s[:len(s)-1], 1
	case 'm', 'M':
		digits, multiplier = s[:len(s)-1], 1024
	case 'g', 'G':
		digits, multiplier = s[:len(s)-1], 1024*1024
	default:
		if unit < '0' || unit > '9' {
			return 0, errors.Errorf("size %q: unrecognized unit suffix %q", s, string(unit))
		}
		// bare digits are already kibibytes
	}

	digits = strings.TrimSpace(digits)
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, errors.Wrapf(err, "size %q: invalid number %q", s, digits)
	}
	if n < 0 {
		return 0, errors.Errorf("size %q: negative size", s)
	}

	return n * multiplier, nil
}
