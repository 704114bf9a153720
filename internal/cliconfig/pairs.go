package cliconfig

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nestybox/sysbox-libs/enclave/internal/mountplan"
	"github.com/nestybox/sysbox-libs/enclave/pkg/pathres"
)

// splitN splits s on ':' into exactly n non-empty fields. Mount flags
// take their operands this way (SRC:DST, FD:DST, ...) rather than as
// two separate argv words, so a single repeatable pflag.Value can
// accumulate them.
func splitN(flag, s string, n int) ([]string, error) {
	parts := strings.SplitN(s, ":", n)
	if len(parts) != n {
		return nil, errors.Errorf("--%s: expected %d colon-separated fields in %q", flag, n, s)
	}
	for _, p := range parts {
		if p == "" {
			return nil, errors.Errorf("--%s: empty field in %q", flag, s)
		}
	}
	return parts, nil
}

func parseFd(flag, s string) (int, error) {
	fd, err := strconv.Atoi(s)
	if err != nil {
		return -1, errors.Wrapf(err, "--%s: invalid file descriptor %q", flag, s)
	}
	return pathres.ValidFd(fd)
}

func parseMode(flag, s string) (uint32, error) {
	m, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "--%s: invalid octal mode %q", flag, s)
	}
	return uint32(m), nil
}

// bindValue accumulates --bind/--dev-bind/--ro-bind SRC:DST pairs. Which
// of Binds/DevBinds/ROBinds a given flag feeds is determined entirely by
// which slice target points at -- the type itself carries no semantics
// beyond "two colon-separated fields".
type bindValue struct {
	name   string
	target *[]mountplan.BindDirective
}

func (v *bindValue) String() string { return "" }
func (v *bindValue) Type() string   { return "src:dst" }
func (v *bindValue) Set(s string) error {
	parts, err := splitN(v.name, s, 2)
	if err != nil {
		return err
	}
	if err := pathres.RequireAbs(parts[1]); err != nil {
		return errors.Wrapf(err, "--%s", v.name)
	}
	*v.target = append(*v.target, mountplan.BindDirective{Src: parts[0], Dst: parts[1]})
	return nil
}

// bindFdValue accumulates --bind-fd/--ro-bind-fd FD:DST pairs.
type bindFdValue struct {
	name   string
	target *[]mountplan.BindFdDirective
}

func (v *bindFdValue) String() string { return "" }
func (v *bindFdValue) Type() string   { return "fd:dst" }
func (v *bindFdValue) Set(s string) error {
	parts, err := splitN(v.name, s, 2)
	if err != nil {
		return err
	}
	fd, err := parseFd(v.name, parts[0])
	if err != nil {
		return err
	}
	if err := pathres.RequireAbs(parts[1]); err != nil {
		return errors.Wrapf(err, "--%s", v.name)
	}
	*v.target = append(*v.target, mountplan.BindFdDirective{Fd: fd, Dst: parts[1]})
	return nil
}

// fileValue accumulates --file FD:DST pairs into FileDirective (a
// plain created file, distinct from a BindFdDirective's mount step;
// the FD is validated here but its contents are not copied into DST).
type fileValue struct {
	target *[]mountplan.FileDirective
}

func (v *fileValue) String() string { return "" }
func (v *fileValue) Type() string   { return "fd:dst" }
func (v *fileValue) Set(s string) error {
	parts, err := splitN("file", s, 2)
	if err != nil {
		return err
	}
	fd, err := parseFd("file", parts[0])
	if err != nil {
		return err
	}
	if err := pathres.RequireAbs(parts[1]); err != nil {
		return errors.Wrap(err, "--file")
	}
	*v.target = append(*v.target, mountplan.FileDirective{Fd: fd, Dst: parts[1]})
	return nil
}

// symlinkValue accumulates --symlink SRC:DST pairs.
type symlinkValue struct {
	target *[]mountplan.SymlinkDirective
}

func (v *symlinkValue) String() string { return "" }
func (v *symlinkValue) Type() string   { return "src:dst" }
func (v *symlinkValue) Set(s string) error {
	parts, err := splitN("symlink", s, 2)
	if err != nil {
		return err
	}
	*v.target = append(*v.target, mountplan.SymlinkDirective{Link: parts[1], Target: parts[0]})
	return nil
}

// chmodValue accumulates --chmod OCTAL:PATH pairs.
type chmodValue struct {
	target *[]mountplan.ChmodDirective
}

func (v *chmodValue) String() string { return "" }
func (v *chmodValue) Type() string   { return "octal:path" }
func (v *chmodValue) Set(s string) error {
	parts, err := splitN("chmod", s, 2)
	if err != nil {
		return err
	}
	mode, err := parseMode("chmod", parts[0])
	if err != nil {
		return err
	}
	*v.target = append(*v.target, mountplan.ChmodDirective{Path: parts[1], Mode: mode})
	return nil
}

// dirValue accumulates --dir DIR[:MODE] entries; a missing mode is
// resolved later against --perms (or the builder's own default).
type dirValue struct {
	target *[]mountplan.DirDirective
}

func (v *dirValue) String() string { return "" }
func (v *dirValue) Type() string   { return "dir[:mode]" }
func (v *dirValue) Set(s string) error {
	path := s
	var mode uint32
	if i := strings.IndexByte(s, ':'); i >= 0 {
		path = s[:i]
		m, err := parseMode("dir", s[i+1:])
		if err != nil {
			return err
		}
		mode = m
	}
	if path == "" {
		return errors.New("--dir: empty path")
	}
	*v.target = append(*v.target, mountplan.DirDirective{Path: path, Mode: mode})
	return nil
}

// tmpfsValue accumulates --tmpfs DIR[:SIZE[:MODE]] entries; an omitted
// size falls back to --size (or no limit).
type tmpfsValue struct {
	target *[]mountplan.TmpfsDirective
}

func (v *tmpfsValue) String() string { return "" }
func (v *tmpfsValue) Type() string   { return "dir[:size[:mode]]" }
func (v *tmpfsValue) Set(s string) error {
	fields := strings.Split(s, ":")
	if fields[0] == "" {
		return errors.New("--tmpfs: empty path")
	}

	d := mountplan.TmpfsDirective{Target: fields[0]}
	if len(fields) > 1 && fields[1] != "" {
		kb, err := ParseSizeKb(fields[1])
		if err != nil {
			return errors.Wrap(err, "--tmpfs")
		}
		d.SizeKb = kb
	}
	if len(fields) > 2 && fields[2] != "" {
		mode, err := parseMode("tmpfs", fields[2])
		if err != nil {
			return err
		}
		d.Mode = mode
	}
	*v.target = append(*v.target, d)
	return nil
}
