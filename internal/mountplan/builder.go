package mountplan

import (
	"github.com/nestybox/sysbox-libs/enclave/pkg/pathres"
)

// Build is a total function from Directives to a Plan: bind, dev-bind,
// ro-bind, overlay, proc, dev, tmpfs, mqueue, dir, file, symlink,
// remount-ro, chmod, sethostname, in that fixed order. No I/O happens
// here; Execute performs the actual syscalls later.
func Build(d Directives) Plan {
	var plan Plan

	for _, b := range d.Binds {
		plan = append(plan, mountCmd(Bind{Src: b.Src, Dst: b.Dst}))
	}
	for _, b := range d.DevBinds {
		plan = append(plan, mountCmd(Bind{Src: b.Src, Dst: b.Dst, MountDev: true}))
	}
	for _, b := range d.ROBinds {
		plan = append(plan, mountCmd(Bind{Src: b.Src, Dst: b.Dst, ReadOnly: true}))
	}

	for _, o := range d.Overlays {
		plan = append(plan, mountCmd(Overlay{Lower: o.Lower, Upper: o.Upper, Work: o.Work, Target: o.Target, Mode: o.Mode}))
	}

	for _, p := range d.Procs {
		plan = append(plan, mountCmd(Special{Kind: SpecialProc, Target: p}))
	}

	for _, dev := range d.Devs {
		plan = append(plan, mountCmd(Special{Kind: SpecialDev, Target: dev}))
	}

	for _, t := range d.Tmpfs {
		s := Special{Kind: SpecialTmpfs, Target: t.Target}
		if t.SizeKb > 0 {
			s.SizeKb = t.SizeKb
			s.HasSizeKb = true
		}
		if t.Mode != 0 {
			s.Mode = t.Mode
			s.HasMode = true
		}
		plan = append(plan, mountCmd(s))
	}

	for _, m := range d.Mqueues {
		plan = append(plan, mountCmd(Special{Kind: SpecialMqueue, Target: m}))
	}

	for _, dir := range d.Dirs {
		mode := dir.Mode
		if mode == 0 {
			mode = defaultDirMode
		}
		plan = append(plan, fileCmd(CreateDir{Path: dir.Path, Mode: mode}))
	}

	for _, f := range d.BindFds {
		plan = append(plan, fileCmd(CreateBindFile{Src: pathres.ResolveFdPath(f.Fd), Dst: f.Dst}))
	}
	for _, f := range d.ROBindFds {
		plan = append(plan, fileCmd(CreateBindFile{Src: pathres.ResolveFdPath(f.Fd), Dst: f.Dst, ReadOnly: true}))
	}
	for _, f := range d.Files {
		plan = append(plan, fileCmd(CreateFile{Dst: f.Dst, Fd: f.Fd}))
	}

	for _, s := range d.Symlinks {
		plan = append(plan, fileCmd(CreateSymlink{Link: s.Link, Target: s.Target}))
	}

	for _, path := range d.RemountROs {
		plan = append(plan, fileCmd(RemountReadOnly{Path: path}))
	}

	for _, c := range d.Chmods {
		plan = append(plan, sysCmd(Chmod{Path: c.Path, Mode: c.Mode}))
	}

	if d.HasHostname {
		plan = append(plan, sysCmd(SetHostname{Hostname: d.Hostname}))
	}

	return plan
}
