package cliconfig

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nestybox/sysbox-libs/enclave/internal/mountplan"
)

// Profile is the supplementary YAML manifest shape for --profile: the
// same mount directives the CLI flags populate, plus overlay mounts --
// a mountplan.MountOp the CLI flag surface in spec §6 doesn't expose,
// since profiles are the one place this module lets a caller reach the
// richer mount vocabulary without growing the flag surface.
type Profile struct {
	Binds      []ProfileBind    `yaml:"binds,omitempty"`
	DevBinds   []ProfileBind    `yaml:"devBinds,omitempty"`
	ROBinds    []ProfileBind    `yaml:"roBinds,omitempty"`
	RemountROs []string         `yaml:"remountRO,omitempty"`
	Procs      []string         `yaml:"procs,omitempty"`
	Devs       []string         `yaml:"devs,omitempty"`
	Tmpfs      []ProfileTmpfs   `yaml:"tmpfs,omitempty"`
	Mqueues    []string         `yaml:"mqueues,omitempty"`
	Dirs       []ProfileDir     `yaml:"dirs,omitempty"`
	Symlinks   []ProfileBind    `yaml:"symlinks,omitempty"`
	Chmods     []ProfileChmod   `yaml:"chmods,omitempty"`
	Overlays   []ProfileOverlay `yaml:"overlays,omitempty"`
}

type ProfileBind struct {
	Src string `yaml:"src"`
	Dst string `yaml:"dst"`
}

type ProfileTmpfs struct {
	Target string `yaml:"target"`
	SizeKb int    `yaml:"sizeKb,omitempty"`
	Mode   uint32 `yaml:"mode,omitempty"`
}

type ProfileDir struct {
	Path string `yaml:"path"`
	Mode uint32 `yaml:"mode,omitempty"`
}

type ProfileChmod struct {
	Path string `yaml:"path"`
	Mode uint32 `yaml:"mode"`
}

type ProfileOverlay struct {
	Lower  []string `yaml:"lower"`
	Upper  string   `yaml:"upper,omitempty"`
	Work   string   `yaml:"work,omitempty"`
	Target string   `yaml:"target"`
	RW     bool     `yaml:"rw,omitempty"`
}

// LoadProfile reads and parses a --profile manifest.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading profile %s", path)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrapf(err, "parsing profile %s", path)
	}
	return &p, nil
}

// ApplyTo merges a profile into d by appending each profile entry after
// whatever d already holds. Resolve calls it once the CLI flags have
// been parsed, so within each directive kind the profile's entries run
// after the CLI-given ones; a CLI flag does not override a profile
// entry of the same kind (a profile --chmod or --remount-ro runs last).
func (p *Profile) ApplyTo(d *mountplan.Directives) {
	for _, b := range p.Binds {
		d.Binds = append(d.Binds, mountplan.BindDirective{Src: b.Src, Dst: b.Dst})
	}
	for _, b := range p.DevBinds {
		d.DevBinds = append(d.DevBinds, mountplan.BindDirective{Src: b.Src, Dst: b.Dst})
	}
	for _, b := range p.ROBinds {
		d.ROBinds = append(d.ROBinds, mountplan.BindDirective{Src: b.Src, Dst: b.Dst})
	}
	d.RemountROs = append(d.RemountROs, p.RemountROs...)
	d.Procs = append(d.Procs, p.Procs...)
	d.Devs = append(d.Devs, p.Devs...)
	for _, t := range p.Tmpfs {
		d.Tmpfs = append(d.Tmpfs, mountplan.TmpfsDirective{Target: t.Target, SizeKb: t.SizeKb, Mode: t.Mode})
	}
	d.Mqueues = append(d.Mqueues, p.Mqueues...)
	for _, dir := range p.Dirs {
		d.Dirs = append(d.Dirs, mountplan.DirDirective{Path: dir.Path, Mode: dir.Mode})
	}
	for _, s := range p.Symlinks {
		d.Symlinks = append(d.Symlinks, mountplan.SymlinkDirective{Link: s.Dst, Target: s.Src})
	}
	for _, c := range p.Chmods {
		d.Chmods = append(d.Chmods, mountplan.ChmodDirective{Path: c.Path, Mode: c.Mode})
	}

	for _, o := range p.Overlays {
		mode := mountplan.OverlayReadOnly
		if o.RW {
			mode = mountplan.OverlayReadWrite
		}
		d.Overlays = append(d.Overlays, mountplan.OverlayDirective{
			Lower: o.Lower, Upper: o.Upper, Work: o.Work, Target: o.Target, Mode: mode,
		})
	}
}
