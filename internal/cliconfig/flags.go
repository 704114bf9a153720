package cliconfig

import (
	"github.com/spf13/pflag"

	"github.com/nestybox/sysbox-libs/enclave/internal/mountplan"
)

// NamespaceFlags mirrors the original's NamespaceOptions group: one bool
// per unshare-able namespace/resource, plus the unshare-all shortcut.
type NamespaceFlags struct {
	UnshareAll     bool
	UnshareIPC     bool
	UnsharePID     bool
	UnshareNet     bool
	UnshareUTS     bool
	UnshareCgroup  bool
	UnshareUser    bool
	UnshareFiles   bool
	UnshareFS      bool
	UnshareNS      bool
	UnshareTime    bool
	UnshareSysvsem bool
}

func (f *NamespaceFlags) register(fs *pflag.FlagSet) {
	fs.BoolVar(&f.UnshareAll, "unshare-all", false, "unshare every supported namespace")
	fs.BoolVar(&f.UnshareIPC, "unshare-ipc", false, "create a new IPC namespace")
	fs.BoolVar(&f.UnsharePID, "unshare-pid", false, "create a new PID namespace")
	fs.BoolVar(&f.UnshareNet, "unshare-net", false, "create a new network namespace")
	fs.BoolVar(&f.UnshareUTS, "unshare-uts", false, "create a new UTS namespace")
	fs.BoolVar(&f.UnshareCgroup, "unshare-cgroup", false, "create a new cgroup namespace")
	fs.BoolVar(&f.UnshareUser, "unshare-user", false, "create a new user namespace")
	fs.BoolVar(&f.UnshareFiles, "unshare-files", false, "unshare the file descriptor table")
	fs.BoolVar(&f.UnshareFS, "unshare-fs", false, "unshare filesystem attributes (cwd, umask, root)")
	fs.BoolVar(&f.UnshareNS, "unshare-ns", false, "create a new mount namespace")
	fs.BoolVar(&f.UnshareTime, "unshare-time", false, "create a new time namespace")
	fs.BoolVar(&f.UnshareSysvsem, "unshare-sysvsem", false, "create a new System V semaphore namespace")
}

// UserFlags mirrors the original's UserOptions group. PidnsFd and
// DisableNestedUserns are accepted and validated exactly as the
// original's clap definitions require, but -- as in the original, where
// neither is consumed past config parsing -- they are not yet wired to
// an enclosure behavior; see DESIGN.md.
type UserFlags struct {
	UsernsFd            int
	HasUserns           bool
	SwitchUsernsFd      int
	HasSwitchUserns     bool
	DisableNestedUserns bool
	PidnsFd             int
	HasPidns            bool
	Uid                 int
	HasUid              bool
	Gid                 int
	HasGid              bool
	Hostname            string
	HasHostname         bool
}

func (f *UserFlags) register(fs *pflag.FlagSet) {
	fs.IntVar(&f.UsernsFd, "userns", -1, "join this existing user namespace (cannot be used with --unshare-user)")
	fs.IntVar(&f.SwitchUsernsFd, "switch-userns", -1, "switch to this user namespace after setup (requires --unshare-user)")
	fs.BoolVar(&f.DisableNestedUserns, "disable-nested-userns", false, "disable nested user namespace creation (requires --unshare-user)")
	fs.IntVar(&f.PidnsFd, "pidns", -1, "join this existing pid namespace (requires --unshare-pid)")
	fs.IntVar(&f.Uid, "uid", -1, "uid to map the sandboxed process to (requires --unshare-user and --userns)")
	fs.IntVar(&f.Gid, "gid", -1, "gid to map the sandboxed process to (requires --unshare-user and --userns)")
	fs.StringVar(&f.Hostname, "hostname", "", "hostname to set inside the sandbox (requires --unshare-uts)")
}

func (f *UserFlags) resolve(fs *pflag.FlagSet) {
	f.HasUserns = fs.Changed("userns")
	f.HasSwitchUserns = fs.Changed("switch-userns")
	f.HasPidns = fs.Changed("pidns")
	f.HasUid = fs.Changed("uid")
	f.HasGid = fs.Changed("gid")
	f.HasHostname = fs.Changed("hostname")
}

// MountFlags mirrors spec.md's Mount flag group. Every repeatable flag
// is a custom pflag.Value that appends directly into the corresponding
// mountplan.Directives slice.
type MountFlags struct {
	Directives mountplan.Directives

	Perms   uint32
	HasPerm bool
	sizeRaw string
	SizeKb  int
	HasSize bool
}

func (f *MountFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.Directives.Base, "base", "/tmp", "directory the sandbox's new root is built under")

	fs.Var(&bindValue{name: "bind", target: &f.Directives.Binds}, "bind", "SRC:DST bind mount")
	fs.Var(&bindValue{name: "dev-bind", target: &f.Directives.DevBinds}, "dev-bind", "SRC:DST bind mount, device nodes usable")
	fs.Var(&bindValue{name: "ro-bind", target: &f.Directives.ROBinds}, "ro-bind", "SRC:DST read-only bind mount")
	fs.Var(&bindFdValue{name: "bind-fd", target: &f.Directives.BindFds}, "bind-fd", "FD:DST bind mount of an open file descriptor")
	fs.Var(&bindFdValue{name: "ro-bind-fd", target: &f.Directives.ROBindFds}, "ro-bind-fd", "FD:DST read-only bind mount of an open file descriptor")
	fs.StringArrayVar(&f.Directives.RemountROs, "remount-ro", nil, "remount DIR read-only")
	fs.StringArrayVar(&f.Directives.Procs, "proc", nil, "mount a fresh procfs at DIR")
	fs.StringArrayVar(&f.Directives.Devs, "dev", nil, "mount an empty tmpfs (mode 0755) at DIR")
	fs.Var(&tmpfsValue{target: &f.Directives.Tmpfs}, "tmpfs", "DIR[:SIZE[:MODE]] mount a tmpfs")
	fs.StringArrayVar(&f.Directives.Mqueues, "mqueue", nil, "mount a POSIX message queue filesystem at DIR")
	fs.Var(&dirValue{target: &f.Directives.Dirs}, "dir", "DIR[:MODE] create a directory")
	fs.Var(&fileValue{target: &f.Directives.Files}, "file", "FD:DST create an empty file at DST (the FD is validated but not read)")
	fs.Var(&symlinkValue{target: &f.Directives.Symlinks}, "symlink", "SRC:DST create a symlink")
	fs.Var(&chmodValue{target: &f.Directives.Chmods}, "chmod", "OCTAL:PATH chmod a path")

	fs.Uint32Var(&f.Perms, "perms", 0, "default octal mode for --dir entries that omit one")
	fs.StringVar(&f.sizeRaw, "size", "", "default tmpfs size (N[K|M|G]) for --tmpfs entries that omit one")
}

func (f *MountFlags) resolve(fs *pflag.FlagSet) error {
	f.HasPerm = fs.Changed("perms")
	if fs.Changed("size") {
		kb, err := ParseSizeKb(f.sizeRaw)
		if err != nil {
			return err
		}
		f.SizeKb = kb
		f.HasSize = true
	}

	if f.HasPerm {
		for i := range f.Directives.Dirs {
			if f.Directives.Dirs[i].Mode == 0 {
				f.Directives.Dirs[i].Mode = f.Perms
			}
		}
	}
	if f.HasSize {
		for i := range f.Directives.Tmpfs {
			if f.Directives.Tmpfs[i].SizeKb == 0 {
				f.Directives.Tmpfs[i].SizeKb = f.SizeKb
			}
		}
	}
	return nil
}

// EnvFlags mirrors the original's EnvOptions group.
type EnvFlags struct {
	Chdir    string
	Clearenv bool
	Setenv   []string
	Unsetenv []string
}

func (f *EnvFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.Chdir, "chdir", "", "change directory to DIR before exec")
	fs.BoolVar(&f.Clearenv, "clearenv", false, "start the sandboxed process with an empty environment")
	fs.StringArrayVar(&f.Setenv, "setenv", nil, "VAR=VALUE to set in the sandboxed environment")
	fs.StringArrayVar(&f.Unsetenv, "unsetenv", nil, "VAR to remove from the sandboxed environment")
}

// DebugFlags mirrors the original's DebugOptions/GeneralOptions groups.
type DebugFlags struct {
	Version bool
	CliArgs bool
	Profile string
}

func (f *DebugFlags) register(fs *pflag.FlagSet) {
	fs.BoolVar(&f.Version, "version", false, "print version and exit")
	fs.BoolVar(&f.CliArgs, "cli-args", false, "log the command to run (its argv) and exit")
	fs.StringVar(&f.Profile, "profile", "", "load supplementary mount directives from a YAML file, appended after the CLI-given ones")
}
