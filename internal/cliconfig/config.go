// Package cliconfig is the launcher's external-collaborator surface:
// cobra/pflag registration for spec.md's §6 flag groups, an optional
// --profile YAML manifest, and the validation that turns a parsed
// command line into an internal/enclosure.Options the hard engineering
// core can run. None of it is itself privileged -- every check here
// runs before any namespace, capability, or mount side effect.
package cliconfig

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/nestybox/sysbox-libs/enclave/internal/enclosure"
	"github.com/nestybox/sysbox-libs/enclave/internal/errkind"
	"github.com/nestybox/sysbox-libs/enclave/internal/mountplan"
	"github.com/nestybox/sysbox-libs/enclave/pkg/pathres"
)

// Config is the fully parsed, not-yet-validated command line.
type Config struct {
	Namespace NamespaceFlags
	User      UserFlags
	Mount     MountFlags
	Env       EnvFlags
	Debug     DebugFlags

	Argv []string
}

// Register attaches every flag group to fs and returns the Config whose
// fields they populate as pflag.Parse runs.
func Register(fs *pflag.FlagSet) *Config {
	c := &Config{}
	c.Namespace.register(fs)
	c.User.register(fs)
	c.Mount.register(fs)
	c.Env.register(fs)
	c.Debug.register(fs)
	return c
}

// Resolve finishes deriving Config fields that depend on which flags
// were actually passed (as opposed to left at their zero value),
// optionally merges a --profile manifest, loads the --profile file if
// given, and validates every prerequisite/mutual-exclusion rule from
// spec §6. argv is the executable-and-arguments tail left after flag
// parsing.
func (c *Config) Resolve(fs *pflag.FlagSet, argv []string) error {
	c.User.resolve(fs)
	if err := c.Mount.resolve(fs); err != nil {
		return errkind.New(errkind.Config, err)
	}
	c.Argv = argv

	if c.Debug.Profile != "" {
		profile, err := LoadProfile(c.Debug.Profile)
		if err != nil {
			return errkind.New(errkind.Config, err)
		}
		profile.ApplyTo(&c.Mount.Directives)
	}

	if err := c.validate(); err != nil {
		return errkind.New(errkind.Config, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.User.HasUserns && c.Namespace.UnshareUser {
		return errors.New("--userns cannot be combined with --unshare-user")
	}
	if c.User.HasSwitchUserns && !c.Namespace.UnshareUser {
		return errors.New("--switch-userns requires --unshare-user")
	}
	if c.User.DisableNestedUserns && !c.Namespace.UnshareUser {
		return errors.New("--disable-nested-userns requires --unshare-user")
	}
	if c.User.HasPidns && !c.Namespace.UnsharePID {
		return errors.New("--pidns requires --unshare-pid")
	}
	if c.User.HasUid && (!c.Namespace.UnshareUser || !c.User.HasUserns) {
		return errors.New("--uid requires --unshare-user and --userns")
	}
	if c.User.HasGid && (!c.Namespace.UnshareUser || !c.User.HasUserns) {
		return errors.New("--gid requires --unshare-user and --userns")
	}
	if c.User.HasHostname && !c.Namespace.UnshareUTS {
		return errors.New("--hostname requires --unshare-uts")
	}

	if c.User.HasUserns {
		if _, err := pathres.ValidFd(c.User.UsernsFd); err != nil {
			return errors.Wrap(err, "--userns")
		}
	}
	if c.User.HasSwitchUserns {
		if _, err := pathres.ValidFd(c.User.SwitchUsernsFd); err != nil {
			return errors.Wrap(err, "--switch-userns")
		}
	}
	if c.User.HasPidns {
		if _, err := pathres.ValidFd(c.User.PidnsFd); err != nil {
			return errors.Wrap(err, "--pidns")
		}
	}

	for _, kv := range c.Env.Setenv {
		if !strings.Contains(kv, "=") {
			return errors.Errorf("--setenv %q: expected VAR=VALUE", kv)
		}
	}

	if len(c.Argv) == 0 && !c.Debug.Version && !c.Debug.CliArgs {
		return errors.New("no executable given")
	}

	return nil
}

// ToOptions builds the enclosure.Options this run should execute.
// Resolve must have succeeded first.
func (c *Config) ToOptions() enclosure.Options {
	return enclosure.Options{
		UnshareAll:     c.Namespace.UnshareAll,
		UnshareIPC:     c.Namespace.UnshareIPC,
		UnsharePID:     c.Namespace.UnsharePID,
		UnshareNet:     c.Namespace.UnshareNet,
		UnshareUTS:     c.Namespace.UnshareUTS,
		UnshareCgroup:  c.Namespace.UnshareCgroup,
		UnshareUser:    c.Namespace.UnshareUser,
		UnshareFiles:   c.Namespace.UnshareFiles,
		UnshareFS:      c.Namespace.UnshareFS,
		UnshareNS:      c.Namespace.UnshareNS,
		UnshareTime:    c.Namespace.UnshareTime,
		UnshareSysvsem: c.Namespace.UnshareSysvsem,

		UsernsFd:        c.User.UsernsFd,
		HasUserns:       c.User.HasUserns,
		SwitchUsernsFd:  c.User.SwitchUsernsFd,
		HasSwitchUserns: c.User.HasSwitchUserns,

		Uid:         c.User.Uid,
		Gid:         c.User.Gid,
		HasUid:      c.User.HasUid,
		HasGid:      c.User.HasGid,
		Hostname:    c.User.Hostname,
		HasHostname: c.User.HasHostname,

		Base:  c.Mount.Directives.Base,
		Plan:  mountplan.Build(c.Mount.Directives),
		Chdir: c.Env.Chdir,

		Argv: c.Argv,
		Envp: c.BuildEnv(),
	}
}

// BuildEnv applies --clearenv, then --unsetenv, then --setenv to the
// current process environment, producing the envp the sandboxed process
// execs with.
func (c *Config) BuildEnv() []string {
	var env []string
	if !c.Env.Clearenv {
		env = os.Environ()
	}

	for _, u := range c.Env.Unsetenv {
		filtered := env[:0]
		prefix := u + "="
		for _, kv := range env {
			if !strings.HasPrefix(kv, prefix) {
				filtered = append(filtered, kv)
			}
		}
		env = filtered
	}

	env = append(env, c.Env.Setenv...)
	return env
}
