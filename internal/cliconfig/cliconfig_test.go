package cliconfig

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestParseSizeKb(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"1024", 1024, false},
		{"4K", 4, false},
		{"2M", 2048, false},
		{"1G", 1024 * 1024, false},
		{"", 0, true},
		{"5Q", 0, true},
		{"-1", 0, true},
	}
	for _, c := range cases {
		got, err := ParseSizeKb(c.in)
		if c.wantErr {
			require.Error(t, err, c.in)
			continue
		}
		require.NoError(t, err, c.in)
		require.Equal(t, c.want, got, c.in)
	}
}

func newParsedConfig(t *testing.T, args []string) (*Config, *pflag.FlagSet) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c := Register(fs)
	require.NoError(t, fs.Parse(args))
	return c, fs
}

func TestBindFlagParsesSrcDst(t *testing.T) {
	c, fs := newParsedConfig(t, []string{"--bind", "/etc:/etc", "--ro-bind", "/usr:/usr"})
	require.NoError(t, c.Mount.resolve(fs))
	require.Equal(t, []string{"/etc", "/etc"}, []string{c.Mount.Directives.Binds[0].Src, c.Mount.Directives.Binds[0].Dst})
	require.Len(t, c.Mount.Directives.ROBinds, 1)
}

func TestBindFlagRejectsMissingColon(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Register(fs)
	err := fs.Parse([]string{"--bind", "/etc"})
	require.Error(t, err)
}

func TestTmpfsFlagOptionalSizeAndMode(t *testing.T) {
	c, fs := newParsedConfig(t, []string{"--tmpfs", "/tmp/x", "--tmpfs", "/tmp/y:4M:0755"})
	require.NoError(t, c.Mount.resolve(fs))
	require.Len(t, c.Mount.Directives.Tmpfs, 2)
	require.Equal(t, 0, c.Mount.Directives.Tmpfs[0].SizeKb)
	require.Equal(t, 4096, c.Mount.Directives.Tmpfs[1].SizeKb)
	require.Equal(t, uint32(0o755), c.Mount.Directives.Tmpfs[1].Mode)
}

func TestSizeFlagFillsOmittedTmpfsSize(t *testing.T) {
	c, fs := newParsedConfig(t, []string{"--tmpfs", "/tmp/x", "--size", "8M"})
	require.NoError(t, c.Mount.resolve(fs))
	require.Equal(t, 8192, c.Mount.Directives.Tmpfs[0].SizeKb)
}

func TestPermsFlagFillsOmittedDirMode(t *testing.T) {
	c, fs := newParsedConfig(t, []string{"--dir", "/a", "--dir", "/b:0700", "--perms", "0755"})
	require.NoError(t, c.Mount.resolve(fs))
	require.Equal(t, uint32(0o755), c.Mount.Directives.Dirs[0].Mode)
	require.Equal(t, uint32(0o700), c.Mount.Directives.Dirs[1].Mode)
}

func TestValidateUsernsConflictsWithUnshareUser(t *testing.T) {
	c, fs := newParsedConfig(t, []string{"--userns", "0", "--unshare-user"})
	require.NoError(t, c.Mount.resolve(fs))
	c.User.resolve(fs)
	err := c.validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "--userns")
}

func TestValidateSwitchUsernsRequiresUnshareUser(t *testing.T) {
	c, fs := newParsedConfig(t, []string{"--switch-userns", "0"})
	require.NoError(t, c.Mount.resolve(fs))
	c.User.resolve(fs)
	err := c.validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "--switch-userns")
}

func TestValidateHostnameRequiresUnshareUTS(t *testing.T) {
	c, fs := newParsedConfig(t, []string{"--hostname", "sandbox"})
	require.NoError(t, c.Mount.resolve(fs))
	c.User.resolve(fs)
	c.Argv = []string{"/bin/true"}
	err := c.validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "--hostname")
}

func TestValidateRejectsMissingExecutable(t *testing.T) {
	c, fs := newParsedConfig(t, nil)
	require.NoError(t, c.Mount.resolve(fs))
	c.User.resolve(fs)
	err := c.validate()
	require.Error(t, err)
}

func TestValidateAllowsVersionWithoutExecutable(t *testing.T) {
	c, fs := newParsedConfig(t, []string{"--version"})
	require.NoError(t, c.Mount.resolve(fs))
	c.User.resolve(fs)
	require.NoError(t, c.validate())
}

func TestValidateSetenvRequiresEquals(t *testing.T) {
	c, fs := newParsedConfig(t, []string{"--setenv", "NOEQUALS"})
	require.NoError(t, c.Mount.resolve(fs))
	c.User.resolve(fs)
	c.Argv = []string{"/bin/true"}
	err := c.validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "--setenv")
}

func TestBuildEnvClearenvDropsInheritedEnvironment(t *testing.T) {
	c := &Config{Env: EnvFlags{Clearenv: true, Setenv: []string{"A=1"}}}
	env := c.BuildEnv()
	require.Equal(t, []string{"A=1"}, env)
}

func TestBuildEnvUnsetenvRemovesMatchingVar(t *testing.T) {
	c := &Config{Env: EnvFlags{Unsetenv: []string{"PATH"}}}
	env := c.BuildEnv()
	for _, kv := range env {
		require.False(t, strings.HasPrefix(kv, "PATH="), kv)
	}
}
