package mountplan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildOrdering(t *testing.T) {
	d := Directives{
		Chmods:     []ChmodDirective{{Path: "/x", Mode: 0o700}},
		Symlinks:   []SymlinkDirective{{Link: "/a", Target: "/b"}},
		RemountROs: []string{"/ro"},
		Dirs:       []DirDirective{{Path: "/d"}},
		Tmpfs:      []TmpfsDirective{{Target: "/tmp"}},
		Mqueues:    []string{"/dev/mqueue"},
		Devs:       []string{"/dev"},
		Procs:      []string{"/proc"},
		ROBinds:    []BindDirective{{Src: "/usr", Dst: "/usr"}},
		DevBinds:   []BindDirective{{Src: "/dev/null", Dst: "/dev/null"}},
		Binds:      []BindDirective{{Src: "/etc", Dst: "/etc"}},
	}

	plan := Build(d)

	var kinds []string
	for _, cmd := range plan {
		switch v := cmd.Mount.(type) {
		case Bind:
			if v.MountDev {
				kinds = append(kinds, "dev-bind")
			} else if v.ReadOnly {
				kinds = append(kinds, "ro-bind")
			} else {
				kinds = append(kinds, "bind")
			}
		case Special:
			switch v.Kind {
			case SpecialProc:
				kinds = append(kinds, "proc")
			case SpecialDev:
				kinds = append(kinds, "dev")
			case SpecialTmpfs:
				kinds = append(kinds, "tmpfs")
			case SpecialMqueue:
				kinds = append(kinds, "mqueue")
			}
		}
		if cmd.File != nil {
			switch cmd.File.(type) {
			case CreateDir:
				kinds = append(kinds, "dir")
			case CreateSymlink:
				kinds = append(kinds, "symlink")
			case RemountReadOnly:
				kinds = append(kinds, "remount-ro")
			}
		}
		if cmd.Sys != nil {
			kinds = append(kinds, "chmod")
		}
	}

	require.Equal(t, []string{
		"bind", "dev-bind", "ro-bind",
		"proc", "dev", "tmpfs", "mqueue",
		"dir", "symlink", "remount-ro", "chmod",
	}, kinds)
}

func TestBuildEmitsCreateBindFileForBindFds(t *testing.T) {
	d := Directives{
		BindFds:   []BindFdDirective{{Fd: 3, Dst: "/dev/fd/3-target"}},
		ROBindFds: []BindFdDirective{{Fd: 4, Dst: "/dev/fd/4-target"}},
	}

	plan := Build(d)
	require.Len(t, plan, 2)

	rw, ok := plan[0].File.(CreateBindFile)
	require.True(t, ok, "bind-fd directive must produce a CreateBindFile, not CreateFile+Bind")
	require.Equal(t, "/dev/fd/3-target", rw.Dst)
	require.False(t, rw.ReadOnly)

	ro, ok := plan[1].File.(CreateBindFile)
	require.True(t, ok, "ro-bind-fd directive must produce a CreateBindFile, not CreateFile+Bind")
	require.Equal(t, "/dev/fd/4-target", ro.Dst)
	require.True(t, ro.ReadOnly)
}

func TestBuildIsPureNoIO(t *testing.T) {
	d := Directives{Binds: []BindDirective{{Src: "/nonexistent-src", Dst: "/nonexistent-dst"}}}
	require.NotPanics(t, func() { Build(d) })
}

func TestCodecRoundTripBind(t *testing.T) {
	cmd := mountCmd(Bind{Src: "/a", Dst: "/b", ReadOnly: true, MountDev: false})
	encoded, err := Encode(cmd)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, cmd, decoded)
}

func TestCodecRoundTripOverlay(t *testing.T) {
	cmd := mountCmd(Overlay{Lower: []string{"/l1", "/l2"}, Upper: "/u", Work: "/w", Target: "/t", Mode: OverlayReadWrite})
	encoded, err := Encode(cmd)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, cmd, decoded)
}

func TestCodecRoundTripAllFileOps(t *testing.T) {
	cases := []Command{
		fileCmd(CreateDir{Path: "/d", Mode: 0o755}),
		fileCmd(CreateFile{Dst: "/f", Fd: 3, Mode: 0o644}),
		fileCmd(CreateBindFile{Src: "/s", Dst: "/d", ReadOnly: true}),
		fileCmd(CreateSymlink{Link: "/l", Target: "/t"}),
		fileCmd(RemountReadOnly{Path: "/p"}),
		sysCmd(SetHostname{Hostname: "sandbox"}),
		sysCmd(Chmod{Path: "/p", Mode: 0o600}),
	}

	for _, cmd := range cases {
		encoded, err := Encode(cmd)
		require.NoError(t, err)
		decoded, err := Decode(encoded)
		require.NoError(t, err)
		require.Equal(t, cmd, decoded)
	}
}

func TestDecodeUnknownTagFails(t *testing.T) {
	_, err := Decode([]byte{0xff})
	require.Error(t, err)
}

func TestDecodeTruncatedFails(t *testing.T) {
	_, err := Decode([]byte{tagBind})
	require.Error(t, err)
}

func TestDecodeTrailingBytesFails(t *testing.T) {
	cmd := mountCmd(Bind{Src: "/a", Dst: "/b"})
	encoded, err := Encode(cmd)
	require.NoError(t, err)

	_, err = Decode(append(encoded, 0x00))
	require.Error(t, err)
}
