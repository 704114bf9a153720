package mountutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMountInfoLine(t *testing.T) {
	line := `36 35 98:0 /mnt1 /mnt2 rw,noatime master:1 - ext3 /dev/root rw,errors=continue`
	info, err := parseMountInfoLine(line)
	require.NoError(t, err)
	require.Equal(t, "/mnt2", info.Mountpoint)
	require.Equal(t, "ext3", info.Fstype)
	require.Equal(t, "/dev/root", info.Source)
	require.Equal(t, 98, info.Major)
	require.Equal(t, 0, info.Minor)
	require.Contains(t, info.Options, "rw")
	require.Contains(t, info.Options, "errors=continue")
}

func TestParseMountInfoLineMalformed(t *testing.T) {
	_, err := parseMountInfoLine("not a valid mountinfo line")
	require.Error(t, err)
}

func TestFindMount(t *testing.T) {
	mounts := []*Info{{Mountpoint: "/a"}, {Mountpoint: "/b"}}
	require.True(t, FindMount("/b", mounts))
	require.False(t, FindMount("/c", mounts))
}

func TestMountedWithFs(t *testing.T) {
	mounts := []*Info{{Mountpoint: "/tmp", Fstype: "tmpfs"}}
	require.True(t, MountedWithFs("/tmp", "tmpfs", mounts))
	require.False(t, MountedWithFs("/tmp", "ext4", mounts))
}

func TestIsMountPointRoot(t *testing.T) {
	ok, err := IsMountPoint("/")
	require.NoError(t, err)
	require.True(t, ok)
}
