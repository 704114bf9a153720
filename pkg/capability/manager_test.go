package capability

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestExpectedErrno(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"einval", errors.Wrap(unix.EINVAL, "drop"), true},
		{"eperm", errors.Wrap(unix.EPERM, "drop"), true},
		{"enotsup", errors.Wrap(unix.ENOTSUP, "drop"), true},
		{"eacces", errors.Wrap(unix.EACCES, "drop"), true},
		{"eio unexpected", errors.Wrap(unix.EIO, "drop"), false},
		{"non-errno", errors.New("boom"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, expectedErrno(tc.err))
		})
	}
}

func TestBitsToSetRoundTrip(t *testing.T) {
	low := uint32(1<<CAP_CHOWN) | uint32(1<<CAP_SYS_ADMIN)
	set := bitsToSet(low, 0)

	require.True(t, set.Contains(CAP_CHOWN))
	require.True(t, set.Contains(CAP_SYS_ADMIN))
	require.False(t, set.Contains(CAP_SETUID))
}

func TestCapIndex(t *testing.T) {
	i, bit := capIndex(CAP_CHOWN)
	require.Equal(t, 0, i)
	require.Equal(t, uint32(1), bit)

	i, bit = capIndex(Cap(35))
	require.Equal(t, 1, i)
	require.Equal(t, uint32(1<<3), bit)
}
