package enclosure

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/nestybox/sysbox-libs/enclave/internal/checks"
)

func TestResolveCloneFlagsEmptySelectionDefaultsToAll(t *testing.T) {
	got := ResolveCloneFlags(Options{})
	require.Equal(t, AllCloneFlags(), got)
}

func TestResolveCloneFlagsUnshareAllSelectsAll(t *testing.T) {
	got := ResolveCloneFlags(Options{UnshareAll: true})
	require.Equal(t, AllCloneFlags(), got)
}

func TestResolveCloneFlagsUnshareAllIgnoresOtherFields(t *testing.T) {
	got := ResolveCloneFlags(Options{UnshareAll: true, UnshareNet: false, UnsharePID: false})
	require.Equal(t, AllCloneFlags(), got)
}

func TestResolveCloneFlagsSingleRequestAlwaysIncludesMountNS(t *testing.T) {
	got := ResolveCloneFlags(Options{UnshareNet: true})
	require.NotZero(t, got&unix.CLONE_NEWNS, "a non-empty selection must always fold in CLONE_NEWNS")
}

func TestResolveCloneFlagsOnlyRequestedFlagsSet(t *testing.T) {
	got := ResolveCloneFlags(Options{UnshareUTS: true})

	want := uintptr(unix.CLONE_NEWNS)
	if checks.CloneFlagSupported(unix.CLONE_NEWUTS) {
		want |= unix.CLONE_NEWUTS
	}
	require.Equal(t, want, got)
	require.Zero(t, got&unix.CLONE_NEWNET)
	require.Zero(t, got&unix.CLONE_NEWPID)
}

func TestAllCloneFlagsOnlySetsSupportedBits(t *testing.T) {
	all := []uintptr{
		unix.CLONE_NEWIPC, unix.CLONE_NEWPID, unix.CLONE_NEWNET, unix.CLONE_NEWUTS,
		unix.CLONE_NEWCGROUP, unix.CLONE_NEWUSER, unix.CLONE_FILES, unix.CLONE_FS,
		unix.CLONE_NEWNS, unix.CLONE_NEWTIME, unix.CLONE_SYSVSEM,
	}

	got := AllCloneFlags()
	for _, flag := range all {
		if checks.CloneFlagSupported(flag) {
			require.NotZero(t, got&flag, "supported flag %#x must be set", flag)
		} else {
			require.Zero(t, got&flag, "unsupported flag %#x must not be set", flag)
		}
	}
}

func TestCandidatesCoversEveryUnshareField(t *testing.T) {
	o := Options{
		UnshareIPC: true, UnsharePID: true, UnshareNet: true, UnshareUTS: true,
		UnshareCgroup: true, UnshareUser: true, UnshareFiles: true, UnshareFS: true,
		UnshareNS: true, UnshareTime: true, UnshareSysvsem: true,
	}
	cs := candidates(o)
	require.Len(t, cs, 11)
	for _, c := range cs {
		require.True(t, c.requested)
	}
}
