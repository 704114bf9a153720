package checks

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRelease(t *testing.T) {
	major, minor, err := parseRelease("6.5.0-generic")
	require.NoError(t, err)
	require.Equal(t, 6, major)
	require.Equal(t, 5, minor)
}

func TestParseReleaseMalformed(t *testing.T) {
	_, _, err := parseRelease("not-a-kernel-release")
	require.Error(t, err)
}

func TestOnlyDigits(t *testing.T) {
	require.Equal(t, "5", onlyDigits("5-generic"))
	require.Equal(t, "19", onlyDigits("19"))
}

func TestNamespaceSupportedUnknownKindIsFalse(t *testing.T) {
	require.False(t, NamespaceSupported(NamespaceKind("not-a-real-namespace")))
}

func TestCloneFlagSupportedUnknownFlag(t *testing.T) {
	require.False(t, CloneFlagSupported(uintptr(0xdeadbeef)))
}
