package procctx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadOverflowID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overflowuid")
	require.NoError(t, os.WriteFile(path, []byte("65534\n"), 0o644))

	id, err := readOverflowID(path)
	require.NoError(t, err)
	require.Equal(t, 65534, id)
}

func TestReadOverflowIDMissing(t *testing.T) {
	_, err := readOverflowID(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestReadOverflowIDUnparsable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overflowuid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-number\n"), 0o644))

	_, err := readOverflowID(path)
	require.Error(t, err)
}

func TestClassifyRoot(t *testing.T) {
	level, err := classify(0, 0)
	require.NoError(t, err)
	require.Equal(t, Root, level)
}

func TestClassifySetuid(t *testing.T) {
	level, err := classify(1000, 0)
	require.NoError(t, err)
	require.Equal(t, Setuid, level)
}

func TestClassifyUnsupportedNonRootMismatch(t *testing.T) {
	_, err := classify(1000, 1001)
	require.Error(t, err)
}

func TestReinitMinimalAcceptsOwnIdentity(t *testing.T) {
	// The test binary's own ruid/euid always satisfy ReinitMinimal's
	// check: either euid is 0, or ruid == euid (no setuid bit on a test
	// binary).
	require.NoError(t, ReinitMinimal())
}

func TestPrivilegeLevelString(t *testing.T) {
	require.Equal(t, "root", Root.String())
	require.Equal(t, "rootless", Rootless.String())
	require.Equal(t, "setuid", Setuid.String())
	require.Equal(t, "rootless-with-capabilities", RootlessWithCapabilities.String())
}
