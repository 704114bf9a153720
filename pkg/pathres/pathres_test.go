package pathres

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidFd(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "pathres")
	require.NoError(t, err)
	defer f.Close()

	got, err := ValidFd(int(f.Fd()))
	require.NoError(t, err)
	require.Equal(t, int(f.Fd()), got)
}

func TestValidFdRejectsClosed(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "pathres")
	require.NoError(t, err)
	fd := int(f.Fd())
	require.NoError(t, f.Close())

	_, err = ValidFd(fd)
	require.Error(t, err)
}

func TestRequireAbs(t *testing.T) {
	require.NoError(t, RequireAbs("/abs/path"))
	require.Error(t, RequireAbs("relative/path"))
}

func TestResolveFdPath(t *testing.T) {
	require.Equal(t, "/proc/self/fd/7", ResolveFdPath(7))
}
