package mountplan

import (
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestExecuteFsCreateDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	plan := Plan{fileCmd(CreateDir{Path: "/a/b", Mode: 0o755})}

	require.NoError(t, ExecuteFs(fs, plan))

	info, err := fs.Stat("/a/b")
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestExecuteFsChmod(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/a", 0o700))

	plan := Plan{sysCmd(Chmod{Path: "/a", Mode: 0o700})}
	require.NoError(t, ExecuteFs(fs, plan))

	info, err := fs.Stat("/a")
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestExecuteFsStopsAtFirstFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	plan := Plan{
		sysCmd(Chmod{Path: "/does-not-exist", Mode: 0o755}),
		fileCmd(CreateDir{Path: "/never-reached", Mode: 0o755}),
	}

	err := ExecuteFs(fs, plan)
	require.Error(t, err)

	_, statErr := fs.Stat("/never-reached")
	require.Error(t, statErr)
}

func TestMkdirAllRawCreatesNestedDirs(t *testing.T) {
	root := t.TempDir()
	target := root + "/a/b/c"

	require.NoError(t, mkdirAllRaw(target, 0o755))

	info, err := os.Stat(target)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestMkdirAllRawToleratesExistingDirs(t *testing.T) {
	root := t.TempDir()
	target := root + "/a/b"

	require.NoError(t, mkdirAllRaw(target, 0o755))
	require.NoError(t, mkdirAllRaw(target, 0o755))
}
