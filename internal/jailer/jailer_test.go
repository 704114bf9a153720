package jailer

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nestybox/sysbox-libs/enclave/internal/jail"
)

func TestWithStackBytesRejectsBelowFloor(t *testing.T) {
	_, err := NewBuilder().WithStackBytes(minStackBytes - 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "64")
}

func TestWithStackBytesAcceptsFloor(t *testing.T) {
	b, err := NewBuilder().WithStackBytes(minStackBytes)
	require.NoError(t, err)
	require.Equal(t, minStackBytes, b.stackBytes)
}

func TestBuildAllocatesStack(t *testing.T) {
	j, err := NewBuilder().Build()
	require.NoError(t, err)
	require.NotNil(t, j.stack)
	require.NoError(t, j.stack.Close())
}

// SpawnBlocking clones a real task and runs the full C10 sequence, which
// needs CAP_SYS_ADMIN; it is exercised end-to-end only as root.
func TestSpawnBlockingEchoExitCode(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("requires root to mount/pivot_root")
	}

	j, err := NewBuilder().Build()
	require.NoError(t, err)

	base := t.TempDir()
	cfg := jail.Config{
		Base:        base,
		NewRootPath: base + "/newroot",
		OldRootPath: base + "/oldroot",
		Argv:        []string{"/bin/true"},
		Envp:        os.Environ(),
	}

	handle, err := j.SpawnBlocking(cfg, 0)
	require.NoError(t, err)
	defer handle.Close()

	code, err := handle.Execute(func() error { return nil })
	require.NoError(t, err)
	require.Equal(t, 0, code)
}
