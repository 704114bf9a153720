package hardener

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// These primitives wrap syscalls that require CAP_SYS_ADMIN or touch
// global process state (fsuid, NO_NEW_PRIVS); only the failure-free
// invariants that hold for any caller are exercised here.

func TestApplyNoNewPrivs(t *testing.T) {
	require.NoError(t, ApplyNoNewPrivs())
}

func TestSetuidRestrictFsToOwnUid(t *testing.T) {
	require.NoError(t, SetuidRestrictFs(os.Getuid()))
}
