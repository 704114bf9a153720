package jail

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Most of this package's sequence requires CAP_SYS_ADMIN (mount,
// pivot_root) and is exercised only by the end-to-end scenarios in
// spec.md's testable properties, run against a real kernel. The pieces
// below hold for any caller.

func TestExecTargetRejectsEmptyArgv(t *testing.T) {
	err := execTarget(Config{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no target program")
}

func TestExecTargetReportsMissingBinary(t *testing.T) {
	err := execTarget(Config{Argv: []string{"/nonexistent-path-enclave-jail-test"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "/nonexistent-path-enclave-jail-test")
}

func TestApplyMountPlanDirectWithEmptyPlan(t *testing.T) {
	require.NoError(t, applyMountPlan(Config{Setuid: false, Plan: nil}))
}
