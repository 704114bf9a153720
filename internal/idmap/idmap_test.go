package idmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderMapNormalCase(t *testing.T) {
	w := &Writer{}
	got := w.renderMap(100000, 1000, 65534)
	require.Equal(t, "100000 1000 1\n", string(got))
}

func TestRenderMapRootMapping(t *testing.T) {
	w := &Writer{flags: Flags{MapRoot: true}}
	got := w.renderMap(100000, 1000, 65534)
	require.Equal(t, "0 65534 1\n100000 1000 1\n", string(got))
}

func TestRenderMapRootNotAppliedWhenRealIsRoot(t *testing.T) {
	w := &Writer{flags: Flags{MapRoot: true}}
	got := w.renderMap(100000, 0, 65534)
	require.Equal(t, "100000 0 1\n", string(got))
}

func TestRenderMapRootNotAppliedWhenSandboxIsRoot(t *testing.T) {
	w := &Writer{flags: Flags{MapRoot: true}}
	got := w.renderMap(0, 1000, 65534)
	require.Equal(t, "0 1000 1\n", string(got))
}
