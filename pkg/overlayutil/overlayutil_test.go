package overlayutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildDataReadOnly(t *testing.T) {
	data := BuildData(Spec{Lower: []string{"/a", "/b"}})
	require.Equal(t, "lowerdir=/a:/b", data)
}

func TestBuildDataReadWrite(t *testing.T) {
	data := BuildData(Spec{Lower: []string{"/a"}, Upper: "/u", Work: "/w"})
	require.Equal(t, "lowerdir=/a,upperdir=/u,workdir=/w", data)
}

func TestExtraOptsDedupesAndExcludesGenericFlags(t *testing.T) {
	out := extraOpts([]string{"nodev", "index=on", "index=on", "ro"})
	require.Len(t, out, 1)
	require.Equal(t, "index=on", out[0])
}

func TestIsReadOnly(t *testing.T) {
	require.True(t, IsReadOnly(Spec{Lower: []string{"/a"}}))
	require.False(t, IsReadOnly(Spec{Lower: []string{"/a"}, Upper: "/u"}))
}
