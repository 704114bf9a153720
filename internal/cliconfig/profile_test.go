package cliconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nestybox/sysbox-libs/enclave/internal/mountplan"
)

const sampleProfile = `
binds:
  - src: /etc/resolv.conf
    dst: /etc/resolv.conf
tmpfs:
  - target: /tmp
    sizeKb: 1024
overlays:
  - lower: ["/a", "/b"]
    target: /merged
    rw: true
`

func TestLoadProfileAndApplyTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleProfile), 0o644))

	p, err := LoadProfile(path)
	require.NoError(t, err)

	var d mountplan.Directives
	p.ApplyTo(&d)

	require.Len(t, d.Binds, 1)
	require.Equal(t, "/etc/resolv.conf", d.Binds[0].Src)
	require.Len(t, d.Tmpfs, 1)
	require.Equal(t, 1024, d.Tmpfs[0].SizeKb)
	require.Len(t, d.Overlays, 1)
	require.Equal(t, mountplan.OverlayReadWrite, d.Overlays[0].Mode)
}

func TestLoadProfileMissingFile(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
