package privsep

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nestybox/sysbox-libs/enclave/internal/mountplan"
)

func TestSendListenRoundTrip(t *testing.T) {
	parentFd, childFd, err := socketpair()
	require.NoError(t, err)

	supervisor := Supervisor{fd: parentFd}
	worker := Worker{fd: childFd}

	want := mountplan.Command{Mount: mountplan.Bind{Src: "/tmp", Dst: "/mnt/tmp", ReadOnly: true}}

	var got mountplan.Command
	done := make(chan error, 1)
	go func() {
		done <- supervisor.Listen(func(cmd mountplan.Command) error {
			got = cmd
			return worker.Close()
		})
	}()

	require.NoError(t, worker.Send(want))
	require.NoError(t, <-done)
	require.Equal(t, want, got)
	require.NoError(t, supervisor.Close())
}

func TestListenStopsOnEOF(t *testing.T) {
	parentFd, childFd, err := socketpair()
	require.NoError(t, err)

	supervisor := Supervisor{fd: parentFd}
	worker := Worker{fd: childFd}
	require.NoError(t, worker.Close())

	require.NoError(t, supervisor.Listen(func(mountplan.Command) error {
		t.Fatal("handler should not be called when worker closes immediately")
		return nil
	}))
	require.NoError(t, supervisor.Close())
}
