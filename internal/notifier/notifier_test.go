package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignalAndWait(t *testing.T) {
	n, err := New()
	require.NoError(t, err)
	defer n.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		val, err := n.WaitForSignal()
		require.NoError(t, err)
		require.Equal(t, uint64(1), val)
	}()

	require.NoError(t, n.Signal())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForSignal never returned after Signal")
	}
}

func TestSignalCoalescesBeforeRead(t *testing.T) {
	n, err := New()
	require.NoError(t, err)
	defer n.Close()

	require.NoError(t, n.Signal())
	require.NoError(t, n.Signal())

	val, err := n.WaitForSignal()
	require.NoError(t, err)
	require.Equal(t, uint64(2), val)
}
