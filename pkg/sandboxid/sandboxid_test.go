package sandboxid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProducesDistinctIDs(t *testing.T) {
	a := New()
	b := New()
	require.NotEqual(t, a.LongID(), b.LongID())
}

func TestShortIDIsPrefixOfLongID(t *testing.T) {
	id := New()
	require.True(t, len(id.ShortID()) < len(id.LongID()))
	require.Equal(t, id.LongID()[:len(id.ShortID())], id.ShortID())
}
