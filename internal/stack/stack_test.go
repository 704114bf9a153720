package stack

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsZero(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
}

func TestNewRejectsNonMultipleOfPageSize(t *testing.T) {
	_, err := New(pageSize + 1)
	require.Error(t, err)
}

func TestNewAllocatesAndCloses(t *testing.T) {
	s, err := New(pageSize * 4)
	require.NoError(t, err)
	defer s.Close()

	require.Len(t, s.Slice(), pageSize*4)
	require.NotZero(t, s.Top())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestTopIsStableAcrossCalls(t *testing.T) {
	s, err := New(pageSize * 2)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, s.Top(), s.Top())
}
