package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	s := MakeSet[int]()
	require.Len(t, s, 0)
	s.Insert(7, 11)
	require.True(t, s.Has(7))
	require.True(t, s.Has(11))
	require.False(t, s.Has(3))

	s2 := SetWith("a", "b", "a")
	require.Len(t, s2, 2)
	require.True(t, s2.Has("a"))
	require.False(t, s2.Has("c"))
}
