/*
 *	Copyright 2024 The TileIR Authors
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	s := Make(dtypes.BFloat16, 4, 8)
	require.True(t, s.Ok())
	require.Equal(t, 2, s.Rank())
	require.Equal(t, []int{4, 8}, s.Dimensions)
	require.Equal(t, 32, s.Size())
	require.Equal(t, "(BFloat16)[4 8]", s.String())

	scalar := Make(dtypes.Float32)
	require.True(t, scalar.IsScalar())
	require.Equal(t, 1, scalar.Size())
	require.Equal(t, "(Float32)", scalar.String())

	require.Panics(t, func() { Make(dtypes.Float32, 4, 0) })
	require.Panics(t, func() { Make(dtypes.Float32, -1) })

	require.False(t, Invalid().Ok())
	require.False(t, Shape{}.Ok())
}

func TestDim(t *testing.T) {
	s := Make(dtypes.Int16, 4, 1)
	require.Equal(t, 4, s.Dim(0))
	require.Equal(t, 1, s.Dim(1))
	require.Equal(t, 1, s.Dim(-1))
	require.Equal(t, 4, s.Dim(-2))
	require.Panics(t, func() { s.Dim(2) })
	require.Panics(t, func() { s.Dim(-3) })
}

func TestEqualAndClone(t *testing.T) {
	s := Make(dtypes.Float32, 64, 64)
	require.True(t, s.Equal(Make(dtypes.Float32, 64, 64)))
	require.False(t, s.Equal(Make(dtypes.Float32, 64, 32)))
	require.False(t, s.Equal(Make(dtypes.Float16, 64, 64)))

	clone := s.Clone()
	require.True(t, s.Equal(clone))
	clone.Dimensions[0] = 1
	require.Equal(t, 64, s.Dimensions[0])
}

func TestChecksAndAsserts(t *testing.T) {
	s := Make(dtypes.Float32, 16, 4)
	require.NoError(t, s.CheckDims(16, 4))
	require.NoError(t, s.CheckDims(UncheckedAxis, 4))
	require.Error(t, s.CheckDims(16))
	require.Error(t, s.CheckDims(16, 8))

	require.NoError(t, s.Check(dtypes.Float32, 16, 4))
	require.Error(t, s.Check(dtypes.Float16, 16, 4))

	require.NoError(t, s.CheckRank(2))
	require.Error(t, s.CheckRank(1))

	require.NotPanics(t, func() { s.AssertDims(16, -1) })
	require.Panics(t, func() { s.AssertDims(4, 16) })
	require.NotPanics(t, func() { s.Assert(dtypes.Float32, 16, 4) })
	require.Panics(t, func() { s.Assert(dtypes.Int32, 16, 4) })
	require.NotPanics(t, func() { AssertRank(s, 2) })
	require.Panics(t, func() { AssertRank(s, 3) })
	require.NotPanics(t, func() { AssertDims(s, 16, 4) })
}
