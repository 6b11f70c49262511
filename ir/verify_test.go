package ir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tileir/tileir/internal/workerspool"
)

func TestVerifyAll(t *testing.T) {
	module, err := ParseModule(`%t = tile %a[0, 0][4, 8][1, 1] : tiled_tensor<4x8|4x8xbf16>
%x = extract %t[%i, %j] : 4x8xbf16 to 4x8xbf16
`)
	require.NoError(t, err)
	require.Empty(t, module.VerifyAll(nil))

	// Mutate an op into an ill-formed state: too few offsets.
	extract := module.Ops[1].(*ExtractOp)
	extract.Offsets = extract.Offsets[:1]
	failures := module.VerifyAll(workerspool.New(2))
	require.Len(t, failures, 1)
	require.ErrorContains(t, failures[0], "op #1 (extract)")
	require.ErrorContains(t, failures[0], "number of offsets")

	// Inline pools see the same failures.
	require.Len(t, module.VerifyAll(workerspool.New(0)), 1)
}
