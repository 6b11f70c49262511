package layout

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeOp struct{}

func (fakeOp) String() string { return "sparse_dot" }

// orphanEncoding has a kind no dialect registered.
type orphanEncoding struct{}

func (orphanEncoding) Kind() string   { return "nowhere.layout" }
func (orphanEncoding) String() string { return "nowhere.layout<>" }

func TestRegistry(t *testing.T) {
	parent := Blocked{Warps: 4}

	dialect, err := DialectOf(parent)
	require.NoError(t, err)
	require.Equal(t, "gpu", dialect.Name())
	dialect, err = DialectOf(DotOperand{OperandIdx: 0, Parent: parent})
	require.NoError(t, err)
	require.Equal(t, "gpu", dialect.Name())

	_, err = DialectOf(orphanEncoding{})
	require.ErrorContains(t, err, "no dialect registered")

	require.Panics(t, func() { RegisterKind("gpu.blocked", GPU) })
}

func TestAliases(t *testing.T) {
	parent := Blocked{Warps: 2}
	RegisterAlias("mma2", parent)

	enc, found := ByAlias("mma2")
	require.True(t, found)
	require.True(t, Equal(parent, enc))

	alias, found := AliasOf(Blocked{Warps: 2})
	require.True(t, found)
	require.Equal(t, "mma2", alias)

	_, found = ByAlias("no_such_alias")
	require.False(t, found)

	// Re-registering the same binding is a no-op; rebinding panics.
	RegisterAlias("mma2", Blocked{Warps: 2})
	require.Panics(t, func() { RegisterAlias("mma2", Blocked{Warps: 16}) })
}

func TestEqual(t *testing.T) {
	require.True(t, Equal(nil, nil))
	require.False(t, Equal(Blocked{Warps: 4}, nil))
	require.False(t, Equal(nil, Blocked{Warps: 4}))
	require.True(t, Equal(Blocked{Warps: 4}, Blocked{Warps: 4}))
	require.False(t, Equal(Blocked{Warps: 4}, Blocked{Warps: 8}))
	require.True(t, Equal(
		DotOperand{OperandIdx: 1, Parent: Blocked{Warps: 4}},
		DotOperand{OperandIdx: 1, Parent: Blocked{Warps: 4}}))
}

func TestGPUDotOperandInference(t *testing.T) {
	parent := Blocked{Warps: 4}
	inferrer := GPU.(DotOperandLayoutInferrer)

	got, err := inferrer.InferDotOperandEncoding(DotOperand{OperandIdx: 0, Parent: parent}, 0, parent)
	require.NoError(t, err)
	require.True(t, Equal(DotOperand{OperandIdx: 0, Parent: parent}, got))

	_, err = inferrer.InferDotOperandEncoding(parent, 0, parent)
	require.ErrorContains(t, err, "not a dot-operand layout")

	_, err = inferrer.InferDotOperandEncoding(DotOperand{OperandIdx: 1, Parent: parent}, 0, parent)
	require.ErrorContains(t, err, "carries the layout of operand #1")

	_, err = inferrer.InferDotOperandEncoding(DotOperand{OperandIdx: 0, Parent: Blocked{Warps: 8}}, 0, parent)
	require.ErrorContains(t, err, "not derived from the result layout")
}

func TestGPUDotCompatibility(t *testing.T) {
	parent := Blocked{Warps: 4}
	inferrer := GPU.(DotOperandLayoutInferrer)
	a := DotOperand{OperandIdx: 0, Parent: parent}
	b := DotOperand{OperandIdx: 1, Parent: parent}

	require.NoError(t, inferrer.VerifyDotEncodingCompatibility(fakeOp{}, a, b))
	require.ErrorContains(t, inferrer.VerifyDotEncodingCompatibility(fakeOp{}, parent, b),
		"must both be dot-operand layouts")
	require.ErrorContains(t, inferrer.VerifyDotEncodingCompatibility(fakeOp{}, b, a),
		"wrong operand indices")
	require.ErrorContains(t,
		inferrer.VerifyDotEncodingCompatibility(fakeOp{}, a, DotOperand{OperandIdx: 1, Parent: Blocked{Warps: 8}}),
		"disagree on the result layout")
}

func TestEncodingStrings(t *testing.T) {
	require.Equal(t, "gpu.blocked<4>", Blocked{Warps: 4}.String())
	require.Equal(t, "gpu.dot_operand<1, gpu.blocked<4>>",
		DotOperand{OperandIdx: 1, Parent: Blocked{Warps: 4}}.String())
	require.Equal(t, "gpu.blocked", fmt.Sprintf("%s", Blocked{}.Kind()))
}
