package ir

import (
	"fmt"
	"sync"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/tileir/tileir/ir/layout"
)

// Aliases
var (
	I16  = dtypes.Int16
	I32  = dtypes.Int32
	F16  = dtypes.Float16
	BF16 = dtypes.BFloat16
	F32  = dtypes.Float32
	F64  = dtypes.Float64
)

func val(name string, t Type) Value { return Value{Name: name, Type: t} }

// canonicalSparseDot returns the canonical well-formed operand tuple:
// A:4x8xbf16 (compressed), B:16x4xbf16, C:4x4xf32, meta:4x1xi16.
func canonicalSparseDot() (a, b, c, meta Value) {
	a = val("a", TensorOf(BF16, 4, 8))
	b = val("b", TensorOf(BF16, 16, 4))
	c = val("c", TensorOf(F32, 4, 4))
	meta = val("meta", TensorOf(I16, 4, 1))
	return
}

func TestSparseDotInferReturnTypes(t *testing.T) {
	a, b, c, meta := canonicalSparseDot()
	op, err := NewSparseDot(a, b, c, meta)
	require.NoError(t, err)

	// The result type is the accumulator's type, exactly.
	resultTypes, err := op.InferReturnTypes()
	require.NoError(t, err)
	require.Len(t, resultTypes, 1)
	require.True(t, c.Type.Equal(resultTypes[0]))
	require.True(t, c.Type.Equal(op.Result().Type))
}

func TestSparseDotVerify(t *testing.T) {
	a, b, c, meta := canonicalSparseDot()
	op, err := NewSparseDot(a, b, c, meta)
	require.NoError(t, err)
	require.NoError(t, op.Verify())

	// Each case violates exactly one relation of the canonical tuple.
	cases := []struct {
		name             string
		a, b, c, metaArg Value
	}{
		{"A element type not f16/bf16", val("a", TensorOf(F32, 4, 8)), b, c, meta},
		{"B element type not f16/bf16", a, val("b", TensorOf(F64, 16, 4)), c, meta},
		{"C element type not f32", a, b, val("c", TensorOf(F16, 4, 4)), meta},
		{"A not rank 2", val("a", TensorOf(BF16, 4, 8, 1)), b, c, meta},
		{"B not rank 2", a, val("b", TensorOf(BF16, 16)), c, meta},
		{"C not rank 2", a, b, val("c", TensorOf(F32, 4, 4, 1)), meta},
		{"row mismatch between A and C", val("a", TensorOf(BF16, 5, 8)), b, val("c", TensorOf(F32, 4, 4)), val("meta", TensorOf(I16, 5, 1))},
		{"column mismatch between B and C", a, val("b", TensorOf(BF16, 16, 5)), c, meta},
		{"B contracting dimension not twice A's", a, val("b", TensorOf(BF16, 15, 4)), c, meta},
		{"A and B element types differ", val("a", TensorOf(F16, 4, 8)), b, c, meta},
		{"metadata element type not i16", a, b, c, val("meta", TensorOf(I32, 4, 1))},
		{"metadata not rank 2", a, b, c, val("meta", TensorOf(I16, 4))},
		{"metadata row mismatch", a, b, c, val("meta", TensorOf(I16, 3, 1))},
		{"metadata columns times 8 != A columns", a, b, c, val("meta", TensorOf(I16, 4, 2))},
	}
	for _, test := range cases {
		op := &SparseDotOp{A: test.a, B: test.b, C: test.c, Meta: test.metaArg}
		require.Error(t, op.Verify(), "case %q should fail verification", test.name)
	}
}

// mockDialect lets the tests control what the layout collaborator returns.
type mockDialect struct {
	inferErr  error
	verifyErr error
}

func (*mockDialect) Name() string { return "mock" }

func (d *mockDialect) InferDotOperandEncoding(encoding layout.Encoding, operandIdx int, result layout.Encoding) (layout.Encoding, error) {
	if d.inferErr != nil {
		return nil, d.inferErr
	}
	return encoding, nil
}

func (d *mockDialect) VerifyDotEncodingCompatibility(op fmt.Stringer, a, b layout.Encoding) error {
	return d.verifyErr
}

type mockEncoding struct{ tag string }

func (e mockEncoding) Kind() string   { return "mock.layout" }
func (e mockEncoding) String() string { return "mock.layout<" + e.tag + ">" }

var (
	theMockDialect   = &mockDialect{}
	registerMockOnce sync.Once
)

func mockCollaborator() *mockDialect {
	registerMockOnce.Do(func() {
		layout.RegisterKind("mock.layout", theMockDialect)
	})
	theMockDialect.inferErr = nil
	theMockDialect.verifyErr = nil
	return theMockDialect
}

func TestSparseDotEncodings(t *testing.T) {
	dialect := mockCollaborator()
	encA := mockEncoding{tag: "a"}
	encB := mockEncoding{tag: "b"}
	encC := mockEncoding{tag: "c"}

	encoded := func(aEnc, bEnc, cEnc layout.Encoding) *SparseDotOp {
		a, b, c, meta := canonicalSparseDot()
		a.Type = a.Type.(TensorType).WithEncoding(aEnc)
		b.Type = b.Type.(TensorType).WithEncoding(bEnc)
		c.Type = c.Type.(TensorType).WithEncoding(cEnc)
		return &SparseDotOp{A: a, B: b, C: c, Meta: meta, result: Value{Type: c.Type}}
	}

	// Both null: trivially fine, the collaborator is never consulted.
	dialect.verifyErr = errors.New("must not be called")
	a, b, c, meta := canonicalSparseDot()
	op, err := NewSparseDot(a, b, c, meta)
	require.NoError(t, err)
	require.NoError(t, op.Verify())

	// Exactly one non-null, either side: mismatching encoding.
	dialect.verifyErr = nil
	require.ErrorContains(t, encoded(encA, nil, nil).Verify(), "mismatching encoding")
	require.ErrorContains(t, encoded(nil, encB, nil).Verify(), "mismatching encoding")

	// Both non-null: delegated, success propagated.
	require.NoError(t, encoded(encA, encB, encC).Verify())

	// Both non-null: delegated, failure propagated verbatim.
	collaboratorErr := errors.New("warp shuffle layout clash")
	dialect.verifyErr = collaboratorErr
	err = encoded(encA, encB, encC).Verify()
	require.Same(t, collaboratorErr, err)

	// Inference consults the collaborator too, and aborts on failure.
	dialect.verifyErr = nil
	op = encoded(encA, encB, encC)
	resultTypes, err := op.InferReturnTypes()
	require.NoError(t, err)
	require.True(t, op.C.Type.Equal(resultTypes[0]))

	dialect.inferErr = errors.New("not a dot operand layout")
	_, err = op.InferReturnTypes()
	require.ErrorContains(t, err, "not a dot operand layout")
}

func TestSparseDotGPUEncodings(t *testing.T) {
	parent := layout.Blocked{Warps: 4}
	encoded := func(aEnc, bEnc layout.Encoding) *SparseDotOp {
		a, b, c, meta := canonicalSparseDot()
		a.Type = a.Type.(TensorType).WithEncoding(aEnc)
		b.Type = b.Type.(TensorType).WithEncoding(bEnc)
		c.Type = c.Type.(TensorType).WithEncoding(parent)
		return &SparseDotOp{A: a, B: b, C: c, Meta: meta, result: Value{Type: c.Type}}
	}

	// Matching dot-operand layouts over the same parent.
	op := encoded(
		layout.DotOperand{OperandIdx: 0, Parent: parent},
		layout.DotOperand{OperandIdx: 1, Parent: parent})
	require.NoError(t, op.Verify())
	_, err := op.InferReturnTypes()
	require.NoError(t, err)

	// Disagreeing parents fail compatibility.
	op = encoded(
		layout.DotOperand{OperandIdx: 0, Parent: parent},
		layout.DotOperand{OperandIdx: 1, Parent: layout.Blocked{Warps: 8}})
	require.ErrorContains(t, op.Verify(), "disagree")

	// Swapped operand indices are rejected by inference.
	op = encoded(
		layout.DotOperand{OperandIdx: 1, Parent: parent},
		layout.DotOperand{OperandIdx: 0, Parent: parent})
	_, err = op.InferReturnTypes()
	require.Error(t, err)
}
