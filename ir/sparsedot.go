package ir

import (
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/tileir/tileir/ir/layout"
	"github.com/tileir/tileir/types"
)

// Implied properties of 2:4 sparse dots: operand A is compressed by a factor
// of 2 along the contracting dimension, and each 16-bit metadata value covers
// 8 compressed elements (2-bit index each).
const (
	contractingFactor              = 2
	metadataElementsPerPackedValue = 8
)

// inputDTypes are the element types the sparse dot accepts for A and B.
var inputDTypes = types.SetWith(dtypes.Float16, dtypes.BFloat16)

// SparseDotOp computes `C = A ⊠ B` where A is 2:4 structured-sparse along
// the contracting dimension: A holds only the kept 2-of-4 elements, and Meta
// records which positions of each packed group are non-zero.
//
// Operands:
//   - A: rank-2, f16 or bf16, compressed contracting dimension.
//   - B: rank-2, same element type as A, full contracting dimension
//     (twice A's).
//   - C: rank-2 f32 accumulator; the result type equals C's type exactly.
//   - Meta: rank-2 i16 sparsity metadata, one value per 8 compressed
//     elements of A.
type SparseDotOp struct {
	A, B, C, Meta Value
	Attrs         Attributes

	result Value
}

// NewSparseDot builds a SparseDotOp, running result-type inference. It does
// not verify: callers that need full validation call Verify separately, the
// way the enclosing pipeline's verification pass does.
func NewSparseDot(a, b, c, meta Value) (*SparseDotOp, error) {
	op := &SparseDotOp{A: a, B: b, C: c, Meta: meta}
	resultTypes, err := op.InferReturnTypes()
	if err != nil {
		return nil, err
	}
	op.result = Value{Type: resultTypes[0]}
	return op, nil
}

// OpName implements Op.
func (op *SparseDotOp) OpName() string { return "sparse_dot" }

// Result implements Op.
func (op *SparseDotOp) Result() *Value { return &op.result }

// ResultName implements Op. The sparse dot has no suggested name; the
// surrounding tooling falls back to positional names.
func (op *SparseDotOp) ResultName() string { return "" }

// InferReturnTypes produces the op's result types from its operand types
// alone. The result type is the accumulator C's type, unchanged; when the
// operands are encoded, the result encoding is validated through the
// layout-inference capability of the dialect owning C's encoding.
//
// On any encoding-inference failure no partial result types are returned.
func (op *SparseDotOp) InferReturnTypes() ([]Type, error) {
	a, err := tensorOperand(op.A, "operand A")
	if err != nil {
		return nil, err
	}
	b, err := tensorOperand(op.B, "operand B")
	if err != nil {
		return nil, err
	}
	c, err := tensorOperand(op.C, "operand C")
	if err != nil {
		return nil, err
	}
	return SparseDotResultTypes(a, b, c)
}

// SparseDotResultTypes is the standalone type-inference entry point: it
// computes the result types of a sparse dot from the A, B and C operand
// types, usable before any op exists.
func SparseDotResultTypes(a, b, c TensorType) ([]Type, error) {
	if a.Encoding != nil {
		// The unencoded path assumes B and C unencoded too; that invariant is
		// re-checked by Verify, not here. The encoded path however requires
		// all three: a violation is a caller bug.
		if b.Encoding == nil || c.Encoding == nil {
			exceptions.Panicf("ir.SparseDotResultTypes: A is encoded (%s) but B or C is not", a.Encoding)
		}
		resultEncoding := c.Encoding
		dialect, err := layout.DialectOf(resultEncoding)
		if err != nil {
			return nil, err
		}
		inferrer, ok := dialect.(layout.DotOperandLayoutInferrer)
		if !ok {
			return nil, errors.Errorf("dialect %q owning encoding %s cannot infer dot-operand layouts",
				dialect.Name(), resultEncoding)
		}
		if _, err := inferrer.InferDotOperandEncoding(a.Encoding, 0, resultEncoding); err != nil {
			return nil, err
		}
		if _, err := inferrer.InferDotOperandEncoding(b.Encoding, 1, resultEncoding); err != nil {
			return nil, err
		}
	}
	// The result type is the same as the accumulator.
	return []Type{c}, nil
}

// Verify implements Op. Checks run in a fixed order and the first failure
// wins: element types of A and B, then C; ranks; the combined cross-shape
// relation; A/B element-type equality; metadata type, rank and shape
// relations; finally encoding presence and delegated compatibility.
func (op *SparseDotOp) Verify() error {
	// Verify operand A.
	a, err := tensorOperand(op.A, "operand A")
	if err != nil {
		return err
	}
	if !inputDTypes.Has(a.DType()) {
		return errors.Errorf("element type of operand A is not supported: %s", a.DType())
	}
	if a.Rank() != 2 {
		return errors.Errorf("shape of operand A is incorrect: %s", a.ShapeOf)
	}

	// Verify operand B.
	b, err := tensorOperand(op.B, "operand B")
	if err != nil {
		return err
	}
	if !inputDTypes.Has(b.DType()) {
		return errors.Errorf("element type of operand B is not supported: %s", b.DType())
	}
	if b.Rank() != 2 {
		return errors.Errorf("shape of operand B is incorrect: %s", b.ShapeOf)
	}

	// Verify operand C.
	c, err := tensorOperand(op.C, "operand C")
	if err != nil {
		return err
	}
	if c.DType() != dtypes.Float32 {
		return errors.Errorf("element type of operand C is not supported: %s", c.DType())
	}
	if c.Rank() != 2 {
		return errors.Errorf("shape of operand C is incorrect: %s", c.ShapeOf)
	}

	// Check operand dependencies. This is deliberately one combined check
	// with one undifferentiated message.
	if a.ShapeOf.Dim(0) != c.ShapeOf.Dim(0) || b.ShapeOf.Dim(1) != c.ShapeOf.Dim(1) ||
		b.ShapeOf.Dim(0) != a.ShapeOf.Dim(1)*contractingFactor {
		return errors.Errorf("operand shape dimensions are incorrect: A=%s B=%s C=%s",
			a.ShapeOf, b.ShapeOf, c.ShapeOf)
	}
	if a.DType() != b.DType() {
		return errors.Errorf("operand element types do not match: A=%s B=%s", a.DType(), b.DType())
	}

	// Verify sparse metadata.
	meta, err := tensorOperand(op.Meta, "metadata operand")
	if err != nil {
		return err
	}
	if meta.DType() != dtypes.Int16 || meta.Rank() != 2 {
		return errors.Errorf("sparse metadata tensor is invalid: %s", meta.ShapeOf)
	}
	if meta.ShapeOf.Dim(0) != a.ShapeOf.Dim(0) ||
		meta.ShapeOf.Dim(1)*metadataElementsPerPackedValue != a.ShapeOf.Dim(1) {
		return errors.Errorf("sparse metadata shape dimensions are incorrect: meta=%s A=%s",
			meta.ShapeOf, a.ShapeOf)
	}

	// Verify tensor encoding.
	aEncoding, bEncoding := a.Encoding, b.Encoding
	if aEncoding == nil && bEncoding == nil {
		return nil
	}
	if aEncoding == nil || bEncoding == nil {
		return errors.Errorf("mismatching encoding between A and B operands")
	}
	dialect, err := layout.DialectOf(aEncoding)
	if err != nil {
		return err
	}
	inferrer, ok := dialect.(layout.DotOperandLayoutInferrer)
	if !ok {
		return errors.Errorf("dialect %q owning encoding %s cannot verify dot-operand layouts",
			dialect.Name(), aEncoding)
	}
	return inferrer.VerifyDotEncodingCompatibility(op, aEncoding, bEncoding)
}

// String renders the generic n-ary form, e.g.
//
//	sparse_dot %a, %b, %c, %meta : (4x8xbf16, 16x4xbf16, 4x4xf32, 4x1xi16) -> 4x4xf32
func (op *SparseDotOp) String() string {
	var sb strings.Builder
	sb.WriteString(op.OpName())
	sb.WriteByte(' ')
	operands := []Value{op.A, op.B, op.C, op.Meta}
	for i, operand := range operands {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(operand.String())
	}
	writeAttrs(&sb, op.Attrs)
	sb.WriteString(" : (")
	for i, operand := range operands {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(operand.Type.String())
	}
	sb.WriteString(") -> ")
	sb.WriteString(op.result.Type.String())
	return sb.String()
}
