package layout

import (
	"fmt"

	"github.com/pkg/errors"
)

// gpuDialect owns the distributed GPU encodings: Blocked for dot results and
// DotOperand for the two dot inputs. It implements DotOperandLayoutInferrer.
type gpuDialect struct{}

func (gpuDialect) Name() string { return "gpu" }

// GPU is the dialect instance owning the Blocked and DotOperand encodings.
var GPU Dialect = gpuDialect{}

func init() {
	RegisterKind("gpu.blocked", GPU)
	RegisterKind("gpu.dot_operand", GPU)
}

// Blocked is the distributed layout of a dot result: values are spread over
// Warps warps of the CTA. It is deliberately coarse -- the op verifiers only
// ever compare encodings for equality or hand them to the dialect.
type Blocked struct {
	Warps int
}

func (b Blocked) Kind() string { return "gpu.blocked" }

func (b Blocked) String() string {
	return fmt.Sprintf("gpu.blocked<%d>", b.Warps)
}

// DotOperand marks a tensor as operand OperandIdx (0 for A, 1 for B) of a dot
// whose result carries the Parent encoding.
type DotOperand struct {
	OperandIdx int
	Parent     Encoding
}

func (d DotOperand) Kind() string { return "gpu.dot_operand" }

func (d DotOperand) String() string {
	return fmt.Sprintf("gpu.dot_operand<%d, %s>", d.OperandIdx, d.Parent)
}

// InferDotOperandEncoding checks that encoding is the dot-operand layout for
// the given operand index derived from the result encoding, and returns it.
func (gpuDialect) InferDotOperandEncoding(encoding Encoding, operandIdx int, result Encoding) (Encoding, error) {
	operand, ok := encoding.(DotOperand)
	if !ok {
		return nil, errors.Errorf("operand #%d encoding %s is not a dot-operand layout", operandIdx, encoding)
	}
	if operand.OperandIdx != operandIdx {
		return nil, errors.Errorf("operand #%d carries the layout of operand #%d (%s)", operandIdx, operand.OperandIdx, encoding)
	}
	if !Equal(operand.Parent, result) {
		return nil, errors.Errorf("operand #%d layout %s is not derived from the result layout %s", operandIdx, encoding, result)
	}
	return operand, nil
}

// VerifyDotEncodingCompatibility checks that a and b are the two operand
// layouts of one and the same dot.
func (gpuDialect) VerifyDotEncodingCompatibility(op fmt.Stringer, a, b Encoding) error {
	aOperand, aOk := a.(DotOperand)
	bOperand, bOk := b.(DotOperand)
	if !aOk || !bOk {
		return errors.Errorf("op %q: operand encodings %s and %s must both be dot-operand layouts", op, a, b)
	}
	if aOperand.OperandIdx != 0 || bOperand.OperandIdx != 1 {
		return errors.Errorf("op %q: operand encodings have wrong operand indices (%d and %d)", op, aOperand.OperandIdx, bOperand.OperandIdx)
	}
	if !Equal(aOperand.Parent, bOperand.Parent) {
		return errors.Errorf("op %q: operand encodings disagree on the result layout (%s vs %s)", op, aOperand.Parent, bOperand.Parent)
	}
	return nil
}
