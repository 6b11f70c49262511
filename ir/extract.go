package ir

import (
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// ExtractOp reads a tile-shaped sub-tensor out of a tiled-tensor view at
// dynamic (runtime-valued) 32-bit integer offsets, one per axis of the
// source view.
type ExtractOp struct {
	Src     Value   // the tiled-tensor view being read
	Offsets []Value // dynamic i32 offsets
	Attrs   Attributes

	result Value
}

// NewExtract builds an ExtractOp. The result type is the tile type of the
// source view.
func NewExtract(src Value, offsets []Value, attrs Attributes) *ExtractOp {
	op := &ExtractOp{Src: src, Offsets: offsets, Attrs: attrs.clone()}
	if viewType, ok := src.Type.(TiledTensorType); ok {
		op.result = Value{Type: viewType.Tile}
	}
	return op
}

// OpName implements Op.
func (op *ExtractOp) OpName() string { return "extract" }

// Result implements Op.
func (op *ExtractOp) Result() *Value { return &op.result }

// ResultName implements Op.
func (op *ExtractOp) ResultName() string { return "extracted_tile" }

// Verify implements Op.
func (op *ExtractOp) Verify() error {
	result, err := tensorOperand(op.result, "result")
	if err != nil {
		return err
	}
	if result.Rank() == 0 {
		return errors.Errorf("cannot extract a 0-d tensor")
	}
	src, err := tiledOperand(op.Src, "source")
	if err != nil {
		return err
	}
	// Offsets address the original tensor, so they are counted against the
	// source view's rank, not the result's.
	if src.Rank() != len(op.Offsets) {
		return errors.Errorf("source tensor rank does not match number of offsets")
	}
	if !result.Equal(src.Tile) {
		return errors.Errorf("result type %s does not match the tile type of the source %s", result, src)
	}
	return verifyOffsetOperands(op.Offsets)
}

// String renders e.g. "extract %view[%i, %j] : 64x64xf32 to 8x8xf32".
func (op *ExtractOp) String() string {
	viewType := op.Src.Type.(TiledTensorType)
	var sb strings.Builder
	sb.WriteString(op.OpName())
	sb.WriteByte(' ')
	sb.WriteString(op.Src.String())
	sb.WriteByte('[')
	interleaveValues(&sb, op.Offsets)
	sb.WriteByte(']')
	writeAttrs(&sb, op.Attrs)
	sb.WriteString(" : ")
	sb.WriteString(viewType.Original.String())
	sb.WriteString(" to ")
	sb.WriteString(viewType.Tile.String())
	return sb.String()
}

// verifyOffsetOperands checks every dynamic offset is a 32-bit integer scalar.
func verifyOffsetOperands(offsets []Value) error {
	for i, offset := range offsets {
		t, ok := offset.Type.(TensorType)
		if !ok || !t.ShapeOf.IsScalar() || t.DType() != dtypes.Int32 {
			return errors.Errorf("offset operand #%d (%s) must be a 32-bit integer, got %s", i, offset, offset.Type)
		}
	}
	return nil
}

func interleaveValues(sb *strings.Builder, values []Value) {
	for i, v := range values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(v.String())
	}
}
