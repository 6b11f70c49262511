package ir

import (
	"strings"

	"github.com/pkg/errors"
)

// InsertOp writes a tile-shaped sub-tensor into a tiled-tensor view at
// dynamic 32-bit integer offsets, yielding an updated full tensor value.
// The update is functional: the destination is not mutated in place.
type InsertOp struct {
	Src     Value   // the tile being written
	Dst     Value   // the tiled-tensor view being written into
	Offsets []Value // dynamic i32 offsets
	Attrs   Attributes

	result Value
}

// NewInsert builds an InsertOp. The result type is the original (full
// tensor) type of the destination view.
func NewInsert(src, dst Value, offsets []Value, attrs Attributes) *InsertOp {
	op := &InsertOp{Src: src, Dst: dst, Offsets: offsets, Attrs: attrs.clone()}
	if viewType, ok := dst.Type.(TiledTensorType); ok {
		op.result = Value{Type: viewType.Original}
	}
	return op
}

// OpName implements Op.
func (op *InsertOp) OpName() string { return "insert" }

// Result implements Op.
func (op *InsertOp) Result() *Value { return &op.result }

// ResultName implements Op.
func (op *InsertOp) ResultName() string { return "inserted_tile" }

// Verify implements Op.
func (op *InsertOp) Verify() error {
	src, err := tensorOperand(op.Src, "source tile")
	if err != nil {
		return err
	}
	if src.Rank() == 0 {
		return errors.Errorf("cannot insert a 0-d tensor")
	}
	dst, err := tiledOperand(op.Dst, "destination")
	if err != nil {
		return err
	}
	// Offsets address the original tensor of the destination view.
	if dst.Rank() != len(op.Offsets) {
		return errors.Errorf("destination tensor rank does not match number of offsets")
	}
	if !src.Equal(dst.Tile) {
		return errors.Errorf("source tile type %s does not match the tile type of the destination %s", src, dst)
	}
	result, err := tensorOperand(op.result, "result")
	if err != nil {
		return err
	}
	if !result.Equal(dst.Original) {
		return errors.Errorf("result type %s does not match the original type of the destination %s", result, dst)
	}
	return verifyOffsetOperands(op.Offsets)
}

// String renders e.g. "insert %tile into %view[%i, %j] : 8x8xf32 into 64x64xf32".
func (op *InsertOp) String() string {
	viewType := op.Dst.Type.(TiledTensorType)
	var sb strings.Builder
	sb.WriteString(op.OpName())
	sb.WriteByte(' ')
	sb.WriteString(op.Src.String())
	sb.WriteString(" into ")
	sb.WriteString(op.Dst.String())
	sb.WriteByte('[')
	interleaveValues(&sb, op.Offsets)
	sb.WriteByte(']')
	writeAttrs(&sb, op.Attrs)
	sb.WriteString(" : ")
	sb.WriteString(viewType.Tile.String())
	sb.WriteString(" into ")
	sb.WriteString(viewType.Original.String())
	return sb.String()
}
