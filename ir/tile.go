package ir

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// TileOp produces a tiled-tensor view of a full tensor given static offsets,
// sizes and strides, one of each per axis of the source tensor.
//
// No cross-validation among the offset/size/stride values themselves is
// performed: bounds safety is a downstream concern.
type TileOp struct {
	Tensor  Value // the full tensor being viewed
	Offsets []int32
	Sizes   []int32
	Strides []int64

	result Value
}

// NewTile builds a TileOp viewing tensor through the given tiled-tensor type.
func NewTile(tensor Value, offsets, sizes []int32, strides []int64, viewType TiledTensorType) *TileOp {
	return &TileOp{
		Tensor:  tensor,
		Offsets: offsets,
		Sizes:   sizes,
		Strides: strides,
		result:  Value{Type: viewType},
	}
}

// OpName implements Op.
func (op *TileOp) OpName() string { return "tile" }

// Result implements Op.
func (op *TileOp) Result() *Value { return &op.result }

// ResultName implements Op.
func (op *TileOp) ResultName() string { return "tiled_tensor" }

// Verify implements Op.
func (op *TileOp) Verify() error {
	tensor, err := tensorOperand(op.Tensor, "source tensor")
	if err != nil {
		return err
	}
	if tensor.Rank() == 0 {
		return errors.Errorf("cannot tile a 0-d tensor")
	}
	tensorRank := tensor.Rank()
	if tensorRank != len(op.Offsets) || tensorRank != len(op.Sizes) || tensorRank != len(op.Strides) {
		return errors.Errorf("mismatch between tensor rank and one or more of offsets/sizes/strides")
	}
	viewType, err := tiledOperand(op.result, "result")
	if err != nil {
		return err
	}
	if !tensor.Equal(viewType.Original) {
		return errors.Errorf("source tensor type %s does not match the original type of the result %s",
			tensor, viewType)
	}
	return nil
}

// String renders e.g. "tile %src[0, 16][8, 8][1, 1] : tiled_tensor<8x8|64x64xf32>".
func (op *TileOp) String() string {
	var sb strings.Builder
	sb.WriteString(op.OpName())
	sb.WriteByte(' ')
	sb.WriteString(op.Tensor.String())
	sb.WriteByte('[')
	interleaveInt32(&sb, op.Offsets)
	sb.WriteString("][")
	interleaveInt32(&sb, op.Sizes)
	sb.WriteString("][")
	interleaveInt64(&sb, op.Strides)
	sb.WriteString("] : ")
	sb.WriteString(op.result.Type.String())
	return sb.String()
}

func interleaveInt32(sb *strings.Builder, values []int32) {
	for i, v := range values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	}
}

func interleaveInt64(sb *strings.Builder, values []int64) {
	for i, v := range values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatInt(v, 10))
	}
}
