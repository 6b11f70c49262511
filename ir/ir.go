// Package ir defines the tiled-tensor operations of the TileIR middle tier
// and their static verification.
//
// The package provides four operations over a shared tensor-addressing
// abstraction:
//
//   - TileOp: carves a tiled-tensor view out of a full tensor given static
//     offsets, sizes and strides.
//   - ExtractOp: reads a tile-shaped sub-tensor out of a tiled view at
//     dynamic offsets.
//   - InsertOp: writes a tile-shaped sub-tensor into a tiled view at dynamic
//     offsets, yielding an updated full tensor (functional update).
//   - SparseDotOp: `C = A ⊠ B` where A is 2:4 structured-sparse along the
//     contracting dimension.
//
// Every op carries a Verify method that statically proves, from operand
// shapes, element types and layout encodings, that the access or contraction
// is well-formed. Verification is pure and fail-fast: the first violated
// invariant is reported and nothing else is attempted. Ops also round-trip
// through an exact textual form, see ParseOp and ParseModule.
package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/tileir/tileir/ir/layout"
	"github.com/tileir/tileir/types/shapes"
)

// Type is implemented by the TileIR types: TensorType and TiledTensorType.
type Type interface {
	fmt.Stringer

	// Equal reports whether the two types are identical, encodings included.
	Equal(other Type) bool
}

// TensorType is a ranked tensor type: a static shape plus an optional layout
// encoding. A nil Encoding means the tensor is unencoded.
type TensorType struct {
	ShapeOf  shapes.Shape
	Encoding layout.Encoding
}

// TensorOf returns an unencoded TensorType with the given element type and
// dimensions. It panics on non-positive dimensions, like shapes.Make.
func TensorOf(dtype dtypes.DType, dimensions ...int) TensorType {
	return TensorType{ShapeOf: shapes.Make(dtype, dimensions...)}
}

// WithEncoding returns a copy of the tensor type carrying the encoding.
func (t TensorType) WithEncoding(encoding layout.Encoding) TensorType {
	t.Encoding = encoding
	return t
}

// Shape returns the tensor's shape. It implements shapes.HasShape.
func (t TensorType) Shape() shapes.Shape { return t.ShapeOf }

// DType returns the tensor's element type.
func (t TensorType) DType() dtypes.DType { return t.ShapeOf.DType }

// Rank returns the tensor's rank.
func (t TensorType) Rank() int { return t.ShapeOf.Rank() }

// Equal implements Type.
func (t TensorType) Equal(other Type) bool {
	o, ok := other.(TensorType)
	if !ok {
		return false
	}
	return t.ShapeOf.Equal(o.ShapeOf) && layout.Equal(t.Encoding, o.Encoding)
}

// String renders the type in its textual IR form, e.g. "4x8xbf16" or
// "4x4xf32 #mma" when encoded.
func (t TensorType) String() string {
	var sb strings.Builder
	writeDims(&sb, t.ShapeOf.Dimensions)
	sb.WriteString(dtypeName(t.ShapeOf.DType))
	if t.Encoding != nil {
		sb.WriteString(" #")
		if alias, found := layout.AliasOf(t.Encoding); found {
			sb.WriteString(alias)
		} else {
			sb.WriteString(t.Encoding.Kind())
		}
	}
	return sb.String()
}

// TiledTensorType describes a logical tile carved out of a larger tensor:
// the shape of the viewed sub-region (Tile) paired with the shape of the
// full tensor it was carved from (Original). Both share the element type.
//
// It is a compile-time artifact only: constructed transiently while parsing,
// printing or building ops, never persisted.
type TiledTensorType struct {
	Tile, Original TensorType
}

// TiledTensorOf pairs a tile type with the original tensor type it views.
// It panics if the element types differ: a view cannot reinterpret elements.
func TiledTensorOf(tile, original TensorType) TiledTensorType {
	if tile.DType() != original.DType() {
		exceptions.Panicf("ir.TiledTensorOf: tile element type %s differs from original element type %s",
			tile.DType(), original.DType())
	}
	return TiledTensorType{Tile: tile, Original: original}
}

// Shape returns the shape of the original tensor the view addresses.
func (t TiledTensorType) Shape() shapes.Shape { return t.Original.ShapeOf }

// Rank returns the rank of the addressed space, i.e. of the original tensor:
// dynamic offsets into the view are indices into the original tensor.
func (t TiledTensorType) Rank() int { return t.Original.Rank() }

// Equal implements Type.
func (t TiledTensorType) Equal(other Type) bool {
	o, ok := other.(TiledTensorType)
	if !ok {
		return false
	}
	return t.Tile.Equal(o.Tile) && t.Original.Equal(o.Original)
}

// String renders e.g. "tiled_tensor<8x8|64x64xf32>": tile dimensions, a bar,
// then the original tensor type (which carries the shared element type and
// any encoding).
func (t TiledTensorType) String() string {
	var sb strings.Builder
	sb.WriteString("tiled_tensor<")
	writeDims(&sb, t.Tile.ShapeOf.Dimensions)
	// Trim the trailing 'x' separator: the tile prints dimensions only.
	out := strings.TrimSuffix(sb.String(), "x")
	return out + "|" + t.Original.String() + ">"
}

// Value is an SSA-style named value: a name (without the leading '%') and its
// type. Operands and results of ops are Values.
type Value struct {
	Name string
	Type Type
}

// String renders the value reference, e.g. "%extracted_tile".
func (v Value) String() string { return "%" + v.Name }

// Op is implemented by all TileIR operations.
type Op interface {
	fmt.Stringer

	// OpName returns the operation's mnemonic in the textual IR.
	OpName() string

	// Verify statically checks every invariant of the op. It returns the
	// first violation found, or nil if the op is well-formed.
	Verify() error

	// Result returns the op's result value.
	Result() *Value

	// ResultName suggests a human-readable name for the result, used when
	// the surrounding tooling assigns names.
	ResultName() string
}

// Attributes is the optional attribute dictionary of an op. Values are
// int64, bool or string. It prints with sorted keys so output is stable.
type Attributes map[string]any

func (a Attributes) clone() Attributes {
	if len(a) == 0 {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// dtypeTokens maps the textual element-type tokens to DTypes and back.
// Only the types the IR can express are listed; anything else is a
// verification error upstream or a panic when printing.
var dtypeTokens = map[string]dtypes.DType{
	"i8":   dtypes.Int8,
	"i16":  dtypes.Int16,
	"i32":  dtypes.Int32,
	"i64":  dtypes.Int64,
	"u8":   dtypes.Uint8,
	"u16":  dtypes.Uint16,
	"u32":  dtypes.Uint32,
	"u64":  dtypes.Uint64,
	"f16":  dtypes.Float16,
	"bf16": dtypes.BFloat16,
	"f32":  dtypes.Float32,
	"f64":  dtypes.Float64,
	"i1":   dtypes.Bool,
}

var dtypeNames = func() map[dtypes.DType]string {
	m := make(map[dtypes.DType]string, len(dtypeTokens))
	for name, dtype := range dtypeTokens {
		m[dtype] = name
	}
	return m
}()

func dtypeName(dtype dtypes.DType) string {
	name, found := dtypeNames[dtype]
	if !found {
		exceptions.Panicf("ir: element type %s has no textual form", dtype)
	}
	return name
}

// DTypeByToken resolves a textual element-type token like "bf16".
func DTypeByToken(token string) (dtypes.DType, error) {
	dtype, found := dtypeTokens[token]
	if !found {
		return dtypes.InvalidDType, errors.Errorf("unknown element type %q", token)
	}
	return dtype, nil
}

// writeDims writes "4x8x" style dimension prefixes (each dimension followed
// by an 'x'), the form shared by tensor types and tile prefixes.
func writeDims(sb *strings.Builder, dims []int) {
	for _, d := range dims {
		sb.WriteString(strconv.Itoa(d))
		sb.WriteByte('x')
	}
}

// tensorOperand asserts that the value has a TensorType.
func tensorOperand(v Value, what string) (TensorType, error) {
	t, ok := v.Type.(TensorType)
	if !ok {
		return TensorType{}, errors.Errorf("%s (%s) must be a ranked tensor, got %s", what, v, v.Type)
	}
	return t, nil
}

// tiledOperand asserts that the value has a TiledTensorType.
func tiledOperand(v Value, what string) (TiledTensorType, error) {
	t, ok := v.Type.(TiledTensorType)
	if !ok {
		return TiledTensorType{}, errors.Errorf("%s (%s) must be a tiled tensor, got %s", what, v, v.Type)
	}
	return t, nil
}
