// Package sparsemeta packs dense rank-2 matrices into the 2:4
// structured-sparse operand layout consumed by the sparse dot: of every 4
// contiguous elements along the contracting (column) axis, at most 2 may be
// non-zero; only those 2 are stored, and a 16-bit metadata value records the
// positions of 8 consecutive stored elements (2 bits each).
//
// The shapes produced here are exactly the ones ir.SparseDotOp verifies: a
// rows×cols dense matrix packs into rows×(cols/2) values and rows×(cols/16)
// metadata entries.
//
// Payloads are half-precision: float16 via github.com/x448/float16 and
// bfloat16 via github.com/d4l3k/go-bfloat16.
package sparsemeta

import (
	"github.com/d4l3k/go-bfloat16"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/tileir/tileir/types/shapes"
)

const (
	groupSize    = 4 // logical elements per sparsity group
	keptPerGroup = 2 // stored elements per group

	// Stored elements covered by one 16-bit metadata value: 8 positions of
	// 2 bits each. This is the constant the sparse-dot verifier checks.
	elementsPerMetaValue = 8

	indexBits = 2
	indexMask = 1<<indexBits - 1

	// Dense columns covered by one metadata value.
	denseColsPerMetaValue = elementsPerMetaValue / keptPerGroup * groupSize // 16
)

// bits16 covers the half-precision payload types, both thin wrappers over
// their IEEE bit patterns.
type bits16 interface{ ~uint16 }

// ValuesShape returns the shape of the packed values for a rows×cols dense
// matrix of the given element type.
func ValuesShape(dtype dtypes.DType, rows, cols int) shapes.Shape {
	return shapes.Make(dtype, rows, cols/keptPerGroup)
}

// MetadataShape returns the shape of the packed metadata for a rows×cols
// dense matrix.
func MetadataShape(rows, cols int) shapes.Shape {
	return shapes.Make(dtypes.Int16, rows, cols/denseColsPerMetaValue)
}

// PackFloat16 packs a row-major rows×cols dense float16 matrix. It returns
// the rows×(cols/2) packed values and the rows×(cols/16) metadata.
func PackFloat16(dense []float16.Float16, rows, cols int) ([]float16.Float16, []uint16, error) {
	return pack(dense, rows, cols)
}

// PackBFloat16 is PackFloat16 for bfloat16 payloads.
func PackBFloat16(dense []bfloat16.BF16, rows, cols int) ([]bfloat16.BF16, []uint16, error) {
	return pack(dense, rows, cols)
}

// UnpackFloat16 reverses PackFloat16, reconstructing the rows×cols dense
// matrix (zeros in the pruned positions).
func UnpackFloat16(values []float16.Float16, meta []uint16, rows, cols int) ([]float16.Float16, error) {
	return unpack(values, meta, rows, cols)
}

// UnpackBFloat16 is UnpackFloat16 for bfloat16 payloads.
func UnpackBFloat16(values []bfloat16.BF16, meta []uint16, rows, cols int) ([]bfloat16.BF16, error) {
	return unpack(values, meta, rows, cols)
}

// isZero treats both +0 and -0 bit patterns as zero.
func isZero[T bits16](v T) bool {
	return uint16(v)&0x7fff == 0
}

func checkDims(denseLen, rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return errors.Errorf("invalid dense matrix dimensions %dx%d", rows, cols)
	}
	if cols%denseColsPerMetaValue != 0 {
		return errors.Errorf("the contracting dimension (%d) must be a multiple of %d to pack metadata",
			cols, denseColsPerMetaValue)
	}
	if denseLen != rows*cols {
		return errors.Errorf("dense matrix has %d elements, want %d for %dx%d", denseLen, rows*cols, rows, cols)
	}
	return nil
}

func pack[T bits16](dense []T, rows, cols int) (values []T, meta []uint16, err error) {
	if err = checkDims(len(dense), rows, cols); err != nil {
		return nil, nil, err
	}
	packedCols := cols / keptPerGroup
	metaCols := cols / denseColsPerMetaValue
	values = make([]T, 0, rows*packedCols)
	meta = make([]uint16, rows*metaCols)

	for row := 0; row < rows; row++ {
		for group := 0; group < cols/groupSize; group++ {
			base := row*cols + group*groupSize
			var kept [keptPerGroup]int
			numNonZero := 0
			for pos := 0; pos < groupSize; pos++ {
				if isZero(dense[base+pos]) {
					continue
				}
				if numNonZero == keptPerGroup {
					return nil, nil, errors.Errorf(
						"more than %d non-zero values in the 1x%d group at row %d, column %d",
						keptPerGroup, groupSize, row, group*groupSize)
				}
				kept[numNonZero] = pos
				numNonZero++
			}
			// Pad with pruned positions so each group always stores exactly
			// two elements, smallest unused positions first.
			for pos := 0; numNonZero < keptPerGroup; pos++ {
				used := false
				for _, k := range kept[:numNonZero] {
					if k == pos {
						used = true
						break
					}
				}
				if !used {
					kept[numNonZero] = pos
					numNonZero++
				}
			}
			for j, pos := range kept {
				values = append(values, dense[base+pos])
				stored := group*keptPerGroup + j // stored-element index in this row
				meta[row*metaCols+stored/elementsPerMetaValue] |=
					uint16(pos) << (indexBits * (stored % elementsPerMetaValue))
			}
		}
	}
	return values, meta, nil
}

func unpack[T bits16](values []T, meta []uint16, rows, cols int) ([]T, error) {
	if err := checkDims(rows*cols, rows, cols); err != nil {
		return nil, err
	}
	packedCols := cols / keptPerGroup
	metaCols := cols / denseColsPerMetaValue
	if len(values) != rows*packedCols {
		return nil, errors.Errorf("packed values have %d elements, want %d for %dx%d", len(values), rows*packedCols, rows, cols)
	}
	if len(meta) != rows*metaCols {
		return nil, errors.Errorf("metadata has %d entries, want %d for %dx%d", len(meta), rows*metaCols, rows, cols)
	}
	dense := make([]T, rows*cols)
	for row := 0; row < rows; row++ {
		for stored := 0; stored < packedCols; stored++ {
			entry := meta[row*metaCols+stored/elementsPerMetaValue]
			pos := int(entry>>(indexBits*(stored%elementsPerMetaValue))) & indexMask
			group := stored / keptPerGroup
			dense[row*cols+group*groupSize+pos] = values[row*packedCols+stored]
		}
	}
	return dense, nil
}
