package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// IdentityDirection is the axis-aligned direction matrix (row-major 3x3).
var IdentityDirection = [9]float64{
	1, 0, 0,
	0, 1, 0,
	0, 0, 1,
}

// Grid describes the physical geometry of a regular 3-D voxel lattice:
// its extent in voxels, the voxel dimensions in millimeters, the physical
// position of voxel (0,0,0) and the orientation of the voxel axes.
//
// Voxel data associated with a Grid is stored in row-major order with x
// fastest: index = (z*Size[1] + y)*Size[0] + x.
type Grid struct {
	// Size is the voxel count along x, y and z
	Size [3]int

	// Spacing is the physical voxel dimension along each axis in mm
	Spacing [3]float64

	// Origin is the physical position of the center of voxel (0,0,0)
	Origin [3]float64

	// Direction is the row-major 3x3 orientation matrix mapping voxel axes
	// to physical axes; its columns are the physical directions of the
	// x, y and z voxel axes
	Direction [9]float64
}

// Validate checks the grid for degenerate geometry. It returns an
// *InvalidGeometryError if any axis has non-positive spacing or zero size,
// or if the direction matrix is not invertible.
func (g Grid) Validate() error {
	for a := 0; a < 3; a++ {
		if g.Size[a] <= 0 {
			return &InvalidGeometryError{
				Field:  "size",
				Reason: fmt.Sprintf("axis %d has size %d, want > 0", a, g.Size[a]),
			}
		}
		if g.Spacing[a] <= 0 || math.IsNaN(g.Spacing[a]) || math.IsInf(g.Spacing[a], 0) {
			return &InvalidGeometryError{
				Field:  "spacing",
				Reason: fmt.Sprintf("axis %d has spacing %g, want > 0", a, g.Spacing[a]),
			}
		}
	}

	d := mat.NewDense(3, 3, g.Direction[:])
	if math.Abs(mat.Det(d)) < 1e-12 {
		return &InvalidGeometryError{
			Field:  "direction",
			Reason: "direction matrix is singular",
		}
	}
	return nil
}

// NumVoxels returns the total voxel count of the grid.
func (g Grid) NumVoxels() int {
	return g.Size[0] * g.Size[1] * g.Size[2]
}

// SameShape reports whether two grids agree in size, spacing, origin and
// direction within a small numeric tolerance.
func (g Grid) SameShape(o Grid) bool {
	const eps = 1e-9
	if g.Size != o.Size {
		return false
	}
	for a := 0; a < 3; a++ {
		if math.Abs(g.Spacing[a]-o.Spacing[a]) > eps {
			return false
		}
		if math.Abs(g.Origin[a]-o.Origin[a]) > eps {
			return false
		}
	}
	for i := 0; i < 9; i++ {
		if math.Abs(g.Direction[i]-o.Direction[i]) > eps {
			return false
		}
	}
	return true
}

// PointFromIndex maps a (possibly fractional) voxel index to its physical
// position: p = origin + direction * diag(spacing) * index.
func (g Grid) PointFromIndex(x, y, z float64) [3]float64 {
	sx := x * g.Spacing[0]
	sy := y * g.Spacing[1]
	sz := z * g.Spacing[2]
	d := g.Direction
	return [3]float64{
		g.Origin[0] + d[0]*sx + d[1]*sy + d[2]*sz,
		g.Origin[1] + d[3]*sx + d[4]*sy + d[5]*sz,
		g.Origin[2] + d[6]*sx + d[7]*sy + d[8]*sz,
	}
}

// Center returns the physical position of the geometric center of the grid.
func (g Grid) Center() [3]float64 {
	return g.PointFromIndex(
		float64(g.Size[0]-1)/2,
		float64(g.Size[1]-1)/2,
		float64(g.Size[2]-1)/2,
	)
}

// GridIndexer converts physical points back to continuous voxel indices.
// It caches the inverse of direction*diag(spacing) so the conversion is a
// plain matrix multiply in resampling inner loops.
type GridIndexer struct {
	origin [3]float64
	inv    [9]float64
}

// Indexer returns a GridIndexer for the grid. It fails with an
// *InvalidGeometryError when the grid cannot be inverted.
func (g Grid) Indexer() (*GridIndexer, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	// Column a of direction*diag(spacing) is direction column a scaled by
	// spacing[a].
	fwd := make([]float64, 9)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			fwd[r*3+c] = g.Direction[r*3+c] * g.Spacing[c]
		}
	}

	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(3, 3, fwd)); err != nil {
		return nil, &InvalidGeometryError{Field: "direction", Reason: "direction matrix is singular"}
	}

	idx := &GridIndexer{origin: g.Origin}
	for i := 0; i < 9; i++ {
		idx.inv[i] = inv.RawMatrix().Data[i]
	}
	return idx, nil
}

// IndexFromPoint maps a physical point to the continuous voxel index on the
// indexer's grid.
func (ix *GridIndexer) IndexFromPoint(p [3]float64) [3]float64 {
	dx := p[0] - ix.origin[0]
	dy := p[1] - ix.origin[1]
	dz := p[2] - ix.origin[2]
	m := ix.inv
	return [3]float64{
		m[0]*dx + m[1]*dy + m[2]*dz,
		m[3]*dx + m[4]*dy + m[5]*dz,
		m[6]*dx + m[7]*dy + m[8]*dz,
	}
}
