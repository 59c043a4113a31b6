// Package resample warps 3-D grid images onto target grids through affine
// transforms. It is the resampling capability the reconstruction pipeline
// consumes: linear interpolation for intensities, nearest-neighbor for masks
// and label-like data.
package resample

import (
	"math"

	"volrecon/internal/models"
)

// Interpolation selects how voxel values are read between lattice points.
type Interpolation int

const (
	// Linear is trilinear interpolation
	Linear Interpolation = iota

	// Nearest is nearest-neighbor interpolation
	Nearest
)

// Resample maps the source image onto the target grid. The transform maps
// physical points of the *target* grid into the physical space of the
// source image; points falling outside the source domain receive the
// background value.
func Resample(src *models.Image, target models.Grid, t models.AffineTransform, interp Interpolation, background float64) (*models.Image, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	indexer, err := src.Grid.Indexer()
	if err != nil {
		return nil, err
	}

	out := &models.Image{Grid: target, Data: make([]float64, target.NumVoxels())}

	nx, ny, nz := src.Grid.Size[0], src.Grid.Size[1], src.Grid.Size[2]
	i := 0
	for z := 0; z < target.Size[2]; z++ {
		for y := 0; y < target.Size[1]; y++ {
			for x := 0; x < target.Size[0]; x++ {
				p := target.PointFromIndex(float64(x), float64(y), float64(z))
				ci := indexer.IndexFromPoint(t.Apply(p))

				var v float64
				switch interp {
				case Nearest:
					v = nearestAt(src, ci, nx, ny, nz, background)
				default:
					v = linearAt(src, ci, nx, ny, nz, background)
				}
				out.Data[i] = v
				i++
			}
		}
	}
	return out, nil
}

func nearestAt(src *models.Image, ci [3]float64, nx, ny, nz int, background float64) float64 {
	x := int(math.Round(ci[0]))
	y := int(math.Round(ci[1]))
	z := int(math.Round(ci[2]))
	if x < 0 || y < 0 || z < 0 || x >= nx || y >= ny || z >= nz {
		return background
	}
	return src.At(x, y, z)
}

func linearAt(src *models.Image, ci [3]float64, nx, ny, nz int, background float64) float64 {
	if ci[0] < 0 || ci[1] < 0 || ci[2] < 0 ||
		ci[0] > float64(nx-1) || ci[1] > float64(ny-1) || ci[2] > float64(nz-1) {
		return background
	}

	x0 := int(math.Floor(ci[0]))
	y0 := int(math.Floor(ci[1]))
	z0 := int(math.Floor(ci[2]))
	x1, y1, z1 := x0+1, y0+1, z0+1
	if x1 >= nx {
		x1 = nx - 1
	}
	if y1 >= ny {
		y1 = ny - 1
	}
	if z1 >= nz {
		z1 = nz - 1
	}

	fx := ci[0] - float64(x0)
	fy := ci[1] - float64(y0)
	fz := ci[2] - float64(z0)

	c000 := src.At(x0, y0, z0)
	c100 := src.At(x1, y0, z0)
	c010 := src.At(x0, y1, z0)
	c110 := src.At(x1, y1, z0)
	c001 := src.At(x0, y0, z1)
	c101 := src.At(x1, y0, z1)
	c011 := src.At(x0, y1, z1)
	c111 := src.At(x1, y1, z1)

	c00 := c000*(1-fx) + c100*fx
	c10 := c010*(1-fx) + c110*fx
	c01 := c001*(1-fx) + c101*fx
	c11 := c011*(1-fx) + c111*fx

	c0 := c00*(1-fy) + c10*fy
	c1 := c01*(1-fy) + c11*fy

	return c0*(1-fz) + c1*fz
}
