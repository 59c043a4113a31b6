package filter

import "volrecon/internal/models"

// Shrink downsamples the image by an integer factor along every axis using
// mean pooling. Spacing grows by the factor and the origin moves to the
// center of the first pooled block, so the shrunk image stays registered
// with the original in physical space. A factor of one returns a copy.
func Shrink(im *models.Image, factor int) *models.Image {
	if factor <= 1 {
		return im.Clone()
	}

	src := im.Grid
	var g models.Grid
	g.Direction = src.Direction
	for a := 0; a < 3; a++ {
		g.Size[a] = src.Size[a] / factor
		if g.Size[a] < 1 {
			g.Size[a] = 1
		}
		g.Spacing[a] = src.Spacing[a] * float64(factor)
	}
	half := float64(factor-1) / 2
	g.Origin = src.PointFromIndex(half, half, half)

	out := &models.Image{Grid: g, Data: make([]float64, g.NumVoxels())}

	nx, ny, nz := src.Size[0], src.Size[1], src.Size[2]
	for z := 0; z < g.Size[2]; z++ {
		for y := 0; y < g.Size[1]; y++ {
			for x := 0; x < g.Size[0]; x++ {
				sum := 0.0
				count := 0
				for dz := 0; dz < factor; dz++ {
					sz := z*factor + dz
					if sz >= nz {
						break
					}
					for dy := 0; dy < factor; dy++ {
						sy := y*factor + dy
						if sy >= ny {
							break
						}
						for dx := 0; dx < factor; dx++ {
							sx := x*factor + dx
							if sx >= nx {
								break
							}
							sum += im.At(sx, sy, sz)
							count++
						}
					}
				}
				if count > 0 {
					out.Set(x, y, z, sum/float64(count))
				}
			}
		}
	}
	return out
}
