package models

// Image is a scalar 3-D image: a voxel grid plus its physical geometry.
// Data is stored in row-major order with x fastest, matching Grid.
type Image struct {
	Grid Grid
	Data []float64
}

// NewImage allocates a zero-initialized image on the given grid.
func NewImage(g Grid) (*Image, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &Image{
		Grid: g,
		Data: make([]float64, g.NumVoxels()),
	}, nil
}

// At returns the voxel value at integer index (x, y, z). Bounds are the
// caller's responsibility.
func (im *Image) At(x, y, z int) float64 {
	return im.Data[(z*im.Grid.Size[1]+y)*im.Grid.Size[0]+x]
}

// Set assigns the voxel value at integer index (x, y, z).
func (im *Image) Set(x, y, z int, v float64) {
	im.Data[(z*im.Grid.Size[1]+y)*im.Grid.Size[0]+x] = v
}

// Clone returns a deep copy of the image.
func (im *Image) Clone() *Image {
	data := make([]float64, len(im.Data))
	copy(data, im.Data)
	return &Image{Grid: im.Grid, Data: data}
}

// ExtractPlane copies the z-th in-plane slice of the image into a fresh
// buffer in row-major (y, x) order.
func (im *Image) ExtractPlane(z int) []float64 {
	nx, ny := im.Grid.Size[0], im.Grid.Size[1]
	plane := make([]float64, nx*ny)
	copy(plane, im.Data[z*nx*ny:(z+1)*nx*ny])
	return plane
}
