package models

// Slice represents a single acquired 2-D image sample belonging to exactly
// one Stack. It owns an affine transform placing its local frame in physical
// space. The pipeline never destroys slices during reconstruction; only the
// transform changes, and only through SetTransform.
type Slice struct {
	// Index is the position of this slice within its stack
	Index int

	// Nx, Ny are the in-plane dimensions in pixels
	Nx, Ny int

	// Data is the in-plane pixel data in row-major (y, x) order
	Data []float64

	transform AffineTransform
}

// Transform returns the slice's current affine transform
// (slice-local frame -> physical frame).
func (s *Slice) Transform() AffineTransform {
	return s.transform
}

// SetTransform assigns a new affine transform to the slice. It is the only
// mutator on a slice and rejects non-finite or singular transforms with a
// *GeometryError, leaving the previous transform in place.
func (s *Slice) SetTransform(t AffineTransform) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.transform = t
	return nil
}
