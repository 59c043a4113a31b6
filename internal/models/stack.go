package models

import "fmt"

// Stack is an ordered sequence of slices plus the derived 3-D intensity
// image and its co-registered binary mask. A stack is exclusively owned by
// the collection that loaded it; the reconstruction pipeline borrows
// references and never duplicates ownership.
type Stack struct {
	// Name identifies the stack (typically the source filename stem)
	Name string

	// Image is the 3-D intensity image resampled from the slices
	Image *Image

	// Mask is the binary validity mask sharing the image's grid
	Mask *Image

	slices []*Slice
}

// NewStack builds a stack from an intensity image and an optional mask.
// A nil mask means "everything valid" and is replaced by an all-ones mask.
// Per-slice transforms are derived from the stack geometry: slice k maps its
// local frame through the stack's direction and spacing, offset by k voxels
// along the through-plane axis.
func NewStack(name string, img, mask *Image) (*Stack, error) {
	if err := img.Grid.Validate(); err != nil {
		return nil, err
	}
	if mask == nil {
		m, err := NewImage(img.Grid)
		if err != nil {
			return nil, err
		}
		for i := range m.Data {
			m.Data[i] = 1
		}
		mask = m
	}
	if !img.Grid.SameShape(mask.Grid) {
		return nil, &InvalidGeometryError{
			Field:  "mask",
			Reason: fmt.Sprintf("mask grid differs from image grid for stack %q", name),
		}
	}

	st := &Stack{Name: name, Image: img, Mask: mask}

	g := img.Grid
	base := sliceBaseTransform(g)
	for k := 0; k < g.Size[2]; k++ {
		t := base
		// Shift the slice origin k voxels along the through-plane axis.
		sz := float64(k) * g.Spacing[2]
		t.Translation[0] += g.Direction[2] * sz
		t.Translation[1] += g.Direction[5] * sz
		t.Translation[2] += g.Direction[8] * sz

		sl := &Slice{
			Index: k,
			Nx:    g.Size[0],
			Ny:    g.Size[1],
			Data:  img.ExtractPlane(k),
		}
		if err := sl.SetTransform(t); err != nil {
			return nil, err
		}
		st.slices = append(st.slices, sl)
	}
	return st, nil
}

// sliceBaseTransform is the slice-local -> physical transform of slice 0:
// direction*diag(spacing) with the stack origin as translation.
func sliceBaseTransform(g Grid) AffineTransform {
	var t AffineTransform
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			t.Linear[r*3+c] = g.Direction[r*3+c] * g.Spacing[c]
		}
	}
	t.Translation = g.Origin
	return t
}

// Slices returns the stack's slices in acquisition order. Callers mutate
// slice transforms only through Slice.SetTransform.
func (s *Stack) Slices() []*Slice {
	return s.slices
}

// NumSlices returns the number of slices in the stack.
func (s *Stack) NumSlices() int {
	return len(s.slices)
}

// Grid returns the stack's voxel grid geometry.
func (s *Stack) Grid() Grid {
	return s.Image.Grid
}
