package models

import "fmt"

// Volume is the current best high-resolution reconstruction estimate. It has
// the same attribute shape as a Stack (intensity plus mask on one grid) but
// is not tied to acquisition slices. Exactly one Volume exists per pipeline
// run; it is created once from the isotropically resampled reference stack
// and then repeatedly overwritten in place through SetData.
type Volume struct {
	// Name is the chosen name of the reconstructed volume
	Name string

	intensity *Image
	mask      *Image
}

// NewVolume wraps an intensity image and mask as a Volume. Both images must
// share identical grid geometry.
func NewVolume(name string, intensity, mask *Image) (*Volume, error) {
	if err := intensity.Grid.Validate(); err != nil {
		return nil, err
	}
	if !intensity.Grid.SameShape(mask.Grid) {
		return nil, &InvalidGeometryError{
			Field:  "mask",
			Reason: "volume mask grid differs from intensity grid",
		}
	}
	v := &Volume{Name: name, intensity: intensity, mask: mask}
	v.zeroOutsideMask()
	return v, nil
}

// Intensity returns the volume's intensity image. The returned image is the
// canonical one; strategies must not retain private copies that can drift.
func (v *Volume) Intensity() *Image {
	return v.intensity
}

// Mask returns the volume's binary validity mask.
func (v *Volume) Mask() *Image {
	return v.mask
}

// Grid returns the volume's grid geometry, shared by intensity and mask.
func (v *Volume) Grid() Grid {
	return v.intensity.Grid
}

// SetData replaces the volume's intensity and mask voxels in one step. Both
// buffers are validated before either is installed so a failure leaves the
// volume untouched; callers therefore never observe a partially updated
// volume. Intensity outside the mask is forced to zero.
func (v *Volume) SetData(intensity, mask []float64) error {
	n := v.intensity.Grid.NumVoxels()
	if len(intensity) != n {
		return fmt.Errorf("intensity buffer has %d voxels, grid wants %d", len(intensity), n)
	}
	if len(mask) != n {
		return fmt.Errorf("mask buffer has %d voxels, grid wants %d", len(mask), n)
	}

	v.intensity.Data = intensity
	v.mask.Data = mask
	v.zeroOutsideMask()
	return nil
}

func (v *Volume) zeroOutsideMask() {
	for i, m := range v.mask.Data {
		if m == 0 {
			v.intensity.Data[i] = 0
		}
	}
}
