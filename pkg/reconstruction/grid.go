package reconstruction

import (
	"fmt"
	"math"

	"volrecon/internal/models"
	"volrecon/pkg/resample"
)

// IsotropicVolume derives the reference grid for a reconstruction run from
// one chosen stack and returns a volume resampled onto it. The in-plane
// spacing is kept and extended into the through-plane direction:
//
//	new_size_z    = round(spacing_z / spacing_x * size_z)
//	new_spacing_z = spacing_x
//
// Origin and direction are preserved from the reference stack; intensity and
// mask are filled by nearest-neighbor resampling of the stack's own data.
// The result is a pure function of the input stack.
func IsotropicVolume(ref *models.Stack, name string) (*models.Volume, error) {
	g := ref.Grid()
	if err := g.Validate(); err != nil {
		return nil, err
	}

	iso := g
	iso.Size[2] = int(math.Round(g.Spacing[2] / g.Spacing[0] * float64(g.Size[2])))
	iso.Spacing[2] = g.Spacing[0]
	if err := iso.Validate(); err != nil {
		return nil, err
	}

	identity := models.IdentityAffine()
	img, err := resample.Resample(ref.Image, iso, identity, resample.Nearest, 0)
	if err != nil {
		return nil, fmt.Errorf("resampling reference stack %q: %w", ref.Name, err)
	}
	mask, err := resample.Resample(ref.Mask, iso, identity, resample.Nearest, 0)
	if err != nil {
		return nil, fmt.Errorf("resampling reference mask %q: %w", ref.Name, err)
	}

	return models.NewVolume(name, img, mask)
}
