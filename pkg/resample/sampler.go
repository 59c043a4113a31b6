package resample

import (
	"math"

	"volrecon/internal/models"
)

// Sampler evaluates a grid image at arbitrary physical points. It caches the
// grid's physical-to-index mapping so repeated lookups, as in registration
// metric evaluation, stay cheap.
type Sampler struct {
	im         *models.Image
	indexer    *models.GridIndexer
	interp     Interpolation
	background float64
	nx, ny, nz int
}

// NewSampler builds a sampler over the image.
func NewSampler(im *models.Image, interp Interpolation, background float64) (*Sampler, error) {
	indexer, err := im.Grid.Indexer()
	if err != nil {
		return nil, err
	}
	return &Sampler{
		im:         im,
		indexer:    indexer,
		interp:     interp,
		background: background,
		nx:         im.Grid.Size[0],
		ny:         im.Grid.Size[1],
		nz:         im.Grid.Size[2],
	}, nil
}

// At evaluates the image at physical point p. The second return value is
// false when p falls outside the image domain; the first is then the
// sampler's background value.
func (s *Sampler) At(p [3]float64) (float64, bool) {
	ci := s.indexer.IndexFromPoint(p)
	switch s.interp {
	case Nearest:
		x := int(math.Round(ci[0]))
		y := int(math.Round(ci[1]))
		z := int(math.Round(ci[2]))
		if x < 0 || y < 0 || z < 0 || x >= s.nx || y >= s.ny || z >= s.nz {
			return s.background, false
		}
		return s.im.At(x, y, z), true
	default:
		if ci[0] < 0 || ci[1] < 0 || ci[2] < 0 ||
			ci[0] > float64(s.nx-1) || ci[1] > float64(s.ny-1) || ci[2] > float64(s.nz-1) {
			return s.background, false
		}
		return linearAt(s.im, ci, s.nx, s.ny, s.nz, s.background), true
	}
}
