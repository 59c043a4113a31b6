// Package filter provides separable Gaussian smoothing and shrinking of
// 3-D grid images. Smoothing sigmas are given in physical units (mm) and
// converted per axis through the grid spacing, so anisotropic voxels get
// isotropic physical smoothing.
package filter

import (
	"math"

	"volrecon/internal/models"
)

// Kernel selects the Gaussian implementation used for smoothing.
type Kernel int

const (
	// FIR is a sampled, truncated Gaussian kernel (radius 3 sigma)
	FIR Kernel = iota

	// Deriche is Deriche's second-order recursive approximation
	Deriche

	// YoungVanVliet is the Young-van Vliet third-order recursive
	// approximation
	YoungVanVliet
)

// Smooth returns a Gaussian-smoothed copy of the image. Sigma is in mm;
// a sigma of zero (or negligibly small along an axis) leaves that axis
// untouched, which is how pyramid level 0 requests "no smoothing".
func Smooth(im *models.Image, sigmaMM float64, k Kernel) *models.Image {
	out := im.Clone()
	if sigmaMM <= 0 {
		return out
	}
	for axis := 0; axis < 3; axis++ {
		sigmaVox := sigmaMM / im.Grid.Spacing[axis]
		if sigmaVox < 1e-3 {
			continue
		}
		smoothAxis(out, axis, sigmaVox, k)
	}
	return out
}

// SmoothTruncated is Smooth with an FIR kernel truncated at the given
// cut-off distance in sigmas instead of the default three. The
// regularized-inverse solver uses it to honor its configured cut-off.
func SmoothTruncated(im *models.Image, sigmaMM, cutoff float64) *models.Image {
	out := im.Clone()
	if sigmaMM <= 0 {
		return out
	}
	for axis := 0; axis < 3; axis++ {
		sigmaVox := sigmaMM / im.Grid.Spacing[axis]
		if sigmaVox < 1e-3 {
			continue
		}
		forEachLine(out, axis, firFilter(sigmaVox, cutoff))
	}
	return out
}

func smoothAxis(im *models.Image, axis int, sigmaVox float64, k Kernel) {
	var filt func(line []float64)
	switch k {
	case Deriche:
		filt = dericheFilter(sigmaVox)
	case YoungVanVliet:
		filt = yvvFilter(sigmaVox)
	default:
		filt = firFilter(sigmaVox, 3)
	}
	forEachLine(im, axis, filt)
}

// forEachLine applies fn to every line of voxels along the given axis.
// Lines are gathered into a contiguous buffer and scattered back, so fn can
// treat them as plain slices.
func forEachLine(im *models.Image, axis int, fn func(line []float64)) {
	nx, ny, nz := im.Grid.Size[0], im.Grid.Size[1], im.Grid.Size[2]

	var stride, count int
	var oa, ob, na, nb int
	switch axis {
	case 0:
		stride, count = 1, nx
		na, nb = ny, nz
		oa, ob = nx, nx*ny
	case 1:
		stride, count = nx, ny
		na, nb = nx, nz
		oa, ob = 1, nx*ny
	default:
		stride, count = nx*ny, nz
		na, nb = nx, ny
		oa, ob = 1, nx
	}

	line := make([]float64, count)
	for b := 0; b < nb; b++ {
		for a := 0; a < na; a++ {
			base := a*oa + b*ob
			for i := 0; i < count; i++ {
				line[i] = im.Data[base+i*stride]
			}
			fn(line)
			for i := 0; i < count; i++ {
				im.Data[base+i*stride] = line[i]
			}
		}
	}
}

// firFilter builds a normalized sampled Gaussian convolution with edge
// clamping, truncated at cutoff sigmas.
func firFilter(sigma, cutoff float64) func([]float64) {
	radius := int(math.Ceil(cutoff * sigma))
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	return func(line []float64) {
		n := len(line)
		tmp := make([]float64, n)
		for i := 0; i < n; i++ {
			acc := 0.0
			for j := -radius; j <= radius; j++ {
				idx := i + j
				if idx < 0 {
					idx = 0
				} else if idx >= n {
					idx = n - 1
				}
				acc += kernel[j+radius] * line[idx]
			}
			tmp[i] = acc
		}
		copy(line, tmp)
	}
}

// dericheFilter builds Deriche's second-order smoothing recursion. The
// normalization makes the DC gain exactly one, and boundary recursions are
// seeded with their constant-input steady state, so uniform inputs pass
// through unchanged.
func dericheFilter(sigma float64) func([]float64) {
	// The Deriche kernel (a|x|+1)e^{-a|x|} has standard deviation 2/a.
	alpha := 2.0 / sigma
	ea := math.Exp(-alpha)
	e2a := math.Exp(-2 * alpha)
	k := (1 - ea) * (1 - ea) / (1 + 2*alpha*ea - e2a)

	a0 := k
	a1 := k * ea * (alpha - 1)
	a2 := k * ea * (alpha + 1)
	a3 := -k * e2a
	b1 := 2 * ea
	b2 := -e2a

	// Steady-state gains of the causal and anticausal halves for seeding
	// the boundary recursion.
	den := 1 - b1 - b2
	gc := (a0 + a1) / den
	ga := (a2 + a3) / den

	return func(line []float64) {
		n := len(line)
		causal := make([]float64, n)
		anti := make([]float64, n)

		y1 := gc * line[0]
		y2 := y1
		xp := line[0]
		for i := 0; i < n; i++ {
			y := a0*line[i] + a1*xp + b1*y1 + b2*y2
			xp = line[i]
			y2, y1 = y1, y
			causal[i] = y
		}

		y1 = ga * line[n-1]
		y2 = y1
		x1 := line[n-1]
		x2 := line[n-1]
		for i := n - 1; i >= 0; i-- {
			y := a2*x1 + a3*x2 + b1*y1 + b2*y2
			x2, x1 = x1, line[i]
			y2, y1 = y1, y
			anti[i] = y
		}

		for i := 0; i < n; i++ {
			line[i] = causal[i] + anti[i]
		}
	}
}

// yvvFilter builds the Young-van Vliet third-order forward/backward
// recursion. Boundaries are seeded with edge values, which keeps constant
// inputs exact.
func yvvFilter(sigma float64) func([]float64) {
	var q float64
	if sigma >= 2.5 {
		q = 0.98711*sigma - 0.96330
	} else {
		q = 3.97156 - 4.14554*math.Sqrt(1-0.26891*sigma)
	}

	b0 := 1.57825 + 2.44413*q + 1.4281*q*q + 0.422205*q*q*q
	b1 := (2.44413*q + 2.85619*q*q + 1.26661*q*q*q) / b0
	b2 := -(1.4281*q*q + 1.26661*q*q*q) / b0
	b3 := (0.422205 * q * q * q) / b0
	bScale := 1 - (b1 + b2 + b3)

	pass := func(line []float64) {
		n := len(line)
		w1 := line[0]
		w2 := line[0]
		w3 := line[0]
		for i := 0; i < n; i++ {
			w := bScale*line[i] + b1*w1 + b2*w2 + b3*w3
			w3, w2, w1 = w2, w1, w
			line[i] = w
		}
	}

	return func(line []float64) {
		pass(line)
		reverse(line)
		pass(line)
		reverse(line)
	}
}

func reverse(line []float64) {
	for i, j := 0, len(line)-1; i < j; i, j = i+1, j-1 {
		line[i], line[j] = line[j], line[i]
	}
}
