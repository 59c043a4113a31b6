package registration

import (
	"math"

	"volrecon/internal/models"
	"volrecon/pkg/filter"
	"volrecon/pkg/resample"
)

// maxSamplesPerLevel caps the metric sample count at each pyramid level.
const maxSamplesPerLevel = 1 << 15

// Align computes the rigid transform aligning the fixed image with the
// moving image. The transform is initialized by matching the images'
// geometric centers and refined coarse-to-fine across the pyramid.
func (e *Engine) Align(fixed, moving *models.Image) (models.RigidTransform, Report, error) {
	if err := fixed.Grid.Validate(); err != nil {
		return models.RigidTransform{}, Report{}, err
	}
	if err := moving.Grid.Validate(); err != nil {
		return models.RigidTransform{}, Report{}, err
	}

	cf := fixed.Grid.Center()
	cm := moving.Grid.Center()
	t := models.RigidTransform{
		Center: cm,
		Translation: [3]float64{
			cf[0] - cm[0],
			cf[1] - cm[1],
			cf[2] - cm[2],
		},
	}

	report := Report{Converged: true}
	for level := range e.params.ShrinkFactors {
		sigma := e.params.SmoothingSigmas[level]
		factor := e.params.ShrinkFactors[level]

		fl := filter.Shrink(filter.Smooth(fixed, sigma, filter.FIR), factor)
		ml := filter.Shrink(filter.Smooth(moving, sigma, filter.FIR), factor)

		var err error
		t, report, err = e.optimizeLevel(fl, ml, t, report)
		if err != nil {
			return models.RigidTransform{}, Report{}, err
		}
	}
	return t, report, nil
}

// optimizeLevel runs regular-step gradient descent on the negated mutual
// information at one pyramid level, starting from the incoming transform.
func (e *Engine) optimizeLevel(fixed, moving *models.Image, t models.RigidTransform, report Report) (models.RigidTransform, Report, error) {
	sampler, err := resample.NewSampler(fixed, resample.Linear, 0)
	if err != nil {
		return t, report, err
	}

	samples := collectSamples(moving)
	metric := newMutualInformation(e.params.HistogramBins, fixed.Data, moving.Data)

	negMI := func(params [6]float64) float64 {
		return -metric.evaluate(samples, sampler, t.WithParameters(params))
	}

	scales := parameterScales(t, moving.Grid)

	// Work in scaled parameter space so a unit step moves every parameter
	// by roughly the same physical amount.
	var u [6]float64
	for k, p := range t.Parameters() {
		u[k] = p * scales[k]
	}
	unscale := func(u [6]float64) [6]float64 {
		var p [6]float64
		for k := range u {
			p[k] = u[k] / scales[k]
		}
		return p
	}

	step := e.params.InitialStep
	converged := false
	var prevDir [6]float64
	havePrev := false

	iter := 0
	for ; iter < e.params.MaxIterations; iter++ {
		g := gradient(negMI, unscale, u, scales)
		norm := 0.0
		for _, v := range g {
			norm += v * v
		}
		norm = math.Sqrt(norm)
		if norm < 1e-12 {
			converged = true
			break
		}

		var dir [6]float64
		for k := range g {
			dir[k] = g[k] / norm
		}
		if havePrev && dot(dir, prevDir) < 0 {
			step /= 2
		}
		if step < e.params.MinStep {
			converged = true
			break
		}

		for k := range u {
			u[k] -= step * dir[k]
		}
		prevDir = dir
		havePrev = true
	}

	t = t.WithParameters(unscale(u))
	report.Iterations += iter
	report.Converged = report.Converged && converged
	report.FinalMetric = metric.evaluate(samples, sampler, t)
	return t, report, nil
}

// gradient estimates the metric gradient with central differences in scaled
// parameter space.
func gradient(f func([6]float64) float64, unscale func([6]float64) [6]float64, u [6]float64, scales [6]float64) [6]float64 {
	const h = 1e-3
	var g [6]float64
	for k := 0; k < 6; k++ {
		up, um := u, u
		up[k] += h
		um[k] -= h
		g[k] = (f(unscale(up)) - f(unscale(um))) / (2 * h)
	}
	return g
}

func dot(a, b [6]float64) float64 {
	s := 0.0
	for k := range a {
		s += a[k] * b[k]
	}
	return s
}

// parameterScales derives per-parameter step scales from the maximum
// physical point shift a unit parameter change causes over the corners of
// the moving image domain. Rotations therefore step in proportion to the
// image extent; translations get scale one.
func parameterScales(t models.RigidTransform, g models.Grid) [6]float64 {
	corners := gridCorners(g)
	base := t.Parameters()

	const h = 1e-4
	var scales [6]float64
	for k := 0; k < 6; k++ {
		perturbed := base
		perturbed[k] += h
		tp := t.WithParameters(perturbed)

		maxShift := 0.0
		for _, c := range corners {
			p0 := t.Apply(c)
			p1 := tp.Apply(c)
			d := math.Sqrt(sq(p1[0]-p0[0]) + sq(p1[1]-p0[1]) + sq(p1[2]-p0[2]))
			if d > maxShift {
				maxShift = d
			}
		}
		scales[k] = maxShift / h
		if scales[k] < 1e-6 {
			scales[k] = 1e-6
		}
	}
	return scales
}

func gridCorners(g models.Grid) [8][3]float64 {
	var corners [8][3]float64
	i := 0
	for _, z := range []float64{0, float64(g.Size[2] - 1)} {
		for _, y := range []float64{0, float64(g.Size[1] - 1)} {
			for _, x := range []float64{0, float64(g.Size[0] - 1)} {
				corners[i] = g.PointFromIndex(x, y, z)
				i++
			}
		}
	}
	return corners
}

func sq(v float64) float64 { return v * v }

// metricSample is a sampling location on the moving image: its physical
// position and intensity there.
type metricSample struct {
	point [3]float64
	value float64
}

// collectSamples gathers evenly strided metric samples across the moving
// image, capped so coarse levels don't pay for fine-level voxel counts.
func collectSamples(moving *models.Image) []metricSample {
	total := len(moving.Data)
	stride := total/maxSamplesPerLevel + 1

	nx, ny := moving.Grid.Size[0], moving.Grid.Size[1]
	samples := make([]metricSample, 0, total/stride+1)
	for i := 0; i < total; i += stride {
		x := i % nx
		y := (i / nx) % ny
		z := i / (nx * ny)
		samples = append(samples, metricSample{
			point: moving.Grid.PointFromIndex(float64(x), float64(y), float64(z)),
			value: moving.Data[i],
		})
	}
	return samples
}
