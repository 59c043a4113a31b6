package registration

import (
	"gonum.org/v1/gonum/stat"

	"volrecon/internal/models"
	"volrecon/pkg/resample"
)

// mutualInformation is a joint-histogram mutual information metric. Bin
// ranges are fixed from the full intensity range of each level's images, so
// the metric stays comparable between optimizer iterations.
type mutualInformation struct {
	bins           int
	fixedMin       float64
	fixedBinScale  float64
	movingMin      float64
	movingBinScale float64

	joint   []float64
	fixedP  []float64
	movingP []float64
}

func newMutualInformation(bins int, fixedData, movingData []float64) *mutualInformation {
	m := &mutualInformation{
		bins:    bins,
		joint:   make([]float64, bins*bins),
		fixedP:  make([]float64, bins),
		movingP: make([]float64, bins),
	}
	m.fixedMin, m.fixedBinScale = binScale(bins, fixedData)
	m.movingMin, m.movingBinScale = binScale(bins, movingData)
	return m
}

func binScale(bins int, data []float64) (min, scale float64) {
	if len(data) == 0 {
		return 0, 0
	}
	min, max := data[0], data[0]
	for _, v := range data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max <= min {
		return min, 0
	}
	return min, float64(bins) / (max - min)
}

func (m *mutualInformation) bin(v, min, scale float64) int {
	b := int((v - min) * scale)
	if b < 0 {
		return 0
	}
	if b >= m.bins {
		return m.bins - 1
	}
	return b
}

// evaluate returns the mutual information between the moving samples and the
// fixed image read through the candidate transform. Samples mapping outside
// the fixed domain are excluded; with too little overlap the metric is zero,
// which the optimizer treats as "no shared information".
func (m *mutualInformation) evaluate(samples []metricSample, fixed *resample.Sampler, t models.RigidTransform) float64 {
	for i := range m.joint {
		m.joint[i] = 0
	}
	for i := 0; i < m.bins; i++ {
		m.fixedP[i] = 0
		m.movingP[i] = 0
	}

	affine := t.ToAffine()
	count := 0
	for _, s := range samples {
		f, ok := fixed.At(affine.Apply(s.point))
		if !ok {
			continue
		}
		fb := m.bin(f, m.fixedMin, m.fixedBinScale)
		mb := m.bin(s.value, m.movingMin, m.movingBinScale)
		m.joint[mb*m.bins+fb]++
		count++
	}
	if count < 16 {
		return 0
	}

	inv := 1 / float64(count)
	for i := range m.joint {
		m.joint[i] *= inv
	}
	for mb := 0; mb < m.bins; mb++ {
		for fb := 0; fb < m.bins; fb++ {
			p := m.joint[mb*m.bins+fb]
			m.movingP[mb] += p
			m.fixedP[fb] += p
		}
	}

	return stat.Entropy(m.movingP) + stat.Entropy(m.fixedP) - stat.Entropy(m.joint)
}
