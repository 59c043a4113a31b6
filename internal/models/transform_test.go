package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAffineComposeOrder(t *testing.T) {
	// u scales x by 2, t shifts x by 1. t∘u applied to x=3 is 2*3+1=7.
	u := IdentityAffine()
	u.Linear[0] = 2
	tr := IdentityAffine()
	tr.Translation[0] = 1

	c := tr.Compose(u)
	p := c.Apply([3]float64{3, 0, 0})
	assert.InDelta(t, 7.0, p[0], 1e-12)

	// The other order scales after shifting: 2*(3+1)=8.
	c = u.Compose(tr)
	p = c.Apply([3]float64{3, 0, 0})
	assert.InDelta(t, 8.0, p[0], 1e-12)
}

func TestAffineInverse(t *testing.T) {
	tr := AffineTransform{
		Linear: [9]float64{
			0, -2, 0,
			2, 0, 0,
			0, 0, 0.5,
		},
		Translation: [3]float64{1, -3, 2},
	}

	inv, err := tr.Inverse()
	require.NoError(t, err)

	p := [3]float64{1.5, -0.25, 4}
	back := inv.Apply(tr.Apply(p))
	for a := 0; a < 3; a++ {
		assert.InDelta(t, p[a], back[a], 1e-12)
	}
}

func TestAffineInverseSingular(t *testing.T) {
	tr := AffineTransform{}
	_, err := tr.Inverse()
	var geomErr *GeometryError
	require.ErrorAs(t, err, &geomErr)
}

func TestAffineValidate(t *testing.T) {
	tr := IdentityAffine()
	require.NoError(t, tr.Validate())

	bad := tr
	bad.Linear[4] = math.NaN()
	assert.Error(t, bad.Validate())

	bad = tr
	bad.Translation[2] = math.Inf(-1)
	assert.Error(t, bad.Validate())

	assert.Error(t, AffineTransform{}.Validate())
}

func TestRigidIdentity(t *testing.T) {
	tr := IdentityRigid()
	assert.True(t, tr.IsIdentity())

	a := tr.ToAffine()
	p := [3]float64{3, -1, 7}
	assert.Equal(t, p, a.Apply(p))

	tr.Translation[0] = 0.5
	assert.False(t, tr.IsIdentity())
}

func TestRigidCenterIsFixedPoint(t *testing.T) {
	tr := RigidTransform{
		Angles: [3]float64{0.3, -0.2, 0.1},
		Center: [3]float64{5, 6, 7},
	}

	// With no translation the rotation center maps to itself.
	got := tr.Apply(tr.Center)
	for a := 0; a < 3; a++ {
		assert.InDelta(t, tr.Center[a], got[a], 1e-12)
	}
}

func TestRigidRotationAboutZ(t *testing.T) {
	tr := RigidTransform{Angles: [3]float64{0, 0, math.Pi / 2}}
	got := tr.Apply([3]float64{1, 0, 0})
	assert.InDelta(t, 0.0, got[0], 1e-12)
	assert.InDelta(t, 1.0, got[1], 1e-12)
	assert.InDelta(t, 0.0, got[2], 1e-12)
}

func TestRigidParametersRoundTrip(t *testing.T) {
	tr := RigidTransform{
		Angles:      [3]float64{0.1, 0.2, 0.3},
		Translation: [3]float64{-1, 2, -3},
		Center:      [3]float64{4, 5, 6},
	}

	p := tr.Parameters()
	got := RigidTransform{Center: tr.Center}.WithParameters(p)
	assert.Equal(t, tr, got)
}
