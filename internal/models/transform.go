package models

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// AffineTransform maps physical points to physical points:
// p' = Linear*p + Translation. Linear is row-major 3x3.
//
// Slice transforms use the convention "slice-local frame -> physical frame"
// throughout the pipeline; composing a stack's rigid alignment onto a slice
// keeps that meaning intact.
type AffineTransform struct {
	Linear      [9]float64
	Translation [3]float64
}

// IdentityAffine returns the identity transform.
func IdentityAffine() AffineTransform {
	return AffineTransform{Linear: IdentityDirection}
}

// Apply maps a physical point through the transform.
func (t AffineTransform) Apply(p [3]float64) [3]float64 {
	m := t.Linear
	return [3]float64{
		m[0]*p[0] + m[1]*p[1] + m[2]*p[2] + t.Translation[0],
		m[3]*p[0] + m[4]*p[1] + m[5]*p[2] + t.Translation[1],
		m[6]*p[0] + m[7]*p[1] + m[8]*p[2] + t.Translation[2],
	}
}

// Compose returns the transform t∘u, i.e. the transform that first applies
// u and then t.
func (t AffineTransform) Compose(u AffineTransform) AffineTransform {
	var out AffineTransform
	a, b := t.Linear, u.Linear
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out.Linear[r*3+c] = a[r*3]*b[c] + a[r*3+1]*b[3+c] + a[r*3+2]*b[6+c]
		}
	}
	out.Translation = t.Apply(u.Translation)
	return out
}

// Inverse returns the inverse transform, failing with a *GeometryError when
// the linear part is singular.
func (t AffineTransform) Inverse() (AffineTransform, error) {
	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(3, 3, t.Linear[:])); err != nil {
		return AffineTransform{}, &GeometryError{Op: "Inverse", Reason: "linear part is singular"}
	}

	var out AffineTransform
	copy(out.Linear[:], inv.RawMatrix().Data)
	m := out.Linear
	out.Translation = [3]float64{
		-(m[0]*t.Translation[0] + m[1]*t.Translation[1] + m[2]*t.Translation[2]),
		-(m[3]*t.Translation[0] + m[4]*t.Translation[1] + m[5]*t.Translation[2]),
		-(m[6]*t.Translation[0] + m[7]*t.Translation[1] + m[8]*t.Translation[2]),
	}
	return out, nil
}

// Validate checks that the transform is finite and invertible. An affine
// transform failing these checks must never be assigned to a slice.
func (t AffineTransform) Validate() error {
	for _, v := range t.Linear {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &GeometryError{Op: "Validate", Reason: "non-finite entry in linear part"}
		}
	}
	for _, v := range t.Translation {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &GeometryError{Op: "Validate", Reason: "non-finite entry in translation"}
		}
	}
	if math.Abs(mat.Det(mat.NewDense(3, 3, t.Linear[:]))) < 1e-12 {
		return &GeometryError{Op: "Validate", Reason: "linear part is singular"}
	}
	return nil
}

// RigidTransform is a 6-parameter rigid-body transform: three Euler angles
// (radians, applied as Rz*Ry*Rx) and three translations, rotating about a
// fixed center: p' = R*(p - c) + c + t.
type RigidTransform struct {
	// Angles are the rotations about the physical x, y and z axes
	Angles [3]float64

	// Translation is the offset applied after rotation, in mm
	Translation [3]float64

	// Center is the fixed point of the rotation, in mm
	Center [3]float64
}

// IdentityRigid returns the identity rigid transform.
func IdentityRigid() RigidTransform {
	return RigidTransform{}
}

// IsIdentity reports whether all six parameters are exactly zero.
func (t RigidTransform) IsIdentity() bool {
	return t.Angles == [3]float64{} && t.Translation == [3]float64{}
}

// RotationMatrix returns the row-major rotation matrix Rz*Ry*Rx.
func (t RigidTransform) RotationMatrix() [9]float64 {
	cx, sx := math.Cos(t.Angles[0]), math.Sin(t.Angles[0])
	cy, sy := math.Cos(t.Angles[1]), math.Sin(t.Angles[1])
	cz, sz := math.Cos(t.Angles[2]), math.Sin(t.Angles[2])

	return [9]float64{
		cz * cy, cz*sy*sx - sz*cx, cz*sy*cx + sz*sx,
		sz * cy, sz*sy*sx + cz*cx, sz*sy*cx - cz*sx,
		-sy, cy * sx, cy * cx,
	}
}

// ToAffine expands the rigid transform into the equivalent affine transform.
func (t RigidTransform) ToAffine() AffineTransform {
	r := t.RotationMatrix()
	rc := [3]float64{
		r[0]*t.Center[0] + r[1]*t.Center[1] + r[2]*t.Center[2],
		r[3]*t.Center[0] + r[4]*t.Center[1] + r[5]*t.Center[2],
		r[6]*t.Center[0] + r[7]*t.Center[1] + r[8]*t.Center[2],
	}
	return AffineTransform{
		Linear: r,
		Translation: [3]float64{
			t.Center[0] + t.Translation[0] - rc[0],
			t.Center[1] + t.Translation[1] - rc[1],
			t.Center[2] + t.Translation[2] - rc[2],
		},
	}
}

// Apply maps a physical point through the rigid transform.
func (t RigidTransform) Apply(p [3]float64) [3]float64 {
	return t.ToAffine().Apply(p)
}

// Parameters returns the six free parameters in optimizer order:
// three angles followed by three translations.
func (t RigidTransform) Parameters() [6]float64 {
	return [6]float64{
		t.Angles[0], t.Angles[1], t.Angles[2],
		t.Translation[0], t.Translation[1], t.Translation[2],
	}
}

// WithParameters returns a copy of the transform with the six free
// parameters replaced; the rotation center is preserved.
func (t RigidTransform) WithParameters(p [6]float64) RigidTransform {
	t.Angles = [3]float64{p[0], p[1], p[2]}
	t.Translation = [3]float64{p[3], p[4], p[5]}
	return t
}
