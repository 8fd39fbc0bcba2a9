// Package render drives layers: it turns a view into tile requests,
// runs the load lifecycle against the pyramid cache and maps between
// viewport pixels and layer surfaces.
package render

import (
	"errors"
	"math"
)

var ErrNonInvertible = errors.New("mapview: transform is not invertible")

// Transform is a 2D affine transform stored as [a b c d e f]:
//
//	x' = a*x + c*y + e
//	y' = b*x + d*y + f
type Transform [6]float64

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{1, 0, 0, 1, 0, 0}
}

// Compose builds the usual frame transform: translate by (dx2, dy2),
// rotate by angle, scale by (sx, sy), then translate by (dx1, dy1), in
// application order from right to left.
func Compose(dx1, dy1, sx, sy, angle, dx2, dy2 float64) Transform {
	sin, cos := math.Sincos(angle)
	a := sx * cos
	b := sy * sin
	c := -sx * sin
	d := sy * cos
	return Transform{
		a, b, c, d,
		a*dx2 + c*dy2 + dx1,
		b*dx2 + d*dy2 + dy1,
	}
}

// Apply maps the point (x, y) through the transform.
func (t Transform) Apply(x, y float64) (float64, float64) {
	return t[0]*x + t[2]*y + t[4], t[1]*x + t[3]*y + t[5]
}

// Mul returns the composition t∘o, the transform applying o first and t
// after.
func (t Transform) Mul(o Transform) Transform {
	return Transform{
		t[0]*o[0] + t[2]*o[1],
		t[1]*o[0] + t[3]*o[1],
		t[0]*o[2] + t[2]*o[3],
		t[1]*o[2] + t[3]*o[3],
		t[0]*o[4] + t[2]*o[5] + t[4],
		t[1]*o[4] + t[3]*o[5] + t[5],
	}
}

// Invert returns the inverse transform. It fails on a zero determinant,
// which for a frame transform means a zero scale somewhere.
func (t Transform) Invert() (Transform, error) {
	det := t[0]*t[3] - t[1]*t[2]
	if det == 0 {
		return Transform{}, ErrNonInvertible
	}
	a, b, c, d, e, f := t[0], t[1], t[2], t[3], t[4], t[5]
	return Transform{
		d / det,
		-b / det,
		-c / det,
		a / det,
		(c*f - d*e) / det,
		(b*e - a*f) / det,
	}, nil
}
