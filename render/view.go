package render

import (
	"math"

	"github.com/paulmach/orb"
)

// View describes one frame: the map center in grid units, the
// resolution in units per pixel, the viewport rotation in radians and
// the pixel size of the output surface.
type View struct {
	Center     orb.Point
	Resolution float64
	Rotation   float64
	Width      int
	Height     int
}

// Extent returns the axis-aligned grid-space extent the view covers.
// Under rotation that is the bounding box of the rotated viewport, so it
// grows beyond the visible area.
func (v View) Extent() orb.Bound {
	halfW := float64(v.Width) / 2 * v.Resolution
	halfH := float64(v.Height) / 2 * v.Resolution
	if v.Rotation != 0 {
		sin, cos := math.Sincos(v.Rotation)
		halfW, halfH = math.Abs(halfW*cos)+math.Abs(halfH*sin),
			math.Abs(halfW*sin)+math.Abs(halfH*cos)
	}
	return orb.Bound{
		Min: orb.Point{v.Center[0] - halfW, v.Center[1] - halfH},
		Max: orb.Point{v.Center[0] + halfW, v.Center[1] + halfH},
	}
}

// frameTransform maps grid units to viewport pixels for the view:
// viewport y grows downward, so the y scale is negated.
func (v View) frameTransform() Transform {
	return Compose(
		float64(v.Width)/2, float64(v.Height)/2,
		1/v.Resolution, -1/v.Resolution,
		-v.Rotation,
		-v.Center[0], -v.Center[1],
	)
}
