package tile

import (
	"math"

	"github.com/paulmach/orb"
)

// webMercatorHalfSpan is half the side of the EPSG:3857 square.
const webMercatorHalfSpan = 20037508.342789244

// Grid describes a tile pyramid: the extent it covers, the tile size in
// pixels and the resolution ladder indexed by zoom level. The pyramid
// origin is the extent's top-left corner, rows grow downward.
type Grid struct {
	extent      orb.Bound
	tileSize    int
	resolutions []float64
}

// NewGrid builds a power-of-two pyramid over extent. Zoom 0 fits the
// extent width in a single tile and every further level halves the
// resolution, down to maxZoom inclusive.
func NewGrid(extent orb.Bound, tileSize, maxZoom int) *Grid {
	resolutions := make([]float64, maxZoom+1)
	res := (extent.Max[0] - extent.Min[0]) / float64(tileSize)
	for z := range resolutions {
		resolutions[z] = res
		res /= 2
	}
	return &Grid{extent: extent, tileSize: tileSize, resolutions: resolutions}
}

// WebMercatorGrid returns the standard spherical-mercator XYZ pyramid
// with 256 pixel tiles.
func WebMercatorGrid(maxZoom int) *Grid {
	extent := orb.Bound{
		Min: orb.Point{-webMercatorHalfSpan, -webMercatorHalfSpan},
		Max: orb.Point{webMercatorHalfSpan, webMercatorHalfSpan},
	}
	return NewGrid(extent, 256, maxZoom)
}

func (g *Grid) Extent() orb.Bound { return g.extent }
func (g *Grid) TileSize() int     { return g.tileSize }
func (g *Grid) MaxZoom() int32    { return int32(len(g.resolutions) - 1) }

// Resolution returns the units-per-pixel at zoom z, clamped to the
// resolution ladder.
func (g *Grid) Resolution(z int32) float64 {
	if z < 0 {
		z = 0
	}
	if int(z) >= len(g.resolutions) {
		z = int32(len(g.resolutions) - 1)
	}
	return g.resolutions[z]
}

// ZoomFor returns the zoom level whose resolution is nearest to res in
// log space, so a view resolution halfway between two levels picks the
// sharper one only past the geometric midpoint.
func (g *Grid) ZoomFor(res float64) int32 {
	for z := 0; z < len(g.resolutions)-1; z++ {
		if res >= math.Sqrt(g.resolutions[z]*g.resolutions[z+1]) {
			return int32(z)
		}
	}
	return int32(len(g.resolutions) - 1)
}

// TileExtent returns the area covered by c in grid units. Columns outside
// [0, 2^z) produce extents outside the grid extent, which is what a
// renderer drawing world copies wants.
func (g *Grid) TileExtent(c Coord) orb.Bound {
	res := g.Resolution(c.Z)
	span := float64(g.tileSize) * res
	minX := g.extent.Min[0] + float64(c.X)*span
	maxY := g.extent.Max[1] - float64(c.Y)*span
	return orb.Bound{
		Min: orb.Point{minX, maxY - span},
		Max: orb.Point{minX + span, maxY},
	}
}

// Range is an inclusive rectangle of tile columns and rows at one zoom
// level.
type Range struct {
	MinX, MaxX int32
	MinY, MaxY int32
}

// Size returns the number of tiles in the range.
func (r Range) Size() int {
	if r.MaxX < r.MinX || r.MaxY < r.MinY {
		return 0
	}
	return int(r.MaxX-r.MinX+1) * int(r.MaxY-r.MinY+1)
}

func (r Range) Contains(c Coord) bool {
	return c.X >= r.MinX && c.X <= r.MaxX && c.Y >= r.MinY && c.Y <= r.MaxY
}

// Range returns the tiles covering extent at zoom z. Rows outside the
// pyramid are clipped away; columns are kept unclipped so callers can
// request antimeridian world copies.
func (g *Grid) Range(extent orb.Bound, z int32) Range {
	res := g.Resolution(z)
	span := float64(g.tileSize) * res
	// Nudge by a sliver of a tile so extents ending exactly on a tile
	// boundary do not pull in the next row or column.
	const eps = 1e-9
	r := Range{
		MinX: int32(math.Floor((extent.Min[0]-g.extent.Min[0])/span + eps)),
		MaxX: int32(math.Ceil((extent.Max[0]-g.extent.Min[0])/span-eps)) - 1,
		MinY: int32(math.Floor((g.extent.Max[1]-extent.Max[1])/span + eps)),
		MaxY: int32(math.Ceil((g.extent.Max[1]-extent.Min[1])/span-eps)) - 1,
	}
	if r.MaxX < r.MinX {
		r.MaxX = r.MinX
	}
	if r.MaxY < r.MinY {
		r.MaxY = r.MinY
	}
	rows := int32(1) << z
	if r.MinY < 0 {
		r.MinY = 0
	}
	if r.MaxY >= rows {
		r.MaxY = rows - 1
	}
	return r
}

// Coords lists the coordinates covering extent at zoom z in row-major
// order, top row first.
func (g *Grid) Coords(extent orb.Bound, z int32) []Coord {
	r := g.Range(extent, z)
	coords := make([]Coord, 0, r.Size())
	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			coords = append(coords, Coord{Z: z, X: x, Y: y})
		}
	}
	return coords
}

// CoordAt returns the tile containing the point at zoom z. Points on a
// boundary belong to the tile right and below it, matching Range.
func (g *Grid) CoordAt(point orb.Point, z int32) Coord {
	res := g.Resolution(z)
	span := float64(g.tileSize) * res
	return Coord{
		Z: z,
		X: int32(math.Floor((point[0] - g.extent.Min[0]) / span)),
		Y: int32(math.Floor((g.extent.Max[1] - point[1]) / span)),
	}
}
