package mvt

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/eak1mov/go-mapview/mvt/pbf"
)

// Geometry commands of the vector tile encoding. A command integer packs
// the command id in its low three bits and a repeat count above them.
const (
	cmdMoveTo    = 1
	cmdLineTo    = 2
	cmdClosePath = 7
)

// Shape is the multi-part classification derived from a feature's raw
// type code and its decoded sub-path structure.
type Shape uint8

const (
	ShapeUnknown Shape = iota
	ShapePoint
	ShapeMultiPoint
	ShapeLineString
	ShapeMultiLineString
	ShapePolygon
	ShapeMultiPolygon
)

func (s Shape) String() string {
	switch s {
	case ShapePoint:
		return "point"
	case ShapeMultiPoint:
		return "multipoint"
	case ShapeLineString:
		return "linestring"
	case ShapeMultiLineString:
		return "multilinestring"
	case ShapePolygon:
		return "polygon"
	case ShapeMultiPolygon:
		return "multipolygon"
	default:
		return "unknown"
	}
}

// Geometry is one decoded feature geometry in tile-local coordinates:
// interleaved x,y pairs with exclusive end offsets marking sub-path
// boundaries. Tile y grows downward.
type Geometry struct {
	Shape  Shape
	Coords []float64
	Ends   []int

	endss [][]int
}

// Geometry decodes the feature's command stream and classifies the
// result.
func (f *Feature) Geometry() (*Geometry, error) {
	coords, ends, err := f.readRawGeometry()
	if err != nil {
		return nil, err
	}
	g := &Geometry{Coords: coords, Ends: ends}
	switch f.Type {
	case GeomPoint:
		if len(ends) <= 1 {
			g.Shape = ShapePoint
		} else {
			g.Shape = ShapeMultiPoint
		}
	case GeomLineString:
		if len(ends) <= 1 {
			g.Shape = ShapeLineString
		} else {
			g.Shape = ShapeMultiLineString
		}
	case GeomPolygon:
		g.endss = splitRings(coords, ends)
		if len(g.endss) <= 1 {
			g.Shape = ShapePolygon
		} else {
			g.Shape = ShapeMultiPolygon
		}
	default:
		g.Shape = ShapeUnknown
	}
	return g, nil
}

// readRawGeometry walks the command stream, decoding zigzag deltas
// against a running cursor. Deltas accumulate across MoveTo boundaries:
// every coordinate is relative to the previous one, whatever sub-path it
// belongs to.
func (f *Feature) readRawGeometry() ([]float64, []int, error) {
	r := pbf.ReaderAt(f.layer.buf, f.geom.start, f.geom.end)
	var (
		x, y   float64
		coords []float64
		ends   []int
	)
	for r.More() {
		head, err := r.Varint()
		if err != nil {
			return nil, nil, err
		}
		cmd := head & 0x7
		count := int(head >> 3)
		switch cmd {
		case cmdMoveTo, cmdLineTo:
			for ; count > 0; count-- {
				dx, err := r.SVarint()
				if err != nil {
					return nil, nil, err
				}
				dy, err := r.SVarint()
				if err != nil {
					return nil, nil, err
				}
				if cmd == cmdMoveTo && len(coords) > lastEnd(ends) {
					ends = append(ends, len(coords))
				}
				x += float64(dx)
				y += float64(dy)
				coords = append(coords, x, y)
			}
		case cmdClosePath:
			for ; count > 0; count-- {
				if start := lastEnd(ends); len(coords) > start {
					coords = append(coords, coords[start], coords[start+1])
					ends = append(ends, len(coords))
				}
			}
		default:
			return nil, nil, fmt.Errorf("%w: %d", ErrInvalidGeometryCommand, cmd)
		}
	}
	if n := len(coords); n > 0 && lastEnd(ends) != n {
		ends = append(ends, n)
	}
	return coords, ends, nil
}

// lastEnd returns the start offset of the sub-path currently being
// accumulated.
func lastEnd(ends []int) int {
	if len(ends) == 0 {
		return 0
	}
	return ends[len(ends)-1]
}

// splitRings partitions polygon rings into per-polygon groups: a
// clockwise ring (positive signed area with y growing downward) opens a
// new polygon and every other ring joins the current one as a hole.
// Grouping follows winding and record order only; rings are not tested
// for containment.
func splitRings(coords []float64, ends []int) [][]int {
	var endss [][]int
	start := 0
	for _, end := range ends {
		if len(endss) == 0 || signedArea(coords, start, end) > 0 {
			endss = append(endss, []int{end})
		} else {
			last := len(endss) - 1
			endss[last] = append(endss[last], end)
		}
		start = end
	}
	return endss
}

// signedArea returns twice the shoelace area of the ring in
// coords[start:end]. The sign is positive for clockwise rings in the
// y-down tile space.
func signedArea(coords []float64, start, end int) float64 {
	var area float64
	for i := start; i < end; i += 2 {
		j := i + 2
		if j >= end {
			j = start
		}
		area += coords[i]*coords[j+1] - coords[j]*coords[i+1]
	}
	return area
}

// Endss returns the per-polygon ring partition for polygon shapes, nil
// for everything else.
func (g *Geometry) Endss() [][]int { return g.endss }

// Bound returns the bounding box of the geometry in tile coordinates,
// the zero bound for an empty geometry.
func (g *Geometry) Bound() orb.Bound {
	if len(g.Coords) == 0 {
		return orb.Bound{}
	}
	b := orb.Bound{
		Min: orb.Point{g.Coords[0], g.Coords[1]},
		Max: orb.Point{g.Coords[0], g.Coords[1]},
	}
	for i := 2; i < len(g.Coords); i += 2 {
		b = b.Extend(orb.Point{g.Coords[i], g.Coords[i+1]})
	}
	return b
}

// Orb assembles the decoded coordinates into an orb geometry, or nil for
// an empty or unknown one.
func (g *Geometry) Orb() orb.Geometry {
	if len(g.Coords) == 0 {
		return nil
	}
	switch g.Shape {
	case ShapePoint:
		return orb.Point{g.Coords[0], g.Coords[1]}
	case ShapeMultiPoint:
		mp := make(orb.MultiPoint, 0, len(g.Coords)/2)
		for i := 0; i < len(g.Coords); i += 2 {
			mp = append(mp, orb.Point{g.Coords[i], g.Coords[i+1]})
		}
		return mp
	case ShapeLineString:
		return orb.LineString(g.points(0, g.Ends[0]))
	case ShapeMultiLineString:
		ml := make(orb.MultiLineString, 0, len(g.Ends))
		start := 0
		for _, end := range g.Ends {
			ml = append(ml, orb.LineString(g.points(start, end)))
			start = end
		}
		return ml
	case ShapePolygon:
		return g.polygon(g.endss[0], 0)
	case ShapeMultiPolygon:
		mp := make(orb.MultiPolygon, 0, len(g.endss))
		start := 0
		for _, ends := range g.endss {
			poly := g.polygon(ends, start)
			start = ends[len(ends)-1]
			mp = append(mp, poly)
		}
		return mp
	default:
		return nil
	}
}

func (g *Geometry) polygon(ends []int, start int) orb.Polygon {
	poly := make(orb.Polygon, 0, len(ends))
	for _, end := range ends {
		poly = append(poly, orb.Ring(g.points(start, end)))
		start = end
	}
	return poly
}

func (g *Geometry) points(start, end int) []orb.Point {
	points := make([]orb.Point, 0, (end-start)/2)
	for i := start; i < end; i += 2 {
		points = append(points, orb.Point{g.Coords[i], g.Coords[i+1]})
	}
	return points
}
