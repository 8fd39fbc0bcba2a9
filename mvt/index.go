package mvt

import (
	"github.com/dhconnelly/rtreego"
)

// indexEntry wraps one feature for R-tree storage.
type indexEntry struct {
	rect    rtreego.Rect
	feature *Feature
	geom    *Geometry
}

func (e *indexEntry) Bounds() rtreego.Rect { return e.rect }

// Index is an R-tree over a layer's feature geometries in tile-local
// coordinates, answering the point probes interaction hit-testing needs.
type Index struct {
	tree *rtreego.Rtree
}

// NewIndex decodes and indexes every feature of the layer. Features that
// fail to decode or carry no coordinates are left out, matching
// Features.
func NewIndex(layer *Layer) *Index {
	tree := rtreego.NewTree(2, 25, 50)
	for f := range layer.Features() {
		g, err := f.Geometry()
		if err != nil || len(g.Coords) == 0 {
			continue
		}
		b := g.Bound()
		rect, err := rtreego.NewRect(
			rtreego.Point{b.Min[0], b.Min[1]},
			rectLengths(b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]),
		)
		if err != nil {
			continue
		}
		tree.Insert(&indexEntry{rect: rect, feature: f, geom: g})
	}
	return &Index{tree: tree}
}

// rectLengths pads degenerate box sides, since the R-tree refuses
// zero-length dimensions. Half a tile unit is well below a pixel at any
// realistic extent.
func rectLengths(dx, dy float64) []float64 {
	const epsilon = 0.5
	if dx < epsilon {
		dx = epsilon
	}
	if dy < epsilon {
		dy = epsilon
	}
	return []float64{dx, dy}
}

// Len returns the number of indexed features.
func (ix *Index) Len() int { return ix.tree.Size() }

// Search returns the features whose bounding boxes contain the probe
// point, padded by tolerance tile units, in no particular order.
func (ix *Index) Search(x, y, tolerance float64) []*Feature {
	if tolerance < 0 {
		tolerance = 0
	}
	rect, err := rtreego.NewRect(
		rtreego.Point{x - tolerance, y - tolerance},
		rectLengths(2*tolerance, 2*tolerance),
	)
	if err != nil {
		return nil
	}
	spatials := ix.tree.SearchIntersect(rect)
	features := make([]*Feature, 0, len(spatials))
	for _, s := range spatials {
		features = append(features, s.(*indexEntry).feature)
	}
	return features
}
