package render

import (
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/eak1mov/go-mapview/mvt"
	"github.com/eak1mov/go-mapview/source"
	"github.com/eak1mov/go-mapview/tile"
)

// VectorLayer drives a vector tile layer. It loads MVT payloads through
// the same pyramid cache raster layers use, decodes each payload once
// per cache entry and answers feature queries at viewport pixels.
//
// Like Layer, a VectorLayer is confined to the goroutine driving the
// render loop.
type VectorLayer struct {
	source *source.TileSource
	logger *zap.Logger

	decoded      map[tile.Key]*decodedTile
	frame        Transform
	inverse      Transform
	zoom         int32
	resolution   float64
	hasFrame     bool
	pending      int
	dirty        bool
	onInvalidate func()
}

// decodedTile memoizes one decoded payload. The owner pointer ties the
// memo to a specific cache entry: when the entry is recreated, the memo
// is stale even though the key matches.
type decodedTile struct {
	owner   *tile.Tile
	tile    *mvt.Tile
	indexes map[string]*mvt.Index
}

type VectorLayerOption func(*VectorLayer)

// WithVectorLogger replaces the no-op default logger.
func WithVectorLogger(logger *zap.Logger) VectorLayerOption {
	return func(l *VectorLayer) {
		l.logger = logger
	}
}

// WithVectorInvalidate registers a hook fired whenever a finished load
// makes the last frame stale.
func WithVectorInvalidate(fn func()) VectorLayerOption {
	return func(l *VectorLayer) {
		l.onInvalidate = fn
	}
}

func NewVectorLayer(src *source.TileSource, opts ...VectorLayerOption) *VectorLayer {
	l := &VectorLayer{
		source:  src,
		logger:  zap.NewNop(),
		decoded: make(map[tile.Key]*decodedTile),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Source returns the tile source the layer reads from.
func (l *VectorLayer) Source() *source.TileSource { return l.source }

// Pending returns how many tiles of the last frame were still waiting
// on a load.
func (l *VectorLayer) Pending() int { return l.pending }

// Dirty reports whether a load finished since the last frame. It resets
// on the next RenderFrame.
func (l *VectorLayer) Dirty() bool { return l.dirty }

func (l *VectorLayer) invalidate() {
	l.dirty = true
	if l.onInvalidate != nil {
		l.onInvalidate()
	}
}

// LoadTile runs one load step for t, with the same contract as
// Layer.LoadTile.
func (l *VectorLayer) LoadTile(t *tile.Tile) bool {
	return ensureLoaded(l.source, t, l.invalidate)
}

// RenderFrame requests the pyramid covering view, drives loads and
// decodes every ready payload. It returns how many of the frame's tiles
// are ready against the total requested.
func (l *VectorLayer) RenderFrame(view View) (ready, total int) {
	l.dirty = false
	l.pending = 0
	l.source.Deliver()

	if view.Width <= 0 || view.Height <= 0 || view.Resolution <= 0 {
		l.hasFrame = false
		return 0, 0
	}

	grid := l.source.Grid()
	l.zoom = grid.ZoomFor(view.Resolution)
	l.resolution = view.Resolution
	l.frame = view.frameTransform()
	l.inverse = mustInvert(l.frame)
	l.hasFrame = true

	coords := grid.Coords(view.Extent(), l.zoom)
	active := make(map[tile.Key]struct{}, len(coords))
	for _, coord := range coords {
		t := l.source.GetTile(coord)
		active[coord.Key()] = struct{}{}
		if !l.LoadTile(t) {
			if t.State() != tile.StateError {
				l.pending++
			}
			continue
		}
		l.source.Cache().Touch(coord.Key())
		ready++
		if t.State() == tile.StateLoaded {
			l.decodeTile(t)
		}
	}
	l.source.Expire(active)
	l.pruneDecoded()
	return ready, len(coords)
}

// decodeTile memoizes the decoded payload for a loaded tile.
func (l *VectorLayer) decodeTile(t *tile.Tile) *decodedTile {
	key := t.Coord().Key()
	if dt, ok := l.decoded[key]; ok && dt.owner == t {
		return dt
	}
	decoded, err := mvt.Decode(t.Data())
	if err != nil {
		l.logger.Warn("vector tile decode failed",
			zap.String("tile", t.Coord().String()),
			zap.Error(err))
		decoded = &mvt.Tile{}
	}
	dt := &decodedTile{
		owner:   t,
		tile:    decoded,
		indexes: make(map[string]*mvt.Index),
	}
	l.decoded[key] = dt
	return dt
}

func (l *VectorLayer) pruneDecoded() {
	for key := range l.decoded {
		if !l.source.Cache().Contains(key) {
			delete(l.decoded, key)
		}
	}
}

// Tile returns the decoded payload for a coordinate of the last frame,
// or nil when the tile is not loaded.
func (l *VectorLayer) Tile(coord tile.Coord) *mvt.Tile {
	t, err := l.source.Cache().Get(coord.Key())
	if err != nil || t.State() != tile.StateLoaded {
		return nil
	}
	dt, ok := l.decoded[coord.Key()]
	if !ok || dt.owner != t {
		return nil
	}
	return dt.tile
}

// FeaturesAt returns the features under a viewport pixel, looking in the
// named layer of the covering tile, or in every layer when name is
// empty. The tolerance is in viewport pixels.
func (l *VectorLayer) FeaturesAt(x, y float64, name string, tolerance float64) []*mvt.Feature {
	if !l.hasFrame {
		return nil
	}
	gx, gy := l.inverse.Apply(x, y)
	coord := l.source.Grid().CoordAt(orb.Point{gx, gy}, l.zoom)

	t, err := l.source.Cache().Get(coord.Key())
	if err != nil || t.State() != tile.StateLoaded {
		return nil
	}
	dt, ok := l.decoded[coord.Key()]
	if !ok || dt.owner != t {
		return nil
	}

	var features []*mvt.Feature
	for _, layer := range dt.tile.Layers {
		if name != "" && layer.Name != name {
			continue
		}
		// Probe in tile-local units: x from the extent's left edge, y
		// down from its top edge.
		span := t.Extent.Max[0] - t.Extent.Min[0]
		scale := float64(layer.Extent) / span
		lx := (gx - t.Extent.Min[0]) * scale
		ly := (t.Extent.Max[1] - gy) * scale

		index, ok := dt.indexes[layer.Name]
		if !ok {
			index = mvt.NewIndex(layer)
			dt.indexes[layer.Name] = index
		}
		features = append(features, index.Search(lx, ly, tolerance*l.resolution*scale)...)
	}
	return features
}
