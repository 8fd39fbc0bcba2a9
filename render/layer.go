package render

import (
	"bytes"
	"image"
	"math"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/eak1mov/go-mapview/source"
	"github.com/eak1mov/go-mapview/tile"
)

// Layer renders one raster tile layer. Each frame it requests the
// pyramid covering the view, runs the load lifecycle for every tile and
// composes the loaded ones into an output surface.
//
// Tiles are drawn into an axis-aligned backing surface first; a separate
// composite transform places that surface into the viewport. At zero
// rotation the backing surface is the viewport and the composite is the
// identity, exactly.
//
// A Layer is confined to a single goroutine. Loads complete in the
// background but are applied by the source's Deliver pump, which
// RenderFrame runs at the start of every frame.
type Layer struct {
	source *source.TileSource
	logger *zap.Logger

	images       map[tile.Key]image.Image
	composite    Transform
	inverse      Transform
	backingW     int
	backingH     int
	hasFrame     bool
	pending      int
	dirty        bool
	onInvalidate func()
}

type LayerOption func(*Layer)

// WithLogger replaces the no-op default logger.
func WithLogger(logger *zap.Logger) LayerOption {
	return func(l *Layer) {
		l.logger = logger
	}
}

// WithInvalidate registers a hook fired whenever a finished load makes
// the last frame stale, typically to schedule a re-render.
func WithInvalidate(fn func()) LayerOption {
	return func(l *Layer) {
		l.onInvalidate = fn
	}
}

func NewLayer(src *source.TileSource, opts ...LayerOption) *Layer {
	l := &Layer{
		source: src,
		logger: zap.NewNop(),
		images: make(map[tile.Key]image.Image),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Source returns the tile source the layer draws from.
func (l *Layer) Source() *source.TileSource { return l.source }

// Pending returns how many tiles of the last frame were still waiting
// on a load. Failed tiles do not count; they will never come up.
func (l *Layer) Pending() int { return l.pending }

// Dirty reports whether a load finished since the last frame was built.
// It resets at the start of the next RenderFrame.
func (l *Layer) Dirty() bool { return l.dirty }

func (l *Layer) invalidate() {
	l.dirty = true
	if l.onInvalidate != nil {
		l.onInvalidate()
	}
}

// LoadTile runs one load step for t, reporting whether the tile is
// ready to draw.
//
// An idle tile gets a one-shot retry listener and its load is started.
// A loading tile is left alone: the listener registered when the load
// began already covers this frame, so asking again adds nothing. A
// failed tile stays failed; it is never retried while its entry lives.
func (l *Layer) LoadTile(t *tile.Tile) bool {
	return ensureLoaded(l.source, t, l.invalidate)
}

func ensureLoaded(src *source.TileSource, t *tile.Tile, invalidate func()) bool {
	switch t.State() {
	case tile.StateLoaded, tile.StateEmpty:
		return true
	case tile.StateIdle:
		key := t.Coord().Key()
		t.OnChange(func(done *tile.Tile) {
			// The entry may have been evicted or replaced while the load
			// was in flight; only the current resource may invalidate.
			if current, err := src.Cache().Get(key); err != nil || current != done {
				return
			}
			invalidate()
		})
		t.Load()
		return false
	default:
		return false
	}
}

// RenderFrame builds the frame for view and returns it. Missing tiles
// come up on later frames: when their loads finish the invalidate hook
// fires and the caller renders again.
func (l *Layer) RenderFrame(view View) *image.RGBA {
	l.dirty = false
	l.pending = 0
	l.source.Deliver()

	if view.Width <= 0 || view.Height <= 0 || view.Resolution <= 0 {
		l.hasFrame = false
		return image.NewRGBA(image.Rectangle{})
	}

	grid := l.source.Grid()
	z := grid.ZoomFor(view.Resolution)
	extent := view.Extent()
	coords := grid.Coords(extent, z)

	backing, backingFrame := l.newBacking(view, extent)
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
		if t.State() == tile.StateEmpty {
			continue
		}
		if img := l.tileImage(t); img != nil {
			drawTile(backing, backingFrame, t, img)
		}
	}
	l.source.Expire(active)
	l.pruneImages()

	l.backingW = backing.Bounds().Dx()
	l.backingH = backing.Bounds().Dy()
	l.hasFrame = true
	if view.Rotation == 0 {
		l.composite = Identity()
		l.inverse = Identity()
		return backing
	}

	l.composite = view.frameTransform().Mul(mustInvert(backingFrame))
	l.inverse = mustInvert(l.composite)
	out := image.NewRGBA(image.Rect(0, 0, view.Width, view.Height))
	draw.ApproxBiLinear.Transform(out, aff3(l.composite), backing, backing.Bounds(), draw.Over, nil)
	return out
}

// newBacking allocates the axis-aligned surface tiles are drawn into
// and the transform from grid units to its pixels. At zero rotation it
// is the viewport itself; otherwise it covers the rotated view's
// bounding box.
func (l *Layer) newBacking(view View, extent orb.Bound) (*image.RGBA, Transform) {
	w, h := view.Width, view.Height
	if view.Rotation != 0 {
		w = int(math.Ceil((extent.Max[0] - extent.Min[0]) / view.Resolution))
		h = int(math.Ceil((extent.Max[1] - extent.Min[1]) / view.Resolution))
	}
	frame := Compose(
		float64(w)/2, float64(h)/2,
		1/view.Resolution, -1/view.Resolution,
		0,
		-view.Center[0], -view.Center[1],
	)
	return image.NewRGBA(image.Rect(0, 0, w, h)), frame
}

// drawTile places one loaded tile image into the backing surface.
func drawTile(dst *image.RGBA, backingFrame Transform, t *tile.Tile, img image.Image) {
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return
	}
	resX := (t.Extent.Max[0] - t.Extent.Min[0]) / float64(bounds.Dx())
	resY := (t.Extent.Max[1] - t.Extent.Min[1]) / float64(bounds.Dy())
	// Image pixel (0,0) sits at the tile extent's top-left corner.
	toGrid := Transform{resX, 0, 0, -resY, t.Extent.Min[0], t.Extent.Max[1]}
	draw.NearestNeighbor.Transform(dst, aff3(backingFrame.Mul(toGrid)), img, bounds, draw.Over, nil)
}

// tileImage decodes the tile payload, memoized per cache entry. Decode
// failures are memoized too, so a broken tile logs once instead of once
// per frame.
func (l *Layer) tileImage(t *tile.Tile) image.Image {
	key := t.Coord().Key()
	if img, ok := l.images[key]; ok {
		return img
	}
	img, _, err := image.Decode(bytes.NewReader(t.Data()))
	if err != nil {
		l.logger.Warn("tile decode failed",
			zap.String("tile", t.Coord().String()),
			zap.Error(err))
		img = nil
	}
	l.images[key] = img
	return img
}

// pruneImages drops memoized images whose cache entries are gone.
func (l *Layer) pruneImages() {
	for key := range l.images {
		if !l.source.Cache().Contains(key) {
			delete(l.images, key)
		}
	}
}

// RenderedPixelFromViewport maps a viewport pixel into the backing
// surface of the last frame. ok is false when no frame has been
// rendered or the pixel falls outside the backing surface.
func (l *Layer) RenderedPixelFromViewport(x, y float64) (rx, ry float64, ok bool) {
	if !l.hasFrame {
		return 0, 0, false
	}
	rx, ry = l.inverse.Apply(x, y)
	if rx < 0 || ry < 0 || rx >= float64(l.backingW) || ry >= float64(l.backingH) {
		return 0, 0, false
	}
	return rx, ry, true
}

// ViewportPixelFromRendered maps a backing surface pixel of the last
// frame to its viewport position.
func (l *Layer) ViewportPixelFromRendered(x, y float64) (float64, float64) {
	return l.composite.Apply(x, y)
}

// mustInvert inverts a frame transform, which is always invertible for
// a view with positive resolution.
func mustInvert(t Transform) Transform {
	inv, err := t.Invert()
	if err != nil {
		panic(err)
	}
	return inv
}

// aff3 converts a Transform to the row-major layout x/image/draw wants.
func aff3(t Transform) f64.Aff3 {
	return f64.Aff3{t[0], t[2], t[4], t[1], t[3], t[5]}
}
