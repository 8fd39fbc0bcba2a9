package render_test

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	stddraw "image/draw"
	"image/png"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/eak1mov/go-mapview/render"
	"github.com/eak1mov/go-mapview/source"
	"github.com/eak1mov/go-mapview/tile"
)

// tileReader serves tile payloads from a map. With block set, reads
// stall until the channel closes, keeping tiles in the loading state for
// as long as a test needs.
type tileReader struct {
	mu    sync.Mutex
	tiles map[tile.Coord][]byte
	errs  map[tile.Coord]error
	reads map[tile.Coord]int
	block chan struct{}
}

func (r *tileReader) ReadTile(coord tile.Coord) ([]byte, error) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reads == nil {
		r.reads = make(map[tile.Coord]int)
	}
	r.reads[coord]++
	if err := r.errs[coord]; err != nil {
		return nil, err
	}
	return r.tiles[coord], nil
}

func (r *tileReader) readCount(coord tile.Coord) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads[coord]
}

// layerGrid is a two-level pyramid over a 512x512 unit square with
// 256 pixel tiles: one tile at zoom 0, four at zoom 1.
func layerGrid() *tile.Grid {
	extent := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{512, 512}}
	return tile.NewGrid(extent, 256, 1)
}

func pngTile(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	stddraw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, stddraw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func renderUntilLoaded(t *testing.T, l *render.Layer, view render.View) *image.RGBA {
	t.Helper()
	img := l.RenderFrame(view)
	for range 400 {
		if l.Pending() == 0 {
			return img
		}
		time.Sleep(5 * time.Millisecond)
		img = l.RenderFrame(view)
	}
	t.Fatalf("tiles still pending: %d", l.Pending())
	return nil
}

func TestRenderFrameComposesTiles(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	green := color.RGBA{G: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}
	yellow := color.RGBA{R: 255, G: 255, A: 255}

	reader := &tileReader{tiles: map[tile.Coord][]byte{
		{Z: 1, X: 0, Y: 0}: pngTile(t, red),
		{Z: 1, X: 1, Y: 0}: pngTile(t, green),
		{Z: 1, X: 0, Y: 1}: pngTile(t, blue),
		{Z: 1, X: 1, Y: 1}: pngTile(t, yellow),
	}}
	layer := render.NewLayer(source.NewTileSource(reader, layerGrid()))
	view := render.View{
		Center:     orb.Point{256, 256},
		Resolution: 1,
		Width:      512,
		Height:     512,
	}

	layer.RenderFrame(view)
	if got, want := layer.Pending(), 4; got != want {
		t.Fatalf("Pending() after first frame = %v, want %v", got, want)
	}
	img := renderUntilLoaded(t, layer, view)

	if got, want := img.Bounds().Dx(), 512; got != want {
		t.Fatalf("frame width = %v, want %v", got, want)
	}
	// Row 0 of the pyramid is the top of the viewport.
	for _, tc := range []struct {
		x, y int
		want color.RGBA
	}{
		{128, 128, red},
		{384, 128, green},
		{128, 384, blue},
		{384, 384, yellow},
	} {
		if got := img.RGBAAt(tc.x, tc.y); got != tc.want {
			t.Errorf("pixel (%d, %d) = %v, want %v", tc.x, tc.y, got, tc.want)
		}
	}

	// With everything loaded another frame delivers nothing new.
	layer.RenderFrame(view)
	if layer.Dirty() {
		t.Error("Dirty() = true after a frame with no deliveries")
	}
	if got, want := layer.Pending(), 0; got != want {
		t.Errorf("Pending() = %v, want %v", got, want)
	}
}

func TestPixelMappingWithoutRotation(t *testing.T) {
	layer := render.NewLayer(source.NewTileSource(&tileReader{}, layerGrid()))
	view := render.View{
		Center:     orb.Point{256, 256},
		Resolution: 1,
		Width:      512,
		Height:     512,
	}
	layer.RenderFrame(view)

	// Without rotation the backing surface is the viewport: the mapping
	// is the identity, bit for bit.
	rx, ry, ok := layer.RenderedPixelFromViewport(123.25, 400.5)
	if !ok {
		t.Fatal("RenderedPixelFromViewport reported the pixel outside the frame")
	}
	if rx != 123.25 || ry != 400.5 {
		t.Errorf("RenderedPixelFromViewport = (%v, %v), want (123.25, 400.5)", rx, ry)
	}
	if x, y := layer.ViewportPixelFromRendered(88, 99); x != 88 || y != 99 {
		t.Errorf("ViewportPixelFromRendered = (%v, %v), want (88, 99)", x, y)
	}

	for _, p := range [][2]float64{{-1, 5}, {5, -1}, {512, 5}, {5, 512}} {
		if _, _, ok := layer.RenderedPixelFromViewport(p[0], p[1]); ok {
			t.Errorf("RenderedPixelFromViewport(%v) ok = true, want false", p)
		}
	}
}

func TestPixelMappingUnderRotation(t *testing.T) {
	layer := render.NewLayer(source.NewTileSource(&tileReader{}, layerGrid()))
	view := render.View{
		Center:     orb.Point{256, 256},
		Resolution: 1,
		Rotation:   math.Pi / 6,
		Width:      200,
		Height:     100,
	}

	img := layer.RenderFrame(view)
	if got, want := img.Bounds().Dx(), 200; got != want {
		t.Errorf("frame width = %v, want %v", got, want)
	}
	if got, want := img.Bounds().Dy(), 100; got != want {
		t.Errorf("frame height = %v, want %v", got, want)
	}

	// The backing surface covers the rotated view's bounding box, so a
	// viewport pixel maps into it and back within float tolerance.
	rx, ry, ok := layer.RenderedPixelFromViewport(55.5, 70.25)
	if !ok {
		t.Fatal("RenderedPixelFromViewport reported the pixel outside the frame")
	}
	backX, backY := layer.ViewportPixelFromRendered(rx, ry)
	require.InDelta(t, 55.5, backX, 1e-9)
	require.InDelta(t, 70.25, backY, 1e-9)
}

func TestRenderFrameInvalidView(t *testing.T) {
	layer := render.NewLayer(source.NewTileSource(&tileReader{}, layerGrid()))

	img := layer.RenderFrame(render.View{Resolution: 1})
	if !img.Bounds().Empty() {
		t.Errorf("frame bounds = %v, want empty", img.Bounds())
	}
	if _, _, ok := layer.RenderedPixelFromViewport(0, 0); ok {
		t.Error("RenderedPixelFromViewport ok = true without a frame")
	}
}

func TestRenderFrameEmptyTiles(t *testing.T) {
	layer := render.NewLayer(source.NewTileSource(&tileReader{}, layerGrid()))
	view := render.View{
		Center:     orb.Point{256, 256},
		Resolution: 1,
		Width:      512,
		Height:     512,
	}

	img := renderUntilLoaded(t, layer, view)
	if got := img.RGBAAt(100, 100); got.A != 0 {
		t.Errorf("pixel (100, 100) = %v, want transparent", got)
	}
}

func TestLoadTileListenerDedup(t *testing.T) {
	reader := &tileReader{block: make(chan struct{})}
	defer close(reader.block)
	src := source.NewTileSource(reader, layerGrid())

	invalidations := 0
	layer := render.NewLayer(src, render.WithInvalidate(func() { invalidations++ }))

	tl := src.GetTile(tile.Coord{Z: 1, X: 0, Y: 0})
	for range 3 {
		if layer.LoadTile(tl) {
			t.Fatal("LoadTile reported a loading tile ready")
		}
	}
	if got, want := tl.State(), tile.StateLoading; got != want {
		t.Fatalf("State() = %v, want %v", got, want)
	}

	// One completion fires the single registered listener once, however
	// many frames requested the tile while it was loading.
	tl.SetData([]byte("payload"))
	if got, want := invalidations, 1; got != want {
		t.Errorf("invalidations = %v, want %v", got, want)
	}
	if !layer.LoadTile(tl) {
		t.Error("LoadTile reported a loaded tile not ready")
	}

	// Late completions change nothing.
	tl.SetData([]byte("other"))
	if got, want := invalidations, 1; got != want {
		t.Errorf("invalidations after late completion = %v, want %v", got, want)
	}
}

func TestFailedTileNotRetried(t *testing.T) {
	coord := tile.Coord{Z: 1, X: 0, Y: 0}
	reader := &tileReader{errs: map[tile.Coord]error{coord: errors.New("backend gone")}}
	src := source.NewTileSource(reader, layerGrid())

	invalidations := 0
	layer := render.NewLayer(src, render.WithInvalidate(func() { invalidations++ }))

	tl := src.GetTile(coord)
	if layer.LoadTile(tl) {
		t.Fatal("LoadTile reported an idle tile ready")
	}
	for range 400 {
		src.Deliver()
		if tl.State().Terminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got, want := tl.State(), tile.StateError; got != want {
		t.Fatalf("State() = %v, want %v", got, want)
	}
	if got, want := invalidations, 1; got != want {
		t.Errorf("invalidations = %v, want %v", got, want)
	}

	// The failure is final: no new listener, no new read.
	for range 3 {
		if layer.LoadTile(tl) {
			t.Error("LoadTile reported a failed tile ready")
		}
	}
	if got, want := reader.readCount(coord), 1; got != want {
		t.Errorf("read count = %v, want %v", got, want)
	}
	if got, want := invalidations, 1; got != want {
		t.Errorf("invalidations = %v, want %v", got, want)
	}
}

func TestStaleLoadDoesNotInvalidate(t *testing.T) {
	reader := &tileReader{block: make(chan struct{})}
	defer close(reader.block)
	src := source.NewTileSource(reader, layerGrid())

	invalidations := 0
	layer := render.NewLayer(src, render.WithInvalidate(func() { invalidations++ }))

	coord := tile.Coord{Z: 1, X: 0, Y: 0}
	tl := src.GetTile(coord)
	layer.LoadTile(tl)

	// The entry is evicted while the load is in flight; its completion
	// must not invalidate the frame.
	src.Cache().Delete(coord.Key())
	tl.SetData([]byte("stale"))
	if got, want := invalidations, 0; got != want {
		t.Fatalf("invalidations = %v, want %v", got, want)
	}

	// A recreated entry is a fresh resource with its own lifecycle.
	fresh := src.GetTile(coord)
	if fresh == tl {
		t.Fatal("GetTile returned the evicted tile")
	}
	layer.LoadTile(fresh)
	fresh.SetData([]byte("payload"))
	if got, want := invalidations, 1; got != want {
		t.Errorf("invalidations = %v, want %v", got, want)
	}
}
