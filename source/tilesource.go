package source

import (
	"go.uber.org/zap"

	"github.com/eak1mov/go-mapview/cache"
	"github.com/eak1mov/go-mapview/tile"
)

// TileSource binds a Reader to the pyramid cache and the tile load
// lifecycle: it creates idle tiles on demand, runs their loads on
// background goroutines and hands completions back to the render
// goroutine.
//
// Everything except the background reads happens on the goroutine
// driving the render loop. Completions cross back over a channel and are
// applied by Deliver, so tile state only ever changes on that goroutine.
type TileSource struct {
	reader Reader
	grid   *tile.Grid
	cache  *cache.Cache
	src    func(tile.Coord) string
	done   chan completion
	logger *zap.Logger
}

type completion struct {
	tile *tile.Tile
	data []byte
	err  error
}

type TileSourceOption func(*TileSource)

// WithLogger replaces the no-op default logger.
func WithLogger(logger *zap.Logger) TileSourceOption {
	return func(s *TileSource) {
		s.logger = logger
	}
}

// WithCache replaces the default cache, e.g. one with tuned watermarks.
func WithCache(c *cache.Cache) TileSourceOption {
	return func(s *TileSource) {
		s.cache = c
	}
}

// WithSrc sets the locator attached to created tiles. The default is the
// tile key.
func WithSrc(src func(tile.Coord) string) TileSourceOption {
	return func(s *TileSource) {
		s.src = src
	}
}

func NewTileSource(reader Reader, grid *tile.Grid, opts ...TileSourceOption) *TileSource {
	s := &TileSource{
		reader: reader,
		grid:   grid,
		cache:  cache.New(),
		src:    func(coord tile.Coord) string { return string(coord.Key()) },
		done:   make(chan completion, 128),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TileSource) Grid() *tile.Grid    { return s.grid }
func (s *TileSource) Cache() *cache.Cache { return s.cache }

// GetTile returns the cached tile for coord, creating and caching an
// idle one on first request. The cache key keeps the unwrapped column so
// world copies stay distinct entries; the fetch itself uses the wrapped
// coordinate.
func (s *TileSource) GetTile(coord tile.Coord) *tile.Tile {
	key := coord.Key()
	if t, err := s.cache.Get(key); err == nil {
		return t
	}
	t := tile.New(coord, s.src(coord), s.load)
	t.Extent = s.grid.TileExtent(coord)
	t.Resolution = s.grid.Resolution(coord.Z)
	s.cache.Set(key, t)
	return t
}

// load implements tile.LoadFunc: it runs the read on its own goroutine
// and queues the outcome for Deliver.
func (s *TileSource) load(t *tile.Tile) {
	go func() {
		data, err := s.reader.ReadTile(t.Coord().Wrapped())
		s.done <- completion{tile: t, data: data, err: err}
	}()
}

// Deliver applies queued load completions, firing each tile's pending
// change listeners on the caller's goroutine. Call it once per frame
// tick, before building the frame. It returns the number of completions
// applied.
func (s *TileSource) Deliver() int {
	applied := 0
	for {
		select {
		case c := <-s.done:
			if c.err != nil {
				s.logger.Warn("tile load failed",
					zap.String("tile", c.tile.Coord().String()),
					zap.String("src", c.tile.Src()),
					zap.Error(c.err))
				c.tile.SetError(c.err)
			} else {
				c.tile.SetData(c.data)
			}
			applied++
		default:
			return applied
		}
	}
}

// Expire prunes the cache against the keys a frame actually used. Call
// it after every tile request of the frame has been issued. The cache
// watermarks grow to fit the active pyramid, so a large viewport never
// evicts its own tiles.
func (s *TileSource) Expire(active map[tile.Key]struct{}) {
	s.cache.Reserve(len(active))
	s.cache.Expire(active)
}
