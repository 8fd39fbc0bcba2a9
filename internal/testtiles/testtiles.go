// Package testtiles builds the synthetic tilesets the storage backend
// tests share.
package testtiles

import (
	"fmt"

	"github.com/eak1mov/go-mapview/tile"
)

// Set is one synthetic tileset.
type Set struct {
	Name  string
	Tiles map[tile.Coord][]byte
}

// Sets returns deterministic tilesets covering the shapes backends
// disagree on: a single root tile, a dense pyramid and sparse tiles on
// non-adjacent zooms.
func Sets() []Set {
	return []Set{
		{Name: "single tile", Tiles: map[tile.Coord][]byte{{}: Payload(tile.Coord{})}},
		{Name: "dense pyramid", Tiles: Pyramid(3)},
		{Name: "sparse zooms", Tiles: Sparse()},
	}
}

// Pyramid returns every tile of zooms 0..maxZoom.
func Pyramid(maxZoom int32) map[tile.Coord][]byte {
	tiles := make(map[tile.Coord][]byte)
	for z := range maxZoom + 1 {
		for x := range int32(1) << z {
			for y := range int32(1) << z {
				coord := tile.Coord{Z: z, X: x, Y: y}
				tiles[coord] = Payload(coord)
			}
		}
	}
	return tiles
}

// Sparse returns a handful of tiles spread over non-adjacent zooms.
func Sparse() map[tile.Coord][]byte {
	tiles := make(map[tile.Coord][]byte)
	for _, coord := range []tile.Coord{
		{Z: 2, X: 1, Y: 3},
		{Z: 5, X: 10, Y: 20},
		{Z: 5, X: 31, Y: 0},
		{Z: 7, X: 100, Y: 80},
	} {
		tiles[coord] = Payload(coord)
	}
	return tiles
}

// Payload returns the deterministic payload for coord. The prefix bytes
// fall outside the printable range to catch text-only storage paths.
func Payload(coord tile.Coord) []byte {
	return append([]byte{0x00, 0xff, 0x1f}, fmt.Sprintf("tile %v", coord)...)
}
