// Package source supplies tile payloads to the render pipeline: readers
// over tileset containers and URL patterns, plus the asynchronous load
// pump that feeds completions back to the render goroutine.
package source

import (
	"errors"
	"iter"

	"github.com/eak1mov/go-mapview/tile"
)

// Reader reads single tiles out of a tileset.
type Reader interface {
	// ReadTile returns the payload of one tile. A missing tile is an
	// empty slice with no error; it resolves the resource to the empty
	// state instead of failing it.
	ReadTile(coord tile.Coord) ([]byte, error)
}

// Visitor enumerates every tile a tileset holds.
type Visitor interface {
	// VisitTiles calls visitor for each stored tile, stopping at the
	// first error. Order, upfront cpu and memory consumption are
	// implementation-defined.
	VisitTiles(visitor func(tile.Coord, []byte) error) error
}

var errVisitCancelled = errors.New("visit cancelled")

// IterTiles adapts a Visitor into an iterator over tile payloads.
// Iteration panics on unrecoverable read errors.
func IterTiles(v Visitor) iter.Seq2[tile.Coord, []byte] {
	return func(yield func(tile.Coord, []byte) bool) {
		err := v.VisitTiles(func(coord tile.Coord, data []byte) error {
			if !yield(coord, data) {
				return errVisitCancelled
			}
			return nil
		})
		if err != nil && err != errVisitCancelled {
			panic(err)
		}
	}
}
