// Package tile provides tile coordinates, the tile load lifecycle and the
// pyramid grid geometry shared by sources, caches and renderers.
package tile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformedKey = errors.New("mapview: malformed tile key")

// Coord represents tile coordinates in the XYZ scheme (Tiled web map).
// X and Y may lie outside the pyramid: negative or overflowing columns
// address world copies across the antimeridian.
type Coord struct {
	Z int32
	X int32
	Y int32
}

func (c Coord) Valid() bool {
	return c.Z >= 0 && c.Z < 32
}

// InGrid reports whether the coordinate addresses a real tile of the
// pyramid, with no wrapping involved.
func (c Coord) InGrid() bool {
	if !c.Valid() {
		return false
	}
	n := int32(1) << c.Z
	return c.X >= 0 && c.X < n && c.Y >= 0 && c.Y < n
}

// Wrapped normalizes the column into [0, 2^z), mapping world copies onto
// the tiles they repeat. Rows are never wrapped.
func (c Coord) Wrapped() Coord {
	if !c.Valid() {
		return c
	}
	n := int32(1) << c.Z
	x := c.X % n
	if x < 0 {
		x += n
	}
	return Coord{Z: c.Z, X: x, Y: c.Y}
}

// Parent returns the coordinates of the covering tile one zoom level up.
func (c Coord) Parent() Coord {
	if c.Z <= 0 {
		return c
	}
	return Coord{Z: c.Z - 1, X: c.X >> 1, Y: c.Y >> 1}
}

func (c Coord) String() string {
	return string(c.Key())
}

// Key is the canonical cache key form of a Coord, encoded as "z/x/y".
type Key string

// Key encodes the coordinate as "z/x/y". ParseKey is its exact inverse.
func (c Coord) Key() Key {
	return Key(strconv.FormatInt(int64(c.Z), 10) + "/" +
		strconv.FormatInt(int64(c.X), 10) + "/" +
		strconv.FormatInt(int64(c.Y), 10))
}

// ParseKey decodes a "z/x/y" key back into tile coordinates. Negative x
// and y components are accepted, negative zoom is not.
func ParseKey(key Key) (Coord, error) {
	parts := strings.Split(string(key), "/")
	if len(parts) != 3 {
		return Coord{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	z, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil || z < 0 {
		return Coord{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	x, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil {
		return Coord{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	y, err := strconv.ParseInt(parts[2], 10, 32)
	if err != nil {
		return Coord{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	return Coord{Z: int32(z), X: int32(x), Y: int32(y)}, nil
}
