package tile

import (
	"errors"

	"github.com/paulmach/orb"
)

var errNoLoader = errors.New("mapview: tile has no loader")

// State tracks the load lifecycle of a tile resource.
type State uint8

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateError
	StateEmpty
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	case StateEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final. Terminal states never
// regress: a failed tile stays failed until its cache entry is dropped
// and recreated.
func (s State) Terminal() bool {
	return s == StateLoaded || s == StateError || s == StateEmpty
}

// LoadFunc starts fetching a tile's payload. Implementations must
// eventually finish the tile with SetData or SetError, possibly from
// another goroutine through a delivery pump (see package source).
type LoadFunc func(*Tile)

// Tile is an asynchronously loaded tile resource. It starts in StateIdle;
// Load moves it to StateLoading and exactly one completion call moves it
// to a terminal state, firing the pending change listeners.
//
// A Tile belongs to the cache entry holding it and must only be touched
// from the goroutine driving the render loop. Completion may be computed
// elsewhere, but SetData and SetError are called on that goroutine.
type Tile struct {
	// Extent is the area the tile covers, in grid units.
	Extent orb.Bound
	// Resolution is the grid resolution the tile was built for, in units
	// per pixel.
	Resolution float64

	coord     Coord
	src       string
	state     State
	data      []byte
	err       error
	loader    LoadFunc
	listeners []func(*Tile)
}

// New returns an idle tile for coord. The src locator is informational,
// carried along for logs and debugging.
func New(coord Coord, src string, loader LoadFunc) *Tile {
	return &Tile{coord: coord, src: src, loader: loader}
}

func (t *Tile) Coord() Coord { return t.coord }
func (t *Tile) Src() string  { return t.src }
func (t *Tile) State() State { return t.state }

// Data returns the loaded payload. It is empty unless the state is
// StateLoaded.
func (t *Tile) Data() []byte { return t.data }

// Err returns the load failure for tiles in StateError.
func (t *Tile) Err() error { return t.err }

// Load starts the tile's loader on the first call. Calls on a tile that
// is already loading or finished are no-ops. A tile created without a
// loader fails immediately.
func (t *Tile) Load() {
	if t.state != StateIdle {
		return
	}
	t.state = StateLoading
	if t.loader == nil {
		t.SetError(errNoLoader)
		return
	}
	t.loader(t)
}

// SetData finishes a load. An empty payload marks the tile StateEmpty,
// keeping the convention that a missing tile is an empty slice rather
// than an error. Finished tiles ignore further completions.
func (t *Tile) SetData(data []byte) {
	if t.state.Terminal() {
		return
	}
	if len(data) == 0 {
		t.state = StateEmpty
	} else {
		t.data = data
		t.state = StateLoaded
	}
	t.notify()
}

// SetError fails the load. The tile stays failed for the rest of its
// cache lifetime.
func (t *Tile) SetError(err error) {
	if t.state.Terminal() {
		return
	}
	t.err = err
	t.state = StateError
	t.notify()
}

// OnChange registers a one-shot listener fired on the next state change.
// Listeners are cleared before the fan-out, so a listener re-registering
// itself observes later changes without being called twice for one.
func (t *Tile) OnChange(fn func(*Tile)) {
	t.listeners = append(t.listeners, fn)
}

func (t *Tile) notify() {
	listeners := t.listeners
	t.listeners = nil
	for _, fn := range listeners {
		fn(t)
	}
}
