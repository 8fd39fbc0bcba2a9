package cache_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/eak1mov/go-mapview/cache"
	"github.com/eak1mov/go-mapview/tile"
)

func newTile(t *testing.T, key tile.Key) *tile.Tile {
	t.Helper()
	coord, err := tile.ParseKey(key)
	require.NoError(t, err)
	return tile.New(coord, string(key), nil)
}

func fill(t *testing.T, c *cache.Cache, keys ...tile.Key) {
	t.Helper()
	for _, key := range keys {
		c.Set(key, newTile(t, key))
	}
}

func active(keys ...tile.Key) map[tile.Key]struct{} {
	set := make(map[tile.Key]struct{}, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}
	return set
}

func TestSetGetTouch(t *testing.T) {
	c := cache.New()
	fill(t, c, "1/0/0", "1/1/0", "1/0/1")

	if got, want := c.Len(), 3; got != want {
		t.Fatalf("Len() = %v, want %v", got, want)
	}

	// Reads leave recency alone.
	if _, err := c.Get("1/1/0"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	first, err := c.PeekFirstKey()
	require.NoError(t, err)
	if got, want := first, tile.Key("1/0/1"); got != want {
		t.Errorf("PeekFirstKey() after Get = %q, want %q", got, want)
	}

	// Touch moves the entry to the front.
	if !c.Touch("1/1/0") {
		t.Fatal("Touch reported the key missing")
	}
	want := []tile.Key{"1/1/0", "1/0/1", "1/0/0"}
	if diff := cmp.Diff(want, c.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want+got):\n%v", diff)
	}
}

func TestGetMissing(t *testing.T) {
	c := cache.New()
	if _, err := c.Get("3/1/2"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
	if c.Touch("3/1/2") {
		t.Error("Touch reported a missing key present")
	}
}

func TestPeekEmpty(t *testing.T) {
	c := cache.New()
	if _, err := c.PeekFirstKey(); !errors.Is(err, cache.ErrEmptyCache) {
		t.Errorf("PeekFirstKey error = %v, want ErrEmptyCache", err)
	}
	if _, err := c.PeekLastKey(); !errors.Is(err, cache.ErrEmptyCache) {
		t.Errorf("PeekLastKey error = %v, want ErrEmptyCache", err)
	}
}

func TestSetReplaces(t *testing.T) {
	c := cache.New()
	fill(t, c, "1/0/0", "1/1/0")

	replacement := newTile(t, "1/0/0")
	c.Set("1/0/0", replacement)

	if got, want := c.Len(), 2; got != want {
		t.Errorf("Len() = %v, want %v", got, want)
	}
	got, err := c.Get("1/0/0")
	require.NoError(t, err)
	if got != replacement {
		t.Error("Get did not return the replacement tile")
	}
	first, err := c.PeekFirstKey()
	require.NoError(t, err)
	if want := tile.Key("1/0/0"); first != want {
		t.Errorf("PeekFirstKey() = %q, want %q", first, want)
	}
}

func TestDelete(t *testing.T) {
	c := cache.New()
	fill(t, c, "1/0/0", "1/1/0")

	if !c.Delete("1/0/0") {
		t.Fatal("Delete reported the key missing")
	}
	if c.Contains("1/0/0") {
		t.Error("Contains reported a deleted key")
	}
	if c.Delete("1/0/0") {
		t.Error("Delete reported a deleted key present")
	}
	if got, want := c.Len(), 1; got != want {
		t.Errorf("Len() = %v, want %v", got, want)
	}
}

func TestExpireHysteresis(t *testing.T) {
	c := cache.New(cache.WithWatermarks(4, 2))
	fill(t, c, "2/0/0", "2/1/0", "2/2/0", "2/3/0")

	// At the high watermark nothing happens yet.
	c.Expire(nil)
	if got, want := c.Len(), 4; got != want {
		t.Fatalf("Len() after no-op expiry = %v, want %v", got, want)
	}

	// One past it the cache shrinks down to the low watermark.
	fill(t, c, "2/0/1")
	c.Expire(nil)
	want := []tile.Key{"2/0/1", "2/3/0"}
	if diff := cmp.Diff(want, c.Keys()); diff != "" {
		t.Errorf("Keys() after expiry mismatch (-want+got):\n%v", diff)
	}
}

func TestExpireSkipsActive(t *testing.T) {
	c := cache.New(cache.WithWatermarks(2, 1))
	fill(t, c, "1/0/0", "1/1/0", "1/0/1", "1/1/1")

	// The two oldest entries are pinned, so the pass removes the newer
	// unpinned ones and stops above the low watermark.
	c.Expire(active("1/0/0", "1/1/0"))
	want := []tile.Key{"1/1/0", "1/0/0"}
	if diff := cmp.Diff(want, c.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want+got):\n%v", diff)
	}
}

func TestExpireAfterZoomChange(t *testing.T) {
	c := cache.New(cache.WithWatermarks(6, 4))
	fill(t, c, "1/0/0", "1/1/0", "1/0/1", "1/1/1")

	frame := []tile.Key{"4/7/5", "4/8/5", "4/7/6", "4/8/6"}
	fill(t, c, frame...)
	c.Expire(active(frame...))

	if got, want := c.Len(), 4; got != want {
		t.Fatalf("Len() = %v, want %v", got, want)
	}
	for _, peek := range []func() (tile.Key, error){c.PeekFirstKey, c.PeekLastKey} {
		key, err := peek()
		require.NoError(t, err)
		coord, err := tile.ParseKey(key)
		require.NoError(t, err)
		if got, want := coord.Z, int32(4); got != want {
			t.Errorf("peeked key %q has zoom %v, want %v", key, got, want)
		}
	}
}

func TestReserve(t *testing.T) {
	c := cache.New(cache.WithWatermarks(2, 1))
	c.Reserve(5)

	fill(t, c, "3/0/0", "3/1/0", "3/2/0", "3/3/0", "3/4/0")
	c.Expire(nil)
	if got, want := c.Len(), 5; got != want {
		t.Errorf("Len() after reserved expiry = %v, want %v", got, want)
	}
}

func TestPruneBelowHighWater(t *testing.T) {
	c := cache.New()
	fill(t, c, "1/0/0", "1/1/0", "1/0/1")

	// Above the low watermark but not the high one: still a no-op.
	c.Prune(nil, 3, 1)
	if got, want := c.Len(), 3; got != want {
		t.Errorf("Len() = %v, want %v", got, want)
	}

	c.Prune(nil, 2, 1)
	if got, want := c.Len(), 1; got != want {
		t.Errorf("Len() after pruning = %v, want %v", got, want)
	}
}

func TestClear(t *testing.T) {
	c := cache.New()
	fill(t, c, "1/0/0", "1/1/0")
	c.Clear()

	if got, want := c.Len(), 0; got != want {
		t.Errorf("Len() = %v, want %v", got, want)
	}
	if c.Contains("1/0/0") {
		t.Error("Contains reported a cleared key")
	}
}

func TestLowWaterClamped(t *testing.T) {
	c := cache.New(cache.WithWatermarks(2, 10))
	fill(t, c, "1/0/0", "1/1/0", "1/0/1")

	c.Expire(nil)
	if got, want := c.Len(), 2; got != want {
		t.Errorf("Len() = %v, want %v", got, want)
	}
}
