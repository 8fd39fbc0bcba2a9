package source

import (
	"errors"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/eak1mov/go-mapview/internal/testtiles"
	"github.com/eak1mov/go-mapview/tile"
)

// buildArchive assembles a v3 archive in the canonical section order:
// header, root directory, metadata, leaf directories, tile data. Every
// tile gets its own entry; with useLeaf set the entries move into a
// single leaf directory behind one root pointer.
func buildArchive(t *testing.T, tiles map[tile.Coord][]byte, metadata []byte, useLeaf bool) []byte {
	t.Helper()

	codes := make([]uint64, 0, len(tiles))
	payloads := make(map[uint64][]byte, len(tiles))
	minZoom, maxZoom := uint8(255), uint8(0)
	for coord, data := range tiles {
		code := EncodeTileID(coord)
		codes = append(codes, code)
		payloads[code] = data
		if z := uint8(coord.Z); z < minZoom {
			minZoom = z
		}
		if z := uint8(coord.Z); z > maxZoom {
			maxZoom = z
		}
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	var tileData []byte
	entries := make([]pmEntry, 0, len(codes))
	for _, code := range codes {
		compressed, err := pmCompress(payloads[code], pmCompressionGzip)
		require.NoError(t, err)
		entries = append(entries, pmEntry{
			TileCode:  code,
			Offset:    uint64(len(tileData)),
			Length:    uint32(len(compressed)),
			RunLength: 1,
		})
		tileData = append(tileData, compressed...)
	}

	var leafData []byte
	rootEntries := entries
	if useLeaf {
		var err error
		leafData, err = pmCompress(serializePMDirectory(entries), pmCompressionGzip)
		require.NoError(t, err)
		rootEntries = []pmEntry{{
			TileCode:  0,
			Offset:    0,
			Length:    uint32(len(leafData)),
			RunLength: 0,
		}}
	}
	rootData, err := pmCompress(serializePMDirectory(rootEntries), pmCompressionGzip)
	require.NoError(t, err)

	metadataData, err := pmCompress(metadata, pmCompressionGzip)
	require.NoError(t, err)

	header := &pmHeader{
		HeaderMagic:         pmHeaderMagicV3,
		RootOffset:          pmHeaderLength,
		RootLength:          uint64(len(rootData)),
		MetadataOffset:      pmHeaderLength + uint64(len(rootData)),
		MetadataLength:      uint64(len(metadataData)),
		LeafDirectoryOffset: pmHeaderLength + uint64(len(rootData)+len(metadataData)),
		LeafDirectoryLength: uint64(len(leafData)),
		TileDataOffset:      pmHeaderLength + uint64(len(rootData)+len(metadataData)+len(leafData)),
		TileDataLength:      uint64(len(tileData)),
		AddressedTilesCount: uint64(len(entries)),
		TileEntriesCount:    uint64(len(entries)),
		TileContentsCount:   uint64(len(entries)),
		Clustered:           true,
		InternalCompression: pmCompressionGzip,
		TileCompression:     pmCompressionGzip,
		TileType:            pmTileTypeMvt,
		MinZoom:             minZoom,
		MaxZoom:             maxZoom,
	}

	archive := serializePMHeader(header)
	archive = append(archive, rootData...)
	archive = append(archive, metadataData...)
	archive = append(archive, leafData...)
	return append(archive, tileData...)
}

func writeArchive(t *testing.T, archive []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pmtiles")
	require.NoError(t, os.WriteFile(path, archive, 0o644))
	return path
}

func testTiles() map[tile.Coord][]byte {
	return map[tile.Coord][]byte{
		{Z: 0, X: 0, Y: 0}: []byte("root tile"),
		{Z: 1, X: 0, Y: 1}: []byte("lower left"),
		{Z: 1, X: 1, Y: 0}: []byte("upper right"),
		{Z: 4, X: 9, Y: 3}: []byte("deep tile"),
	}
}

func TestPMTilesReadTile(t *testing.T) {
	tiles := testTiles()
	path := writeArchive(t, buildArchive(t, tiles, []byte(`{"name":"test"}`), false))

	p, err := NewPMTiles(path)
	if err != nil {
		t.Fatalf("NewPMTiles failed: %v", err)
	}
	defer p.Close()

	for coord, want := range tiles {
		got, err := p.ReadTile(coord)
		if err != nil {
			t.Fatalf("ReadTile(%v) failed: %v", coord, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("ReadTile(%v) mismatch (-want+got):\n%v", coord, diff)
		}
	}

	for _, coord := range []tile.Coord{{Z: 1, X: 0, Y: 0}, {Z: 9, X: 2, Y: 2}, {Z: 1, X: 2, Y: 0}} {
		got, err := p.ReadTile(coord)
		if err != nil {
			t.Fatalf("ReadTile(%v) failed: %v", coord, err)
		}
		if len(got) != 0 {
			t.Errorf("ReadTile(%v) = %q, want empty", coord, got)
		}
	}

	if min, max := p.Zooms(); min != 0 || max != 4 {
		t.Errorf("Zooms() = (%v, %v), want (0, 4)", min, max)
	}

	metadata, err := p.Metadata()
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if diff := cmp.Diff([]byte(`{"name":"test"}`), metadata); diff != "" {
		t.Errorf("Metadata mismatch (-want+got):\n%v", diff)
	}
}

func TestPMTilesLeafDirectory(t *testing.T) {
	tiles := testTiles()
	path := writeArchive(t, buildArchive(t, tiles, nil, true))

	p, err := NewPMTiles(path)
	if err != nil {
		t.Fatalf("NewPMTiles failed: %v", err)
	}
	defer p.Close()

	// Lookups descend through the root pointer into the leaf directory.
	for coord, want := range tiles {
		got, err := p.ReadTile(coord)
		if err != nil {
			t.Fatalf("ReadTile(%v) failed: %v", coord, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("ReadTile(%v) mismatch (-want+got):\n%v", coord, diff)
		}
	}

	got := maps.Collect(IterTiles(p))
	if diff := cmp.Diff(tiles, got); diff != "" {
		t.Errorf("IterTiles mismatch (-want+got):\n%v", diff)
	}
}

func TestPMTilesVisitTiles(t *testing.T) {
	for _, set := range testtiles.Sets() {
		t.Run(set.Name, func(t *testing.T) {
			t.Parallel()
			path := writeArchive(t, buildArchive(t, set.Tiles, nil, false))

			p, err := NewPMTiles(path)
			if err != nil {
				t.Fatalf("NewPMTiles failed: %v", err)
			}
			defer p.Close()

			got := maps.Collect(IterTiles(p))
			if diff := cmp.Diff(set.Tiles, got); diff != "" {
				t.Errorf("IterTiles mismatch (-want+got):\n%v", diff)
			}
		})
	}
}

func TestPMTilesRunLength(t *testing.T) {
	// One payload addressed by three consecutive tile ids: the z1 tiles
	// (0,0), (0,1) and (1,1) hold codes 1, 2 and 3.
	payload, err := pmCompress([]byte("shared"), pmCompressionGzip)
	require.NoError(t, err)

	rootData, err := pmCompress(serializePMDirectory([]pmEntry{
		{TileCode: 1, Offset: 0, Length: uint32(len(payload)), RunLength: 3},
	}), pmCompressionGzip)
	require.NoError(t, err)

	header := &pmHeader{
		HeaderMagic:         pmHeaderMagicV3,
		RootOffset:          pmHeaderLength,
		RootLength:          uint64(len(rootData)),
		TileDataOffset:      pmHeaderLength + uint64(len(rootData)),
		TileDataLength:      uint64(len(payload)),
		InternalCompression: pmCompressionGzip,
		TileCompression:     pmCompressionGzip,
		TileType:            pmTileTypeMvt,
		MinZoom:             1,
		MaxZoom:             1,
	}
	archive := append(serializePMHeader(header), rootData...)
	archive = append(archive, payload...)

	p, err := NewPMTiles(writeArchive(t, archive))
	if err != nil {
		t.Fatalf("NewPMTiles failed: %v", err)
	}
	defer p.Close()

	want := map[tile.Coord][]byte{
		{Z: 1, X: 0, Y: 0}: []byte("shared"),
		{Z: 1, X: 0, Y: 1}: []byte("shared"),
		{Z: 1, X: 1, Y: 1}: []byte("shared"),
	}
	for coord, data := range want {
		got, err := p.ReadTile(coord)
		if err != nil {
			t.Fatalf("ReadTile(%v) failed: %v", coord, err)
		}
		if diff := cmp.Diff(data, got); diff != "" {
			t.Errorf("ReadTile(%v) mismatch (-want+got):\n%v", coord, diff)
		}
	}

	// The remaining z1 tile sits outside the run.
	got, err := p.ReadTile(tile.Coord{Z: 1, X: 1, Y: 0})
	if err != nil {
		t.Fatalf("ReadTile failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadTile past the run = %q, want empty", got)
	}

	if diff := cmp.Diff(want, maps.Collect(IterTiles(p))); diff != "" {
		t.Errorf("IterTiles mismatch (-want+got):\n%v", diff)
	}
}

func TestNewPMTilesFromBadArchive(t *testing.T) {
	access := func(offset, length uint64) ([]byte, error) {
		return make([]byte, length), nil
	}
	if _, err := NewPMTilesFrom(access); !errors.Is(err, ErrInvalidArchive) {
		t.Errorf("NewPMTilesFrom error = %v, want ErrInvalidArchive", err)
	}

	if _, err := NewPMTiles(filepath.Join(t.TempDir(), "missing.pmtiles")); err == nil {
		t.Error("NewPMTiles succeeded on a missing file")
	}
}
