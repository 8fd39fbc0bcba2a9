package source

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"sort"

	"github.com/google/hilbert"

	"github.com/eak1mov/go-mapview/tile"
)

// pmCompression is the compression id used by PMTiles v3 archives.
type pmCompression uint8

const (
	pmCompressionUnknown pmCompression = iota
	pmCompressionNone
	pmCompressionGzip
	pmCompressionBrotli
	pmCompressionZstd
)

// pmTileType is the tile payload type id of a PMTiles v3 archive.
type pmTileType uint8

const (
	pmTileTypeUnknown pmTileType = iota
	pmTileTypeMvt
	pmTileTypePng
	pmTileTypeJpeg
	pmTileTypeWebp
	pmTileTypeAvif
)

// pmHeader is the fixed 127-byte PMTiles v3 header, in file layout
// order. It is read and written whole with encoding/binary.
type pmHeader struct {
	HeaderMagic         uint64
	RootOffset          uint64
	RootLength          uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirectoryOffset uint64
	LeafDirectoryLength uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	AddressedTilesCount uint64
	TileEntriesCount    uint64
	TileContentsCount   uint64
	Clustered           bool
	InternalCompression pmCompression
	TileCompression     pmCompression
	TileType            pmTileType
	MinZoom             uint8
	MaxZoom             uint8
	MinLonE7            int32
	MinLatE7            int32
	MaxLonE7            int32
	MaxLatE7            int32
	CenterZoom          uint8
	CenterLonE7         int32
	CenterLatE7         int32
}

const (
	pmHeaderMagic     uint64 = 0x73656C69544D50 // "PMTiles"
	pmHeaderMagicMask uint64 = 1<<56 - 1
	pmHeaderMagicV3   uint64 = pmHeaderMagic | (0x03 << 56)

	pmHeaderLength = 127
)

var (
	ErrInvalidArchive = errors.New("mapview: invalid pmtiles archive")
	ErrArchiveVersion = errors.New("mapview: unsupported pmtiles version")
)

func serializePMHeader(header *pmHeader) []byte {
	var buffer bytes.Buffer
	binary.Write(&buffer, binary.LittleEndian, header)
	return buffer.Bytes()
}

func deserializePMHeader(data []byte) (*pmHeader, error) {
	header := pmHeader{}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	if header.HeaderMagic&pmHeaderMagicMask != pmHeaderMagic {
		return nil, ErrInvalidArchive
	}
	if header.HeaderMagic != pmHeaderMagicV3 {
		return nil, ErrArchiveVersion
	}
	return &header, nil
}

// pmEntry is one directory entry. RunLength zero marks a pointer into
// the leaf directory section, anything else a run of tiles sharing one
// payload.
type pmEntry struct {
	TileCode  uint64
	Offset    uint64
	Length    uint32
	RunLength uint32
}

// serializePMDirectory writes the column-oriented directory layout:
// entry count, delta-coded tile codes, run lengths, lengths, then
// offsets with a zero marking "contiguous with the previous entry".
func serializePMDirectory(entries []pmEntry) []byte {
	buffer := make([]byte, 0)

	buffer = binary.AppendUvarint(buffer, uint64(len(entries)))

	lastCode := uint64(0)
	for _, entry := range entries {
		buffer = binary.AppendUvarint(buffer, entry.TileCode-lastCode)
		lastCode = entry.TileCode
	}

	for _, entry := range entries {
		buffer = binary.AppendUvarint(buffer, uint64(entry.RunLength))
	}

	for _, entry := range entries {
		buffer = binary.AppendUvarint(buffer, uint64(entry.Length))
	}

	nextOffset := uint64(0)
	for i, entry := range entries {
		if i > 0 && entry.Offset == nextOffset {
			buffer = binary.AppendUvarint(buffer, 0)
		} else {
			buffer = binary.AppendUvarint(buffer, entry.Offset+1)
		}
		nextOffset = entry.Offset + uint64(entry.Length)
	}

	return buffer
}

func deserializePMDirectory(data []byte) ([]pmEntry, error) {
	byteReader := bytes.NewReader(data)

	var err error
	readUvarint := func() uint64 {
		if err != nil {
			return 0
		}
		var value uint64
		value, err = binary.ReadUvarint(byteReader)
		return value
	}

	numEntries := readUvarint()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	entries := make([]pmEntry, numEntries)

	lastCode := uint64(0)
	for i := range numEntries {
		lastCode += readUvarint()
		entries[i].TileCode = lastCode
	}

	for i := range numEntries {
		entries[i].RunLength = uint32(readUvarint())
	}

	for i := range numEntries {
		entries[i].Length = uint32(readUvarint())
	}

	for i := range numEntries {
		value := readUvarint()
		if value == 0 && i > 0 {
			entries[i].Offset = entries[i-1].Offset + uint64(entries[i-1].Length)
		} else {
			entries[i].Offset = value - 1
		}
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	return entries, nil
}

// findPMEntry locates tileCode in a directory sorted by tile code. A hit
// with RunLength zero means the search continues in the referenced leaf
// directory.
func findPMEntry(entries []pmEntry, tileCode uint64) (pmEntry, bool) {
	idx := sort.Search(len(entries), func(i int) bool {
		return entries[i].TileCode > tileCode
	})

	if idx == 0 {
		return pmEntry{}, false
	}

	entry := entries[idx-1]
	if entry.RunLength == 0 {
		return entry, true
	}
	if tileCode < entry.TileCode+uint64(entry.RunLength) {
		return entry, true
	}

	return pmEntry{}, false
}

func pmCompress(data []byte, compression pmCompression) ([]byte, error) {
	if compression == pmCompressionNone {
		return data, nil
	}
	if compression != pmCompressionGzip {
		return nil, fmt.Errorf("mapview: compression not supported (%v)", compression)
	}

	var buffer bytes.Buffer
	writer, _ := gzip.NewWriterLevel(&buffer, gzip.BestCompression)
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("mapview: failed to compress: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("mapview: failed to compress: %w", err)
	}
	return buffer.Bytes(), nil
}

func pmDecompress(data []byte, compression pmCompression) ([]byte, error) {
	if compression == pmCompressionNone {
		return data, nil
	}
	if compression != pmCompressionGzip {
		return nil, fmt.Errorf("mapview: compression not supported (%v)", compression)
	}

	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mapview: failed to decompress: %w", err)
	}
	defer reader.Close()

	result, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("mapview: failed to decompress: %w", err)
	}
	return result, nil
}

// EncodeTileID maps a tile coordinate to its PMTiles tile id: the tiles
// of all zoom levels above it, plus the coordinate's position on the
// Hilbert curve of its own level.
func EncodeTileID(coord tile.Coord) uint64 {
	h, _ := hilbert.NewHilbert(1 << coord.Z)
	tileCode, _ := h.MapInverse(int(coord.X), int(coord.Y))

	tilesCount := (1<<(coord.Z*2) - 1) / 3
	return uint64(tileCode + tilesCount)
}

// DecodeTileID is the inverse of EncodeTileID.
func DecodeTileID(tileCode uint64) tile.Coord {
	z := (bits.Len64(3*tileCode+1) - 1) / 2
	tilesCount := (1<<(z*2) - 1) / 3

	h, _ := hilbert.NewHilbert(1 << z)
	x, y, _ := h.Map(int(tileCode) - tilesCount)

	return tile.Coord{Z: int32(z), X: int32(x), Y: int32(y)}
}
