package source

import (
	"os"

	"github.com/eak1mov/go-mapview/tile"
)

// AccessFunc reads length bytes at offset from an archive. It lets the
// PMTiles reader work against anything that supports range reads: a
// local file, an HTTP server, a blob store.
type AccessFunc func(offset, length uint64) ([]byte, error)

// PMTiles reads tiles from a PMTiles v3 archive.
type PMTiles struct {
	access AccessFunc
	closer func() error
	header *pmHeader
}

// NewPMTiles opens the archive file at filePath.
//
// The returned reader must be closed after use.
func NewPMTiles(filePath string) (*PMTiles, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	access := func(offset, length uint64) ([]byte, error) {
		buffer := make([]byte, length)
		if _, err := file.ReadAt(buffer, int64(offset)); err != nil {
			return nil, err
		}
		return buffer, nil
	}
	reader, err := NewPMTilesFrom(access)
	if err != nil {
		file.Close()
		return nil, err
	}
	reader.closer = file.Close
	return reader, nil
}

// NewPMTilesFrom builds a reader over an arbitrary range-read function.
func NewPMTilesFrom(access AccessFunc) (*PMTiles, error) {
	headerData, err := access(0, pmHeaderLength)
	if err != nil {
		return nil, err
	}
	header, err := deserializePMHeader(headerData)
	if err != nil {
		return nil, err
	}
	return &PMTiles{
		access: access,
		closer: func() error { return nil },
		header: header,
	}, nil
}

func (p *PMTiles) Close() error {
	return p.closer()
}

// Zooms returns the zoom range the archive declares.
func (p *PMTiles) Zooms() (min, max uint8) {
	return p.header.MinZoom, p.header.MaxZoom
}

// Metadata returns the archive's JSON metadata blob, decompressed.
func (p *PMTiles) Metadata() ([]byte, error) {
	data, err := p.access(p.header.MetadataOffset, p.header.MetadataLength)
	if err != nil {
		return nil, err
	}
	return pmDecompress(data, p.header.InternalCompression)
}

func (p *PMTiles) readDirectory(offset, length uint64) ([]pmEntry, error) {
	compressed, err := p.access(offset, length)
	if err != nil {
		return nil, err
	}
	data, err := pmDecompress(compressed, p.header.InternalCompression)
	if err != nil {
		return nil, err
	}
	return deserializePMDirectory(data)
}

// findTile resolves a tile coordinate to its payload location inside the
// tile data section, descending through leaf directories as needed. A
// zero location with ok false means the archive does not hold the tile.
func (p *PMTiles) findTile(coord tile.Coord) (offset, length uint64, ok bool, err error) {
	tileCode := EncodeTileID(coord)
	dirOffset := p.header.RootOffset
	dirLength := p.header.RootLength
	for {
		entries, err := p.readDirectory(dirOffset, dirLength)
		if err != nil {
			return 0, 0, false, err
		}
		entry, found := findPMEntry(entries, tileCode)
		if !found {
			return 0, 0, false, nil
		}
		if entry.RunLength > 0 {
			return p.header.TileDataOffset + entry.Offset, uint64(entry.Length), true, nil
		}
		dirOffset = p.header.LeafDirectoryOffset + entry.Offset
		dirLength = uint64(entry.Length)
	}
}

// ReadTile reads one tile payload, decompressed according to the
// archive's declared tile compression.
func (p *PMTiles) ReadTile(coord tile.Coord) ([]byte, error) {
	if !coord.InGrid() {
		return make([]byte, 0), nil
	}
	offset, length, ok, err := p.findTile(coord)
	if err != nil {
		return nil, err
	}
	if !ok {
		return make([]byte, 0), nil
	}
	data, err := p.access(offset, length)
	if err != nil {
		return nil, err
	}
	return pmDecompress(data, p.header.TileCompression)
}

func (p *PMTiles) VisitTiles(visitor func(tile.Coord, []byte) error) error {
	var traverse func(offset, length uint64) error
	traverse = func(offset, length uint64) error {
		entries, err := p.readDirectory(offset, length)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.RunLength == 0 {
				err := traverse(p.header.LeafDirectoryOffset+entry.Offset, uint64(entry.Length))
				if err != nil {
					return err
				}
				continue
			}
			compressed, err := p.access(p.header.TileDataOffset+entry.Offset, uint64(entry.Length))
			if err != nil {
				return err
			}
			data, err := pmDecompress(compressed, p.header.TileCompression)
			if err != nil {
				return err
			}
			for i := range entry.RunLength {
				coord := DecodeTileID(entry.TileCode + uint64(i))
				if err := visitor(coord, data); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return traverse(p.header.RootOffset, p.header.RootLength)
}
