package main

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/eak1mov/go-mapview/source"
)

func deduceFormat(format, path string) string {
	if format != "" {
		return format
	}
	switch {
	case strings.HasSuffix(path, ".mbtiles"):
		return "mbtiles"
	case strings.HasSuffix(path, ".pmtiles"):
		return "pmtiles"
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		return "http"
	case strings.Contains(path, "{z}"):
		return "xyz"
	}
	return format
}

// openSource opens a tile reader for path. The returned closer is a
// no-op for formats without an underlying handle.
func openSource(format, path string) (source.Reader, func() error, error) {
	noop := func() error { return nil }
	switch deduceFormat(format, path) {
	case "mbtiles":
		r, err := source.NewMBTiles(path)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	case "pmtiles":
		r, err := source.NewPMTiles(path)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	case "xyz":
		r, err := source.NewPattern(path)
		if err != nil {
			return nil, nil, err
		}
		return r, noop, nil
	case "http":
		r, err := source.NewHTTP(path)
		if err != nil {
			return nil, nil, err
		}
		return r, noop, nil
	default:
		return nil, nil, fmt.Errorf("invalid tileset format: %q", format)
	}
}

// maybeGunzip unwraps gzip-wrapped payloads, which MBTiles archives
// commonly store for vector tiles.
func maybeGunzip(data []byte) []byte {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data
	}
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return data
	}
	defer reader.Close()
	result, err := io.ReadAll(reader)
	if err != nil {
		return data
	}
	return result
}
