package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"

	"github.com/google/subcommands"
	"github.com/schollz/progressbar/v3"

	"github.com/eak1mov/go-mapview/mvt"
	"github.com/eak1mov/go-mapview/source"
	"github.com/eak1mov/go-mapview/tile"
)

type statsCmd struct {
	inputFormat string
	inputPath   string
}

func (c *statsCmd) Name() string     { return "stats" }
func (c *statsCmd) Synopsis() string { return "aggregate per-layer statistics over a vector tileset" }
func (c *statsCmd) Usage() string {
	return "mapview stats -i <path> [-if <format>]\n"
}
func (c *statsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.inputPath, "i", "", "Input tileset path")
	f.StringVar(&c.inputFormat, "if", "", "Input tileset format (mbtiles, pmtiles, xyz)")
}

type layerStats struct {
	tiles    int
	features int
	points   int
	lines    int
	polygons int
	coords   int
}

func (c *statsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	reader, closer, err := openSource(c.inputFormat, c.inputPath)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer closer()

	visitor, ok := reader.(source.Visitor)
	if !ok {
		log.Printf("format %q does not support visiting tiles", deduceFormat(c.inputFormat, c.inputPath))
		return subcommands.ExitFailure
	}

	stats := make(map[string]*layerStats)
	tiles, broken := 0, 0
	minZoom, maxZoom := int32(-1), int32(-1)

	bar := progressbar.NewOptions(-1, progressbar.OptionShowIts(), progressbar.OptionShowCount())
	err = visitor.VisitTiles(func(coord tile.Coord, data []byte) error {
		bar.Add(1)
		tiles++
		if minZoom == -1 || coord.Z < minZoom {
			minZoom = coord.Z
		}
		if coord.Z > maxZoom {
			maxZoom = coord.Z
		}

		decoded, err := mvt.Decode(maybeGunzip(data))
		if err != nil {
			broken++
			return nil
		}
		for _, layer := range decoded.Layers {
			ls := stats[layer.Name]
			if ls == nil {
				ls = &layerStats{}
				stats[layer.Name] = ls
			}
			ls.tiles++
			for f := range layer.Features() {
				ls.features++
				g, err := f.Geometry()
				if err != nil {
					continue
				}
				ls.coords += len(g.Coords) / 2
				switch f.Type {
				case mvt.GeomPoint:
					ls.points++
				case mvt.GeomLineString:
					ls.lines++
				case mvt.GeomPolygon:
					ls.polygons++
				}
			}
		}
		return nil
	})
	bar.Finish()
	fmt.Println()

	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	fmt.Printf("%d tiles, zoom %d..%d", tiles, minZoom, maxZoom)
	if broken > 0 {
		fmt.Printf(", %d not decodable as mvt", broken)
	}
	fmt.Println()

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ls := stats[name]
		fmt.Printf("%-24q %7d tiles %9d features (%d pt, %d ln, %d pg) %11d coords\n",
			name, ls.tiles, ls.features, ls.points, ls.lines, ls.polygons, ls.coords)
	}

	return subcommands.ExitSuccess
}
