package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/subcommands"
	"github.com/paulmach/orb/geojson"

	"github.com/eak1mov/go-mapview/mvt"
	"github.com/eak1mov/go-mapview/tile"
)

type inspectCmd struct {
	inputFormat string
	inputPath   string
	z, x, y     int
	layerName   string
	geojsonPath string
}

func (c *inspectCmd) Name() string     { return "inspect" }
func (c *inspectCmd) Synopsis() string { return "decode one vector tile and print its layers" }
func (c *inspectCmd) Usage() string {
	return "mapview inspect -i <path> -z <z> -x <x> -y <y> [-l <layer> -geojson <path> -if <format>]\n"
}
func (c *inspectCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.inputPath, "i", "", "Input tileset path")
	f.StringVar(&c.inputFormat, "if", "", "Input tileset format (mbtiles, pmtiles, xyz, http)")
	f.IntVar(&c.z, "z", 0, "Tile zoom")
	f.IntVar(&c.x, "x", 0, "Tile column")
	f.IntVar(&c.y, "y", 0, "Tile row")
	f.StringVar(&c.layerName, "l", "", "Only this layer")
	f.StringVar(&c.geojsonPath, "geojson", "", "Write features as GeoJSON (tile-local coordinates)")
}

func (c *inspectCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	reader, closer, err := openSource(c.inputFormat, c.inputPath)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer closer()

	coord := tile.Coord{Z: int32(c.z), X: int32(c.x), Y: int32(c.y)}
	data, err := reader.ReadTile(coord)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	if len(data) == 0 {
		log.Printf("tile %v not found", coord)
		return subcommands.ExitFailure
	}

	decoded, err := mvt.Decode(maybeGunzip(data))
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	collection := geojson.NewFeatureCollection()
	for _, layer := range decoded.Layers {
		if c.layerName != "" && layer.Name != c.layerName {
			continue
		}
		fmt.Printf("layer %q: version %d, extent %d, %d features, %d keys\n",
			layer.Name, layer.Version, layer.Extent, layer.Len(), len(layer.Keys()))
		for f := range layer.Features() {
			g, err := f.Geometry()
			if err != nil {
				log.Printf("layer %q feature: %v", layer.Name, err)
				continue
			}
			fmt.Printf("  %v %v: %d points, %d paths, %d properties\n",
				f.Type, g.Shape, len(g.Coords)/2, len(g.Ends), len(f.Properties))
			if c.geojsonPath == "" {
				continue
			}
			if geom := g.Orb(); geom != nil {
				feature := geojson.NewFeature(geom)
				feature.Properties = geojson.Properties(f.Properties)
				feature.Properties["$layer"] = layer.Name
				if f.HasID {
					feature.ID = f.ID
				}
				collection.Append(feature)
			}
		}
	}

	if c.geojsonPath != "" {
		out, err := json.Marshal(collection)
		if err != nil {
			log.Println(err)
			return subcommands.ExitFailure
		}
		if err := os.WriteFile(c.geojsonPath, out, 0o644); err != nil {
			log.Println(err)
			return subcommands.ExitFailure
		}
		log.Printf("wrote %d features to %v", len(collection.Features), c.geojsonPath)
	}

	return subcommands.ExitSuccess
}
