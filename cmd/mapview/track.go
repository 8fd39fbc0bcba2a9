package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/google/subcommands"
	"github.com/paulmach/orb/geojson"

	"github.com/eak1mov/go-mapview/igc"
)

type trackCmd struct {
	inputPath  string
	outputPath string
}

func (c *trackCmd) Name() string     { return "track" }
func (c *trackCmd) Synopsis() string { return "convert an IGC flight log to GeoJSON" }
func (c *trackCmd) Usage() string {
	return "mapview track -i <path.igc> -o <path.geojson>\n"
}
func (c *trackCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.inputPath, "i", "", "Input IGC file path")
	f.StringVar(&c.outputPath, "o", "track.geojson", "Output GeoJSON file path")
}

func (c *trackCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	file, err := os.Open(c.inputPath)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer file.Close()

	track, err := igc.Parse(file)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	feature := geojson.NewFeature(track.LineString())
	feature.Properties["pilot"] = track.Pilot
	feature.Properties["glider"] = track.GliderType
	feature.Properties["date"] = track.Date.Format("2006-01-02")
	feature.Properties["duration"] = track.Duration().String()

	collection := geojson.NewFeatureCollection()
	collection.Append(feature)

	out, err := json.Marshal(collection)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	if err := os.WriteFile(c.outputPath, out, 0o644); err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	log.Printf("wrote %d fixes (%v) to %v", len(track.Fixes), track.Duration(), c.outputPath)
	return subcommands.ExitSuccess
}
