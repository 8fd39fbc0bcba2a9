package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/subcommands"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/eak1mov/go-mapview/internal/logging"
	"github.com/eak1mov/go-mapview/render"
	"github.com/eak1mov/go-mapview/source"
	"github.com/eak1mov/go-mapview/tile"

	_ "image/jpeg"
)

type renderCmd struct {
	inputFormat string
	inputPath   string
	outputPath  string
	center      string
	size        string
	zoom        int
	maxZoom     int
	rotation    float64
	logLevel    string
	timeout     time.Duration
}

func (c *renderCmd) Name() string     { return "render" }
func (c *renderCmd) Synopsis() string { return "render a raster tileset view to a PNG" }
func (c *renderCmd) Usage() string {
	return "mapview render -i <path> -o <path> [-center <x,y> -z <zoom> -size <WxH> -rotation <deg>]\n"
}
func (c *renderCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.inputPath, "i", "", "Input tileset path")
	f.StringVar(&c.inputFormat, "if", "", "Input tileset format (mbtiles, pmtiles, xyz, http)")
	f.StringVar(&c.outputPath, "o", "out.png", "Output PNG path")
	f.StringVar(&c.center, "center", "0,0", "View center in grid units")
	f.StringVar(&c.size, "size", "1024x768", "Viewport size in pixels")
	f.IntVar(&c.zoom, "z", 0, "View zoom level")
	f.IntVar(&c.maxZoom, "maxzoom", 22, "Pyramid depth of the tile grid")
	f.Float64Var(&c.rotation, "rotation", 0, "View rotation in degrees")
	f.StringVar(&c.logLevel, "log", "info", "Log level (debug, info, warn, error)")
	f.DurationVar(&c.timeout, "timeout", time.Minute, "Give up waiting for tiles after this long")
}

func parsePoint(s string) (orb.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return orb.Point{}, fmt.Errorf("invalid point: %q", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid point: %q", s)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid point: %q", s)
	}
	return orb.Point{x, y}, nil
}

func parseSize(s string) (w, h int, err error) {
	parts := strings.Split(s, "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid size: %q", s)
	}
	w, err = strconv.Atoi(parts[0])
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("invalid size: %q", s)
	}
	h, err = strconv.Atoi(parts[1])
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("invalid size: %q", s)
	}
	return w, h, nil
}

func (c *renderCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	logger, err := logging.New(c.logLevel)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer logger.Sync()

	center, err := parsePoint(c.center)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	width, height, err := parseSize(c.size)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	reader, closer, err := openSource(c.inputFormat, c.inputPath)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer closer()

	grid := tile.WebMercatorGrid(c.maxZoom)
	src := source.NewTileSource(reader, grid, source.WithLogger(logger))
	layer := render.NewLayer(src, render.WithLogger(logger))

	view := render.View{
		Center:     center,
		Resolution: grid.Resolution(int32(c.zoom)),
		Rotation:   c.rotation * math.Pi / 180,
		Width:      width,
		Height:     height,
	}

	img := layer.RenderFrame(view)
	deadline := time.Now().Add(c.timeout)
	for layer.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
		img = layer.RenderFrame(view)
	}
	if n := layer.Pending(); n > 0 {
		logger.Warn("rendering with missing tiles", zap.Int("pending", n))
	}

	out, err := os.Create(c.outputPath)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer out.Close()
	if err := png.Encode(out, img); err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	log.Printf("rendered %dx%d view at zoom %d to %v", width, height, c.zoom, c.outputPath)
	return subcommands.ExitSuccess
}
