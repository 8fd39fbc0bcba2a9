package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/eak1mov/go-mapview/tile"
)

var ErrInvalidPattern = errors.New("mapview: invalid tile pattern")

func validatePattern(pattern string) error {
	for _, p := range []string{"{x}", "{y}", "{z}"} {
		if !strings.Contains(pattern, p) {
			return fmt.Errorf("%w: placeholder %v not found", ErrInvalidPattern, p)
		}
	}
	return nil
}

func formatPattern(pattern string, coord tile.Coord) string {
	result := pattern
	result = strings.ReplaceAll(result, "{x}", strconv.FormatInt(int64(coord.X), 10))
	result = strings.ReplaceAll(result, "{y}", strconv.FormatInt(int64(coord.Y), 10))
	result = strings.ReplaceAll(result, "{z}", strconv.FormatInt(int64(coord.Z), 10))
	return result
}

// Pattern reads tiles stored as individual files addressed by a path
// template like "/home/user/tiles/{z}/{x}/{y}.png".
type Pattern struct {
	filePattern string
	rootDir     string
	pathRegexp  *regexp.Regexp
}

// NewPattern creates a Pattern for the given file template. The template
// must contain all of the {x}, {y} and {z} placeholders.
func NewPattern(filePattern string) (*Pattern, error) {
	if err := validatePattern(filePattern); err != nil {
		return nil, err
	}

	regexPattern := regexp.QuoteMeta(filePattern)
	regexPattern = strings.ReplaceAll(regexPattern, `\{x\}`, `(?P<x>\d+)`)
	regexPattern = strings.ReplaceAll(regexPattern, `\{y\}`, `(?P<y>\d+)`)
	regexPattern = strings.ReplaceAll(regexPattern, `\{z\}`, `(?P<z>\d+)`)
	pathRegexp, err := regexp.Compile("^" + regexPattern + "$")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}

	// The deepest directory shared by every tile path is where the
	// placeholders start; walk only that subtree when visiting.
	path0 := formatPattern(filePattern, tile.Coord{Z: 0, X: 0, Y: 0})
	path1 := formatPattern(filePattern, tile.Coord{Z: 1, X: 1, Y: 1})
	for path0 != path1 {
		path0 = filepath.Dir(path0)
		path1 = filepath.Dir(path1)
	}

	return &Pattern{filePattern: filePattern, rootDir: path0, pathRegexp: pathRegexp}, nil
}

func (p *Pattern) ReadTile(coord tile.Coord) ([]byte, error) {
	filePath := formatPattern(p.filePattern, coord)
	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return make([]byte, 0), nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (p *Pattern) VisitTiles(visitor func(tile.Coord, []byte) error) error {
	return filepath.WalkDir(p.rootDir, func(filePath string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		matches := p.pathRegexp.FindStringSubmatch(filePath)
		if matches == nil {
			return nil
		}

		x, _ := strconv.Atoi(matches[p.pathRegexp.SubexpIndex("x")])
		y, _ := strconv.Atoi(matches[p.pathRegexp.SubexpIndex("y")])
		z, _ := strconv.Atoi(matches[p.pathRegexp.SubexpIndex("z")])

		data, err := os.ReadFile(filePath)
		if err != nil {
			return err
		}

		return visitor(tile.Coord{Z: int32(z), X: int32(x), Y: int32(y)}, data)
	})
}
