// Package igc decodes IGC flight logs, the line-oriented text format
// flight recorders produce, down to the header fields and GPS fixes a
// track viewer needs.
package igc

import (
	"bufio"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

var ErrNoFixes = errors.New("mapview: igc log contains no fixes")

var (
	// B records: time, latitude, longitude, validity and the two
	// altitudes. Trailing extension bytes are ignored.
	bRecordRegexp = regexp.MustCompile(
		`^B(\d{2})(\d{2})(\d{2})` + // HHMMSS
			`(\d{2})(\d{2})(\d{3})([NS])` + // DDMMmmm N/S
			`(\d{3})(\d{2})(\d{3})([EW])` + // DDDMMmmm E/W
			`([AV])([-\d]\d{4})([-\d]\d{4})`) // validity, pressure alt, gnss alt
	hRecordRegexp = regexp.MustCompile(`^H.([A-Z]{3}).*?:\s*(.*)`)
	dateRegexp    = regexp.MustCompile(`(\d{2})(\d{2})(\d{2})`)
)

// Fix is one GPS fix of a flight log.
type Fix struct {
	Time time.Time
	// Point is the fix position as lon/lat degrees.
	Point orb.Point
	// Valid marks a 3D fix; fixes flagged V carry 2D data only.
	Valid bool
	// PressureAlt and GNSSAlt are meters above the 1013.25 hPa datum and
	// the WGS84 ellipsoid respectively.
	PressureAlt float64
	GNSSAlt     float64
}

// Track is one decoded flight log.
type Track struct {
	Pilot      string
	GliderType string
	// Date is the UTC day the log started on.
	Date  time.Time
	Fixes []Fix
}

// defaultDate stands in when a log carries no HFDTE record, which the
// format allows but recorders rarely do.
var defaultDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Parse decodes a flight log. Lines that do not parse are skipped; logs
// without a single fix fail with ErrNoFixes.
func Parse(r io.Reader) (*Track, error) {
	track := &Track{Date: defaultDate}

	scanner := bufio.NewScanner(r)
	dayOffset := 0
	lastSecs := -1
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case strings.HasPrefix(line, "B"):
			fix, secs, ok := parseFix(line)
			if !ok {
				continue
			}
			// Recorders log times of day only; a drop in the clock means
			// the flight crossed midnight.
			if secs < lastSecs {
				dayOffset++
			}
			lastSecs = secs
			fix.Time = track.Date.AddDate(0, 0, dayOffset).
				Add(time.Duration(secs) * time.Second)
			track.Fixes = append(track.Fixes, fix)
		case strings.HasPrefix(line, "HFDTE"):
			if m := dateRegexp.FindStringSubmatch(line[5:]); m != nil && len(track.Fixes) == 0 {
				day, _ := strconv.Atoi(m[1])
				month, _ := strconv.Atoi(m[2])
				year, _ := strconv.Atoi(m[3])
				track.Date = time.Date(2000+year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
			}
		case strings.HasPrefix(line, "H"):
			if m := hRecordRegexp.FindStringSubmatch(line); m != nil {
				switch m[1] {
				case "PLT":
					track.Pilot = strings.TrimSpace(m[2])
				case "GTY":
					track.GliderType = strings.TrimSpace(m[2])
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(track.Fixes) == 0 {
		return nil, ErrNoFixes
	}
	return track, nil
}

// parseFix decodes one B record, returning the fix and its time of day
// in seconds.
func parseFix(line string) (Fix, int, bool) {
	m := bRecordRegexp.FindStringSubmatch(line)
	if m == nil {
		return Fix{}, 0, false
	}

	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	second, _ := strconv.Atoi(m[3])

	lat := coordinate(m[4], m[5], m[6])
	if m[7] == "S" {
		lat = -lat
	}
	lon := coordinate(m[8], m[9], m[10])
	if m[11] == "W" {
		lon = -lon
	}

	pressureAlt, _ := strconv.Atoi(m[13])
	gnssAlt, _ := strconv.Atoi(m[14])

	fix := Fix{
		Point:       orb.Point{lon, lat},
		Valid:       m[12] == "A",
		PressureAlt: float64(pressureAlt),
		GNSSAlt:     float64(gnssAlt),
	}
	return fix, hour*3600 + minute*60 + second, true
}

// coordinate assembles degrees, minutes and thousandths of minutes into
// decimal degrees.
func coordinate(deg, min, thousandths string) float64 {
	d, _ := strconv.Atoi(deg)
	m, _ := strconv.Atoi(min)
	t, _ := strconv.Atoi(thousandths)
	return float64(d) + (float64(m)+float64(t)/1000)/60
}

// LineString returns the track as an orb line string of lon/lat points.
func (t *Track) LineString() orb.LineString {
	line := make(orb.LineString, 0, len(t.Fixes))
	for _, fix := range t.Fixes {
		line = append(line, fix.Point)
	}
	return line
}

// Duration returns the time between the first and last fix.
func (t *Track) Duration() time.Duration {
	if len(t.Fixes) < 2 {
		return 0
	}
	return t.Fixes[len(t.Fixes)-1].Time.Sub(t.Fixes[0].Time)
}
